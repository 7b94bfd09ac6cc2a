package domain

import (
	"context"
	"strings"
)

// SessionType identifies one bookable lesson or test category on the portal.
type SessionType string

const (
	SessionPractical SessionType = "practical"
	SessionBTT       SessionType = "btt"
	SessionRTT       SessionType = "rtt"
	SessionPT        SessionType = "pt"
)

// DisplayName returns the human form used in mail subjects and body headers.
func (t SessionType) DisplayName() string {
	if t == SessionPractical {
		return "Practical Lesson"
	}
	return strings.ToUpper(string(t))
}

// SessionDay is one scraped calendar date together with its session time-range
// strings (e.g. "10:20 - 12:00"), in the order the portal listed them.
type SessionDay struct {
	Date  string
	Times []string
}

// BookedSlot is one session the user has already reserved.
type BookedSlot struct {
	Date string
	Time string
}

// Availability is the result of one Session Source fetch for one session type.
// Available and Booked are rebuilt from scratch on every polling cycle.
type Availability struct {
	// LessonName is the portal's name for the next practical lesson
	// (e.g. "Class 2B Lesson 5"); empty for theory/practical tests.
	LessonName string
	Available  []SessionDay
	Booked     []BookedSlot
	// CanBook is false when the portal blocks the user from booking the next
	// session of this type (e.g. lesson 6 before passing the BTT).
	CanBook bool
}

// SessionSource supplies scraped portal data (or a test double).
type SessionSource interface {
	// Start opens the portal and logs in; it blocks until the operator has
	// solved the login captcha or ctx is cancelled.
	Start(ctx context.Context) error
	// RefreshBookings re-scrapes the booking overview; called once per cycle
	// before any Fetch.
	RefreshBookings(ctx context.Context) error
	// Fetch returns the current availability for one session type.
	// It returns ErrNotBookable when the portal denies access to the facility.
	Fetch(ctx context.Context, t SessionType) (*Availability, error)
	Logout(ctx context.Context) error
	Close() error
}
