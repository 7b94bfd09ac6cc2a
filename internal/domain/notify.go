package domain

import (
	"context"
	"time"
)

// MarkerStore persists the last-notified earliest-session instant per
// (user, session type), preventing repeat notifications for an unchanged
// situation.
type MarkerStore interface {
	// Load returns the stored instant; ok is false when no marker exists.
	Load(user string, t SessionType) (instant time.Time, ok bool, err error)
	// Save overwrites the marker for (user, t).
	Save(user string, t SessionType, instant time.Time) error
	// Clear deletes the marker for (user, t); a missing marker is not an error.
	Clear(user string, t SessionType) error
}

// NotifyService is the availability comparison and notification decision
// engine: given one cycle's availability for one session type it decides
// whether to alert the user, sends the mail and maintains the dedup marker.
type NotifyService interface {
	Check(ctx context.Context, t SessionType, avail *Availability) (notified bool, err error)
}
