package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrParse marks a session date/time that matches none of the portal formats.
	ErrParse = errors.New("unparseable session date/time")

	// ErrNotBookable is returned by a SessionSource when the portal denies the
	// current user access to a booking facility.
	ErrNotBookable = errors.New("facility not bookable for user")
)

// The portal shows "16/Jan/2021" on most pages and a numeric "16/01/2021"
// variant on a few.
var sessionTimeLayouts = []string{
	"02/Jan/2006 | 15:04",
	"02/01/2006 | 15:04",
}

// ParseSessionTime combines a portal date string and a time-range string
// ("10:20 - 12:00", "10:20-12:00", or a bare "10:20") into the slot's start
// instant. Only the start of the range participates in comparisons.
func ParseSessionTime(dateStr, timeStr string) (time.Time, error) {
	start, _, _ := strings.Cut(timeStr, " ")
	start, _, _ = strings.Cut(start, "-")
	composed := fmt.Sprintf("%s | %s", dateStr, start)
	for _, layout := range sessionTimeLayouts {
		if ts, err := time.Parse(layout, composed); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrParse, composed)
}
