package domain

import (
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// FilterNone is the sentinel meaning "no filter configured".
const FilterNone = "na"

// MatchesDayFilter reports whether t passes a ";"-separated weekday filter of
// two-letter lowercase abbreviations (e.g. "mo;tu;sa"). The sentinel passes
// every weekday.
func MatchesDayFilter(t time.Time, filter string) bool {
	if filter == FilterNone {
		return true
	}
	code := strings.ToLower(t.Weekday().String())[:2]
	for _, day := range strings.Split(filter, ";") {
		if code == strings.TrimSpace(day) {
			return true
		}
	}
	return false
}

// MatchesHourFilter reports whether t's hour lies in a "start-end" half-open
// range: for "9-17" hours 9 through 16 pass. A malformed filter passes with a
// warning (fail-open), so a typo in the config never silently suppresses every
// notification.
func MatchesHourFilter(t time.Time, filter string, logger *slog.Logger) bool {
	if filter == FilterNone {
		return true
	}
	startStr, endStr, ok := strings.Cut(filter, "-")
	if !ok {
		logger.Warn("ignoring malformed hour filter", "filter", filter)
		return true
	}
	start, err := strconv.Atoi(strings.TrimSpace(startStr))
	if err != nil {
		logger.Warn("ignoring malformed hour filter", "filter", filter, "error", err)
		return true
	}
	end, err := strconv.Atoi(strings.TrimSpace(endStr))
	if err != nil {
		logger.Warn("ignoring malformed hour filter", "filter", filter, "error", err)
		return true
	}
	return t.Hour() >= start && t.Hour() < end
}
