package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"cdclessontracker/internal/domain"
)

// NotifyConfig carries the decision-engine settings for one user.
type NotifyConfig struct {
	User         string
	ToEmail      string
	NotifyAlways bool
	DayFilter    string
	HourFilter   string
}

type notifyService struct {
	cfg     NotifyConfig
	markers domain.MarkerStore
	mailer  domain.Mailer
	logger  *slog.Logger
}

// NewNotifyService returns a NotifyService that alerts the given user over the
// given Mailer and dedups via the given MarkerStore.
func NewNotifyService(cfg NotifyConfig, markers domain.MarkerStore, mailer domain.Mailer, logger *slog.Logger) domain.NotifyService {
	if cfg.DayFilter == "" {
		cfg.DayFilter = domain.FilterNone
	}
	if cfg.HourFilter == "" {
		cfg.HourFilter = domain.FilterNone
	}
	return &notifyService{
		cfg:     cfg,
		markers: markers,
		mailer:  mailer,
		logger:  logger,
	}
}

// slot is one available session with its parsed start instant.
type slot struct {
	date      string
	timeRange string
	at        time.Time
}

// Check implements the per-cycle decision for one session type:
// no sessions clears the marker; sessions without a booking always notify;
// an earlier-than-booked session notifies once per distinct earliest instant;
// otherwise nothing happens unless NotifyAlways is set.
func (s *notifyService) Check(ctx context.Context, t domain.SessionType, avail *domain.Availability) (bool, error) {
	slots, err := s.filterSessions(avail.Available)
	if err != nil {
		return false, err
	}

	if len(slots) == 0 {
		// delete the marker so a fresh notification goes out once sessions
		// reappear
		if err := s.markers.Clear(s.cfg.User, t); err != nil {
			s.logger.Warn("could not clear last-session marker", "type", string(t), "error", err)
		}
		s.logger.Info("no sessions available for booking yet", "type", string(t))
		return false, nil
	}

	var body strings.Builder
	if t == domain.SessionPractical {
		fmt.Fprintf(&body, "There are the following available sessions for your (%s) next 2B practical lesson (%s) @ CDC:\n\n",
			s.cfg.User, avail.LessonName)
	} else {
		fmt.Fprintf(&body, "There are the following available %s sessions for you (%s):\n\n",
			t.DisplayName(), s.cfg.User)
	}
	for i, sl := range slots {
		fmt.Fprintf(&body, "- Available session #%d: %s @ %s\n", i+1, sl.date, sl.timeRange)
	}

	inform := false
	if len(avail.Booked) == 0 {
		body.WriteString("\nYou have not booked any session yet!")
		inform = true
	} else {
		body.WriteString("\nYou have already booked the following session(s):\n\n")
		for i, b := range avail.Booked {
			fmt.Fprintf(&body, "- Booked session #%d: %s @ %s\n", i+1, b.Date, b.Time)
		}

		earliestAvailable := earliestSlot(slots)
		earliestBooked, err := earliestBookedInstant(avail.Booked)
		if err != nil {
			return false, err
		}

		if earliestAvailable.at.Before(earliestBooked) {
			body.WriteString("\n-> There is an earlier session available - Consider rebooking!")
			inform = s.isNewEarliest(t, earliestAvailable.at)
		} else {
			body.WriteString("\n-> There is no earlier session available.")
			if s.cfg.NotifyAlways {
				inform = true
			}
		}
	}

	s.logger.Info(body.String())

	if inform {
		s.send(t, body.String())
	}
	return inform, nil
}

// filterSessions flattens the scraped days into slots with parsed instants,
// dropping sessions excluded by the configured weekday/hour filters. An
// unparseable session date invalidates the whole comparison and is fatal for
// the cycle.
func (s *notifyService) filterSessions(days []domain.SessionDay) ([]slot, error) {
	var out []slot
	for _, day := range days {
		for _, tr := range day.Times {
			at, err := domain.ParseSessionTime(day.Date, tr)
			if err != nil {
				return nil, fmt.Errorf("available session %s @ %s: %w", day.Date, tr, err)
			}
			if !domain.MatchesDayFilter(at, s.cfg.DayFilter) {
				s.logger.Debug("session excluded by day filter", "date", day.Date, "time", tr)
				continue
			}
			if !domain.MatchesHourFilter(at, s.cfg.HourFilter, s.logger) {
				s.logger.Debug("session excluded by hour filter", "date", day.Date, "time", tr)
				continue
			}
			out = append(out, slot{date: day.Date, timeRange: tr, at: at})
		}
	}
	return out, nil
}

// earliestSlot picks the minimum by parsed instant rather than trusting the
// scrape order of the grid.
func earliestSlot(slots []slot) slot {
	earliest := slots[0]
	for _, sl := range slots[1:] {
		if sl.at.Before(earliest.at) {
			earliest = sl
		}
	}
	return earliest
}

func earliestBookedInstant(booked []domain.BookedSlot) (time.Time, error) {
	var earliest time.Time
	for i, b := range booked {
		at, err := domain.ParseSessionTime(b.Date, b.Time)
		if err != nil {
			return time.Time{}, fmt.Errorf("booked session %s @ %s: %w", b.Date, b.Time, err)
		}
		if i == 0 || at.Before(earliest) {
			earliest = at
		}
	}
	return earliest, nil
}

// isNewEarliest consults the dedup marker and records the new earliest instant
// when a notification is due. A corrupt or unreadable marker counts as absent:
// better a duplicate mail than a silently suppressed one.
func (s *notifyService) isNewEarliest(t domain.SessionType, earliest time.Time) bool {
	last, ok, err := s.markers.Load(s.cfg.User, t)
	if err != nil {
		s.logger.Warn("could not read last-session marker, notifying anyway", "type", string(t), "error", err)
		ok = false
	}
	if ok && last.Equal(earliest) {
		s.logger.Info("no need to send out another email as there is no earlier session available")
		return false
	}
	if err := s.markers.Save(s.cfg.User, t, earliest); err != nil {
		s.logger.Warn("could not save last-session marker", "type", string(t), "error", err)
	}
	return true
}

func (s *notifyService) send(t domain.SessionType, body string) {
	subject := fmt.Sprintf("CDC %s Sessions", t.DisplayName())
	s.logger.Info("sending out email", "to", s.cfg.ToEmail, "subject", subject)
	if err := s.mailer.Send(s.cfg.ToEmail, subject, body); err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) {
			s.logger.Warn("connectivity issue while sending email - are you behind a VPN or proxy?", "error", err)
			return
		}
		s.logger.Error("something went wrong while sending an email", "error", err)
	}
}
