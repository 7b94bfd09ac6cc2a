package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"cdclessontracker/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))

// fakeMarkerStore is an in-memory MarkerStore for tests.
type fakeMarkerStore struct {
	markers map[string]time.Time
	loadErr error // if set, Load returns this error
	saveErr error
}

func newFakeMarkerStore() *fakeMarkerStore {
	return &fakeMarkerStore{markers: make(map[string]time.Time)}
}

func markerKey(user string, t domain.SessionType) string {
	return user + "/" + string(t)
}

func (f *fakeMarkerStore) Load(user string, t domain.SessionType) (time.Time, bool, error) {
	if f.loadErr != nil {
		return time.Time{}, false, f.loadErr
	}
	at, ok := f.markers[markerKey(user, t)]
	return at, ok, nil
}

func (f *fakeMarkerStore) Save(user string, t domain.SessionType, instant time.Time) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.markers[markerKey(user, t)] = instant
	return nil
}

func (f *fakeMarkerStore) Clear(user string, t domain.SessionType) error {
	delete(f.markers, markerKey(user, t))
	return nil
}

type sentMail struct {
	to      string
	subject string
	body    string
}

// fakeMailer records sent messages or fails with a configurable error.
type fakeMailer struct {
	sent []sentMail
	err  error
}

func (f *fakeMailer) Send(to, subject, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

func available(days ...domain.SessionDay) []domain.SessionDay { return days }

func day(date string, times ...string) domain.SessionDay {
	return domain.SessionDay{Date: date, Times: times}
}

func TestNotifyService_Check(t *testing.T) {
	ctx := context.Background()
	jan1 := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		cfg          NotifyConfig
		markers      *fakeMarkerStore
		avail        *domain.Availability
		sessionType  domain.SessionType
		wantNotified bool
		wantErr      bool
		assert       func(t *testing.T, markers *fakeMarkerStore, mailer *fakeMailer)
	}{
		{
			name:    "available and not yet booked notifies",
			cfg:     NotifyConfig{User: "learner1", ToEmail: "learner1@example.com"},
			markers: newFakeMarkerStore(),
			avail: &domain.Availability{
				Available: available(day("01/Jan/2024", "09:00 - 10:00")),
				CanBook:   true,
			},
			sessionType:  domain.SessionBTT,
			wantNotified: true,
			assert: func(t *testing.T, markers *fakeMarkerStore, mailer *fakeMailer) {
				require.Len(t, mailer.sent, 1)
				assert.Equal(t, "learner1@example.com", mailer.sent[0].to)
				assert.Equal(t, "CDC BTT Sessions", mailer.sent[0].subject)
				assert.Contains(t, mailer.sent[0].body, "You have not booked any session yet!")
				assert.Contains(t, mailer.sent[0].body, "- Available session #1: 01/Jan/2024 @ 09:00 - 10:00")
				// an unbooked user is reminded every cycle, so no marker is kept
				assert.Empty(t, markers.markers)
			},
		},
		{
			name:    "earlier session with no prior marker notifies and saves marker",
			cfg:     NotifyConfig{User: "learner1", ToEmail: "learner1@example.com"},
			markers: newFakeMarkerStore(),
			avail: &domain.Availability{
				Available: available(day("01/Jan/2024", "09:00-10:00")),
				Booked:    []domain.BookedSlot{{Date: "05/Jan/2024", Time: "09:00-10:00"}},
				CanBook:   true,
			},
			sessionType:  domain.SessionPT,
			wantNotified: true,
			assert: func(t *testing.T, markers *fakeMarkerStore, mailer *fakeMailer) {
				require.Len(t, mailer.sent, 1)
				assert.Contains(t, mailer.sent[0].body, "Consider rebooking!")
				assert.Contains(t, mailer.sent[0].body, "- Booked session #1: 05/Jan/2024 @ 09:00-10:00")
				got, ok := markers.markers[markerKey("learner1", domain.SessionPT)]
				require.True(t, ok)
				assert.True(t, got.Equal(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)))
			},
		},
		{
			name: "marker equal to earliest suppresses repeat notification",
			cfg:  NotifyConfig{User: "learner1", ToEmail: "learner1@example.com"},
			markers: &fakeMarkerStore{markers: map[string]time.Time{
				markerKey("learner1", domain.SessionPT): jan1,
			}},
			avail: &domain.Availability{
				Available: available(day("01/Jan/2024", "09:00-10:00")),
				Booked:    []domain.BookedSlot{{Date: "05/Jan/2024", Time: "09:00-10:00"}},
				CanBook:   true,
			},
			sessionType:  domain.SessionPT,
			wantNotified: false,
			assert: func(t *testing.T, markers *fakeMarkerStore, mailer *fakeMailer) {
				assert.Empty(t, mailer.sent)
				// marker stays in place
				assert.True(t, markers.markers[markerKey("learner1", domain.SessionPT)].Equal(jan1))
			},
		},
		{
			name: "marker for a different earliest instant notifies and overwrites",
			cfg:  NotifyConfig{User: "learner1", ToEmail: "learner1@example.com"},
			markers: &fakeMarkerStore{markers: map[string]time.Time{
				markerKey("learner1", domain.SessionPT): time.Date(2024, 1, 2, 11, 0, 0, 0, time.UTC),
			}},
			avail: &domain.Availability{
				Available: available(day("01/Jan/2024", "09:00-10:00")),
				Booked:    []domain.BookedSlot{{Date: "05/Jan/2024", Time: "09:00-10:00"}},
				CanBook:   true,
			},
			sessionType:  domain.SessionPT,
			wantNotified: true,
			assert: func(t *testing.T, markers *fakeMarkerStore, mailer *fakeMailer) {
				require.Len(t, mailer.sent, 1)
				assert.True(t, markers.markers[markerKey("learner1", domain.SessionPT)].Equal(jan1))
			},
		},
		{
			name: "unreadable marker notifies anyway and overwrites",
			cfg:  NotifyConfig{User: "learner1", ToEmail: "learner1@example.com"},
			markers: func() *fakeMarkerStore {
				m := newFakeMarkerStore()
				m.loadErr = errors.New("corrupt marker file")
				return m
			}(),
			avail: &domain.Availability{
				Available: available(day("01/Jan/2024", "09:00-10:00")),
				Booked:    []domain.BookedSlot{{Date: "05/Jan/2024", Time: "09:00-10:00"}},
				CanBook:   true,
			},
			sessionType:  domain.SessionPT,
			wantNotified: true,
			assert: func(t *testing.T, markers *fakeMarkerStore, mailer *fakeMailer) {
				require.Len(t, mailer.sent, 1)
				assert.True(t, markers.markers[markerKey("learner1", domain.SessionPT)].Equal(jan1))
			},
		},
		{
			name: "no sessions clears marker and stays quiet",
			cfg:  NotifyConfig{User: "learner1", ToEmail: "learner1@example.com"},
			markers: &fakeMarkerStore{markers: map[string]time.Time{
				markerKey("learner1", domain.SessionBTT): jan1,
			}},
			avail:        &domain.Availability{CanBook: true},
			sessionType:  domain.SessionBTT,
			wantNotified: false,
			assert: func(t *testing.T, markers *fakeMarkerStore, mailer *fakeMailer) {
				assert.Empty(t, mailer.sent)
				assert.Empty(t, markers.markers)
			},
		},
		{
			name:    "no earlier session stays quiet by default",
			cfg:     NotifyConfig{User: "learner1", ToEmail: "learner1@example.com"},
			markers: newFakeMarkerStore(),
			avail: &domain.Availability{
				Available: available(day("10/Jan/2024", "09:00 - 10:00")),
				Booked:    []domain.BookedSlot{{Date: "05/Jan/2024", Time: "09:00 - 10:00"}},
				CanBook:   true,
			},
			sessionType:  domain.SessionRTT,
			wantNotified: false,
			assert: func(t *testing.T, markers *fakeMarkerStore, mailer *fakeMailer) {
				assert.Empty(t, mailer.sent)
				assert.Empty(t, markers.markers)
			},
		},
		{
			name:    "no earlier session notifies when NotifyAlways is set, marker untouched",
			cfg:     NotifyConfig{User: "learner1", ToEmail: "learner1@example.com", NotifyAlways: true},
			markers: newFakeMarkerStore(),
			avail: &domain.Availability{
				Available: available(day("10/Jan/2024", "09:00 - 10:00")),
				Booked:    []domain.BookedSlot{{Date: "05/Jan/2024", Time: "09:00 - 10:00"}},
				CanBook:   true,
			},
			sessionType:  domain.SessionRTT,
			wantNotified: true,
			assert: func(t *testing.T, markers *fakeMarkerStore, mailer *fakeMailer) {
				require.Len(t, mailer.sent, 1)
				assert.Contains(t, mailer.sent[0].body, "There is no earlier session available.")
				assert.Empty(t, markers.markers)
			},
		},
		{
			name:    "earliest picked by parsed instant even when grid is out of order",
			cfg:     NotifyConfig{User: "learner1", ToEmail: "learner1@example.com"},
			markers: newFakeMarkerStore(),
			avail: &domain.Availability{
				Available: available(
					day("03/Jan/2024", "11:00 - 12:00"),
					day("02/Jan/2024", "08:00 - 09:00"),
				),
				Booked:  []domain.BookedSlot{{Date: "05/Jan/2024", Time: "09:00 - 10:00"}},
				CanBook: true,
			},
			sessionType:  domain.SessionPractical,
			wantNotified: true,
			assert: func(t *testing.T, markers *fakeMarkerStore, mailer *fakeMailer) {
				got := markers.markers[markerKey("learner1", domain.SessionPractical)]
				assert.True(t, got.Equal(time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC)))
			},
		},
		{
			name:    "day filter removes every session, marker cleared",
			cfg:     NotifyConfig{User: "learner1", ToEmail: "learner1@example.com", DayFilter: "sa;su"},
			markers: newFakeMarkerStore(),
			avail: &domain.Availability{
				// 01/Jan/2024 is a Monday
				Available: available(day("01/Jan/2024", "09:00 - 10:00")),
				CanBook:   true,
			},
			sessionType:  domain.SessionBTT,
			wantNotified: false,
			assert: func(t *testing.T, markers *fakeMarkerStore, mailer *fakeMailer) {
				assert.Empty(t, mailer.sent)
			},
		},
		{
			name:    "hour filter drops the early slot from the comparison",
			cfg:     NotifyConfig{User: "learner1", ToEmail: "learner1@example.com", HourFilter: "10-18"},
			markers: newFakeMarkerStore(),
			avail: &domain.Availability{
				Available: available(day("01/Jan/2024", "08:00 - 09:40", "11:00 - 12:40")),
				Booked:    []domain.BookedSlot{{Date: "05/Jan/2024", Time: "09:00 - 10:00"}},
				CanBook:   true,
			},
			sessionType:  domain.SessionPractical,
			wantNotified: true,
			assert: func(t *testing.T, markers *fakeMarkerStore, mailer *fakeMailer) {
				require.Len(t, mailer.sent, 1)
				assert.NotContains(t, mailer.sent[0].body, "08:00 - 09:40")
				got := markers.markers[markerKey("learner1", domain.SessionPractical)]
				assert.True(t, got.Equal(time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC)))
			},
		},
		{
			name:    "unparseable available session aborts the cycle",
			cfg:     NotifyConfig{User: "learner1", ToEmail: "learner1@example.com"},
			markers: newFakeMarkerStore(),
			avail: &domain.Availability{
				Available: available(day("someday", "whenever")),
				CanBook:   true,
			},
			sessionType: domain.SessionBTT,
			wantErr:     true,
			assert:      func(t *testing.T, _ *fakeMarkerStore, _ *fakeMailer) {},
		},
		{
			name:    "unparseable booked session aborts the cycle",
			cfg:     NotifyConfig{User: "learner1", ToEmail: "learner1@example.com"},
			markers: newFakeMarkerStore(),
			avail: &domain.Availability{
				Available: available(day("01/Jan/2024", "09:00 - 10:00")),
				Booked:    []domain.BookedSlot{{Date: "garbage", Time: "nope"}},
				CanBook:   true,
			},
			sessionType: domain.SessionBTT,
			wantErr:     true,
			assert:      func(t *testing.T, _ *fakeMarkerStore, _ *fakeMailer) {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mailer := &fakeMailer{}
			svc := NewNotifyService(tt.cfg, tt.markers, mailer, testLogger)
			notified, err := svc.Check(ctx, tt.sessionType, tt.avail)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, domain.ErrParse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantNotified, notified)
			tt.assert(t, tt.markers, mailer)
		})
	}
}

func TestNotifyService_Check_MailFailureIsContained(t *testing.T) {
	markers := newFakeMarkerStore()
	mailer := &fakeMailer{err: errors.New("smtp down")}
	svc := NewNotifyService(NotifyConfig{User: "learner1", ToEmail: "learner1@example.com"}, markers, mailer, testLogger)

	notified, err := svc.Check(context.Background(), domain.SessionBTT, &domain.Availability{
		Available: available(day("01/Jan/2024", "09:00 - 10:00")),
		CanBook:   true,
	})

	// the decision stands and the polling loop keeps going
	require.NoError(t, err)
	assert.True(t, notified)
}

func TestNotifyService_Check_PracticalHeaderNamesLesson(t *testing.T) {
	markers := newFakeMarkerStore()
	mailer := &fakeMailer{}
	svc := NewNotifyService(NotifyConfig{User: "learner1", ToEmail: "learner1@example.com"}, markers, mailer, testLogger)

	notified, err := svc.Check(context.Background(), domain.SessionPractical, &domain.Availability{
		LessonName: "Class 2B Lesson 5",
		Available:  available(day("01/Jan/2024", "09:00 - 10:00")),
		CanBook:    true,
	})

	require.NoError(t, err)
	require.True(t, notified)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "CDC Practical Lesson Sessions", mailer.sent[0].subject)
	assert.Contains(t, mailer.sent[0].body, "Class 2B Lesson 5")
}
