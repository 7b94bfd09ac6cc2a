package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cdclessontracker/internal/domain"
)

// PollerConfig selects which session types to watch and how often.
type PollerConfig struct {
	CheckPractical bool
	CheckBTT       bool
	CheckRTT       bool
	CheckPT        bool

	// StayAlive keeps the poller looping; false means a single pass.
	StayAlive   bool
	RefreshRate time.Duration
}

// Poller drives one Session Source through repeated availability checks and
// feeds the results into the notification decision engine.
type Poller struct {
	cfg    PollerConfig
	source domain.SessionSource
	notify domain.NotifyService
	logger *slog.Logger
}

// NewPoller returns a Poller over the given source and decision engine.
func NewPoller(cfg PollerConfig, source domain.SessionSource, notify domain.NotifyService, logger *slog.Logger) *Poller {
	return &Poller{
		cfg:    cfg,
		source: source,
		notify: notify,
		logger: logger,
	}
}

// Run logs in, then checks each enabled session type once per cycle until the
// context is cancelled or, without StayAlive, after a single pass. The browser
// session is released on every exit path.
func (p *Poller) Run(ctx context.Context) error {
	if err := p.source.Start(ctx); err != nil {
		return fmt.Errorf("failed to open booking portal: %w", err)
	}
	defer p.source.Close()

	for {
		if err := p.runCycle(ctx); err != nil {
			return err
		}
		if !p.cfg.StayAlive {
			break
		}
		p.logger.Debug("sleeping until next cycle", "refresh_rate", p.cfg.RefreshRate)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.cfg.RefreshRate):
		}
	}

	if err := p.source.Logout(ctx); err != nil {
		p.logger.Warn("logout failed", "error", err)
	}
	return nil
}

func (p *Poller) runCycle(ctx context.Context) error {
	if err := p.source.RefreshBookings(ctx); err != nil {
		return fmt.Errorf("failed to refresh booking overview: %w", err)
	}

	for _, t := range p.enabledTypes() {
		avail, err := p.source.Fetch(ctx, t)
		if errors.Is(err, domain.ErrNotBookable) {
			p.logger.Debug("facility not bookable for user", "type", string(t))
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to fetch %s sessions: %w", t, err)
		}
		if !avail.CanBook {
			p.logger.Debug("user cannot book the next session yet", "type", string(t))
			continue
		}
		if _, err := p.notify.Check(ctx, t, avail); err != nil {
			return err
		}
	}
	return nil
}

func (p *Poller) enabledTypes() []domain.SessionType {
	var out []domain.SessionType
	if p.cfg.CheckPractical {
		out = append(out, domain.SessionPractical)
	}
	if p.cfg.CheckBTT {
		out = append(out, domain.SessionBTT)
	}
	if p.cfg.CheckRTT {
		out = append(out, domain.SessionRTT)
	}
	if p.cfg.CheckPT {
		out = append(out, domain.SessionPT)
	}
	return out
}
