// Package cdc drives the ComfortDelGro booking portal through a Chrome
// instance and implements domain.SessionSource. Everything in here is tied to
// that one site's markup; the selectors have no meaning anywhere else.
package cdc

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"cdclessontracker/internal/domain"
)

const (
	defaultHomeURL    = "https://www.cdc.com.sg"
	defaultBookingURL = "https://www.cdc.com.sg:8080"

	loginButtonXPath = `//*[@id="top-menu"]/ul/li[10]/a`

	captchaPollInterval = 2 * time.Second
	postLoginSettle     = 5 * time.Second
)

// Config holds portal endpoints, credentials and browser options.
type Config struct {
	Username   string
	Password   string
	HomeURL    string
	BookingURL string
	Headless   bool
}

// Website is a stateful browser session against the booking portal. It is not
// safe for concurrent use; the poller drives it sequentially.
type Website struct {
	cfg    Config
	logger *slog.Logger

	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc

	// dialogs receives the text of portal JS dialogs; the capability probe
	// inspects it to learn why a reservation was rejected
	dialogs chan string

	lessonNames map[domain.SessionType]string
	booked      map[domain.SessionType][]domain.BookedSlot
}

// New returns an unstarted Website; call Start before any other method.
func New(cfg Config, logger *slog.Logger) *Website {
	if cfg.HomeURL == "" {
		cfg.HomeURL = defaultHomeURL
	}
	if cfg.BookingURL == "" {
		cfg.BookingURL = defaultBookingURL
	}
	return &Website{
		cfg:         cfg,
		logger:      logger,
		dialogs:     make(chan string, 4),
		lessonNames: make(map[domain.SessionType]string),
		booked:      make(map[domain.SessionType][]domain.BookedSlot),
	}
}

// Start launches the browser, opens the portal and logs in. It blocks until
// the operator has solved the login captcha or ctx is cancelled.
func (w *Website) Start(ctx context.Context) error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", w.cfg.Headless),
		chromedp.NoSandbox,
		chromedp.Flag("no-proxy-server", true),
		chromedp.WindowSize(1600, 768),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	w.allocCancel = allocCancel
	w.browserCancel = browserCancel
	w.browserCtx = browserCtx

	// accept every JS dialog so navigation never blocks, but keep the text
	// around for the capability probe
	chromedp.ListenTarget(browserCtx, func(ev interface{}) {
		if d, ok := ev.(*page.EventJavascriptDialogOpening); ok {
			select {
			case w.dialogs <- d.Message:
			default:
			}
			go func() {
				if err := chromedp.Run(browserCtx, page.HandleJavaScriptDialog(true)); err != nil {
					w.logger.Warn("could not dismiss portal dialog", "error", err)
				}
			}()
		}
	})

	var title string
	if err := w.run(ctx,
		chromedp.Navigate(w.cfg.HomeURL),
		chromedp.Title(&title),
	); err != nil {
		return fmt.Errorf("failed to open portal home page: %w", err)
	}
	if !strings.Contains(title, "ComfortDelGro") {
		return fmt.Errorf("unexpected portal home page title %q", title)
	}

	return w.login(ctx)
}

func (w *Website) login(ctx context.Context) error {
	if err := w.run(ctx,
		chromedp.Sleep(3*time.Second),
		chromedp.Click(loginButtonXPath),
		chromedp.WaitVisible(`input[name="userId"]`, chromedp.ByQuery),
		chromedp.SendKeys(`input[name="userId"]`, w.cfg.Username, chromedp.ByQuery),
		chromedp.SendKeys(`input[name="password"]`, w.cfg.Password, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("failed to fill login form: %w", err)
	}

	// The portal shows a reCAPTCHA the operator has to solve by hand; the
	// login form disappears once it went through.
	w.logger.Info("waiting for the login captcha to be solved")
	for {
		var formPresent bool
		if err := w.run(ctx,
			chromedp.Evaluate(`document.getElementsByName("userId").length > 0`, &formPresent),
		); err != nil {
			return fmt.Errorf("failed to poll login state: %w", err)
		}
		if !formPresent {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(captchaPollInterval):
		}
	}
	w.logger.Info("captcha solved, continuing")

	return w.run(ctx, chromedp.Sleep(postLoginSettle))
}

// run executes browser actions on the long-lived tab while honoring the
// caller's cancellation and deadline.
func (w *Website) run(ctx context.Context, actions ...chromedp.Action) error {
	if w.browserCtx == nil {
		return fmt.Errorf("browser session not started")
	}
	runCtx, cancel := context.WithCancel(w.browserCtx)
	defer cancel()
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-runCtx.Done():
		}
	}()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

// open navigates to a booking page. The portal reliably renders its booking
// pages only on the second request, so every page is loaded twice.
func (w *Website) open(ctx context.Context, path string) error {
	url := fmt.Sprintf("%s/%s", w.cfg.BookingURL, path)
	return w.run(ctx,
		chromedp.Navigate(url),
		chromedp.Navigate(url),
	)
}

// accessDenied reports whether the portal bounced the last navigation to its
// "You do not have access to this facility." alert page.
func (w *Website) accessDenied(ctx context.Context) (bool, error) {
	var loc string
	if err := w.run(ctx, chromedp.Location(&loc)); err != nil {
		return false, err
	}
	return strings.Contains(loc, "Alert.aspx"), nil
}

// acceptTerms ticks the terms-and-conditions checkbox when the portal shows
// one; some accounts skip the interstitial, so failures are fine.
func (w *Website) acceptTerms(ctx context.Context) {
	tctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := w.run(tctx,
		chromedp.Click(`#ctl00_ContentPlaceHolder1_chkTermsAndCond`, chromedp.ByQuery),
		chromedp.Click(`#ctl00_ContentPlaceHolder1_btnAgreeTerms`, chromedp.ByQuery),
	); err != nil {
		w.logger.Debug("no terms and conditions to accept", "error", err)
	}
}

type bookedRow struct {
	Date   string `json:"date"`
	Start  string `json:"start"`
	End    string `json:"end"`
	Lesson string `json:"lesson"`
}

const bookedRowsJS = `
(() => {
	const rows = [];
	for (const tr of document.querySelectorAll("table#ctl00_ContentPlaceHolder1_gvBooked tr")) {
		const td = tr.querySelectorAll("td");
		if (td.length === 0) continue;
		rows.push({
			date: td[0].innerText.trim(),
			start: td[2].innerText.trim(),
			end: td[3].innerText.trim(),
			lesson: td[4].innerText.trim(),
		});
	}
	return rows;
})()`

// RefreshBookings scrapes the booking-overview table into per-type booked
// sessions and lesson names.
func (w *Website) RefreshBookings(ctx context.Context) error {
	if err := w.open(ctx, "NewPortal/Booking/StatementBooking.aspx"); err != nil {
		return fmt.Errorf("failed to open booking overview: %w", err)
	}

	var rows []bookedRow
	if err := w.run(ctx, chromedp.Evaluate(bookedRowsJS, &rows)); err != nil {
		return fmt.Errorf("failed to scrape booking overview: %w", err)
	}

	w.lessonNames = make(map[domain.SessionType]string)
	w.booked = make(map[domain.SessionType][]domain.BookedSlot)

	// Only the highest-numbered 2BL booking counts; lower-numbered rows are
	// about to be cancelled and would skew the earlier-slot comparison.
	latestLesson := 0
	for _, r := range rows {
		if strings.Contains(r.Lesson, "2BL") {
			if n, err := strconv.Atoi(r.Lesson[len(r.Lesson)-1:]); err == nil && n > latestLesson {
				latestLesson = n
			}
		}
	}

	for _, r := range rows {
		slot := domain.BookedSlot{Date: r.Date, Time: r.Start + " - " + r.End}
		switch {
		case strings.Contains(r.Lesson, "2BL"):
			if !strings.HasSuffix(r.Lesson, strconv.Itoa(latestLesson)) {
				w.logger.Debug("skipping stale practical lesson booking", "lesson", r.Lesson)
				continue
			}
			w.lessonNames[domain.SessionPractical] = r.Lesson
			w.booked[domain.SessionPractical] = append(w.booked[domain.SessionPractical], slot)
		case strings.Contains(r.Lesson, "RTT"):
			w.lessonNames[domain.SessionRTT] = r.Lesson
			w.booked[domain.SessionRTT] = append(w.booked[domain.SessionRTT], slot)
		case strings.Contains(r.Lesson, "BTT"):
			w.lessonNames[domain.SessionBTT] = r.Lesson
			w.booked[domain.SessionBTT] = append(w.booked[domain.SessionBTT], slot)
		case strings.Contains(r.Lesson, "PT"):
			w.lessonNames[domain.SessionPT] = r.Lesson
			w.booked[domain.SessionPT] = append(w.booked[domain.SessionPT], slot)
		}
	}
	return nil
}

// Logout ends the portal session.
func (w *Website) Logout(ctx context.Context) error {
	url := fmt.Sprintf("%s/NewPortal/logOut.aspx?PageName=Logout", w.cfg.BookingURL)
	return w.run(ctx, chromedp.Navigate(url))
}

// Close releases the browser. Safe to call whether or not Start succeeded.
func (w *Website) Close() error {
	if w.browserCancel != nil {
		w.browserCancel()
	}
	if w.allocCancel != nil {
		w.allocCancel()
	}
	return nil
}
