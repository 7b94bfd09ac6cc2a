package cdc

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"cdclessontracker/internal/domain"
)

// gridSlot is one slot-image cell of the availability grid. The cell id
// encodes its position, e.g. ctl00_ContentPlaceHolder1_gvLatestav_ctl02_btnSession4:
// ctl02 is the grid row, the trailing digit the column.
type gridSlot struct {
	ID   string `json:"id"`
	Row  int    `json:"row"`
	Col  int    `json:"col"`
	Free bool   `json:"free"`
}

type sessionGrid struct {
	Days  []string   `json:"days"`
	Times []string   `json:"times"`
	Slots []gridSlot `json:"slots"`
}

// Images1.gif marks a free slot, Images3.gif one of the user's own bookings.
const sessionGridJS = `
(() => {
	const days = [];
	const times = [];
	for (const tr of document.querySelectorAll("table#ctl00_ContentPlaceHolder1_gvLatestav tr")) {
		tr.querySelectorAll("th").forEach((cell, i) => {
			if (i < 2) return;
			const parts = cell.innerText.split("\n");
			times.push((parts.length > 1 ? parts[1] : parts[0]).trim());
		});
		const td = tr.querySelectorAll("td");
		if (td.length > 0) days.push(td[0].innerText.trim());
	}
	const slots = [];
	for (const input of document.querySelectorAll("input")) {
		const src = input.getAttribute("src") || "";
		const free = src.includes("Images1.gif");
		if (!free && !src.includes("Images3.gif")) continue;
		const id = input.id || "";
		const parts = id.split("_");
		if (parts.length < 4) continue;
		slots.push({
			id: id,
			row: parseInt(parts[3].slice(-2), 10) - 2,
			col: parseInt(id.slice(-1), 10) - 1,
			free: free,
		});
	}
	return {days: days, times: times, slots: slots};
})()`

func (w *Website) scrapeGrid(ctx context.Context) (*sessionGrid, error) {
	var grid sessionGrid
	if err := w.run(ctx, chromedp.Evaluate(sessionGridJS, &grid)); err != nil {
		return nil, fmt.Errorf("failed to scrape availability grid: %w", err)
	}
	return &grid, nil
}

// available groups the free slots into SessionDay entries, rows in calendar
// order, times per row in column order.
func (g *sessionGrid) available(logger *slog.Logger) []domain.SessionDay {
	byRow := make(map[int]*domain.SessionDay)
	var rows []int
	for _, s := range g.Slots {
		if !s.Free {
			continue
		}
		if s.Row < 0 || s.Row >= len(g.Days) || s.Col < 0 || s.Col >= len(g.Times) {
			logger.Warn("slot outside grid bounds", "id", s.ID, "row", s.Row, "col", s.Col)
			continue
		}
		day, ok := byRow[s.Row]
		if !ok {
			day = &domain.SessionDay{Date: g.Days[s.Row]}
			byRow[s.Row] = day
			rows = append(rows, s.Row)
		}
		day.Times = append(day.Times, g.Times[s.Col])
	}
	sort.Ints(rows)
	out := make([]domain.SessionDay, 0, len(rows))
	for _, r := range rows {
		out = append(out, *byRow[r])
	}
	return out
}

// hasOwnBooking reports whether the grid shows one of the user's bookings.
func (g *sessionGrid) hasOwnBooking() bool {
	for _, s := range g.Slots {
		if !s.Free {
			return true
		}
	}
	return false
}

func (g *sessionGrid) lastFreeSlot() *gridSlot {
	var last *gridSlot
	for i := range g.Slots {
		if g.Slots[i].Free {
			last = &g.Slots[i]
		}
	}
	return last
}

// Fetch returns the current availability for one session type, navigating to
// the matching booking page first.
func (w *Website) Fetch(ctx context.Context, t domain.SessionType) (*domain.Availability, error) {
	switch t {
	case domain.SessionPractical:
		return w.fetchPracticalLesson(ctx)
	case domain.SessionBTT, domain.SessionRTT:
		return w.fetchTheoryTest(ctx, t)
	case domain.SessionPT:
		return w.fetchPracticalTest(ctx)
	default:
		return nil, fmt.Errorf("unknown session type %q", t)
	}
}

func (w *Website) fetchTheoryTest(ctx context.Context, t domain.SessionType) (*domain.Availability, error) {
	if err := w.open(ctx, "NewPortal/Booking/BookingTT.aspx"); err != nil {
		return nil, fmt.Errorf("failed to open theory test booking page: %w", err)
	}
	if denied, err := w.accessDenied(ctx); err != nil {
		return nil, err
	} else if denied {
		return nil, domain.ErrNotBookable
	}
	w.acceptTerms(ctx)

	// the same page serves both theory tests; the label says which one the
	// user is currently assigned
	var testName string
	if err := w.run(ctx,
		chromedp.Text(`#ctl00_ContentPlaceHolder1_lblResAsmBlyDesc`, &testName, chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("failed to read test name: %w", err)
	}
	want := "Basic Theory Test"
	if t == domain.SessionRTT {
		want = "Riding Theory Test"
	}
	if !strings.Contains(testName, want) {
		return nil, domain.ErrNotBookable
	}

	grid, err := w.scrapeGrid(ctx)
	if err != nil {
		return nil, err
	}
	return &domain.Availability{
		LessonName: w.lessonNames[t],
		Available:  grid.available(w.logger),
		Booked:     w.booked[t],
		CanBook:    true,
	}, nil
}

const practicalCourseOptionsJS = `
(() => {
	const sel = document.querySelector("#ctl00_ContentPlaceHolder1_ddlCourse");
	const options = [];
	if (sel) {
		for (let i = 1; i < sel.options.length; i++) options.push(sel.options[i].text.trim());
	}
	return options;
})()`

func (w *Website) fetchPracticalLesson(ctx context.Context) (*domain.Availability, error) {
	if err := w.open(ctx, "NewPortal/Booking/BookingPL.aspx"); err != nil {
		return nil, fmt.Errorf("failed to open practical lesson booking page: %w", err)
	}

	lessonName, err := w.selectPracticalCourse(ctx)
	if err != nil {
		return nil, err
	}
	if strings.Contains(lessonName, "REVISION") {
		// only circuit revision left: the user has completed the practical lessons
		w.logger.Debug("no practical lesson available, user seems to have completed practical lessons")
		return nil, domain.ErrNotBookable
	}
	w.lessonNames[domain.SessionPractical] = lessonName

	grid, err := w.scrapeGrid(ctx)
	if err != nil {
		return nil, err
	}
	avail := &domain.Availability{
		LessonName: lessonName,
		Available:  grid.available(w.logger),
		Booked:     w.booked[domain.SessionPractical],
		CanBook:    true,
	}

	// lesson 6 requires the BTT and a PDL; probe once when nothing is booked
	if strings.Contains(lessonName, "Lesson 6") && !grid.hasOwnBooking() && len(avail.Booked) == 0 {
		canBook, err := w.probeLastSlot(ctx, grid, []string{"PDL", "BTT"})
		if err != nil {
			w.logger.Warn("capability probe failed", "error", err)
		} else {
			avail.CanBook = canBook
		}
	}
	return avail, nil
}

// selectPracticalCourse picks the course in the dropdown, preferring the next
// "Class 2B Lesson" over circuit-revision entries, and waits for the grid
// postback.
func (w *Website) selectPracticalCourse(ctx context.Context) (string, error) {
	var options []string
	if err := w.run(ctx, chromedp.Evaluate(practicalCourseOptionsJS, &options)); err != nil {
		return "", fmt.Errorf("failed to read course options: %w", err)
	}
	if len(options) == 0 {
		return "", domain.ErrNotBookable
	}

	idx := 0
	for i, opt := range options {
		if strings.Contains(opt, "Class 2B Lesson") {
			idx = i
		}
	}
	if len(options) > 1 {
		w.logger.Info("multiple course options available, choosing the practical lesson",
			"options", options, "chosen", options[idx])
	}

	selectJS := fmt.Sprintf(`
(() => {
	const sel = document.querySelector("#ctl00_ContentPlaceHolder1_ddlCourse");
	sel.selectedIndex = %d;
	sel.dispatchEvent(new Event("change", {bubbles: true}));
	return true;
})()`, idx+1) // +1 skips the "Select" placeholder option

	var selected bool
	if err := w.run(ctx,
		chromedp.Evaluate(selectJS, &selected),
		chromedp.WaitVisible(`#ctl00_ContentPlaceHolder1_lblSessionNo`, chromedp.ByQuery),
	); err != nil {
		return "", fmt.Errorf("failed to select course: %w", err)
	}
	return options[idx], nil
}

func (w *Website) fetchPracticalTest(ctx context.Context) (*domain.Availability, error) {
	if err := w.open(ctx, "NewPortal/Booking/BookingPT.aspx"); err != nil {
		return nil, fmt.Errorf("failed to open practical test booking page: %w", err)
	}
	if denied, err := w.accessDenied(ctx); err != nil {
		return nil, err
	} else if denied {
		return nil, domain.ErrNotBookable
	}
	w.answerNoOtherLicence(ctx)
	w.acceptTerms(ctx)

	grid, err := w.scrapeGrid(ctx)
	if err != nil {
		return nil, err
	}
	avail := &domain.Availability{
		LessonName: w.lessonNames[domain.SessionPT],
		Available:  grid.available(w.logger),
		Booked:     w.booked[domain.SessionPT],
		CanBook:    true,
	}

	// the test needs the simulator modules done; any rejection dialog means
	// the user cannot book yet
	if !grid.hasOwnBooking() && len(avail.Booked) == 0 {
		canBook, err := w.probeLastSlot(ctx, grid, nil)
		if err != nil {
			w.logger.Warn("capability probe failed", "error", err)
		} else {
			avail.CanBook = canBook
		}
	}
	return avail, nil
}

// answerNoOtherLicence says "No" to the "Do you currently hold other classes
// of Qualified Driving Licence?" question; not every account gets asked.
func (w *Website) answerNoOtherLicence(ctx context.Context) {
	tctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := w.run(tctx,
		chromedp.Click(`#ctl00_ContentPlaceHolder1_btnNo`, chromedp.ByQuery),
	); err != nil {
		w.logger.Debug("no licence question to answer", "error", err)
	}
}

// probeLastSlot tentatively reserves the last free slot to learn whether the
// user may book at all. The portal raises a JS dialog naming the missing
// prerequisite when booking is blocked; otherwise the reservation went
// through and is released again with a second click. With an empty reasons
// list any dialog counts as a rejection.
func (w *Website) probeLastSlot(ctx context.Context, grid *sessionGrid, reasons []string) (bool, error) {
	last := grid.lastFreeSlot()
	if last == nil {
		return true, nil
	}
	w.logger.Info("attempting to reserve a session to check if the user can book", "slot", last.ID)

	// drop any stale dialog text from earlier navigation
	select {
	case <-w.dialogs:
	default:
	}

	if err := w.run(ctx, chromedp.Click("#"+last.ID, chromedp.ByQuery)); err != nil {
		return false, fmt.Errorf("failed to click slot %s: %w", last.ID, err)
	}

	select {
	case msg := <-w.dialogs:
		if len(reasons) == 0 {
			w.logger.Warn("user cannot book the session", "reason", msg)
			return false, nil
		}
		for _, reason := range reasons {
			if strings.Contains(msg, reason) {
				w.logger.Warn("user cannot book the session", "reason", msg)
				return false, nil
			}
		}
		return true, nil
	case <-time.After(5 * time.Second):
		// no dialog: the reservation went through, release it again
		if err := w.run(ctx,
			chromedp.Click("#"+last.ID, chromedp.ByQuery),
			chromedp.Sleep(2*time.Second),
		); err != nil {
			return true, fmt.Errorf("failed to release the probe reservation: %w", err)
		}
		w.logger.Info("reverted reservation of session successfully")
		return true, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
