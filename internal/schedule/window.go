// Package schedule suspends the pipeline outside configured operating hours.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Window is a daily operating window in minutes of day. Start == End means
// always open. End < Start wraps past midnight (e.g. 22:00–06:00).
type Window struct {
	Start int
	End   int
}

// ParseWindow reads "HH:MM" start and end times.
func ParseWindow(start, end string) (Window, error) {
	s, err := parseMinutes(start)
	if err != nil {
		return Window{}, fmt.Errorf("schedule start: %w", err)
	}
	e, err := parseMinutes(end)
	if err != nil {
		return Window{}, fmt.Errorf("schedule end: %w", err)
	}
	return Window{Start: s, End: e}, nil
}

func parseMinutes(v string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(v), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("want HH:MM, got %q", v)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", v)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", v)
	}
	return h*60 + m, nil
}

// Open reports whether t falls inside the window.
func (w Window) Open(t time.Time) bool {
	if w.Start == w.End {
		return true
	}
	minute := t.Hour()*60 + t.Minute()
	if w.Start < w.End {
		return minute >= w.Start && minute < w.End
	}
	return minute >= w.Start || minute < w.End
}

// UntilOpen returns how long from t until the window next opens; zero when
// it is already open.
func (w Window) UntilOpen(t time.Time) time.Duration {
	if w.Open(t) {
		return 0
	}
	minute := t.Hour()*60 + t.Minute()
	wait := w.Start - minute
	if wait <= 0 {
		wait += 24 * 60
	}
	// Align to the top of the opening minute.
	d := time.Duration(wait) * time.Minute
	return d - time.Duration(t.Second())*time.Second - time.Duration(t.Nanosecond())
}

// Waiter blocks until the window is open. The clock and sleeper are
// injectable so tests can simulate time without real waiting.
type Waiter struct {
	win   Window
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	log   *slog.Logger
}

// NewWaiter creates a Waiter over the given window.
func NewWaiter(win Window, log *slog.Logger) *Waiter {
	return &Waiter{win: win, now: time.Now, log: log}
}

// WithClock sets a custom clock (for testing).
func (w *Waiter) WithClock(now func() time.Time) { w.now = now }

// WithSleeper sets a custom sleeper (for testing).
func (w *Waiter) WithSleeper(sleep func(ctx context.Context, d time.Duration) error) {
	w.sleep = sleep
}

// Wait suspends until the operating window opens or ctx is canceled. It is
// checked between files, never mid-encode.
func (w *Waiter) Wait(ctx context.Context) error {
	d := w.win.UntilOpen(w.now())
	if d <= 0 {
		return nil
	}
	w.log.Info("outside operating hours, suspending",
		slog.Duration("until_open", d))

	if w.sleep != nil {
		return w.sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
