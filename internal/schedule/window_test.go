package schedule

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 14, hour, minute, 0, 0, time.UTC)
}

func TestParseWindow(t *testing.T) {
	tests := []struct {
		start, end string
		want       Window
		wantErr    bool
	}{
		{"22:00", "06:00", Window{Start: 22 * 60, End: 6 * 60}, false},
		{"00:00", "00:00", Window{}, false},
		{"9:30", "17:45", Window{Start: 9*60 + 30, End: 17*60 + 45}, false},
		{"24:00", "06:00", Window{}, true},
		{"22:60", "06:00", Window{}, true},
		{"2200", "0600", Window{}, true},
		{"", "06:00", Window{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.start+"-"+tt.end, func(t *testing.T) {
			got, err := ParseWindow(tt.start, tt.end)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseWindow: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestWindowOpen(t *testing.T) {
	tests := []struct {
		name string
		win  Window
		t    time.Time
		want bool
	}{
		{"always open", Window{Start: 0, End: 0}, at(12, 0), true},
		{"daytime inside", Window{Start: 9 * 60, End: 17 * 60}, at(12, 0), true},
		{"daytime at start", Window{Start: 9 * 60, End: 17 * 60}, at(9, 0), true},
		{"daytime at end", Window{Start: 9 * 60, End: 17 * 60}, at(17, 0), false},
		{"daytime before", Window{Start: 9 * 60, End: 17 * 60}, at(8, 59), false},
		{"overnight late", Window{Start: 22 * 60, End: 6 * 60}, at(23, 30), true},
		{"overnight early", Window{Start: 22 * 60, End: 6 * 60}, at(3, 0), true},
		{"overnight closed", Window{Start: 22 * 60, End: 6 * 60}, at(12, 0), false},
		{"overnight at end", Window{Start: 22 * 60, End: 6 * 60}, at(6, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.win.Open(tt.t); got != tt.want {
				t.Errorf("Open(%v) = %v, want %v", tt.t, got, tt.want)
			}
		})
	}
}

func TestWindowUntilOpen(t *testing.T) {
	win := Window{Start: 22 * 60, End: 6 * 60}

	if d := win.UntilOpen(at(23, 0)); d != 0 {
		t.Errorf("open window: UntilOpen = %v, want 0", d)
	}
	if d := win.UntilOpen(at(20, 0)); d != 2*time.Hour {
		t.Errorf("2h before open: UntilOpen = %v, want 2h", d)
	}
	// 06:00 is just past close; the next opening is 16h out.
	if d := win.UntilOpen(at(6, 0)); d != 16*time.Hour {
		t.Errorf("just closed: UntilOpen = %v, want 16h", d)
	}

	// Sub-minute offsets are trimmed so the wait lands on the opening minute.
	base := time.Date(2026, 3, 14, 20, 0, 30, 0, time.UTC)
	if d := win.UntilOpen(base); d != 2*time.Hour-30*time.Second {
		t.Errorf("UntilOpen with seconds = %v, want 1h59m30s", d)
	}
}

func TestWaiterSleepsUntilOpen(t *testing.T) {
	win := Window{Start: 22 * 60, End: 6 * 60}
	w := NewWaiter(win, slog.New(slog.NewTextHandler(io.Discard, nil)))
	w.WithClock(func() time.Time { return at(21, 0) })

	var slept time.Duration
	w.WithSleeper(func(ctx context.Context, d time.Duration) error {
		slept = d
		return nil
	})

	if err := w.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if slept != time.Hour {
		t.Errorf("slept %v, want 1h", slept)
	}
}

func TestWaiterNoSleepWhenOpen(t *testing.T) {
	w := NewWaiter(Window{Start: 22 * 60, End: 6 * 60}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	w.WithClock(func() time.Time { return at(23, 0) })
	w.WithSleeper(func(ctx context.Context, d time.Duration) error {
		t.Fatal("sleeper must not run inside the window")
		return nil
	})

	if err := w.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestWaiterPropagatesCancellation(t *testing.T) {
	w := NewWaiter(Window{Start: 22 * 60, End: 6 * 60}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	w.WithClock(func() time.Time { return at(12, 0) })
	w.WithSleeper(func(ctx context.Context, d time.Duration) error {
		return context.Canceled
	})

	if err := w.Wait(context.Background()); err != context.Canceled {
		t.Fatalf("Wait = %v, want context.Canceled", err)
	}
}
