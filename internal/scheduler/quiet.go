package scheduler

import (
	"fmt"
	"strings"
	"time"
)

// Window is a wall-clock do-not-disturb range. Start and End are minutes
// since midnight; Start > End means the window wraps midnight. The zero
// value is disabled, so a Settings built by hand never gates anything.
type Window struct {
	Start   int
	End     int
	Enabled bool
}

// ParseQuietHours parses "HH:MM-HH:MM". An empty string disables the window.
func ParseQuietHours(s string) (Window, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Window{}, nil
	}
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return Window{}, fmt.Errorf("quiet hours %q: want HH:MM-HH:MM", s)
	}
	start, err := parseClock(parts[0])
	if err != nil {
		return Window{}, fmt.Errorf("quiet hours %q: %w", s, err)
	}
	end, err := parseClock(parts[1])
	if err != nil {
		return Window{}, fmt.Errorf("quiet hours %q: %w", s, err)
	}
	return Window{Start: start, End: end, Enabled: true}, nil
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid time %q (want HH:MM)", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Contains reports whether t falls inside the window. Boundaries are
// inclusive on both ends. A wrapping window (Start > End) covers
// [Start, midnight] plus [midnight, End].
func (w Window) Contains(t time.Time) bool {
	if !w.Enabled {
		return false
	}
	now := t.Hour()*60 + t.Minute()
	if w.Start <= w.End {
		return w.Start <= now && now <= w.End
	}
	return now >= w.Start || now <= w.End
}

func (w Window) String() string {
	if !w.Enabled {
		return "disabled"
	}
	return fmt.Sprintf("%02d:%02d-%02d:%02d", w.Start/60, w.Start%60, w.End/60, w.End%60)
}
