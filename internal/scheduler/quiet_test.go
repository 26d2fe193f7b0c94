package scheduler

import (
	"testing"
	"time"
)

func clock(t *testing.T, hhmm string) time.Time {
	t.Helper()
	ts, err := time.Parse("15:04", hhmm)
	if err != nil {
		t.Fatalf("bad test clock %q: %v", hhmm, err)
	}
	return ts
}

func TestParseQuietHours(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		raw     string
		want    Window
		wantErr bool
	}{
		{name: "disabled", raw: "", want: Window{}},
		{name: "plain", raw: "23:00-07:00", want: Window{Start: 23 * 60, End: 7 * 60, Enabled: true}},
		{name: "same day", raw: "09:30-17:45", want: Window{Start: 9*60 + 30, End: 17*60 + 45, Enabled: true}},
		{name: "spaces", raw: "  22:00-06:00  ", want: Window{Start: 22 * 60, End: 6 * 60, Enabled: true}},
		{name: "missing dash", raw: "23:00", wantErr: true},
		{name: "bad hour", raw: "25:00-07:00", wantErr: true},
		{name: "garbage", raw: "night-morning", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseQuietHours(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseQuietHours(%q) = %+v, want error", tt.raw, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseQuietHours(%q) error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Fatalf("ParseQuietHours(%q) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestWindowContains(t *testing.T) {
	t.Parallel()
	wrap := Window{Start: 23 * 60, End: 7 * 60, Enabled: true}    // 23:00-07:00
	sameDay := Window{Start: 9 * 60, End: 17 * 60, Enabled: true} // 09:00-17:00
	disabled := Window{}

	tests := []struct {
		name string
		w    Window
		at   string
		want bool
	}{
		{name: "wrap late evening", w: wrap, at: "23:30", want: true},
		{name: "wrap early morning", w: wrap, at: "06:00", want: true},
		{name: "wrap start boundary", w: wrap, at: "23:00", want: true},
		{name: "wrap end boundary", w: wrap, at: "07:00", want: true},
		{name: "wrap midday", w: wrap, at: "12:00", want: false},
		{name: "wrap just after end", w: wrap, at: "07:01", want: false},
		{name: "same day inside", w: sameDay, at: "12:00", want: true},
		{name: "same day boundaries", w: sameDay, at: "09:00", want: true},
		{name: "same day outside", w: sameDay, at: "18:00", want: false},
		{name: "disabled never matches", w: disabled, at: "03:00", want: false},
		{name: "zero value skips midnight minute", w: disabled, at: "00:00", want: false},
		{name: "explicit midnight minute", w: Window{Enabled: true}, at: "00:00", want: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.w.Contains(clock(t, tt.at)); got != tt.want {
				t.Fatalf("%s.Contains(%s) = %v, want %v", tt.w, tt.at, got, tt.want)
			}
		})
	}
}

func TestWindowString(t *testing.T) {
	t.Parallel()
	if got := (Window{Start: 23 * 60, End: 7 * 60, Enabled: true}).String(); got != "23:00-07:00" {
		t.Fatalf("String() = %q, want %q", got, "23:00-07:00")
	}
	if got := (Window{}).String(); got != "disabled" {
		t.Fatalf("String() = %q, want %q", got, "disabled")
	}
}
