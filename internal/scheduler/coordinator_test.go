package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tubewatch/internal/search"
	"tubewatch/internal/storage"
	logx "tubewatch/pkg/logx"
)

type fakeSearcher struct {
	mu      sync.Mutex
	calls   int
	results []search.Video
	block   chan struct{} // when set, SearchAll waits until it is closed
}

func (f *fakeSearcher) SearchAll(ctx context.Context, topics, languages, regions []string) []search.Video {
	f.mu.Lock()
	f.calls++
	block := f.block
	results := f.results
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
		}
	}
	return results
}

type fakeCaster struct {
	mu   sync.Mutex
	sent []search.Video
}

func (f *fakeCaster) BroadcastVideo(ctx context.Context, v search.Video) (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, v)
	return 2, 0
}

type fakeLedger struct {
	mu       sync.Mutex
	appended []storage.SeenRecord
	pruned   int
}

func (f *fakeLedger) Append(rec storage.SeenRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended = append(f.appended, rec)
}

func (f *fakeLedger) Prune(maxAge time.Duration) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pruned++
	return 0
}

func (f *fakeLedger) Len() int { return 0 }

func fastSettings() Settings {
	return Settings{
		Interval:    time.Minute,
		Topics:      []string{"go"},
		TopPerCycle: 2,
		ItemDelay:   time.Millisecond,
		Quiet:       Window{},
	}
}

func TestRunNowBroadcastsTopN(t *testing.T) {
	t.Parallel()
	srch := &fakeSearcher{results: []search.Video{
		{ID: "a", Title: "A", Score: 9},
		{ID: "b", Title: "B", Score: 7},
		{ID: "c", Title: "C", Score: 5},
	}}
	cast := &fakeCaster{}
	led := &fakeLedger{}
	c := New(srch, cast, led, nil, fastSettings(), logx.Nop())

	if err := c.RunNow(context.Background()); err != nil {
		t.Fatalf("RunNow error: %v", err)
	}

	cast.mu.Lock()
	defer cast.mu.Unlock()
	if len(cast.sent) != 2 {
		t.Fatalf("broadcast %d videos, want 2 (top per cycle)", len(cast.sent))
	}
	if cast.sent[0].ID != "a" || cast.sent[1].ID != "b" {
		t.Fatalf("broadcast order = %q, %q; want a, b", cast.sent[0].ID, cast.sent[1].ID)
	}

	led.mu.Lock()
	defer led.mu.Unlock()
	if len(led.appended) != 2 {
		t.Fatalf("ledger recorded %d videos, want 2", len(led.appended))
	}
	if led.appended[0].VideoID != "a" {
		t.Fatalf("first ledger entry = %q, want %q", led.appended[0].VideoID, "a")
	}
	if led.pruned != 1 {
		t.Fatalf("prune ran %d times, want 1", led.pruned)
	}

	st := c.Status()
	if st.LastCycle.Found != 3 || st.LastCycle.Sent != 2 || st.LastCycle.Delivered != 4 {
		t.Fatalf("unexpected cycle stats: %+v", st.LastCycle)
	}
}

func TestSingleFlightSkipsOverlap(t *testing.T) {
	t.Parallel()
	block := make(chan struct{})
	srch := &fakeSearcher{block: block}
	c := New(srch, &fakeCaster{}, &fakeLedger{}, nil, fastSettings(), logx.Nop())

	first := make(chan error, 1)
	go func() { first <- c.RunNow(context.Background()) }()

	// Wait for the first cycle to claim the slot.
	deadline := time.After(2 * time.Second)
	for !c.InFlight() {
		select {
		case <-deadline:
			t.Fatal("first cycle never started")
		case <-time.After(time.Millisecond):
		}
	}

	if err := c.RunNow(context.Background()); !errors.Is(err, ErrCycleInFlight) {
		t.Fatalf("overlapping RunNow error = %v, want ErrCycleInFlight", err)
	}

	close(block)
	if err := <-first; err != nil {
		t.Fatalf("first cycle error: %v", err)
	}

	srch.mu.Lock()
	defer srch.mu.Unlock()
	if srch.calls != 1 {
		t.Fatalf("searcher called %d times, want 1 (overlap skipped, not queued)", srch.calls)
	}
}

func TestQuietHoursGateCycle(t *testing.T) {
	t.Parallel()
	set := fastSettings()
	set.Quiet = Window{Start: 0, End: 24*60 - 1, Enabled: true} // always quiet
	srch := &fakeSearcher{results: []search.Video{{ID: "a"}}}
	c := New(srch, &fakeCaster{}, &fakeLedger{}, nil, set, logx.Nop())

	if err := c.RunNow(context.Background()); !errors.Is(err, ErrQuietHours) {
		t.Fatalf("RunNow error = %v, want ErrQuietHours", err)
	}

	srch.mu.Lock()
	calls := srch.calls
	srch.mu.Unlock()
	if calls != 0 {
		t.Fatal("search ran despite quiet hours")
	}
	if got := c.Status().LastCycle.Skipped; got != "quiet_hours" {
		t.Fatalf("Skipped = %q, want %q", got, "quiet_hours")
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()
	c := New(&fakeSearcher{}, &fakeCaster{}, &fakeLedger{}, nil, fastSettings(), logx.Nop())

	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	if !c.Status().Running {
		t.Fatal("Status().Running = false after Start")
	}
	// Second Start is a no-op.
	if err := c.Start(ctx); err != nil {
		t.Fatalf("second Start error: %v", err)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.Stop(stopCtx); err != nil {
		t.Fatalf("Stop error: %v", err)
	}
	if c.Status().Running {
		t.Fatal("Status().Running = true after Stop")
	}
}

func TestApplyReregistersOnIntervalChange(t *testing.T) {
	t.Parallel()
	c := New(&fakeSearcher{}, &fakeCaster{}, &fakeLedger{}, nil, fastSettings(), logx.Nop())
	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	defer c.Stop(ctx)

	set := fastSettings()
	set.Interval = 5 * time.Minute
	if err := c.Apply(ctx, set); err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if got := c.Status().Interval; got != "5m0s" {
		t.Fatalf("Interval = %q, want %q", got, "5m0s")
	}
}
