package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"tubewatch/internal/eventbus"
	"tubewatch/internal/search"
	"tubewatch/internal/storage"
	logx "tubewatch/pkg/logx"
)

// ErrCycleInFlight signals that a search cycle is already running; the
// request is dropped, never queued.
var ErrCycleInFlight = errors.New("search cycle already in flight")

// ErrQuietHours signals that the quiet-hours window gated the cycle.
var ErrQuietHours = errors.New("quiet hours active")

// Searcher produces the ranked, deduplicated batch for one cycle.
type Searcher interface {
	SearchAll(ctx context.Context, topics, languages, regions []string) []search.Video
}

// Broadcaster delivers one video to the fanout targets.
type Broadcaster interface {
	BroadcastVideo(ctx context.Context, v search.Video) (delivered, failed int)
}

// ledgerAPI is the slice of the seen ledger the coordinator drives.
type ledgerAPI interface {
	Append(rec storage.SeenRecord)
	Prune(maxAge time.Duration) int
	Len() int
}

// Settings is the hot-reloadable cycle policy.
type Settings struct {
	Interval time.Duration // recurring search cadence; minimum 1m

	Topics    []string
	Languages []string
	Regions   []string

	TopPerCycle   int           // max broadcasts per cycle; <=0 means 5
	ItemDelay     time.Duration // pause between per-item broadcasts; <=0 means 2s
	Quiet         Window
	MaintenanceAt string        // "HH:MM" wall clock for the daily prune; empty means 03:00
	LedgerMaxAge  time.Duration // prune cutoff; <=0 means 30 days
}

func (s Settings) withDefaults() Settings {
	if s.Interval < time.Minute {
		s.Interval = 30 * time.Minute
	}
	if s.TopPerCycle <= 0 {
		s.TopPerCycle = 5
	}
	if s.ItemDelay <= 0 {
		s.ItemDelay = 2 * time.Second
	}
	if strings.TrimSpace(s.MaintenanceAt) == "" {
		s.MaintenanceAt = "03:00"
	}
	if s.LedgerMaxAge <= 0 {
		s.LedgerMaxAge = storage.DefaultLedgerMaxAge
	}
	return s
}

// CycleStats describes the most recent completed cycle.
type CycleStats struct {
	At        time.Time `json:"at"`
	Found     int       `json:"found"`
	Sent      int       `json:"sent"`
	Delivered int       `json:"delivered"`
	Failed    int       `json:"failed"`
	Skipped   string    `json:"skipped,omitempty"` // "quiet_hours" when gated
}

// Status is a point-in-time view for /status and the health endpoint.
type Status struct {
	Running    bool       `json:"running"`
	InFlight   bool       `json:"in_flight"`
	Interval   string     `json:"interval"`
	QuietHours string     `json:"quiet_hours"`
	LedgerSize int        `json:"ledger_size"`
	LastCycle  CycleStats `json:"last_cycle"`
}

// Coordinator owns the recurring timers and enforces the two scheduling
// rules: quiet hours gate every cycle, and at most one cycle is ever in
// flight (overlapping firings are skipped, never queued).
type Coordinator struct {
	search Searcher
	cast   Broadcaster
	ledger ledgerAPI
	bus    eventbus.Bus
	log    logx.Logger

	mu      sync.Mutex // guards cron lifecycle and running flag
	cron    *cron.Cron
	running bool

	flightMu sync.Mutex // guards inFlight
	inFlight bool
	wg       sync.WaitGroup

	setMu sync.RWMutex
	set   Settings

	statMu sync.Mutex
	last   CycleStats
}

func New(searcher Searcher, cast Broadcaster, ledger ledgerAPI, bus eventbus.Bus, set Settings, log logx.Logger) *Coordinator {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Coordinator{
		search: searcher,
		cast:   cast,
		ledger: ledger,
		bus:    bus,
		log:    log,
		set:    set.withDefaults(),
	}
}

func (c *Coordinator) settings() Settings {
	c.setMu.RLock()
	defer c.setMu.RUnlock()
	return c.set
}

// Start registers the recurring search job and the daily maintenance job.
// No-op when already running.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		c.log.Warn("coordinator already running")
		return nil
	}
	if err := c.registerJobsLocked(ctx); err != nil {
		return err
	}
	c.running = true
	set := c.settings()
	c.log.Info("coordinator started",
		logx.Duration("interval", set.Interval),
		logx.String("quiet_hours", set.Quiet.String()),
		logx.String("maintenance_at", set.MaintenanceAt),
	)
	return nil
}

func (c *Coordinator) registerJobsLocked(ctx context.Context) error {
	set := c.settings()

	hh, mm, err := splitClock(set.MaintenanceAt)
	if err != nil {
		return err
	}

	cr := cron.New()
	if _, err := cr.AddFunc("@every "+set.Interval.String(), func() {
		if err := c.runCycle(ctx, "timer"); err != nil && !errors.Is(err, ErrQuietHours) && !errors.Is(err, ErrCycleInFlight) {
			c.log.Warn("search cycle failed", logx.Err(err))
		}
	}); err != nil {
		return fmt.Errorf("register search job: %w", err)
	}
	if _, err := cr.AddFunc(fmt.Sprintf("%d %d * * *", mm, hh), func() {
		c.runMaintenance()
	}); err != nil {
		return fmt.Errorf("register maintenance job: %w", err)
	}
	cr.Start()
	c.cron = cr
	return nil
}

// Stop cancels the timers and waits for any in-flight cycle to finish so a
// half-delivered batch is never abandoned mid-write.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	cr := c.cron
	c.cron = nil
	c.mu.Unlock()

	if cr != nil {
		<-cr.Stop().Done()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		c.log.Info("coordinator stopped")
		return nil
	}
}

// Apply swaps the cycle policy. When the interval or maintenance time
// changed while running, the cron jobs are re-registered.
func (c *Coordinator) Apply(ctx context.Context, set Settings) error {
	set = set.withDefaults()

	c.setMu.Lock()
	old := c.set
	c.set = set
	c.setMu.Unlock()

	if old.Interval == set.Interval && old.MaintenanceAt == set.MaintenanceAt {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return nil
	}
	if c.cron != nil {
		<-c.cron.Stop().Done()
		c.cron = nil
	}
	if err := c.registerJobsLocked(ctx); err != nil {
		return err
	}
	c.log.Info("schedule updated",
		logx.Duration("interval", set.Interval),
		logx.String("maintenance_at", set.MaintenanceAt),
	)
	return nil
}

// RunNow triggers an immediate cycle, bypassing the timer but not the
// single-flight rule or the quiet-hours gate.
func (c *Coordinator) RunNow(ctx context.Context) error {
	return c.runCycle(ctx, "manual")
}

// InFlight reports whether a cycle is currently executing.
func (c *Coordinator) InFlight() bool {
	c.flightMu.Lock()
	defer c.flightMu.Unlock()
	return c.inFlight
}

func (c *Coordinator) Status() Status {
	set := c.settings()
	c.mu.Lock()
	running := c.running
	c.mu.Unlock()
	c.statMu.Lock()
	last := c.last
	c.statMu.Unlock()
	return Status{
		Running:    running,
		InFlight:   c.InFlight(),
		Interval:   set.Interval.String(),
		QuietHours: set.Quiet.String(),
		LedgerSize: c.ledger.Len(),
		LastCycle:  last,
	}
}

// tryBegin claims the single-flight slot.
func (c *Coordinator) tryBegin() bool {
	c.flightMu.Lock()
	defer c.flightMu.Unlock()
	if c.inFlight {
		return false
	}
	c.inFlight = true
	c.wg.Add(1)
	return true
}

func (c *Coordinator) end() {
	c.flightMu.Lock()
	c.inFlight = false
	c.flightMu.Unlock()
	c.wg.Done()
}

func (c *Coordinator) runCycle(ctx context.Context, trigger string) error {
	if !c.tryBegin() {
		c.log.Info("search cycle skipped (already in flight)", logx.String("trigger", trigger))
		return ErrCycleInFlight
	}
	defer c.end()

	set := c.settings()

	if set.Quiet.Contains(time.Now()) {
		c.log.Info("search cycle skipped (quiet hours)",
			logx.String("trigger", trigger),
			logx.String("window", set.Quiet.String()),
		)
		c.recordCycle(CycleStats{At: time.Now(), Skipped: "quiet_hours"})
		return ErrQuietHours
	}

	start := time.Now()
	c.log.Info("search cycle starting", logx.String("trigger", trigger))

	found := c.search.SearchAll(ctx, set.Topics, set.Languages, set.Regions)
	if len(found) == 0 {
		c.log.Info("no new videos found")
		c.recordCycle(CycleStats{At: start, Found: 0})
		c.publishCycle(CycleStats{At: start, Found: 0})
		return nil
	}

	batch := found
	if len(batch) > set.TopPerCycle {
		batch = batch[:set.TopPerCycle]
	}
	c.log.Info("broadcasting new videos", logx.Int("found", len(found)), logx.Int("sending", len(batch)))

	stats := CycleStats{At: start, Found: len(found)}
	for i, v := range batch {
		if ctx.Err() != nil {
			break
		}
		delivered, failed := c.cast.BroadcastVideo(ctx, v)
		stats.Delivered += delivered
		stats.Failed += failed
		stats.Sent++

		// Best effort: even a fully failed broadcast marks the video seen so
		// the next cycle moves on instead of hammering the same item.
		c.ledger.Append(storage.SeenRecord{
			VideoID: v.ID,
			Title:   v.Title,
			Channel: v.Channel,
			URL:     v.URL,
		})

		if i < len(batch)-1 {
			select {
			case <-ctx.Done():
			case <-time.After(set.ItemDelay):
			}
		}
	}

	removed := c.ledger.Prune(set.LedgerMaxAge)
	c.log.Info("search cycle finished",
		logx.Int("found", stats.Found),
		logx.Int("sent", stats.Sent),
		logx.Int("delivered", stats.Delivered),
		logx.Int("failed", stats.Failed),
		logx.Int("pruned", removed),
		logx.Duration("took", time.Since(start)),
	)

	c.recordCycle(stats)
	c.publishCycle(stats)
	return nil
}

func (c *Coordinator) runMaintenance() {
	set := c.settings()
	removed := c.ledger.Prune(set.LedgerMaxAge)
	c.log.Info("daily maintenance done",
		logx.Int("pruned", removed),
		logx.Int("ledger_size", c.ledger.Len()),
	)
}

func (c *Coordinator) recordCycle(s CycleStats) {
	c.statMu.Lock()
	c.last = s
	c.statMu.Unlock()
}

func (c *Coordinator) publishCycle(s CycleStats) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(eventbus.Event{Type: eventbus.EventCycleCompleted, Data: s})
}

func splitClock(s string) (hh, mm int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid maintenance time %q (want HH:MM)", s)
	}
	return t.Hour(), t.Minute(), nil
}
