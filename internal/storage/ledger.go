package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "tubewatch/pkg/logx"
)

const (
	// DefaultLedgerCap bounds the ledger so the file can't grow forever.
	// Oldest entries are evicted first.
	DefaultLedgerCap = 1000

	// DefaultLedgerMaxAge is how long delivered entries are kept before
	// maintenance prunes them.
	DefaultLedgerMaxAge = 30 * 24 * time.Hour
)

// SeenRecord is one delivered video.
type SeenRecord struct {
	VideoID string    `json:"video_id"`
	Title   string    `json:"title"`
	Channel string    `json:"channel"`
	SentAt  time.Time `json:"sent_at"`
	URL     string    `json:"url"`
}

type ledgerDoc struct {
	LastUpdate time.Time    `json:"last_update"`
	Videos     []SeenRecord `json:"videos"`
}

// Ledger tracks which videos have already been delivered so a video is never
// broadcast twice. The full document lives in memory; every mutating call
// rewrites the backing file atomically. A write failure is logged and the
// in-memory state stays authoritative for the life of the process.
type Ledger struct {
	path string
	cap  int
	log  logx.Logger

	mu      sync.Mutex
	records []SeenRecord
	index   map[string]struct{}
}

// OpenLedger loads the ledger from path, tolerating a missing or corrupt
// file (both start fresh; corruption is logged, never fatal).
func OpenLedger(path string, capacity int, log logx.Logger) (*Ledger, error) {
	if capacity <= 0 {
		capacity = DefaultLedgerCap
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	l := &Ledger{
		path:  path,
		cap:   capacity,
		log:   log,
		index: map[string]struct{}{},
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		return l, nil
	}

	var doc ledgerDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		l.log.Warn("ledger file corrupt; starting fresh", logx.String("path", path), logx.Err(err))
		return l, nil
	}
	for _, r := range doc.Videos {
		id := strings.TrimSpace(r.VideoID)
		if id == "" {
			continue
		}
		if _, dup := l.index[id]; dup {
			continue
		}
		l.records = append(l.records, r)
		l.index[id] = struct{}{}
	}
	l.evictLocked()
	return l, nil
}

// Contains reports whether the video was already delivered.
func (l *Ledger) Contains(videoID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.index[strings.TrimSpace(videoID)]
	return ok
}

// Append records a delivery and persists. Duplicate ids are ignored.
func (l *Ledger) Append(rec SeenRecord) {
	rec.VideoID = strings.TrimSpace(rec.VideoID)
	if rec.VideoID == "" {
		return
	}
	if rec.SentAt.IsZero() {
		rec.SentAt = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, dup := l.index[rec.VideoID]; dup {
		return
	}
	l.records = append(l.records, rec)
	l.index[rec.VideoID] = struct{}{}
	l.evictLocked()
	l.flushLocked()
}

// Prune drops entries older than maxAge and persists if anything changed.
// It returns the number of removed entries.
func (l *Ledger) Prune(maxAge time.Duration) int {
	if maxAge <= 0 {
		maxAge = DefaultLedgerMaxAge
	}
	cutoff := time.Now().Add(-maxAge)

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.records[:0]
	removed := 0
	for _, r := range l.records {
		if r.SentAt.Before(cutoff) {
			delete(l.index, r.VideoID)
			removed++
			continue
		}
		kept = append(kept, r)
	}
	l.records = kept
	if removed > 0 {
		l.flushLocked()
	}
	return removed
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// evictLocked enforces the FIFO cap. Callers hold l.mu.
func (l *Ledger) evictLocked() {
	if len(l.records) <= l.cap {
		return
	}
	over := len(l.records) - l.cap
	for _, r := range l.records[:over] {
		delete(l.index, r.VideoID)
	}
	l.records = append(l.records[:0], l.records[over:]...)
}

// flushLocked rewrites the backing file via tmp + rename. Callers hold l.mu.
func (l *Ledger) flushLocked() {
	doc := ledgerDoc{LastUpdate: time.Now(), Videos: l.records}
	if doc.Videos == nil {
		doc.Videos = []SeenRecord{}
	}
	if err := writeJSONAtomic(l.path, doc); err != nil {
		l.log.Warn("ledger write failed", logx.String("path", l.path), logx.Err(err))
	}
}

// writeJSONAtomic writes v as indented JSON to path via a temp file + rename
// so readers never observe a partial document.
func writeJSONAtomic(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
