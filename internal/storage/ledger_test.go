package storage

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	logx "tubewatch/pkg/logx"
)

func TestLedgerAppendAndContains(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "seen.json")
	l, err := OpenLedger(path, 0, logx.Nop())
	if err != nil {
		t.Fatalf("OpenLedger error: %v", err)
	}

	l.Append(SeenRecord{VideoID: "abc", Title: "First"})
	l.Append(SeenRecord{VideoID: "abc", Title: "Duplicate ignored"})
	l.Append(SeenRecord{VideoID: "  ", Title: "Blank ignored"})

	if !l.Contains("abc") {
		t.Fatal("Contains(abc) = false after Append")
	}
	if l.Contains("xyz") {
		t.Fatal("Contains(xyz) = true for unknown id")
	}
	if got := l.Len(); got != 1 {
		t.Fatalf("Len = %d, want 1", got)
	}
}

func TestLedgerRoundtrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "seen.json")

	l, err := OpenLedger(path, 0, logx.Nop())
	if err != nil {
		t.Fatalf("OpenLedger error: %v", err)
	}
	l.Append(SeenRecord{VideoID: "v1", Title: "One", Channel: "ch"})
	l.Append(SeenRecord{VideoID: "v2", Title: "Two"})

	reopened, err := OpenLedger(path, 0, logx.Nop())
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	if got := reopened.Len(); got != 2 {
		t.Fatalf("reopened Len = %d, want 2", got)
	}
	if !reopened.Contains("v1") || !reopened.Contains("v2") {
		t.Fatal("entries lost across reopen")
	}
}

func TestLedgerCapEvictsOldest(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "seen.json")
	l, err := OpenLedger(path, 3, logx.Nop())
	if err != nil {
		t.Fatalf("OpenLedger error: %v", err)
	}

	for i := 0; i < 5; i++ {
		l.Append(SeenRecord{VideoID: "v" + strconv.Itoa(i)})
	}

	if got := l.Len(); got != 3 {
		t.Fatalf("Len = %d, want 3", got)
	}
	if l.Contains("v0") || l.Contains("v1") {
		t.Fatal("oldest entries survived eviction")
	}
	for _, id := range []string{"v2", "v3", "v4"} {
		if !l.Contains(id) {
			t.Fatalf("recent entry %q evicted", id)
		}
	}
}

func TestLedgerPrune(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "seen.json")
	l, err := OpenLedger(path, 0, logx.Nop())
	if err != nil {
		t.Fatalf("OpenLedger error: %v", err)
	}

	l.Append(SeenRecord{VideoID: "old", SentAt: time.Now().Add(-40 * 24 * time.Hour)})
	l.Append(SeenRecord{VideoID: "fresh"})

	removed := l.Prune(30 * 24 * time.Hour)
	if removed != 1 {
		t.Fatalf("Prune removed %d, want 1", removed)
	}
	if l.Contains("old") {
		t.Fatal("stale entry survived prune")
	}
	if !l.Contains("fresh") {
		t.Fatal("fresh entry pruned")
	}
}

func TestLedgerCorruptFileStartsFresh(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "seen.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}

	l, err := OpenLedger(path, 0, logx.Nop())
	if err != nil {
		t.Fatalf("OpenLedger error: %v", err)
	}
	if got := l.Len(); got != 0 {
		t.Fatalf("Len = %d, want 0 after corrupt load", got)
	}

	// The ledger must stay usable and persist over the corrupt file.
	l.Append(SeenRecord{VideoID: "ok"})
	reopened, err := OpenLedger(path, 0, logx.Nop())
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	if !reopened.Contains("ok") {
		t.Fatal("entry written after corrupt load was lost")
	}
}
