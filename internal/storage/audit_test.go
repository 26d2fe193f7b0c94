package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	logx "tubewatch/pkg/logx"
)

func TestOpenAuditDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none", "NONE"} {
		store, err := OpenAudit(AuditConfig{Driver: driver}, logx.Nop())
		if err != nil {
			t.Fatalf("OpenAudit(%q) error: %v", driver, err)
		}
		if store != nil {
			t.Fatalf("OpenAudit(%q) returned a store, want nil", driver)
		}
	}
}

func TestOpenAuditUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := OpenAudit(AuditConfig{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatal("OpenAudit accepted unknown driver")
	}
}

func TestAuditFileAppend(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "audit")
	store, err := OpenAudit(AuditConfig{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("OpenAudit error: %v", err)
	}

	ctx := context.Background()
	entries := []BroadcastAudit{
		{Kind: "video", VideoID: "v1", Title: "One", Delivered: 3, TookMS: 120},
		{Kind: "admin", Delivered: 1, Failed: 1},
	}
	for _, e := range entries {
		if err := store.Append(ctx, e); err != nil {
			t.Fatalf("Append error: %v", err)
		}
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	f, err := os.Open(path + ".jsonl")
	if err != nil {
		t.Fatalf("open audit file: %v", err)
	}
	defer f.Close()

	var got []BroadcastAudit
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e BroadcastAudit
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("bad JSONL line %q: %v", sc.Text(), err)
		}
		got = append(got, e)
	}
	if len(got) != 2 {
		t.Fatalf("read %d entries, want 2", len(got))
	}
	if got[0].VideoID != "v1" || got[0].At.IsZero() {
		t.Fatalf("first entry = %+v", got[0])
	}
	if got[1].Kind != "admin" || got[1].Failed != 1 {
		t.Fatalf("second entry = %+v", got[1])
	}

	if err := store.Append(ctx, BroadcastAudit{}); err == nil {
		t.Fatal("Append succeeded on closed store")
	}
}
