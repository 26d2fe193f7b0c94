package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"tubewatch/internal/scheduler"
	"tubewatch/internal/storage"
	logx "tubewatch/pkg/logx"
)

func testService() *Service {
	status := func() scheduler.Status {
		return scheduler.Status{
			Running:    true,
			Interval:   "30m0s",
			QuietHours: "23:00-07:00",
			LedgerSize: 12,
		}
	}
	regStats := func() storage.RegistryStats {
		return storage.RegistryStats{Total: 3, Active: 2, Notified: 2, Capacity: 100}
	}
	return New(Config{Enabled: true}, status, regStats, logx.Nop())
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(testService().Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q", ct)
	}

	var body struct {
		Status    string           `json:"status"`
		Uptime    int64            `json:"uptime_seconds"`
		Scheduler scheduler.Status `json:"scheduler"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Status != "ok" {
		t.Fatalf("status = %q, want ok", body.Status)
	}
	if !body.Scheduler.Running || body.Scheduler.LedgerSize != 12 {
		t.Fatalf("scheduler view = %+v", body.Scheduler)
	}
}

func TestHealthDegradedWhenNotRunning(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true},
		func() scheduler.Status { return scheduler.Status{Running: false} },
		func() storage.RegistryStats { return storage.RegistryStats{} },
		logx.Nop())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Status != "degraded" {
		t.Fatalf("status = %q, want degraded", body.Status)
	}
}

func TestStatsEndpoint(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(testService().Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/stats")
	if err != nil {
		t.Fatalf("GET /stats: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Scheduler scheduler.Status      `json:"scheduler"`
		Registry  storage.RegistryStats `json:"registry"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Registry.Total != 3 || body.Registry.Active != 2 {
		t.Fatalf("registry view = %+v", body.Registry)
	}
	if body.Scheduler.QuietHours != "23:00-07:00" {
		t.Fatalf("scheduler view = %+v", body.Scheduler)
	}
}
