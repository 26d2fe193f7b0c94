// Package health exposes a small HTTP surface with liveness and runtime
// stats for the bot. It is loopback-oriented operational tooling, not a
// public API.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	rtsup "tubewatch/internal/runtime/supervisor"
	"tubewatch/internal/scheduler"
	"tubewatch/internal/storage"
	logx "tubewatch/pkg/logx"
)

type Config struct {
	Enabled bool
	Addr    string
}

// StatusFunc returns the scheduler view for /health and /stats.
type StatusFunc func() scheduler.Status

// RegistryStatsFunc returns the subscriber registry view.
type RegistryStatsFunc func() storage.RegistryStats

type Service struct {
	mu  sync.Mutex
	log logx.Logger
	cfg Config

	status   StatusFunc
	regStats RegistryStatsFunc
	started  time.Time

	ln  net.Listener
	srv *http.Server
	sup *rtsup.Supervisor
}

func New(cfg Config, status StatusFunc, regStats RegistryStatsFunc, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:      cfg,
		status:   status,
		regStats: regStats,
		log:      log,
		started:  time.Now(),
	}
}

// Start is idempotent and a no-op when the service is disabled.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.sup != nil || !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}
	s.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(s.log.With(logx.String("comp", "health"))),
		// Operational endpoint only; never take the bot down with it.
		rtsup.WithCancelOnError(false),
	)
	sup := s.sup
	s.mu.Unlock()

	sup.GoRestart("http.serve", func(c context.Context) error {
		return s.serveOnce(c)
	},
		rtsup.WithPublishFirstError(true),
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
	)
}

func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	srv, ln, sup := s.srv, s.ln, s.sup
	s.srv, s.ln, s.sup = nil, nil, nil
	s.mu.Unlock()
	if sup == nil {
		return
	}
	if srv != nil {
		_ = srv.Shutdown(ctx)
		_ = srv.Close()
	}
	if ln != nil {
		_ = ln.Close()
	}
	sup.Cancel()
	_ = sup.Wait(ctx)
	s.log.Info("health server stopped")
}

func (s *Service) serveOnce(ctx context.Context) error {
	s.mu.Lock()
	cur := s.cfg
	s.mu.Unlock()

	addr := strings.TrimSpace(cur.Addr)
	if addr == "" {
		addr = "127.0.0.1:8099"
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.log.Error("health listen failed", logx.String("addr", addr), logx.Err(err))
		if ctx.Err() != nil {
			return context.Canceled
		}
		return err
	}
	defer func() { _ = ln.Close() }()

	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
	defer func() { _ = srv.Close() }()

	s.mu.Lock()
	s.ln = ln
	s.srv = srv
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(cctx)
		cancel()
	}()

	s.log.Info("health server started", logx.String("addr", ln.Addr().String()))
	err = srv.Serve(ln)
	if ctx.Err() != nil {
		return context.Canceled
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("health server exited unexpectedly")
	}
	return err
}

// Handler returns the HTTP routes. Exposed separately so tests can drive
// it without a listener.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/stats", s.handleStats)
	return mux
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.status()
	state := "ok"
	if !st.Running {
		state = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         state,
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"scheduler":      st,
	})
}

func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"scheduler": s.status(),
		"registry":  s.regStats(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
