package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "tubewatch/pkg/logx"
)

// auditFileStore is a dependency-free append-only backend:
// <path>.jsonl holds one JSON object per broadcast.
type auditFileStore struct {
	log logx.Logger

	mu   sync.Mutex
	file *os.File
}

func openAuditFile(cfg AuditConfig, log logx.Logger) (AuditStore, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("audit.path is required for file driver")
	}
	if filepath.Ext(path) == "" {
		path += ".jsonl"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &auditFileStore{log: log, file: f}, nil
}

func (s *auditFileStore) Append(ctx context.Context, e BroadcastAudit) error {
	_ = ctx
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return errors.New("audit file closed")
	}
	return json.NewEncoder(s.file).Encode(e)
}

func (s *auditFileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
