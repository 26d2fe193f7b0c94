package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "tubewatch/pkg/logx"
)

var ErrAuditDisabled = errors.New("audit store disabled")

// AuditConfig configures the delivery audit store.
//
// Driver values:
//   - "file": dependency-free JSON Lines backend
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", auditing is disabled.
type AuditConfig struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// BroadcastAudit records the outcome of one broadcast.
// Keep it compact and schema-stable.
type BroadcastAudit struct {
	At        time.Time `json:"at"`
	Kind      string    `json:"kind"` // "video", "notice", "admin"
	VideoID   string    `json:"video_id,omitempty"`
	Title     string    `json:"title,omitempty"`
	Delivered int       `json:"delivered"`
	Failed    int       `json:"failed"`
	TookMS    int64     `json:"took_ms"`
	Error     string    `json:"error,omitempty"`
}

// AuditStore is the append-only delivery log.
type AuditStore interface {
	Append(ctx context.Context, e BroadcastAudit) error
	Close() error
}

// OpenAudit initializes the configured audit store.
// It returns (nil, nil) if auditing is disabled.
func OpenAudit(cfg AuditConfig, log logx.Logger) (AuditStore, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openAuditFile(cfg, log)
	case "sqlite", "sqlite3":
		return openAuditSQLite(cfg, log)
	default:
		return nil, errors.New("unknown audit driver: " + driver)
	}
}
