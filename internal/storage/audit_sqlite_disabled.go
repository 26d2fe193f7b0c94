//go:build !sqlite
// +build !sqlite

package storage

import (
	"errors"

	logx "tubewatch/pkg/logx"
)

func openAuditSQLite(cfg AuditConfig, log logx.Logger) (AuditStore, error) {
	_ = cfg
	_ = log
	return nil, errors.New("sqlite audit store not built: build with -tags sqlite")
}
