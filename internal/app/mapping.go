package app

import (
	"fmt"
	"strings"
	"time"

	"tubewatch/internal/bot"
	"tubewatch/internal/config"
	"tubewatch/internal/health"
	"tubewatch/internal/notify"
	"tubewatch/internal/scheduler"
	"tubewatch/internal/search"
	"tubewatch/internal/storage"
)

const (
	defaultUsersFile  = "data/users.json"
	defaultLedgerFile = "data/seen_videos.json"
)

func mapSearchOptions(cfg *config.Config) (search.Options, error) {
	delay, err := config.ParseDurationOrDefault("search.query_delay", cfg.Search.QueryDelay, time.Second)
	if err != nil {
		return search.Options{}, err
	}
	return search.Options{
		Limit:      cfg.Search.MaxPerQuery,
		QueryDelay: delay,
		Filter: search.FilterOptions{
			MinScore:   cfg.Search.MinScore,
			RecentDays: cfg.Search.RecentDays,
		},
	}, nil
}

func mapSchedulerSettings(cfg *config.Config) (scheduler.Settings, error) {
	interval, err := config.ParseDurationOrDefault("search.interval", cfg.Search.Interval, 30*time.Minute)
	if err != nil {
		return scheduler.Settings{}, err
	}
	itemDelay, err := config.ParseDurationOrDefault("search.item_delay", cfg.Search.ItemDelay, 2*time.Second)
	if err != nil {
		return scheduler.Settings{}, err
	}
	maxAge, err := config.ParseDurationOrDefault("ledger.max_age", cfg.Ledger.MaxAge, storage.DefaultLedgerMaxAge)
	if err != nil {
		return scheduler.Settings{}, err
	}
	quiet, err := scheduler.ParseQuietHours(cfg.Search.QuietHours)
	if err != nil {
		return scheduler.Settings{}, err
	}
	return scheduler.Settings{
		Interval:      interval,
		Topics:        cfg.Search.Topics,
		Languages:     cfg.Search.Languages,
		Regions:       cfg.Search.Regions,
		TopPerCycle:   cfg.Search.TopPerCycle,
		ItemDelay:     itemDelay,
		Quiet:         quiet,
		MaintenanceAt: cfg.Search.MaintenanceAt,
		LedgerMaxAge:  maxAge,
	}, nil
}

func mapFanoutTargets(cfg *config.Config) notify.Targets {
	return notify.Targets{
		AdminIDs:    cfg.Telegram.AdminIDs,
		FixedChatID: cfg.Telegram.ChatID,
	}
}

func mapAuditConfig(cfg *config.Config) storage.AuditConfig {
	if cfg.Audit == nil {
		return storage.AuditConfig{}
	}
	busy, _ := config.ParseDurationField("audit.busy_timeout", cfg.Audit.BusyTimeout)
	return storage.AuditConfig{
		Driver:      cfg.Audit.Driver,
		Path:        cfg.Audit.Path,
		BusyTimeout: busy,
	}
}

func mapHealthConfig(cfg *config.Config) health.Config {
	return health.Config{
		Enabled: cfg.Health.Enabled,
		Addr:    cfg.Health.Addr,
	}
}

func mapBotOptions(cfg *config.Config) (bot.Options, error) {
	interval, err := config.ParseDurationOrDefault("search.interval", cfg.Search.Interval, 30*time.Minute)
	if err != nil {
		return bot.Options{}, err
	}
	return bot.Options{
		AdminIDs:         cfg.Telegram.AdminIDs,
		RegistrationOpen: cfg.RegistrationOpen(),
		Topics:           cfg.Search.Topics,
		Languages:        cfg.Search.Languages,
		Regions:          cfg.Search.Regions,
		Interval:         interval,
	}, nil
}

func requireEndpoint(cfg *config.Config) (string, error) {
	ep := strings.TrimSpace(cfg.Search.Endpoint)
	if ep == "" {
		return "", fmt.Errorf("search.endpoint is required")
	}
	return ep, nil
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
