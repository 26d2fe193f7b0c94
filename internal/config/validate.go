package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validate runs structural checks that must hold for the process to start.
// The same checks gate hot reloads so a broken edit never replaces a live config.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	var errs []error

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token is required"))
	}
	if _, err := ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		errs = append(errs, err)
	}

	if len(cfg.Search.Topics) == 0 {
		errs = append(errs, errors.New("search.topics must list at least one topic"))
	}
	for i, t := range cfg.Search.Topics {
		if strings.TrimSpace(t) == "" {
			errs = append(errs, fmt.Errorf("search.topics[%d] is empty", i))
		}
	}

	if iv, err := ParseDurationOrDefault("search.interval", cfg.Search.Interval, 30*time.Minute); err != nil {
		errs = append(errs, err)
	} else if iv < time.Minute {
		errs = append(errs, fmt.Errorf("search.interval %q must be at least 1m", cfg.Search.Interval))
	}
	if _, err := ParseDurationField("search.query_delay", cfg.Search.QueryDelay); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDurationField("search.item_delay", cfg.Search.ItemDelay); err != nil {
		errs = append(errs, err)
	}
	if cfg.Search.QuietHours != "" {
		if err := checkClockRange("search.quiet_hours", cfg.Search.QuietHours); err != nil {
			errs = append(errs, err)
		}
	}
	if cfg.Search.MaintenanceAt != "" {
		if err := checkClock("search.maintenance_at", cfg.Search.MaintenanceAt); err != nil {
			errs = append(errs, err)
		}
	}
	if cfg.Search.RecentDays < 0 {
		errs = append(errs, errors.New("search.recent_days must be >= 0"))
	}
	if cfg.Search.MaxPerQuery < 0 {
		errs = append(errs, errors.New("search.max_per_query must be >= 0"))
	}
	if cfg.Search.TopPerCycle < 0 {
		errs = append(errs, errors.New("search.top_per_cycle must be >= 0"))
	}
	if strings.TrimSpace(cfg.Search.Endpoint) == "" {
		errs = append(errs, errors.New("search.endpoint is required"))
	}

	if cfg.Users.Max < 0 {
		errs = append(errs, errors.New("users.max must be >= 0"))
	}

	if _, err := ParseDurationField("ledger.max_age", cfg.Ledger.MaxAge); err != nil {
		errs = append(errs, err)
	}
	if cfg.Ledger.MaxEntries < 0 {
		errs = append(errs, errors.New("ledger.max_entries must be >= 0"))
	}

	if cfg.Notify.RatePerSec < 0 {
		errs = append(errs, errors.New("notify.rate_per_sec must be >= 0"))
	}

	if cfg.Audit != nil {
		switch strings.TrimSpace(strings.ToLower(cfg.Audit.Driver)) {
		case "", "file", "sqlite":
		default:
			errs = append(errs, fmt.Errorf("audit.driver %q is not supported (file, sqlite)", cfg.Audit.Driver))
		}
		if _, err := ParseDurationField("audit.busy_timeout", cfg.Audit.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func checkClock(path, raw string) error {
	if _, err := time.Parse("15:04", strings.TrimSpace(raw)); err != nil {
		return fmt.Errorf("%s: invalid time %q (want HH:MM)", path, raw)
	}
	return nil
}

func checkClockRange(path, raw string) error {
	parts := strings.SplitN(raw, "-", 2)
	if len(parts) != 2 {
		return fmt.Errorf("%s: invalid range %q (want HH:MM-HH:MM)", path, raw)
	}
	if err := checkClock(path, parts[0]); err != nil {
		return err
	}
	return checkClock(path, parts[1])
}
