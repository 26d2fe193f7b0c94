package config

import (
	"reflect"
	"sort"
	"strings"

	logx "tubewatch/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections plus safe
// structured attrs for logging. Secrets (the bot token) are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 20)

	// Telegram (never log token)
	if oldCfg.Telegram.ChatID != newCfg.Telegram.ChatID ||
		!reflect.DeepEqual(oldCfg.Telegram.AdminIDs, newCfg.Telegram.AdminIDs) ||
		strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.chat_id_set", newCfg.Telegram.ChatID != 0),
			logx.Int("telegram.admin_count", len(newCfg.Telegram.AdminIDs)),
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Search, newCfg.Search) {
		changed = append(changed, "search")
		attrs = append(attrs,
			logx.String("search.interval", strings.TrimSpace(newCfg.Search.Interval)),
			logx.Int("search.topic_count", len(newCfg.Search.Topics)),
			logx.Int("search.language_count", len(newCfg.Search.Languages)),
			logx.Int("search.region_count", len(newCfg.Search.Regions)),
			logx.Int("search.min_score", newCfg.Search.MinScore),
			logx.String("search.quiet_hours", strings.TrimSpace(newCfg.Search.QuietHours)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Users, newCfg.Users) {
		changed = append(changed, "users")
		attrs = append(attrs,
			logx.Int("users.max", newCfg.Users.Max),
			logx.Bool("users.allow_registration", newCfg.RegistrationOpen()),
		)
	}

	if !reflect.DeepEqual(oldCfg.Ledger, newCfg.Ledger) {
		changed = append(changed, "ledger")
		attrs = append(attrs,
			logx.Int("ledger.max_entries", newCfg.Ledger.MaxEntries),
			logx.String("ledger.max_age", strings.TrimSpace(newCfg.Ledger.MaxAge)),
		)
	}

	if oldCfg.Notify != newCfg.Notify {
		changed = append(changed, "notify")
		attrs = append(attrs, logx.Int("notify.rate_per_sec", newCfg.Notify.RatePerSec))
	}

	// Audit (nil means disabled)
	oA, nA := AuditConfig{}, AuditConfig{}
	if oldCfg.Audit != nil {
		oA = *oldCfg.Audit
	}
	if newCfg.Audit != nil {
		nA = *newCfg.Audit
	}
	if (oldCfg.Audit != nil) != (newCfg.Audit != nil) || oA != nA {
		changed = append(changed, "audit")
		attrs = append(attrs,
			logx.String("audit.driver", strings.TrimSpace(nA.Driver)),
			logx.Bool("audit.path_set", strings.TrimSpace(nA.Path) != ""),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Health != newCfg.Health {
		changed = append(changed, "health")
		attrs = append(attrs,
			logx.Bool("health.enabled", newCfg.Health.Enabled),
			logx.String("health.addr", strings.TrimSpace(newCfg.Health.Addr)),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
