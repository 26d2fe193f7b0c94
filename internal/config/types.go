package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Search   SearchConfig   `json:"search"`
	Users    UsersConfig    `json:"users"`
	Ledger   LedgerConfig   `json:"ledger"`
	Notify   NotifyConfig   `json:"notify"`
	Audit    *AuditConfig   `json:"audit,omitempty"`
	Logging  LoggingConfig  `json:"logging"`
	Health   HealthConfig   `json:"health,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// ChatID is an optional fixed chat that always receives broadcasts,
	// independent of the recipient registry.
	ChatID int64 `json:"chat_id,omitempty"`

	AdminIDs []int64 `json:"admin_ids,omitempty"`

	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

// SearchConfig drives the recurring search cycle.
//
// All durations are Go duration strings. Defaults (when omitted/zero):
//   - interval: "30m"
//   - max_per_query: 10
//   - query_delay: "1s"
//   - recent_days: 7
//   - min_score: 1
//   - top_per_cycle: 5
//   - item_delay: "2s"
//   - quiet_hours: "23:00-07:00"
//   - maintenance_at: "03:00"
type SearchConfig struct {
	Interval  string   `json:"interval,omitempty"`
	Topics    []string `json:"topics"`
	Languages []string `json:"languages,omitempty"`
	Regions   []string `json:"regions,omitempty"`

	MaxPerQuery int    `json:"max_per_query,omitempty"`
	QueryDelay  string `json:"query_delay,omitempty"`

	RecentDays  int `json:"recent_days,omitempty"`
	MinScore    int `json:"min_score,omitempty"`
	TopPerCycle int `json:"top_per_cycle,omitempty"`

	ItemDelay     string `json:"item_delay,omitempty"`
	QuietHours    string `json:"quiet_hours,omitempty"`
	MaintenanceAt string `json:"maintenance_at,omitempty"`

	// Endpoint overrides the search backend base URL (mainly for tests).
	Endpoint string `json:"endpoint,omitempty"`
}

type UsersConfig struct {
	File string `json:"file,omitempty"`
	Max  int    `json:"max,omitempty"`

	// AllowRegistration is a pointer so "omitted" (default true) is
	// distinguishable from an explicit false.
	AllowRegistration *bool `json:"allow_registration,omitempty"`
}

type LedgerConfig struct {
	File       string `json:"file,omitempty"`
	MaxEntries int    `json:"max_entries,omitempty"`
	// MaxAge is a Go duration string; entries older than this are pruned
	// during maintenance. Default "720h" (30 days).
	MaxAge string `json:"max_age,omitempty"`
}

type NotifyConfig struct {
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

// AuditConfig controls the optional delivery audit store.
// Nil means disabled.
type AuditConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type LoggingConfig struct {
	Level   string      `json:"level,omitempty"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type HealthConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default "127.0.0.1:8080"
}

// RegistrationOpen reports whether new recipients may self-register.
func (c *Config) RegistrationOpen() bool {
	if c == nil || c.Users.AllowRegistration == nil {
		return true
	}
	return *c.Users.AllowRegistration
}
