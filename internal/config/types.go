package config

// Config is the on-disk configuration (JSON or YAML). Secrets usually come
// from the environment or .env instead; see ApplyEnv.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Practicum PracticumConfig `json:"practicum"`
	Poller    PollerConfig    `json:"poller"`
	Notifier  NotifierConfig  `json:"notifier"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	HTTP      HTTPConfig      `json:"http"`
}

type TelegramConfig struct {
	Token    string `json:"token,omitempty"`
	ChatID   int64  `json:"chat_id,omitempty"`
	ThreadID int    `json:"thread_id,omitempty"`

	// PollTimeout is the getUpdates long-poll timeout (default "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
	// Commands enables /start and /status (answered in chat_id only).
	Commands bool `json:"commands,omitempty"`
	// APIURL points at a self-hosted Bot API server (default api.telegram.org).
	APIURL string `json:"api_url,omitempty"`
}

type PracticumConfig struct {
	Token      string `json:"token,omitempty"`
	Endpoint   string `json:"endpoint,omitempty"`
	AuthScheme string `json:"auth_scheme,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
}

// PollerConfig controls the poll loop.
//
// Defaults (when fields are omitted/zero):
//   - schedule: "10m"
//   - run_on_start: true
//   - report_errors: true
//   - from_date: process start
type PollerConfig struct {
	Schedule     string `json:"schedule,omitempty"`
	Timezone     string `json:"timezone,omitempty"`
	RunOnStart   *bool  `json:"run_on_start,omitempty"`
	ReportErrors *bool  `json:"report_errors,omitempty"`
	FromDate     int64  `json:"from_date,omitempty"`
	CycleTimeout string `json:"cycle_timeout,omitempty"`
}

func (p PollerConfig) RunOnStartEnabled() bool   { return p.RunOnStart == nil || *p.RunOnStart }
func (p PollerConfig) ReportErrorsEnabled() bool { return p.ReportErrors == nil || *p.ReportErrors }

// NotifierConfig controls delivery.
//
// Defaults:
//   - rate_per_sec: 1
//   - retry_max: 3
//   - retry_base: "500ms", retry_max_delay: "10s"
//   - send_timeout: "10s"
//   - dedup_window: "0s" (disabled)
type NotifierConfig struct {
	Disabled        bool   `json:"disabled,omitempty"`
	RatePerSec      int    `json:"rate_per_sec,omitempty"`
	RetryMax        *int   `json:"retry_max,omitempty"`
	RetryBase       string `json:"retry_base,omitempty"`
	RetryMaxDelay   string `json:"retry_max_delay,omitempty"`
	SendTimeout     string `json:"send_timeout,omitempty"`
	DedupWindow     string `json:"dedup_window,omitempty"`
	DedupMaxEntries int    `json:"dedup_max_entries,omitempty"`
}

func (n NotifierConfig) RetryMaxOrDefault() int {
	if n.RetryMax == nil {
		return 3
	}
	return *n.RetryMax
}

type LoggingConfig struct {
	Level    string            `json:"level,omitempty"`
	Console  *bool             `json:"console,omitempty"`
	File     LogFileConfig     `json:"file"`
	Telegram LogTelegramConfig `json:"telegram"`
}

func (l LoggingConfig) ConsoleEnabled() bool { return l.Console == nil || *l.Console }

type LogFileConfig struct {
	Enabled    bool   `json:"enabled,omitempty"`
	Path       string `json:"path,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
	Compress   bool   `json:"compress,omitempty"`
}

// LogTelegramConfig mirrors log lines at or above MinLevel into the chat.
type LogTelegramConfig struct {
	Enabled    bool   `json:"enabled,omitempty"`
	ThreadID   int    `json:"thread_id,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// StorageConfig selects the state/journal backend.
//
// Driver: "memory" (default), "file", "sqlite", "redis" or "none".
type StorageConfig struct {
	Driver        string `json:"driver,omitempty"`
	Path          string `json:"path,omitempty"`
	BusyTimeout   string `json:"busy_timeout,omitempty"`
	RedisAddr     string `json:"redis_addr,omitempty"`
	RedisPassword string `json:"redis_password,omitempty"`
	RedisDB       int    `json:"redis_db,omitempty"`
	RedisPrefix   string `json:"redis_prefix,omitempty"`
	JournalMax    int    `json:"journal_max,omitempty"`
}

// HTTPConfig controls the optional ops endpoint (/healthz, /status, /events, pprof).
type HTTPConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Addr    string `json:"addr,omitempty"`
	// Token, when set, is required as "Authorization: Bearer <token>" (or ?token=).
	Token string `json:"token,omitempty"`
	Pprof bool   `json:"pprof,omitempty"`
	// AllowInsecure permits a non-loopback Addr without a token.
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	ReadTimeout   string `json:"read_timeout,omitempty"`
	WriteTimeout  string `json:"write_timeout,omitempty"`
	IdleTimeout   string `json:"idle_timeout,omitempty"`
}
