package config

// Config is the whole configuration file. YAML and JSON share the same snake_case keys.
type Config struct {
	Logging    LoggingConfig    `json:"logging"`
	Scheduler  SchedulerConfig  `json:"scheduler"`
	TaskEngine TaskEngineConfig `json:"task_engine"`
	State      StateConfig      `json:"state"`
	HTTP       HTTPConfig       `json:"http"`
	Notifier   NotifierConfig   `json:"notifier"`
	Telegram   TelegramConfig   `json:"telegram"`
	Metrics    MetricsConfig    `json:"metrics"`
	Systemd    SystemdConfig    `json:"systemd"`

	ScoutEventCrawler ExtensionConfig[EventTask]     `json:"scout_event_crawler"`
	TerrainApprovals  ExtensionConfig[ApprovalsTask] `json:"terrain_approvals"`
}

// ExtensionConfig is one integration: a switch and its task instances.
type ExtensionConfig[T any] struct {
	Enabled Bool `json:"enabled"`
	Tasks   []T  `json:"tasks"`
}

// EventTask watches event listing regions.
type EventTask struct {
	TaskName          string   `json:"task_name"`
	CronSchedule      string   `json:"cron_schedule"`
	JandiURL          string   `json:"jandi_url"`
	TelegramChatID    int64    `json:"telegram_chat_id,omitempty"`
	SubscribedRegions []string `json:"subscribed_regions"`
}

// ApprovalsTask reports pending and recently approved achievements of one unit.
//
// Defaults:
//   - lookback_days: 7
//   - probe_login: yes (credentials are checked once at startup)
type ApprovalsTask struct {
	TaskName       string `json:"task_name"`
	CronSchedule   string `json:"cron_schedule"`
	Username       string `json:"username"`
	Password       string `json:"password"`
	JandiURL       string `json:"jandi_url"`
	TelegramChatID int64  `json:"telegram_chat_id,omitempty"`
	LookbackDays   int    `json:"lookback_days,omitempty"`
	ProbeLogin     *Bool  `json:"probe_login,omitempty"`
}

type LoggingConfig struct {
	Level string `json:"level"`
	// Console defaults to yes.
	Console *Bool       `json:"console,omitempty"`
	File    LoggingFile `json:"file"`
}

func (c LoggingConfig) ConsoleEnabled() bool { return c.Console == nil || bool(*c.Console) }

// LoggingFile with an empty path writes crest-{start time}.log in the working directory.
type LoggingFile struct {
	Enabled Bool   `json:"enabled"`
	Path    string `json:"path"`
}

type SchedulerConfig struct {
	// Timezone for cron expressions, e.g. "Australia/Sydney". Empty means local time.
	Timezone string `json:"timezone,omitempty"`
}

// TaskEngineConfig controls execution of fired tasks.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
//
// Defaults (when fields are omitted/zero):
//   - workers: 2
//   - queue_size: 64
//   - default_timeout: "10m"
//   - max_queue_delay: "0s" (disabled)
//   - history_size: 200
type TaskEngineConfig struct {
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
	MaxQueueDelay  string `json:"max_queue_delay,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
}

// StateConfig selects where per-task state lives.
//
// Example:
//
//	state: { driver: sqlite, path: ./crest.db }
type StateConfig struct {
	Driver      string `json:"driver,omitempty"` // file (default), sqlite, memory
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// HTTPConfig tunes the client used for upstream sites.
type HTTPConfig struct {
	Timeout  string `json:"timeout,omitempty"`   // per attempt, default "30s"
	RetryMax *int   `json:"retry_max,omitempty"` // default 2
}

type NotifierConfig struct {
	RatePerSec  float64 `json:"rate_per_sec,omitempty"`
	Burst       int     `json:"burst,omitempty"`
	Timeout     string  `json:"timeout,omitempty"`
	HistorySize int     `json:"history_size,omitempty"`
}

// TelegramConfig enables "telegram:{chat_id}" destinations. Leave the token empty to disable.
type TelegramConfig struct {
	Token  string `json:"token,omitempty"`
	APIURL string `json:"api_url,omitempty"`
}

type MetricsConfig struct {
	Enabled Bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default "127.0.0.1:9464"
}

type SystemdConfig struct {
	Notify Bool `json:"notify"`
}
