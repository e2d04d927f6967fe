package config

// Config is the root of the JSON/YAML config file.
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`

	// TaskEngine runs asynchronous deliveries.
	TaskEngine *TaskEngineConfig `json:"task_engine,omitempty"`
	// Scheduler triggers the recurring timer notification.
	Scheduler SchedulerConfig `json:"scheduler"`

	ProgressNotification ProgressNotificationConfig `json:"progress_notification"`
	TelegramUI           TelegramUIConfig           `json:"telegram_ui"`
	Camera               CameraConfig               `json:"camera"`
	Moonraker            MoonrakerConfig            `json:"moonraker"`
}

type TelegramConfig struct {
	Token string `json:"token" validate:"required,telegram_bot_token"`
	// ChatID is the primary chat; commands are only accepted from it.
	ChatID int64 `json:"chat_id" validate:"required"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty" validate:"omitempty,go_duration"`
	RatePerSec  int    `json:"rate_per_sec,omitempty" validate:"gte=0,lte=30"`
}

type LoggingConfig struct {
	Level   string      `json:"level" validate:"omitempty,oneof=trace debug info warn warning error"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path" validate:"required_if=Enabled true"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty" validate:"gte=0"`
	MaxBackups int    `json:"max_backups,omitempty" validate:"gte=0"`
}

// TaskEngineConfig controls the task execution engine.
//
// Defaults (when fields are omitted/zero):
//   - enabled: true
//   - workers: 12
//   - queue_size: 256
//   - max_queue_delay: "0s" (disabled)
//   - history_size: 200
type TaskEngineConfig struct {
	Enabled *bool `json:"enabled,omitempty"`
	Workers int   `json:"workers,omitempty" validate:"gte=0"`

	QueueSize int `json:"queue_size,omitempty" validate:"gte=0"`

	// MaxQueueDelay drops tasks that have been queued longer than this duration.
	// Use "0s" to keep late deliveries.
	MaxQueueDelay string `json:"max_queue_delay,omitempty" validate:"omitempty,go_duration"`

	HistorySize int `json:"history_size,omitempty" validate:"gte=0"`
}

type SchedulerConfig struct {
	// Timezone is an IANA name; empty means local time.
	Timezone string `json:"timezone,omitempty" validate:"omitempty,timezone"`
}

// ProgressNotificationConfig holds the notification triggers. Negative values
// are accepted and ignored (treated as unset).
type ProgressNotificationConfig struct {
	Percent   int           `json:"percent"`
	Height    float64       `json:"height"`
	Time      int           `json:"time"`
	Groups    []GroupTarget `json:"groups,omitempty" validate:"dive"`
	GroupOnly bool          `json:"group_only"`
}

type GroupTarget struct {
	ChatID   int64 `json:"chat_id" validate:"required"`
	ThreadID int   `json:"thread_id,omitempty" validate:"gte=0"`
}

// TelegramUIConfig flags are pointers so an omitted key defaults to true.
type TelegramUIConfig struct {
	SilentProgress *bool `json:"silent_progress,omitempty"`
	SilentCommands *bool `json:"silent_commands,omitempty"`
	SilentStatus   *bool `json:"silent_status,omitempty"`
}

type CameraConfig struct {
	Enabled     bool   `json:"enabled"`
	SnapshotURL string `json:"snapshot_url,omitempty" validate:"required_if=Enabled true"`
	Timeout     string `json:"timeout,omitempty" validate:"omitempty,go_duration"`
	MaxBytes    int64  `json:"max_bytes,omitempty" validate:"gte=0"`
}

type MoonrakerConfig struct {
	URL string `json:"url" validate:"required,url"`
	// APIKey is sent as X-Api-Key when set.
	APIKey       string `json:"api_key,omitempty"`
	PollInterval string `json:"poll_interval,omitempty" validate:"omitempty,go_duration"`
}

// BoolOr returns *p, or def when p is nil.
func BoolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
