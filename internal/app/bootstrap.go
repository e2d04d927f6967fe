package app

import (
	"reflect"
	"strings"
	"time"

	"printbot/internal/camera"
	"printbot/internal/config"
	"printbot/internal/moonraker"
	"printbot/internal/notify"
	"printbot/internal/task/engine"
	"printbot/internal/task/scheduler"
	"printbot/internal/transport"
	"printbot/internal/transport/telegram"
	logx "printbot/pkg/logx"
)

// Component config mapping. Durations are validated by config.Validate, so a
// parse error here only happens for configs that bypassed the manager.

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled:    cfg.Logging.File.Enabled,
			Path:       cfg.Logging.File.Path,
			MaxSizeMB:  cfg.Logging.File.MaxSizeMB,
			MaxBackups: cfg.Logging.File.MaxBackups,
		},
	}
}

func mapTelegramConfig(cfg *config.Config) (telegram.Config, error) {
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{
		Token:       strings.TrimSpace(cfg.Telegram.Token),
		PollTimeout: pollTimeout,
		RatePerSec:  cfg.Telegram.RatePerSec,
	}, nil
}

func mapTaskEngineConfig(cfg *config.Config) (engine.Config, error) {
	te := config.TaskEngineConfig{}
	if cfg.TaskEngine != nil {
		te = *cfg.TaskEngine
	}
	workers := te.Workers
	if workers <= 0 {
		workers = 12
	}
	queueSize := te.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	historySize := te.HistorySize
	if historySize <= 0 {
		historySize = 200
	}
	maxQueueDelay, err := config.ParseDurationField("task_engine.max_queue_delay", te.MaxQueueDelay)
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		Enabled:       config.BoolOr(te.Enabled, true),
		Workers:       workers,
		QueueSize:     queueSize,
		MaxQueueDelay: maxQueueDelay,
		HistorySize:   historySize,
	}, nil
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{Enabled: true, Timezone: strings.TrimSpace(cfg.Scheduler.Timezone)}
}

func mapNotifyConfig(cfg *config.Config) notify.Config {
	pn := cfg.ProgressNotification
	ui := cfg.TelegramUI
	groups := make([]transport.Recipient, 0, len(pn.Groups))
	for _, g := range pn.Groups {
		groups = append(groups, transport.Recipient{ChatID: g.ChatID, ThreadID: g.ThreadID})
	}
	return notify.Config{
		// Negatives pass through; the notifier ignores them and keeps the
		// previous value.
		PercentThreshold: pn.Percent,
		HeightThreshold:  pn.Height,
		IntervalSeconds:  pn.Time,
		Primary:          transport.Recipient{ChatID: cfg.Telegram.ChatID},
		Groups:           groups,
		GroupOnly:        pn.GroupOnly,
		SilentProgress:   config.BoolOr(ui.SilentProgress, true),
		SilentCommands:   config.BoolOr(ui.SilentCommands, true),
		SilentStatus:     config.BoolOr(ui.SilentStatus, true),
	}
}

func mapCameraConfig(cfg *config.Config) (camera.Config, error) {
	timeout, err := config.ParseDurationOrDefault("camera.timeout", cfg.Camera.Timeout, 5*time.Second)
	if err != nil {
		return camera.Config{}, err
	}
	return camera.Config{
		Enabled:     cfg.Camera.Enabled,
		SnapshotURL: strings.TrimSpace(cfg.Camera.SnapshotURL),
		Timeout:     timeout,
		MaxBytes:    cfg.Camera.MaxBytes,
	}, nil
}

func mapMoonrakerConfig(cfg *config.Config) (moonraker.Config, error) {
	every, err := config.ParseDurationOrDefault("moonraker.poll_interval", cfg.Moonraker.PollInterval, 2*time.Second)
	if err != nil {
		return moonraker.Config{}, err
	}
	return moonraker.Config{
		URL:          strings.TrimRight(strings.TrimSpace(cfg.Moonraker.URL), "/"),
		APIKey:       cfg.Moonraker.APIKey,
		PollInterval: every,
	}, nil
}

// restartOnly lists changes that are logged but need a restart to apply.
func restartOnly(oldCfg, newCfg *config.Config) []string {
	var out []string
	if strings.TrimSpace(oldCfg.Telegram.Token) != strings.TrimSpace(newCfg.Telegram.Token) {
		out = append(out, "telegram.token")
	}
	if oldCfg.Telegram.PollTimeout != newCfg.Telegram.PollTimeout || oldCfg.Telegram.RatePerSec != newCfg.Telegram.RatePerSec {
		out = append(out, "telegram.poll")
	}
	if oldCfg.Telegram.ChatID != newCfg.Telegram.ChatID {
		out = append(out, "telegram.chat_id (notifications)")
	}
	if !sameGroups(oldCfg.ProgressNotification.Groups, newCfg.ProgressNotification.Groups) {
		out = append(out, "progress_notification.groups")
	}
	if !reflect.DeepEqual(oldCfg.TaskEngine, newCfg.TaskEngine) {
		out = append(out, "task_engine")
	}
	return out
}

func sameGroups(a, b []config.GroupTarget) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
