package config

import (
	"reflect"
	"strings"

	logx "printbot/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections and safe
// structured attrs for logging (never includes tokens or API keys).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)

	// Telegram (never log token)
	oT, nT := oldCfg.Telegram, newCfg.Telegram
	if oT.ChatID != nT.ChatID ||
		strings.TrimSpace(oT.PollTimeout) != strings.TrimSpace(nT.PollTimeout) ||
		oT.RatePerSec != nT.RatePerSec ||
		strings.TrimSpace(oT.Token) != strings.TrimSpace(nT.Token) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Int64("telegram.chat_id", nT.ChatID),
			logx.Bool("telegram.token_changed", strings.TrimSpace(oT.Token) != strings.TrimSpace(nT.Token)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if (oldCfg.TaskEngine == nil) != (newCfg.TaskEngine == nil) ||
		!reflect.DeepEqual(derefTaskEngine(oldCfg.TaskEngine), derefTaskEngine(newCfg.TaskEngine)) {
		te := derefTaskEngine(newCfg.TaskEngine)
		changed = append(changed, "task_engine")
		attrs = append(attrs,
			logx.Bool("task_engine.enabled", BoolOr(te.Enabled, true)),
			logx.Int("task_engine.workers", te.Workers),
			logx.Int("task_engine.queue_size", te.QueueSize),
		)
	}

	if strings.TrimSpace(oldCfg.Scheduler.Timezone) != strings.TrimSpace(newCfg.Scheduler.Timezone) {
		changed = append(changed, "scheduler")
		attrs = append(attrs, logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)))
	}

	if !reflect.DeepEqual(oldCfg.ProgressNotification, newCfg.ProgressNotification) {
		p := newCfg.ProgressNotification
		changed = append(changed, "progress_notification")
		attrs = append(attrs,
			logx.Int("progress.percent", p.Percent),
			logx.Float64("progress.height", p.Height),
			logx.Int("progress.time", p.Time),
			logx.Int("progress.groups", len(p.Groups)),
			logx.Bool("progress.group_only", p.GroupOnly),
		)
	}

	if !reflect.DeepEqual(oldCfg.TelegramUI, newCfg.TelegramUI) {
		ui := newCfg.TelegramUI
		changed = append(changed, "telegram_ui")
		attrs = append(attrs,
			logx.Bool("ui.silent_progress", BoolOr(ui.SilentProgress, true)),
			logx.Bool("ui.silent_commands", BoolOr(ui.SilentCommands, true)),
			logx.Bool("ui.silent_status", BoolOr(ui.SilentStatus, true)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Camera, newCfg.Camera) {
		changed = append(changed, "camera")
		attrs = append(attrs,
			logx.Bool("camera.enabled", newCfg.Camera.Enabled),
			logx.Bool("camera.url_set", strings.TrimSpace(newCfg.Camera.SnapshotURL) != ""),
		)
	}

	// Moonraker (never log api key)
	oM, nM := oldCfg.Moonraker, newCfg.Moonraker
	if strings.TrimSpace(oM.URL) != strings.TrimSpace(nM.URL) ||
		strings.TrimSpace(oM.PollInterval) != strings.TrimSpace(nM.PollInterval) ||
		oM.APIKey != nM.APIKey {
		changed = append(changed, "moonraker")
		attrs = append(attrs,
			logx.String("moonraker.url", strings.TrimSpace(nM.URL)),
			logx.String("moonraker.poll_interval", strings.TrimSpace(nM.PollInterval)),
			logx.Bool("moonraker.api_key_set", nM.APIKey != ""),
		)
	}

	return changed, attrs
}

func derefTaskEngine(p *TaskEngineConfig) TaskEngineConfig {
	if p == nil {
		return TaskEngineConfig{}
	}
	return *p
}
