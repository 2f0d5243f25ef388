package config

import (
	"reflect"
	"strings"

	logx "crest/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections and safe structured
// attrs for logging. Secrets (passwords, tokens, webhook urls) are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.ConsoleEnabled()),
			logx.Bool("logging.file", bool(newCfg.Logging.File.Enabled)),
		)
	}
	if strings.TrimSpace(oldCfg.Scheduler.Timezone) != strings.TrimSpace(newCfg.Scheduler.Timezone) {
		changed = append(changed, "scheduler")
		attrs = append(attrs, logx.String("scheduler.timezone", newCfg.Scheduler.Timezone))
	}
	if oldCfg.TaskEngine != newCfg.TaskEngine {
		changed = append(changed, "task_engine")
		attrs = append(attrs,
			logx.Int("task_engine.workers", newCfg.TaskEngine.Workers),
			logx.String("task_engine.default_timeout", newCfg.TaskEngine.DefaultTimeout),
		)
	}
	if oldCfg.State != newCfg.State {
		// The store is opened once; a change only takes effect after restart.
		changed = append(changed, "state")
		attrs = append(attrs, logx.String("state.driver", newCfg.State.Driver))
	}
	if oldCfg.Notifier != newCfg.Notifier {
		changed = append(changed, "notifier")
	}
	if !reflect.DeepEqual(oldCfg.HTTP, newCfg.HTTP) {
		changed = append(changed, "http")
	}
	if oldCfg.Telegram != newCfg.Telegram {
		changed = append(changed, "telegram")
		attrs = append(attrs, logx.Bool("telegram.token_set", strings.TrimSpace(newCfg.Telegram.Token) != ""))
	}
	if oldCfg.Metrics != newCfg.Metrics {
		changed = append(changed, "metrics")
		attrs = append(attrs, logx.Bool("metrics.enabled", bool(newCfg.Metrics.Enabled)), logx.String("metrics.addr", newCfg.Metrics.Addr))
	}
	if !reflect.DeepEqual(oldCfg.ScoutEventCrawler, newCfg.ScoutEventCrawler) {
		changed = append(changed, "scout_event_crawler")
		attrs = append(attrs,
			logx.Bool("scout_event_crawler.enabled", bool(newCfg.ScoutEventCrawler.Enabled)),
			logx.Int("scout_event_crawler.tasks", len(newCfg.ScoutEventCrawler.Tasks)),
		)
	}
	if !reflect.DeepEqual(oldCfg.TerrainApprovals, newCfg.TerrainApprovals) {
		changed = append(changed, "terrain_approvals")
		attrs = append(attrs,
			logx.Bool("terrain_approvals.enabled", bool(newCfg.TerrainApprovals.Enabled)),
			logx.Int("terrain_approvals.tasks", len(newCfg.TerrainApprovals.Tasks)),
		)
	}
	return changed, attrs
}
