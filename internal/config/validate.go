package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	logx "crest/pkg/logx"
)

// Validate checks the process-wide sections. Task entries are checked by their
// extension so that one bad task does not reject the whole file.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if lvl := strings.TrimSpace(cfg.Logging.Level); lvl != "" && !logx.ValidLevel(lvl) {
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", lvl))
	}
	for _, f := range [][2]string{
		{"task_engine.default_timeout", cfg.TaskEngine.DefaultTimeout},
		{"task_engine.max_queue_delay", cfg.TaskEngine.MaxQueueDelay},
		{"state.busy_timeout", cfg.State.BusyTimeout},
		{"http.timeout", cfg.HTTP.Timeout},
		{"notifier.timeout", cfg.Notifier.Timeout},
	} {
		if _, err := ParseDurationField(f[0], f[1]); err != nil {
			errs = append(errs, err)
		}
	}
	switch strings.ToLower(strings.TrimSpace(cfg.State.Driver)) {
	case "", "file", "sqlite", "sqlite3", "memory":
	default:
		errs = append(errs, fmt.Errorf("state.driver: unknown driver %q", cfg.State.Driver))
	}
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.timezone: %w", err))
		}
	}
	if cfg.Notifier.RatePerSec < 0 || cfg.Notifier.Burst < 0 {
		errs = append(errs, errors.New("notifier: rate_per_sec and burst must be >= 0"))
	}
	if cfg.HTTP.RetryMax != nil && *cfg.HTTP.RetryMax < 0 {
		errs = append(errs, errors.New("http.retry_max must be >= 0"))
	}
	return errors.Join(errs...)
}
