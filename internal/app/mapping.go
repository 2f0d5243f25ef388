package app

import (
	"strings"
	"time"

	"crest/internal/config"
	"crest/internal/httpx"
	"crest/internal/metrics"
	"crest/internal/notifier"
	"crest/internal/state"
	"crest/internal/task/engine"
	logx "crest/pkg/logx"
)

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.ConsoleEnabled(),
		File: logx.FileConfig{
			Enabled: bool(cfg.Logging.File.Enabled),
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapTaskEngineConfig(cfg *config.Config) (engine.Config, error) {
	te := cfg.TaskEngine
	defTimeout, err := config.ParseDurationOrDefault("task_engine.default_timeout", te.DefaultTimeout, 10*time.Minute)
	if err != nil {
		return engine.Config{}, err
	}
	maxQueueDelay, err := config.ParseDurationField("task_engine.max_queue_delay", te.MaxQueueDelay)
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		Enabled:        true,
		Workers:        te.Workers,
		QueueSize:      te.QueueSize,
		DefaultTimeout: defTimeout,
		MaxQueueDelay:  maxQueueDelay,
		HistorySize:    te.HistorySize,
	}, nil
}

func mapStateConfig(cfg *config.Config) (state.Config, error) {
	sc := cfg.State
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" {
		driver = "file"
	}
	busy, err := config.ParseDurationOrDefault("state.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return state.Config{}, err
	}
	return state.Config{Driver: driver, Path: strings.TrimSpace(sc.Path), BusyTimeout: busy}, nil
}

func mapHTTPConfig(cfg *config.Config) (httpx.Config, error) {
	timeout, err := config.ParseDurationField("http.timeout", cfg.HTTP.Timeout)
	if err != nil {
		return httpx.Config{}, err
	}
	retries := 2
	if cfg.HTTP.RetryMax != nil {
		retries = *cfg.HTTP.RetryMax
	}
	return httpx.Config{Timeout: timeout, RetryMax: retries}, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	nc := cfg.Notifier
	timeout, err := config.ParseDurationField("notifier.timeout", nc.Timeout)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		RatePerSec:  nc.RatePerSec,
		Burst:       nc.Burst,
		Timeout:     timeout,
		HistorySize: nc.HistorySize,
	}, nil
}

func mapMetricsConfig(cfg *config.Config) metrics.Config {
	return metrics.Config{Enabled: bool(cfg.Metrics.Enabled), Addr: strings.TrimSpace(cfg.Metrics.Addr)}
}
