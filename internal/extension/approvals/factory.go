package approvals

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"crest/internal/config"
	"crest/internal/extension"
	"crest/internal/source/terrain"
	"crest/internal/state"
	"crest/internal/task"
	logx "crest/pkg/logx"
)

var usernamePattern = regexp.MustCompile(`^(?:act|nsw|nt|qld|sa|tas|vic|wa|aus)-\d+$`)

// ValidUsername reports whether u looks like a Terrain member number, e.g. "nsw-123456".
func ValidUsername(u string) bool { return usernamePattern.MatchString(u) }

// Tasks validates the terrain_approvals section and returns one schedule entry
// per valid task. Every task gets its own client since the session is per login.
// With probe_login on, credentials are tried once and a rejected task is skipped.
func Tasks(ctx context.Context, ext config.ExtensionConfig[config.ApprovalsTask], newClient func() Client, reg *extension.Registry, deps extension.Deps) []extension.Scheduled {
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	if !bool(ext.Enabled) {
		log.Debug("extension disabled", logx.String("group", Group))
		return nil
	}

	seen := map[string]struct{}{}
	var out []extension.Scheduled
	for _, raw := range ext.Tasks {
		cfg, err := taskConfig(raw, seen)
		if err == nil && probeEnabled(raw) {
			err = probe(ctx, newClient(), cfg)
		}
		if err != nil {
			extension.Skip(log, Group, raw.TaskName, err)
			continue
		}
		id := task.Identity{Group: Group, Name: cfg.Name}
		s, err := extension.Build[TaskConfig, state.None](reg, deps, id, raw.CronSchedule, NewTask(newClient(), deps.Sink, log), cfg)
		if err != nil {
			extension.Skip(log, Group, raw.TaskName, err)
			continue
		}
		seen[cfg.Name] = struct{}{}
		out = append(out, s)
	}
	return out
}

func probeEnabled(raw config.ApprovalsTask) bool {
	return raw.ProbeLogin == nil || bool(*raw.ProbeLogin)
}

// probe only fails on rejected credentials. An unreachable login endpoint is
// left for the scheduled runs to report.
func probe(ctx context.Context, c Client, cfg TaskConfig) error {
	err := c.Login(ctx, cfg.Username, cfg.Password)
	if err != nil && terrain.IsAuthError(err) {
		return fmt.Errorf("Couldn't log in with the credentials provided for %s: %w", cfg.Username, err)
	}
	return nil
}

func taskConfig(raw config.ApprovalsTask, seen map[string]struct{}) (TaskConfig, error) {
	if strings.TrimSpace(raw.Username) == "" || raw.Password == "" ||
		(strings.TrimSpace(raw.JandiURL) == "" && raw.TelegramChatID == 0) || strings.TrimSpace(raw.CronSchedule) == "" {
		return TaskConfig{}, fmt.Errorf("One of username, password, jandi_url, cron_schedule was not supplied for task %s", raw.TaskName)
	}
	common := extension.Common{
		Name:           raw.TaskName,
		Cron:           raw.CronSchedule,
		JandiURL:       strings.TrimSpace(raw.JandiURL),
		TelegramChatID: raw.TelegramChatID,
	}
	if err := common.Check(seen); err != nil {
		return TaskConfig{}, err
	}
	username := strings.ToLower(strings.TrimSpace(raw.Username))
	if !ValidUsername(username) {
		return TaskConfig{}, fmt.Errorf("Username is in an unexpected format: '%s'", raw.Username)
	}
	if raw.LookbackDays < 0 {
		return TaskConfig{}, errors.New("lookback_days must not be negative")
	}
	lookback := raw.LookbackDays
	if lookback == 0 {
		lookback = DefaultLookbackDays
	}
	return TaskConfig{
		Name:         strings.TrimSpace(raw.TaskName),
		Username:     username,
		Password:     raw.Password,
		LookbackDays: lookback,
		Destinations: extension.Destinations(common.JandiURL, raw.TelegramChatID),
	}, nil
}
