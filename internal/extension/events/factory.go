package events

import (
	"errors"
	"fmt"
	"strings"

	"crest/internal/config"
	"crest/internal/digest"
	"crest/internal/extension"
	"crest/internal/source/scoutevents"
	"crest/internal/task"
	"crest/internal/task/runner"
	logx "crest/pkg/logx"
)

// Tasks validates the scout_event_crawler section and returns one schedule
// entry per valid task. Invalid tasks are logged and skipped.
func Tasks(ext config.ExtensionConfig[config.EventTask], src Source, reg *extension.Registry, deps extension.Deps) []extension.Scheduled {
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	if !bool(ext.Enabled) {
		log.Debug("extension disabled", logx.String("group", Group))
		return nil
	}

	t := NewTask(src, deps.Sink, log)
	seen := map[string]struct{}{}
	var out []extension.Scheduled
	for _, raw := range ext.Tasks {
		cfg, err := taskConfig(raw, seen)
		if err != nil {
			extension.Skip(log, Group, raw.TaskName, err)
			continue
		}
		id := task.Identity{Group: Group, Name: cfg.Name}
		s, err := extension.Build[TaskConfig, digest.SeenIDs](reg, deps, id, raw.CronSchedule, t, cfg,
			runner.WithInitialState(digest.SeenIDs{}))
		if err != nil {
			extension.Skip(log, Group, raw.TaskName, err)
			continue
		}
		seen[cfg.Name] = struct{}{}
		out = append(out, s)
	}
	return out
}

func taskConfig(raw config.EventTask, seen map[string]struct{}) (TaskConfig, error) {
	common := extension.Common{
		Name:           raw.TaskName,
		Cron:           raw.CronSchedule,
		JandiURL:       strings.TrimSpace(raw.JandiURL),
		TelegramChatID: raw.TelegramChatID,
	}
	if err := common.Check(seen); err != nil {
		return TaskConfig{}, err
	}
	if len(raw.SubscribedRegions) == 0 {
		return TaskConfig{}, errors.New("no subscribed_regions")
	}
	regions := make([]scoutevents.Region, 0, len(raw.SubscribedRegions))
	for _, s := range raw.SubscribedRegions {
		r, err := scoutevents.ParseRegion(s)
		if err != nil {
			return TaskConfig{}, fmt.Errorf("subscribed_regions: %w", err)
		}
		regions = append(regions, r)
	}
	return TaskConfig{
		Name:         strings.TrimSpace(raw.TaskName),
		Regions:      regions,
		Destinations: extension.Destinations(common.JandiURL, raw.TelegramChatID),
	}, nil
}
