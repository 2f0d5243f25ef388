// Package events announces newly posted ScoutLink events for subscribed regions.
package events

import (
	"context"

	"golang.org/x/sync/errgroup"

	"crest/internal/digest"
	"crest/internal/extension"
	"crest/internal/notifier"
	"crest/internal/source/scoutevents"
	"crest/internal/task/runner"
	logx "crest/pkg/logx"
)

const Group = "ScoutEventCrawlerTask"

// maxConcurrentFetch bounds parallel region fetches within one run.
const maxConcurrentFetch = 4

var builder = digest.Builder{
	Body:  "New ScoutLink events",
	Color: "#84BC48",
	Empty: "No new events posted for any subscribed regions",
}

// TaskConfig is the per-task config bound into each scheduled job.
type TaskConfig struct {
	Name         string               `json:"task_name"`
	Regions      []scoutevents.Region `json:"subscribed_regions"`
	Destinations []string             `json:"destinations"`
}

// Source lists the events of one region.
type Source interface {
	ScanRegion(ctx context.Context, r scoutevents.Region) (scoutevents.RegionResult, error)
}

// Task has no precondition; its persisted state is the list of announced event ids.
type Task struct {
	runner.AlwaysContinue[TaskConfig]

	src  Source
	sink notifier.Sink
	log  logx.Logger
}

func NewTask(src Source, sink notifier.Sink, log logx.Logger) *Task {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Task{src: src, sink: sink, log: log.With(logx.String("comp", "events"))}
}

func (t *Task) Execute(ctx context.Context, cfg TaskConfig, seen digest.SeenIDs) (digest.SeenIDs, error) {
	results, err := t.scan(ctx, cfg.Regions)
	if err != nil {
		return seen, err
	}

	next := seen
	groups := make([]digest.Group, 0, len(results))
	announced := 0
	for _, res := range results {
		var fresh []scoutevents.Event
		fresh, next = digest.FilterNew(res.Events, next)
		lines := make([]string, 0, len(fresh))
		for _, ev := range fresh {
			lines = append(lines, digest.FormatLine(digest.Line{
				Name:   ev.Name,
				Link:   ev.Link(),
				Status: ev.Status,
				Emoji:  ev.Emoji(),
				Info:   ev.Info,
			}))
		}
		announced += len(lines)
		groups = append(groups, digest.Group{Title: "⚜️ [" + res.Name + "](" + res.Link + ")", Lines: lines})
	}

	if err := extension.SendAll(ctx, t.sink, cfg.Destinations, builder.Build(groups)); err != nil {
		return seen, err
	}
	t.log.Info("events digest sent",
		logx.String("task_name", cfg.Name),
		logx.Int("regions", len(results)),
		logx.Int("new_events", announced),
	)
	return next, nil
}

// scan fetches every region concurrently. Results keep the configured order.
func (t *Task) scan(ctx context.Context, regions []scoutevents.Region) ([]scoutevents.RegionResult, error) {
	results := make([]scoutevents.RegionResult, len(regions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetch)
	for i, r := range regions {
		g.Go(func() error {
			res, err := t.src.ScanRegion(gctx, r)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
