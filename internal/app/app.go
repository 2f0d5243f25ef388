package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"crest/internal/config"
	"crest/internal/eventbus"
	"crest/internal/extension"
	"crest/internal/extension/approvals"
	"crest/internal/extension/events"
	"crest/internal/httpx"
	"crest/internal/metrics"
	"crest/internal/notifier"
	"crest/internal/notifier/jandi"
	"crest/internal/notifier/telegram"
	rtsup "crest/internal/runtime/supervisor"
	"crest/internal/source/scoutevents"
	"crest/internal/source/terrain"
	"crest/internal/state"
	"crest/internal/task"
	"crest/internal/task/engine"
	"crest/internal/task/runner"
	"crest/internal/task/scheduler"
	logx "crest/pkg/logx"
	"crest/pkg/systemd"
)

// ErrNoTasks is returned by Start when nothing could be scheduled.
var ErrNoTasks = errors.New("no tasks scheduled, or all have been skipped due to invalid configuration")

type App struct {
	cfgm *config.ConfigManager

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store *state.Store

	engine *engine.Service
	sched  *scheduler.Service
	notif  *notifier.Service

	collector  *metrics.Collector
	metricsSrv *metrics.Server
	sd         *systemd.Notifier

	scout      events.Source
	newTerrain func() approvals.Client
	reg        *extension.Registry

	sup *rtsup.Supervisor

	mu    sync.Mutex
	owned map[string]struct{} // schedule names registered by the last apply
}

// New loads the config at cfgPath and wires every component. Nothing runs until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgm.Path(), err)
	}

	logs, root := logx.New(mapLogging(cfg))
	log := root.With(logx.String("comp", "app"))
	bus := eventbus.New()

	stCfg, err := mapStateConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := state.Open(stCfg, root.With(logx.String("comp", "state")))
	if err != nil {
		return nil, err
	}

	engCfg, err := mapTaskEngineConfig(cfg)
	if err != nil {
		return nil, err
	}
	eng := engine.New(engCfg, root.With(logx.String("comp", "taskengine")), bus)
	sched := scheduler.New(scheduler.Config{Timezone: cfg.Scheduler.Timezone}, eng, root.With(logx.String("comp", "scheduler")))

	httpCfg, err := mapHTTPConfig(cfg)
	if err != nil {
		return nil, err
	}
	upstream := httpx.New(httpCfg, root.With(logx.String("comp", "http")))

	notif, err := newNotifier(cfg, root, bus)
	if err != nil {
		return nil, err
	}

	collector := metrics.NewCollector()
	a := &App{
		cfgm:       cfgm,
		log:        log,
		logs:       logs,
		bus:        bus,
		store:      store,
		engine:     eng,
		sched:      sched,
		notif:      notif,
		collector:  collector,
		metricsSrv: metrics.NewServer(collector, root),
		sd:         systemd.New(bool(cfg.Systemd.Notify), root),
		scout:      scoutevents.New(root, scoutevents.WithHTTPClient(upstream)),
		newTerrain: func() approvals.Client {
			return terrain.New(terrain.Config{HTTP: upstream}, root)
		},
		reg:   extension.NewRegistry(),
		owned: map[string]struct{}{},
	}
	return a, nil
}

func newNotifier(cfg *config.Config, root logx.Logger, bus eventbus.Bus) (*notifier.Service, error) {
	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	log := root.With(logx.String("comp", "notifier"))
	// Webhook posts are not idempotent, so they are never retried.
	transports := []notifier.Transport{jandi.New(log, jandi.WithHTTPClient(httpx.NoRetry(ncfg.Timeout, log)))}
	if tok := strings.TrimSpace(cfg.Telegram.Token); tok != "" {
		tg, err := telegram.New(telegram.Config{Token: tok, APIURL: cfg.Telegram.APIURL, Timeout: ncfg.Timeout}, root)
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		transports = append(transports, tg)
	}
	return notifier.New(ncfg, log, bus, transports...), nil
}

func (a *App) Logger() logx.Logger { return a.log }

// Done is closed once the app context ends.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		return nil
	}
	return a.sup.Context().Done()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	c := a.sup.Context()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := mapTaskEngineConfig(cfg); err != nil {
			return err
		}
		if _, err := mapNotifierConfig(cfg); err != nil {
			return err
		}
		_, err := mapHTTPConfig(cfg)
		return err
	})

	a.sup.Go0("metrics.collect", func(c context.Context) { a.collector.Run(c, a.bus, a.log) })
	a.engine.Start(c)
	a.sched.Start(c)

	cfg := a.cfgm.Get()
	if n := a.applyTasks(c, cfg); n == 0 {
		a.log.Error("No tasks scheduled, or all have been skipped due to invalid configuration")
		return ErrNoTasks
	}
	a.metricsSrv.Reconfigure(c, mapMetricsConfig(cfg))

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							next = newer
						}
					default:
						break drain
					}
				}
				a.reload(c, last, next)
				last = next
			}
		}
	})
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go0("systemd.watchdog", a.sd.Watchdog)

	a.sd.Ready()
	a.log.Info("app started", logx.String("config", a.cfgm.Path()))
	return nil
}

func (a *App) reload(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	a.sd.Reloading()
	defer a.sd.Ready()

	a.logs.Apply(mapLogging(next))
	if engCfg, err := mapTaskEngineConfig(next); err != nil {
		a.log.Warn("invalid task_engine config; keeping previous", logx.Err(err))
	} else {
		a.engine.Apply(ctx, engCfg)
	}
	a.sched.Apply(scheduler.Config{Timezone: next.Scheduler.Timezone})
	if ncfg, err := mapNotifierConfig(next); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		a.notif.Apply(ncfg)
	}
	a.metricsSrv.Reconfigure(ctx, mapMetricsConfig(next))

	for _, s := range sections {
		switch s {
		case "state", "http", "telegram", "systemd":
			a.log.Warn("config section changed; restart required for it to take effect", logx.String("section", s))
		}
	}

	// Re-registering also resumes tasks paused on rejected credentials.
	if n := a.applyTasks(ctx, next); n == 0 {
		a.log.Error("No tasks scheduled, or all have been skipped due to invalid configuration")
	}

	a.bus.Publish(eventbus.Event{Type: eventbus.ConfigReloaded, Time: time.Now()})
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// applyTasks registers every valid task, drops schedules no longer configured
// and logs each next run. It returns the number of scheduled tasks.
func (a *App) applyTasks(ctx context.Context, cfg *config.Config) int {
	deps := extension.Deps{
		Store:  a.store,
		Sink:   a.notif,
		Pauser: runner.PauserFunc(a.pause),
		Bus:    a.bus,
		Log:    a.log.With(logx.String("comp", "extension")),
	}
	var all []extension.Scheduled
	all = append(all, events.Tasks(cfg.ScoutEventCrawler, a.scout, a.reg, deps)...)
	all = append(all, approvals.Tasks(ctx, cfg.TerrainApprovals, a.newTerrain, a.reg, deps)...)

	a.mu.Lock()
	defer a.mu.Unlock()

	owned := make(map[string]struct{}, len(all))
	keep := make([]task.Identity, 0, len(all))
	for _, s := range all {
		name := s.ID.String()
		err := a.sched.AddScheduleOpt(name, s.Cron, s.Timeout, scheduler.Options{Overlap: engine.OverlapSkipIfRunning}, s.Job)
		if err != nil {
			extension.Skip(a.log, s.ID.Group, s.ID.Name, err)
			continue
		}
		owned[name] = struct{}{}
		keep = append(keep, s.ID)
		if next, ok := a.sched.Next(name); ok {
			a.log.Info("task scheduled", logx.String("task", name), logx.Time("next_run", next))
		}
	}
	for name := range a.owned {
		if _, ok := owned[name]; !ok {
			a.sched.Remove(name)
			a.log.Info("task removed", logx.String("task", name))
		}
	}
	a.owned = owned
	a.reg.Retain(keep)
	return len(owned)
}

func (a *App) pause(id task.Identity) {
	a.sched.Remove(id.String())
}

// Stop shuts everything down in reverse start order, bounded by ctx.
func (a *App) Stop(ctx context.Context) error {
	a.sd.Stopping()
	step := func(name string, d time.Duration, fn func(context.Context)) {
		c, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		fn(c)
		if errors.Is(c.Err(), context.DeadlineExceeded) {
			a.log.Warn("shutdown step timed out", logx.String("step", name))
		}
	}
	step("scheduler", 2*time.Second, a.sched.Stop)
	step("engine", 5*time.Second, a.engine.Stop)
	step("metrics", 2*time.Second, a.metricsSrv.Stop)

	var err error
	if a.sup != nil {
		a.sup.Cancel()
		werr := a.sup.Wait(ctx)
		if werr != nil && !errors.Is(werr, context.Canceled) {
			err = werr
		}
	}
	if cerr := a.store.Close(); cerr != nil {
		a.log.Warn("state close failed", logx.Err(cerr))
	}
	a.log.Info("stopped")
	_ = a.logs.Close()
	return err
}

// Owned lists the schedule names currently registered by the app.
func (a *App) Owned() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.owned))
	for name := range a.owned {
		out = append(out, name)
	}
	return out
}
