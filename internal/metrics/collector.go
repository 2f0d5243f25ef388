// Package metrics exports task and digest counters in Prometheus format.
// Counters are fed from the event bus, so no component imports this package.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"crest/internal/eventbus"
	logx "crest/pkg/logx"
)

const namespace = "crest"

type Collector struct {
	reg *prometheus.Registry

	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	paused   *prometheus.CounterVec
	digests  *prometheus.CounterVec
	reloads  prometheus.Counter
}

func NewCollector() *Collector {
	c := &Collector{
		reg: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_runs_total",
			Help:      "Task runs by outcome (finished, failed, skipped).",
		}, []string{"task", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Wall time of completed task runs.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"task"}),
		paused: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_paused_total",
			Help:      "Tasks paused after rejected credentials.",
		}, []string{"task"}),
		digests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "digests_total",
			Help:      "Digest deliveries by sink and outcome.",
		}, []string{"sink", "result"}),
		reloads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_reloads_total",
			Help:      "Configuration reloads applied.",
		}),
	}
	c.reg.MustRegister(
		c.runs, c.duration, c.paused, c.digests, c.reloads,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.reg }

// Observe folds one bus event into the counters. Unknown types are ignored.
func (c *Collector) Observe(e eventbus.Event) {
	switch e.Type {
	case eventbus.TaskFinished, eventbus.TaskFailed, eventbus.TaskSkipped:
		d, _ := e.Data.(eventbus.TaskData)
		result := map[string]string{
			eventbus.TaskFinished: "finished",
			eventbus.TaskFailed:   "failed",
			eventbus.TaskSkipped:  "skipped",
		}[e.Type]
		c.runs.WithLabelValues(d.Task, result).Inc()
		if e.Type != eventbus.TaskSkipped {
			c.duration.WithLabelValues(d.Task).Observe(d.Duration.Seconds())
		}
	case eventbus.TaskPaused:
		d, _ := e.Data.(eventbus.TaskData)
		c.paused.WithLabelValues(d.Task).Inc()
	case eventbus.DigestSent, eventbus.DigestFailed:
		d, _ := e.Data.(eventbus.DigestData)
		result := "sent"
		if e.Type == eventbus.DigestFailed {
			result = "failed"
		}
		c.digests.WithLabelValues(d.Sink, result).Inc()
	case eventbus.ConfigReloaded:
		c.reloads.Inc()
	}
}

// Run consumes bus events until ctx ends.
func (c *Collector) Run(ctx context.Context, bus eventbus.Bus, log logx.Logger) {
	events, unsubscribe := bus.Subscribe(256)
	defer unsubscribe()
	log.Debug("metrics collector started")
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			c.Observe(e)
		}
	}
}
