// Package extension holds what the crawler extensions share: the dependencies
// they are built with, the schedule entries they produce, and a registry that
// keeps one runner per task identity across configuration reloads.
package extension

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"crest/internal/digest"
	"crest/internal/eventbus"
	"crest/internal/notifier"
	"crest/internal/notifier/jandi"
	"crest/internal/notifier/telegram"
	"crest/internal/state"
	"crest/internal/task"
	"crest/internal/task/runner"
	"crest/internal/task/scheduler"
	logx "crest/pkg/logx"
)

// Deps are the collaborators handed to every extension factory.
type Deps struct {
	Store  *state.Store
	Sink   notifier.Sink
	Pauser runner.Pauser
	Bus    eventbus.Bus
	Log    logx.Logger
}

func (d Deps) logger() logx.Logger {
	if d.Log.IsZero() {
		return logx.Nop()
	}
	return d.Log
}

// Scheduled is one validated task ready to be handed to the scheduler.
type Scheduled struct {
	ID      task.Identity
	Cron    string
	Timeout time.Duration
	Job     func(ctx context.Context) error
}

// Registry keeps runners alive between reloads so a reload never forgets
// in-memory status. Obtaining an existing runner resumes it.
type Registry struct {
	mu      sync.Mutex
	runners map[string]any
}

func NewRegistry() *Registry {
	return &Registry{runners: map[string]any{}}
}

// Obtain returns the runner registered for id, or registers the one built by mk.
// A runner of a different type under the same id is replaced.
func Obtain[C, S any](r *Registry, id task.Identity, mk func() *runner.Runner[C, S]) *runner.Runner[C, S] {
	key := id.String()
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.runners[key].(*runner.Runner[C, S]); ok {
		existing.Resume()
		return existing
	}
	created := mk()
	r.runners[key] = created
	return created
}

// Retain drops every runner whose identity is not in keep.
func (r *Registry) Retain(keep []task.Identity) {
	want := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		want[id.String()] = struct{}{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.runners {
		if _, ok := want[key]; !ok {
			delete(r.runners, key)
		}
	}
}

// Len is the number of registered runners.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runners)
}

// Destinations lists the sinks a task sends to: its Jandi webhook, then its
// Telegram chat when one is configured.
func Destinations(jandiURL string, telegramChatID int64) []string {
	var out []string
	if u := strings.TrimSpace(jandiURL); u != "" {
		out = append(out, u)
	}
	if telegramChatID != 0 {
		out = append(out, telegram.Scheme+strconv.FormatInt(telegramChatID, 10))
	}
	return out
}

// SendAll delivers p to every destination in order and stops at the first failure.
func SendAll(ctx context.Context, sink notifier.Sink, dests []string, p digest.Payload) error {
	if len(dests) == 0 {
		return errors.New("no destinations")
	}
	for _, d := range dests {
		if err := sink.Send(ctx, d, p); err != nil {
			return err
		}
	}
	return nil
}

// Common task fields every factory checks before its own rules.
type Common struct {
	Name           string
	Cron           string
	JandiURL       string
	TelegramChatID int64
}

// Check validates the fields shared by all crawler tasks. seen tracks names
// already accepted within the same extension.
func (c Common) Check(seen map[string]struct{}) error {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return errors.New("task_name is required")
	}
	if _, dup := seen[name]; dup {
		return fmt.Errorf("duplicate task_name %q", name)
	}
	if strings.TrimSpace(c.Cron) == "" {
		return errors.New("cron_schedule is required")
	}
	if err := scheduler.Validate(c.Cron); err != nil {
		return fmt.Errorf("cron_schedule %q: %w", c.Cron, err)
	}
	if c.JandiURL == "" && c.TelegramChatID == 0 {
		return errors.New("jandi_url is required")
	}
	if c.JandiURL != "" && !jandi.ValidURL(c.JandiURL) {
		return fmt.Errorf("Jandi URL is in an unexpected format: '%s'", c.JandiURL)
	}
	return nil
}

// Skip logs a task that will not be scheduled.
func Skip(log logx.Logger, group, name string, err error) {
	log.Warn("task skipped due to invalid configuration",
		logx.String("group", group),
		logx.String("task_name", name),
		logx.Err(err),
	)
}

// Build is the shared tail of every factory: obtain the runner, bind cfg and
// return the schedule entry.
func Build[C, S any](reg *Registry, deps Deps, id task.Identity, cron string, t runner.Task[C, S], cfg C, opts ...runner.Option) (Scheduled, error) {
	log := deps.logger()
	r := Obtain(reg, id, func() *runner.Runner[C, S] {
		all := append([]runner.Option{runner.WithLogger(log), runner.WithBus(deps.Bus)}, opts...)
		return runner.New[C, S](id, t, deps.Store, deps.Pauser, all...)
	})
	job, err := r.Job(cfg)
	if err != nil {
		return Scheduled{}, err
	}
	return Scheduled{ID: id, Cron: cron, Job: job}, nil
}
