// Package runner drives one scheduled task through evaluate, execute and persist.
//
// A Runner moves Idle -> Evaluating -> Running -> Idle on every fire, or
// Evaluating -> Paused when the task asks to stop. A paused runner ignores fires
// until Resume. Errors from the task come back from Fire and nothing is persisted.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"crest/internal/eventbus"
	"crest/internal/state"
	"crest/internal/task"
	logx "crest/pkg/logx"
)

// Task is the capability set a crawler implements. C is its config, S its persisted state.
type Task[C, S any] interface {
	Evaluate(ctx context.Context, cfg C) task.Decision
	Execute(ctx context.Context, cfg C, prev S) (S, error)
}

// AlwaysContinue can be embedded by tasks with no precondition.
type AlwaysContinue[C any] struct{}

func (AlwaysContinue[C]) Evaluate(context.Context, C) task.Decision { return task.Continue }

// Pauser stops future firings of a task. The scheduler-backed implementation unschedules it.
type Pauser interface {
	Pause(id task.Identity)
}

type PauserFunc func(id task.Identity)

func (f PauserFunc) Pause(id task.Identity) { f(id) }

type Status int

const (
	Idle Status = iota
	Evaluating
	Running
	Paused
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Evaluating:
		return "evaluating"
	case Running:
		return "running"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

// ErrBusy is returned when Fire is called while a previous fire is still evaluating or running.
var ErrBusy = errors.New("runner: previous run still in progress")

type settings struct {
	log     logx.Logger
	bus     eventbus.Bus
	initial any
}

type Option func(*settings)

func WithLogger(log logx.Logger) Option { return func(s *settings) { s.log = log } }

func WithBus(bus eventbus.Bus) Option { return func(s *settings) { s.bus = bus } }

// WithInitialState sets the state handed to Execute when nothing is stored yet.
// Its type must match the runner's S; other values are ignored.
func WithInitialState[S any](v S) Option { return func(s *settings) { s.initial = v } }

type Runner[C, S any] struct {
	id      task.Identity
	task    Task[C, S]
	store   *state.Store
	pauser  Pauser
	log     logx.Logger
	bus     eventbus.Bus
	initial S

	mu     sync.Mutex
	status Status
}

func New[C, S any](id task.Identity, t Task[C, S], store *state.Store, pauser Pauser, opts ...Option) *Runner[C, S] {
	cfg := settings{}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.log.IsZero() {
		cfg.log = logx.Nop()
	}
	if cfg.bus == nil {
		cfg.bus = eventbus.Nop()
	}
	r := &Runner[C, S]{
		id:     id,
		task:   t,
		store:  store,
		pauser: pauser,
		log:    cfg.log.With(logx.String("task", id.String())),
		bus:    cfg.bus,
	}
	if v, ok := cfg.initial.(S); ok {
		r.initial = v
	}
	return r
}

func (r *Runner[C, S]) Identity() task.Identity { return r.id }

func (r *Runner[C, S]) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Resume returns a paused runner to Idle.
func (r *Runner[C, S]) Resume() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status == Paused {
		r.status = Idle
	}
}

// Job binds cfg into a scheduler callback. The config is encoded once, here.
func (r *Runner[C, S]) Job(cfg C) (func(ctx context.Context) error, error) {
	blob, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: encode config: %w", r.id, err)
	}
	return func(ctx context.Context) error { return r.Fire(ctx, blob) }, nil
}

// Fire runs one evaluate/execute cycle with the JSON-encoded config blob.
func (r *Runner[C, S]) Fire(ctx context.Context, blob []byte) error {
	r.mu.Lock()
	switch r.status {
	case Paused:
		r.mu.Unlock()
		r.log.Debug("fire ignored: task is paused")
		return nil
	case Evaluating, Running:
		r.mu.Unlock()
		return ErrBusy
	}
	r.status = Evaluating
	r.mu.Unlock()

	runID := task.RunID(ctx)
	if runID == "" {
		runID = uuid.NewString()
		ctx = task.WithRunID(ctx, runID)
	}
	log := r.log.With(logx.String("run", runID))

	var cfg C
	if err := json.Unmarshal(blob, &cfg); err != nil {
		r.setStatus(Idle)
		return fmt.Errorf("%s: decode config: %w", r.id, err)
	}

	if r.task.Evaluate(ctx, cfg) == task.Pause {
		r.pause(log, runID)
		return nil
	}

	r.setStatus(Running)
	defer r.setStatus(Idle)

	stateless := isNone[S]()
	key := r.id.String()
	prev := r.initial
	if !stateless {
		prev = state.Get(ctx, r.store, key, r.initial)
	}

	log.Debug("executing")
	next, err := r.task.Execute(ctx, cfg, prev)
	if err != nil {
		return fmt.Errorf("%s: %w", r.id, err)
	}
	if stateless {
		return nil
	}
	// The digest is already out; a cancel arriving now must not lose the state.
	if err := state.Set(context.WithoutCancel(ctx), r.store, key, next); err != nil {
		return fmt.Errorf("%s: persist state: %w", r.id, err)
	}
	return nil
}

func (r *Runner[C, S]) pause(log logx.Logger, runID string) {
	r.mu.Lock()
	already := r.status == Paused
	r.status = Paused
	r.mu.Unlock()
	if already {
		return
	}
	if r.pauser != nil {
		r.pauser.Pause(r.id)
	}
	r.bus.Publish(eventbus.Event{Type: eventbus.TaskPaused, Data: eventbus.TaskData{Task: r.id.String(), RunID: runID}})
	log.Warn("task paused, it will not run again until the configuration is reloaded")
}

func (r *Runner[C, S]) setStatus(s Status) {
	r.mu.Lock()
	r.status = s
	r.mu.Unlock()
}

func isNone[S any]() bool {
	var zero S
	_, ok := any(zero).(state.None)
	return ok
}
