package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"crest/internal/task/engine"
	logx "crest/pkg/logx"
)

// Config controls the trigger service.
type Config struct {
	Timezone string // IANA TZ, e.g. "Australia/Sydney"; empty means Local
}

// Enqueuer accepts fired tasks. *engine.Service implements it.
type Enqueuer interface {
	Enqueue(t engine.Task) error
}

// Options tune how fired tasks are enqueued.
type Options struct {
	Overlap engine.OverlapPolicy
}

type scheduleDef struct {
	name          string
	spec          string // normalized cron spec or @every
	sched         cron.Schedule
	timeout       time.Duration
	job           func(ctx context.Context) error
	opt           Options
	entryID       cron.EntryID
	startupSpread time.Duration
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location
	eng Enqueuer

	c    *cron.Cron
	defs []scheduleDef

	enqMu       sync.Mutex
	lastEnqWarn map[string]time.Time
}

type ScheduleInfo struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Next    time.Time
	Prev    time.Time
}

type Snapshot struct {
	Running   bool
	Timezone  string
	Schedules []ScheduleInfo
}
