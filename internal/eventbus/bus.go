package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by crest components.
const (
	TaskStarted  = "task.started"
	TaskFinished = "task.finished"
	TaskFailed   = "task.failed"
	TaskSkipped  = "task.skipped"
	TaskPaused   = "task.paused"

	DigestSent   = "digest.sent"
	DigestFailed = "digest.failed"

	ConfigReloaded = "config.reloaded"
)

// Event is an in-process lifecycle signal. Data is one of the payload types below
// (or nil) and must not be mutated after Publish.
type Event struct {
	Type string
	Time time.Time
	Data any
}

// TaskData accompanies task.* events.
type TaskData struct {
	Task     string // identity string, e.g. "ScoutEventCrawlerTask-weekly"
	RunID    string
	Duration time.Duration
	Err      string
}

// DigestData accompanies digest.* events.
type DigestData struct {
	Sink    string // "jandi" or "telegram"
	Entries int
	Err     string
}

// Bus fans events out to subscribers. Publish never blocks: a subscriber whose buffer
// is full misses the event.
type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

// Nop discards everything. Subscribe returns a channel that is closed on unsubscribe.
func Nop() Bus { return nopBus{} }

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			// Publish holds the read lock while sending, so closing under the write lock is safe.
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
}

type nopBus struct{}

func (nopBus) Publish(Event) {}

func (nopBus) Subscribe(int) (<-chan Event, func()) {
	ch := make(chan Event)
	var once sync.Once
	return ch, func() { once.Do(func() { close(ch) }) }
}
