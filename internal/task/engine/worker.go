package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"crest/internal/eventbus"
	"crest/internal/task"
	logx "crest/pkg/logx"
)

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan queuedTask) {
	for {
		// A closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case qt := <-queue:
			s.inFlight.Add(1)
			s.execOne(ctx, qt)
			s.inFlight.Add(-1)
		}
	}
}

func (s *Service) execOne(ctx context.Context, qt queuedTask) {
	if qt.state != nil {
		defer qt.state.release()
	}
	t := qt.task
	start := time.Now()
	queueDelay := max(start.Sub(qt.enqueuedAt), 0)

	s.mu.Lock()
	maxDelay := s.cfg.MaxQueueDelay
	s.mu.Unlock()
	if maxDelay > 0 && queueDelay > maxDelay {
		s.onDropped(start, t, "stale", queueDelay)
		s.record(HistoryItem{ID: t.ID, Name: t.Name, Started: start, QueueDelay: queueDelay, Error: "stale"})
		return
	}

	log := s.log.With(logx.String("task", t.Name), logx.String("run", t.ID))
	log.Debug("task.started", logx.Duration("queue_delay", queueDelay))
	s.bus.Publish(eventbus.Event{Type: eventbus.TaskStarted, Time: start, Data: eventbus.TaskData{Task: t.Name, RunID: t.ID}})

	runCtx := task.WithRunID(ctx, t.ID)
	if qt.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, qt.timeout)
		defer cancel()
	}

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
				log.Error("task.panic", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			}
		}()
		return t.Run(runCtx)
	}()

	dur := time.Since(start)
	item := HistoryItem{ID: t.ID, Name: t.Name, Started: start, QueueDelay: queueDelay, Duration: dur}
	if err != nil {
		item.Error = err.Error()
		log.Warn("task.failed", logx.Err(err), logx.Duration("dur", dur))
		s.bus.Publish(eventbus.Event{Type: eventbus.TaskFailed, Data: eventbus.TaskData{Task: t.Name, RunID: t.ID, Duration: dur, Err: item.Error}})
	} else {
		log.Info("task.completed", logx.Duration("dur", dur))
		s.bus.Publish(eventbus.Event{Type: eventbus.TaskFinished, Data: eventbus.TaskData{Task: t.Name, RunID: t.ID, Duration: dur}})
	}
	s.record(item)
}
