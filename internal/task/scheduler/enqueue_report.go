package scheduler

import (
	"errors"
	"time"

	"crest/internal/task/engine"
	logx "crest/pkg/logx"
)

const enqueueWarnThrottle = 5 * time.Second

func (s *Service) reportEnqueueError(name string, err error) {
	// A slow run still in flight is normal; the next firing will catch up.
	if errors.Is(err, engine.ErrOverlapSkip) {
		s.log.Info("previous run still in progress, skipping this firing", logx.String("schedule", name))
		return
	}

	now := time.Now()
	s.enqMu.Lock()
	last := s.lastEnqWarn[name]
	if !last.IsZero() && now.Sub(last) < enqueueWarnThrottle {
		s.enqMu.Unlock()
		return
	}
	s.lastEnqWarn[name] = now
	s.enqMu.Unlock()

	s.log.Warn("schedule failed to enqueue task", logx.String("schedule", name), logx.Err(err))
}
