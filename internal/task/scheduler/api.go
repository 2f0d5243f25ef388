package scheduler

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"crest/internal/task/engine"
	logx "crest/pkg/logx"
)

// AddSchedule registers job under name, skipping firings while a previous run is in flight.
func (s *Service) AddSchedule(name, schedule string, timeout time.Duration, job func(ctx context.Context) error) error {
	return s.AddScheduleOpt(name, schedule, timeout, Options{Overlap: engine.OverlapSkipIfRunning}, job)
}

// AddScheduleOpt registers job under name. Registering an existing name replaces it.
func (s *Service) AddScheduleOpt(name, schedule string, timeout time.Duration, opt Options, job func(ctx context.Context) error) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name required")
	}
	if job == nil {
		return errors.New("job required")
	}
	sched, spec, err := Parse(schedule)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
	s.defs = append(s.defs, scheduleDef{name: name, spec: spec, sched: sched, timeout: timeout, job: job, opt: opt})
	if s.c != nil {
		s.addCronLocked(&s.defs[len(s.defs)-1])
	}
	s.log.Debug("schedule registered", logx.String("name", name), logx.String("spec", spec), logx.Duration("timeout", timeout))
	return nil
}

// Remove unschedules name. It reports whether anything was registered under it.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	removed := s.removeLocked(strings.TrimSpace(name))
	s.mu.Unlock()
	if removed {
		s.log.Debug("schedule removed", logx.String("name", name))
	}
	return removed
}

// Next is the next fire time of name in the scheduler timezone.
func (s *Service) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.defs {
		if d.name != name {
			continue
		}
		if s.c != nil && d.entryID != 0 {
			if e := s.c.Entry(d.entryID); !e.Next.IsZero() {
				return e.Next, true
			}
		}
		next := d.sched.Next(time.Now().In(s.location()))
		return next, !next.IsZero()
	}
	return time.Time{}, false
}

// Names lists registered schedules, sorted.
func (s *Service) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.defs))
	for _, d := range s.defs {
		out = append(out, d.name)
	}
	sort.Strings(out)
	return out
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	loc := s.location()
	snap := Snapshot{Running: s.c != nil, Timezone: loc.String()}
	now := time.Now().In(loc)
	for _, d := range s.defs {
		it := ScheduleInfo{Name: d.name, Spec: d.spec, Timeout: d.timeout, Next: d.sched.Next(now)}
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			if !e.Next.IsZero() {
				it.Next = e.Next
			}
			it.Prev = e.Prev
		}
		snap.Schedules = append(snap.Schedules, it)
	}
	sort.Slice(snap.Schedules, func(i, j int) bool { return snap.Schedules[i].Name < snap.Schedules[j].Name })
	return snap
}

func (s *Service) removeLocked(name string) bool {
	if name == "" {
		return false
	}
	removed := false
	n := 0
	for _, d := range s.defs {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			removed = true
			continue
		}
		s.defs[n] = d
		n++
	}
	s.defs = s.defs[:n]
	return removed
}

func (s *Service) addCronLocked(d *scheduleDef) {
	name, timeout, job, opt := d.name, d.timeout, d.job, d.opt
	fire := cron.FuncJob(func() {
		if s.eng == nil {
			return
		}
		err := s.eng.Enqueue(engine.Task{Name: name, Timeout: timeout, Overlap: opt.Overlap, Run: job})
		if err != nil {
			s.reportEnqueueError(name, err)
		}
	})

	sched := d.sched
	d.startupSpread = 0
	if every, ok := sched.(cron.ConstantDelaySchedule); ok {
		sched, d.startupSpread = makeIntervalScheduleWithSpread(every.Delay, time.Now().In(s.location()), name)
	}
	d.entryID = s.c.Schedule(sched, fire)
}
