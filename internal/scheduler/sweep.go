package scheduler

import (
	"context"
	"time"

	"chronod/internal/eventbus"
	"chronod/internal/schedule"
	"chronod/pkg/logx"
)

// loop is the engine's heartbeat: one sweep per cadence until shutdown.
// The construction-time sweep has already happened by the time loop starts.
func (s *Scheduler) loop() {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweep(s.nowFn())
		}
	}
}

// sweep scans the registry for due tasks and processes each one: dispatch,
// then either re-arm (repeating kinds) or retire (one-shot). The due test
// truncates now to whole minutes so sub-minute timing differences between
// registration and firing are irrelevant; rescheduling uses the original
// now.
//
// A repeating task whose dispatch is rejected (full queue) loses that
// occurrence and is re-armed. A one-shot task must run exactly once, so a
// rejected dispatch leaves it armed for the next tick instead of retiring
// it unexecuted.
func (s *Scheduler) sweep(now time.Time) {
	cutoff := now.Truncate(time.Minute)

	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return
	}
	due := make([]*Task, 0)
	for _, t := range s.tasks {
		if t.Cancelled() {
			continue
		}
		next := t.NextExecution()
		if next.IsZero() || next.After(cutoff) {
			continue
		}
		due = append(due, t)
	}
	s.mu.RUnlock()

	for _, t := range due {
		dispatched := s.dispatch(t)
		if t.cfg.Kind == schedule.KindOnce {
			if dispatched {
				s.retire(t)
			}
			continue
		}
		t.setNext(s.nextFor(t, now))
	}
}

// dispatch routes one due task to its execution context: async tasks to the
// worker pool, non-async tasks to the host runner when configured,
// otherwise inline on the sweep goroutine. It reports whether the
// occurrence was accepted; only the async path can refuse.
func (s *Scheduler) dispatch(t *Task) bool {
	if t.async {
		return s.enqueue(t)
	}
	if s.cfg.HostRunner != nil {
		task := t
		s.cfg.HostRunner(func() { s.runTask(s.runCtx, task) })
		return true
	}
	s.runTask(s.runCtx, t)
	return true
}

// retire removes a completed one-shot task from the registry. A concurrent
// Cancel may have removed it already; either way the entry is gone exactly
// once.
func (s *Scheduler) retire(t *Task) {
	s.mu.Lock()
	_, present := s.tasks[t.id]
	delete(s.tasks, t.id)
	s.mu.Unlock()

	if present {
		s.log.Debug("one-shot task retired", logx.String("task", t.id), logx.String("schedule", t.raw))
		s.publish(eventbus.TypeTaskRetired, TaskEvent{ID: t.id, Schedule: t.raw, Runs: t.runs.Load()})
	}
}

// runTask executes one occurrence with full reporting. Errors are swallowed
// here and never propagate: a failing task stays scheduled.
func (s *Scheduler) runTask(ctx context.Context, t *Task) {
	start := s.nowFn()
	s.publish(eventbus.TypeTaskStarted, TaskEvent{ID: t.id, Schedule: t.raw, Started: start})

	ran, err := t.execute(ctx)
	if !ran {
		return
	}
	dur := time.Since(start)
	runs := t.runs.Load()

	if err != nil {
		if s.failLog.Allow() {
			s.log.Warn("task failed",
				logx.String("task", t.id),
				logx.String("schedule", t.raw),
				logx.Err(err),
				logx.Duration("dur", dur),
				logx.Int64("runs", runs))
		}
		s.publish(eventbus.TypeTaskFailed, TaskEvent{ID: t.id, Schedule: t.raw, Started: start, Duration: dur, Runs: runs, Error: err.Error()})
		return
	}

	s.log.Debug("task completed",
		logx.String("task", t.id),
		logx.Duration("dur", dur),
		logx.Int64("runs", runs))
	s.publish(eventbus.TypeTaskFinished, TaskEvent{ID: t.id, Schedule: t.raw, Started: start, Duration: dur, Runs: runs})
}
