package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"chronod/internal/eventbus"
	"chronod/internal/schedule"
	"chronod/pkg/logx"
)

// Scheduler owns the task registry and the polling loop. It is safe for
// concurrent use from any goroutine.
type Scheduler struct {
	cfg Config
	log logx.Logger
	bus eventbus.Bus

	parser cron.Parser

	mu      sync.RWMutex
	tasks   map[string]*Task
	stopped bool

	queue  chan *Task
	stopCh chan struct{}
	wg     sync.WaitGroup

	runCtx    context.Context
	runCancel context.CancelFunc

	// failLog throttles task-failure logging so a hot-looping action cannot
	// flood the sinks; suppressed failures still count and publish events.
	failLog *rate.Limiter

	// nowFn is the clock; tests swap it for a fixed instant.
	nowFn func() time.Time
}

// New builds the engine and starts its sweep loop and worker pool
// immediately.
func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Scheduler {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cfg: cfg,
		log: log,
		bus: bus,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser:    cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		tasks:     map[string]*Task{},
		queue:     make(chan *Task, cfg.QueueSize),
		stopCh:    make(chan struct{}),
		runCtx:    runCtx,
		runCancel: runCancel,
		failLog:   rate.NewLimiter(rate.Every(time.Second), 5),
		nowFn:     time.Now,
	}

	s.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		idx := i
		go func() {
			defer s.wg.Done()
			s.worker(runCtx, s.stopCh, s.queue, idx)
		}()
	}

	// First sweep runs at construction (it can only observe an empty
	// registry); the loop takes over from the next tick.
	s.sweep(s.nowFn())
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()

	s.log.Info("scheduler started",
		logx.Int("workers", cfg.Workers),
		logx.Duration("sweep_interval", cfg.SweepInterval))
	return s
}

// Register parses the schedule string, arms a task and stores it in the
// registry. The returned task is live immediately: an already-due first
// occurrence fires on the next sweep.
func (s *Scheduler) Register(scheduleStr string, action Action, async bool) (*Task, error) {
	if action == nil {
		return nil, errors.New("action required")
	}
	return s.register(scheduleStr, async, func(*Task) Action { return action })
}

// RegisterWithCallback registers an action that invokes cb with the task
// created by this very call. The task is captured at registration, so
// duplicate schedule strings can never deliver a different task instance.
func (s *Scheduler) RegisterWithCallback(scheduleStr string, cb func(ctx context.Context, t *Task) error, async bool) (*Task, error) {
	if cb == nil {
		return nil, errors.New("callback required")
	}
	return s.register(scheduleStr, async, func(t *Task) Action {
		return func(ctx context.Context) error { return cb(ctx, t) }
	})
}

func (s *Scheduler) register(raw string, async bool, bind func(*Task) Action) (*Task, error) {
	cfg := schedule.Parse(raw)
	if cfg.Kind == schedule.KindUnset {
		return nil, fmt.Errorf("%w: %q", ErrUnrecognizedSchedule, raw)
	}

	var cronSched cron.Schedule
	if cfg.Kind == schedule.KindCron {
		var err error
		cronSched, err = s.parser.Parse(cfg.CronExpr)
		if err != nil {
			return nil, fmt.Errorf("invalid cron expression %q: %w", cfg.CronExpr, err)
		}
	}

	t := newTask(raw, cfg, async, cronSched)
	t.run = bind(t)
	next := s.nextFor(t, s.nowFn())
	t.setNext(next)

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil, ErrStopped
	}
	s.tasks[t.id] = t
	s.mu.Unlock()

	s.log.Debug("task registered",
		logx.String("task", t.id),
		logx.String("schedule", raw),
		logx.String("kind", cfg.Kind.String()),
		logx.Bool("async", async),
		logx.Time("next", next))
	s.publish(eventbus.TypeTaskRegistered, TaskEvent{ID: t.id, Schedule: raw})
	return t, nil
}

// Cancel removes the task from the registry and marks it cancelled. It
// returns true exactly once per task; unknown, already-cancelled and
// post-shutdown calls return false. A run already in progress completes.
func (s *Scheduler) Cancel(taskID string) bool {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		s.log.Error("cancel called after shutdown", logx.String("task", taskID))
		return false
	}
	t, ok := s.tasks[taskID]
	if ok {
		delete(s.tasks, taskID)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}

	won := t.cancel()
	if won {
		s.log.Debug("task cancelled", logx.String("task", t.id), logx.String("schedule", t.raw))
		s.publish(eventbus.TypeTaskCancelled, TaskEvent{ID: t.id, Schedule: t.raw, Runs: t.runs.Load()})
	}
	return won
}

// ActiveCount reports the registry size at the instant of the call.
func (s *Scheduler) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// Snapshot returns a point-in-time view of the engine and every task.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.RLock()
	snap := Snapshot{
		Stopped:  s.stopped,
		Workers:  s.cfg.Workers,
		QueueLen: len(s.queue),
		QueueCap: cap(s.queue),
		Tasks:    make([]TaskInfo, 0, len(s.tasks)),
	}
	for _, t := range s.tasks {
		snap.Tasks = append(snap.Tasks, TaskInfo{
			ID:        t.id,
			Schedule:  t.raw,
			Kind:      t.cfg.Kind,
			Async:     t.async,
			CreatedAt: t.createdAt,
			Next:      t.NextExecution(),
			Last:      t.LastExecution(),
			Runs:      t.runs.Load(),
			Cancelled: t.cancelled.Load(),
		})
	}
	s.mu.RUnlock()

	sort.Slice(snap.Tasks, func(i, j int) bool { return snap.Tasks[i].CreatedAt.Before(snap.Tasks[j].CreatedAt) })
	return snap
}

// Shutdown stops the engine: it marks the registry closed (a sweep tick
// already past that check still completes its pass), cancels and clears
// every task, stops the loop and workers, and waits up to the configured
// grace period for in-flight actions before forcing termination.
func (s *Scheduler) Shutdown(ctx context.Context) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	tasks := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.tasks = map[string]*Task{}
	s.mu.Unlock()

	for _, t := range tasks {
		t.cancel()
	}
	close(s.stopCh)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	grace := time.NewTimer(s.cfg.ShutdownGrace)
	defer grace.Stop()
	select {
	case <-done:
		s.log.Info("scheduler stopped", logx.Int("cancelled", len(tasks)))
	case <-grace.C:
		s.runCancel()
		s.log.Warn("shutdown grace elapsed; forcing termination", logx.Duration("grace", s.cfg.ShutdownGrace))
	case <-ctx.Done():
		s.runCancel()
		s.log.Warn("shutdown context done; forcing termination", logx.Err(ctx.Err()))
	}
	s.runCancel()
}

// nextFor computes a task's next fire time: the cron schedule for the cron
// branch, the occurrence calculator for everything else.
func (s *Scheduler) nextFor(t *Task, now time.Time) time.Time {
	if t.cronSched != nil {
		return t.cronSched.Next(now)
	}
	return schedule.Next(t.cfg, now)
}

func (s *Scheduler) publish(typ string, ev TaskEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: ev})
}
