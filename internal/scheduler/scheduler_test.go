package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"chronod/internal/eventbus"
	"chronod/pkg/logx"
)

func newTestEngine(t *testing.T, cfg Config) *Scheduler {
	t.Helper()
	if cfg.SweepInterval == 0 {
		// Keep the background loop out of the way; tests drive sweeps directly.
		cfg.SweepInterval = time.Hour
	}
	s := New(cfg, logx.Nop(), nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Shutdown(ctx)
	})
	return s
}

func TestRegisterArmsTask(t *testing.T) {
	t.Parallel()
	s := newTestEngine(t, Config{})

	task, err := s.Register("EVERYDAY @ 18:00", func(ctx context.Context) error { return nil }, false)
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if task.ID() == "" {
		t.Fatal("task has no id")
	}
	if task.NextExecution().IsZero() {
		t.Fatal("task not armed")
	}
	if got := s.ActiveCount(); got != 1 {
		t.Fatalf("ActiveCount = %d, want 1", got)
	}
}

func TestRegisterRejectsUnrecognizedSchedule(t *testing.T) {
	t.Parallel()
	s := newTestEngine(t, Config{})

	_, err := s.Register("WHENEVER", func(ctx context.Context) error { return nil }, false)
	if !errors.Is(err, ErrUnrecognizedSchedule) {
		t.Fatalf("err = %v, want ErrUnrecognizedSchedule", err)
	}
	if got := s.ActiveCount(); got != 0 {
		t.Fatalf("ActiveCount = %d, want 0", got)
	}
}

func TestRegisterRejectsInvalidCron(t *testing.T) {
	t.Parallel()
	s := newTestEngine(t, Config{})

	if _, err := s.Register("CRON not a cron", func(ctx context.Context) error { return nil }, false); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}

func TestOnceRunsOnceAndRetires(t *testing.T) {
	t.Parallel()
	s := newTestEngine(t, Config{})

	var runs int
	task, err := s.Register("ONCE 2020-01-01 @ 00:00", func(ctx context.Context) error {
		runs++
		return nil
	}, false)
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if got := s.ActiveCount(); got != 1 {
		t.Fatalf("ActiveCount = %d, want 1", got)
	}

	s.sweep(time.Now())
	if runs != 1 {
		t.Fatalf("runs = %d, want 1", runs)
	}
	if got := s.ActiveCount(); got != 0 {
		t.Fatalf("ActiveCount after retirement = %d, want 0", got)
	}

	// A second sweep must not revive the retired task.
	s.sweep(time.Now())
	if runs != 1 {
		t.Fatalf("runs after second sweep = %d, want 1", runs)
	}
	if got := task.ExecutionCount(); got != 1 {
		t.Fatalf("ExecutionCount = %d, want 1", got)
	}
}

func TestRepeatingTaskReschedules(t *testing.T) {
	t.Parallel()
	s := newTestEngine(t, Config{})

	var runs int
	task, err := s.Register("EVERY 15 MINUTES", func(ctx context.Context) error {
		runs++
		return nil
	}, false)
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}

	now := time.Now()
	task.setNext(now.Add(-time.Minute))
	s.sweep(now)

	if runs != 1 {
		t.Fatalf("runs = %d, want 1", runs)
	}
	if got := s.ActiveCount(); got != 1 {
		t.Fatalf("ActiveCount = %d, want 1 (reschedule, not removal)", got)
	}
	if next := task.NextExecution(); !next.After(now) {
		t.Fatalf("NextExecution = %v, not re-armed after now %v", next, now)
	}

	// Not due yet: count stays stable across sweeps.
	s.sweep(now)
	if runs != 1 {
		t.Fatalf("runs after redundant sweep = %d, want 1", runs)
	}
}

func TestDueTestHasMinuteResolution(t *testing.T) {
	t.Parallel()
	s := newTestEngine(t, Config{})

	var runs int
	task, err := s.Register("EVERY 15 MINUTES", func(ctx context.Context) error {
		runs++
		return nil
	}, false)
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}

	base := time.Date(2025, time.March, 10, 12, 0, 30, 0, time.UTC)
	task.setNext(base)

	// now is after the fire time, but truncation pulls the cutoff below it.
	s.sweep(base.Add(15 * time.Second))
	if runs != 0 {
		t.Fatalf("runs = %d, want 0 (not due at minute resolution)", runs)
	}

	s.sweep(base.Add(45 * time.Second))
	if runs != 1 {
		t.Fatalf("runs = %d, want 1", runs)
	}
}

func TestOnceSurvivesFullDispatchQueue(t *testing.T) {
	t.Parallel()
	s := newTestEngine(t, Config{Workers: 1, QueueSize: 1})

	// Occupy the single worker with a blocking task.
	release := make(chan struct{})
	blockerRunning := make(chan struct{})
	blocker, err := s.Register("EVERY 5 MINUTES", func(ctx context.Context) error {
		close(blockerRunning)
		<-release
		return nil
	}, true)
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	fillerDone := make(chan struct{})
	filler, err := s.Register("EVERY 5 MINUTES", func(ctx context.Context) error {
		close(fillerDone)
		return nil
	}, true)
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}

	now := time.Now()
	blocker.setNext(now.Add(-time.Minute))
	s.sweep(now)
	select {
	case <-blockerRunning:
	case <-time.After(2 * time.Second):
		t.Fatal("blocker did not start")
	}

	// Fill the single queue slot while the worker is held.
	filler.setNext(now.Add(-time.Minute))
	s.sweep(now)

	onceDone := make(chan struct{})
	once, err := s.Register("ONCE 2020-01-01 @ 00:00", func(ctx context.Context) error {
		close(onceDone)
		return nil
	}, true)
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	armed := once.NextExecution()

	// Due but undeliverable: the one-shot must stay registered and armed,
	// not be retired unexecuted.
	s.sweep(now)
	if got := s.ActiveCount(); got != 3 {
		t.Fatalf("ActiveCount = %d, want 3 (one-shot must survive a full queue)", got)
	}
	if got := once.ExecutionCount(); got != 0 {
		t.Fatalf("ExecutionCount = %d, want 0", got)
	}
	if next := once.NextExecution(); !next.Equal(armed) {
		t.Fatalf("NextExecution = %v, want %v (arming unchanged)", next, armed)
	}

	// Drain the pool, then the next tick delivers the single execution and
	// retires the task.
	close(release)
	select {
	case <-fillerDone:
	case <-time.After(2 * time.Second):
		t.Fatal("queued task did not drain")
	}
	s.sweep(now)
	select {
	case <-onceDone:
	case <-time.After(2 * time.Second):
		t.Fatal("one-shot task did not execute after the queue drained")
	}
	if got := s.ActiveCount(); got != 2 {
		t.Fatalf("ActiveCount = %d, want 2 (one-shot retired after running)", got)
	}
}

func TestCancelIdempotent(t *testing.T) {
	t.Parallel()
	s := newTestEngine(t, Config{})

	var runs int
	task, err := s.Register("EVERY 15 MINUTES", func(ctx context.Context) error {
		runs++
		return nil
	}, false)
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}

	if !s.Cancel(task.ID()) {
		t.Fatal("first Cancel = false, want true")
	}
	if s.Cancel(task.ID()) {
		t.Fatal("second Cancel = true, want false")
	}
	if got := s.ActiveCount(); got != 0 {
		t.Fatalf("ActiveCount = %d, want 0", got)
	}

	// A cancelled task never executes again, even if its fire time is due.
	task.setNext(time.Now().Add(-time.Minute))
	s.sweep(time.Now())
	if runs != 0 {
		t.Fatalf("runs = %d, want 0 for cancelled task", runs)
	}
}

func TestCancelUnknownID(t *testing.T) {
	t.Parallel()
	s := newTestEngine(t, Config{})
	if s.Cancel("no-such-task") {
		t.Fatal("Cancel of unknown id = true, want false")
	}
}

func TestFailingTaskStaysScheduled(t *testing.T) {
	t.Parallel()
	s := newTestEngine(t, Config{})

	var failures, successes int
	bad, err := s.Register("EVERY 5 MINUTES", func(ctx context.Context) error {
		failures++
		return errors.New("boom")
	}, false)
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	good, err := s.Register("EVERY 5 MINUTES", func(ctx context.Context) error {
		successes++
		return nil
	}, false)
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}

	for i := 0; i < 3; i++ {
		now := time.Now()
		bad.setNext(now.Add(-time.Minute))
		good.setNext(now.Add(-time.Minute))
		s.sweep(now)
	}

	if failures != 3 {
		t.Fatalf("failures = %d, want 3 (failing task must be re-armed)", failures)
	}
	if successes != 3 {
		t.Fatalf("successes = %d, want 3 (failure must not block other tasks)", successes)
	}
	if got := s.ActiveCount(); got != 2 {
		t.Fatalf("ActiveCount = %d, want 2", got)
	}
}

func TestPanickingActionIsContained(t *testing.T) {
	t.Parallel()
	s := newTestEngine(t, Config{})

	task, err := s.Register("EVERY 5 MINUTES", func(ctx context.Context) error {
		panic("kaboom")
	}, false)
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}

	now := time.Now()
	task.setNext(now.Add(-time.Minute))
	s.sweep(now) // must not panic out of the sweep

	if got := task.ExecutionCount(); got != 1 {
		t.Fatalf("ExecutionCount = %d, want 1", got)
	}
	if got := s.ActiveCount(); got != 1 {
		t.Fatalf("ActiveCount = %d, want 1 (panicking task stays scheduled)", got)
	}
}

func TestAsyncDispatchRunsOnWorkerPool(t *testing.T) {
	t.Parallel()
	s := newTestEngine(t, Config{Workers: 2})

	done := make(chan struct{})
	task, err := s.Register("EVERY 5 MINUTES", func(ctx context.Context) error {
		close(done)
		return nil
	}, true)
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}

	now := time.Now()
	task.setNext(now.Add(-time.Minute))
	s.sweep(now)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("async task did not execute")
	}
}

func TestHostRunnerReceivesNonAsyncDispatch(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var pending []func()
	s := newTestEngine(t, Config{
		HostRunner: func(fn func()) {
			mu.Lock()
			pending = append(pending, fn)
			mu.Unlock()
		},
	})

	var runs int
	task, err := s.Register("EVERY 5 MINUTES", func(ctx context.Context) error {
		runs++
		return nil
	}, false)
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}

	now := time.Now()
	task.setNext(now.Add(-time.Minute))
	s.sweep(now)

	mu.Lock()
	submitted := len(pending)
	mu.Unlock()
	if submitted != 1 {
		t.Fatalf("host runner received %d submissions, want 1", submitted)
	}
	if runs != 0 {
		t.Fatal("action ran before the host executed it")
	}

	pending[0]()
	if runs != 1 {
		t.Fatalf("runs = %d, want 1 after host execution", runs)
	}
}

func TestCallbackBoundToOwnTask(t *testing.T) {
	t.Parallel()
	s := newTestEngine(t, Config{})

	var mu sync.Mutex
	seen := map[string]string{}
	register := func(label string) *Task {
		task, err := s.RegisterWithCallback("EVERY 5 MINUTES", func(ctx context.Context, t *Task) error {
			mu.Lock()
			seen[label] = t.ID()
			mu.Unlock()
			return nil
		}, false)
		if err != nil {
			t.Fatalf("RegisterWithCallback error: %v", err)
		}
		return task
	}

	// Two tasks with an identical schedule string: each callback must see
	// the task from its own registration.
	a := register("a")
	b := register("b")

	now := time.Now()
	a.setNext(now.Add(-time.Minute))
	b.setNext(now.Add(-time.Minute))
	s.sweep(now)

	mu.Lock()
	defer mu.Unlock()
	if seen["a"] != a.ID() {
		t.Fatalf("callback a saw task %q, want %q", seen["a"], a.ID())
	}
	if seen["b"] != b.ID() {
		t.Fatalf("callback b saw task %q, want %q", seen["b"], b.ID())
	}
}

func TestShutdown(t *testing.T) {
	t.Parallel()
	s := New(Config{SweepInterval: time.Hour}, logx.Nop(), eventbus.New())

	task, err := s.Register("EVERYDAY @ 18:00", func(ctx context.Context) error { return nil }, false)
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Shutdown(ctx)

	if !task.Cancelled() {
		t.Fatal("task not cancelled on shutdown")
	}
	if got := s.ActiveCount(); got != 0 {
		t.Fatalf("ActiveCount after shutdown = %d, want 0", got)
	}
	if _, err := s.Register("EVERYDAY @ 18:00", func(ctx context.Context) error { return nil }, false); !errors.Is(err, ErrStopped) {
		t.Fatalf("Register after shutdown err = %v, want ErrStopped", err)
	}
	if s.Cancel(task.ID()) {
		t.Fatal("Cancel after shutdown = true, want false")
	}

	// Shutdown is idempotent.
	s.Shutdown(context.Background())
}

func TestSnapshot(t *testing.T) {
	t.Parallel()
	s := newTestEngine(t, Config{Workers: 3})

	if _, err := s.Register("EVERY MON WED @ 09:00", func(ctx context.Context) error { return nil }, true); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if _, err := s.Register("EVERY 15 MINUTES", func(ctx context.Context) error { return nil }, false); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	snap := s.Snapshot()
	if snap.Workers != 3 {
		t.Fatalf("Workers = %d, want 3", snap.Workers)
	}
	if len(snap.Tasks) != 2 {
		t.Fatalf("Tasks = %d, want 2", len(snap.Tasks))
	}
	for _, info := range snap.Tasks {
		if info.Next.IsZero() {
			t.Fatalf("task %s has no next fire time", info.ID)
		}
	}
}
