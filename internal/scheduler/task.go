package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"chronod/internal/schedule"
)

// Task binds a schedule to an action. Tasks are created by Register and
// owned exclusively by the engine's registry; accessors are safe to call
// from any goroutine while the task executes.
type Task struct {
	id        string
	raw       string
	cfg       schedule.Config
	cronSched cron.Schedule // non-nil only for the cron grammar branch
	run       Action
	async     bool
	createdAt time.Time

	cancelled atomic.Bool
	runs      atomic.Int64

	mu   sync.Mutex
	last time.Time
	next time.Time
}

func newTask(raw string, cfg schedule.Config, async bool, cronSched cron.Schedule) *Task {
	return &Task{
		id:        uuid.NewString(),
		raw:       raw,
		cfg:       cfg,
		cronSched: cronSched,
		async:     async,
		createdAt: time.Now(),
	}
}

func (t *Task) ID() string           { return t.id }
func (t *Task) Schedule() string     { return t.raw }
func (t *Task) Kind() schedule.Kind  { return t.cfg.Kind }
func (t *Task) Async() bool          { return t.async }
func (t *Task) CreatedAt() time.Time { return t.createdAt }
func (t *Task) Cancelled() bool      { return t.cancelled.Load() }

// ExecutionCount reports how many times the action has started.
func (t *Task) ExecutionCount() int64 { return t.runs.Load() }

func (t *Task) LastExecution() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

func (t *Task) NextExecution() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.next
}

func (t *Task) setNext(at time.Time) {
	t.mu.Lock()
	t.next = at
	t.mu.Unlock()
}

// cancel flips the one-way cancelled flag. Exactly one caller observes
// true; a run already in progress completes regardless.
func (t *Task) cancel() bool {
	return t.cancelled.CompareAndSwap(false, true)
}

// execute runs the action once: it is a no-op on a cancelled task, stamps
// the execution bookkeeping first, and converts a panic into an error so a
// misbehaving action cannot take down its worker.
func (t *Task) execute(ctx context.Context) (ran bool, err error) {
	if t.cancelled.Load() {
		return false, nil
	}

	t.mu.Lock()
	t.last = time.Now()
	t.mu.Unlock()
	t.runs.Add(1)

	ran = true
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action panic: %v", r)
		}
	}()
	err = t.run(ctx)
	return ran, err
}
