package scheduler

import (
	"context"
	"errors"
	"time"

	"chronod/internal/schedule"
)

// Action is the unit of work bound to a task.
type Action func(ctx context.Context) error

var (
	// ErrStopped is returned by registration calls after Shutdown.
	ErrStopped = errors.New("scheduler stopped")

	// ErrUnrecognizedSchedule is returned when a schedule string matches no
	// grammar rule. The parser itself is total; rejection happens here so a
	// dead task is never armed silently.
	ErrUnrecognizedSchedule = errors.New("unrecognized schedule")
)

// Config controls the engine.
type Config struct {
	// SweepInterval is the polling cadence. Default 30s.
	SweepInterval time.Duration

	// Workers sizes the pool executing async tasks. Default 4.
	Workers int

	// QueueSize bounds the async dispatch queue. Default 256.
	QueueSize int

	// ShutdownGrace bounds how long Shutdown waits for in-flight work
	// before forcing termination. Default 5s.
	ShutdownGrace time.Duration

	// HostRunner, when set, receives every non-async dispatch instead of
	// the sweep goroutine running it inline. Embedded hosts use this to
	// funnel synchronous actions onto their required thread. The function
	// must not block the caller indefinitely.
	HostRunner func(fn func())
}

func (c Config) withDefaults() Config {
	if c.SweepInterval <= 0 {
		c.SweepInterval = 30 * time.Second
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 5 * time.Second
	}
	return c
}

// TaskEvent is emitted on the event bus for task lifecycle events.
type TaskEvent struct {
	ID       string        `json:"id"`
	Schedule string        `json:"schedule"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Runs     int64         `json:"runs"`
	Error    string        `json:"error,omitempty"`
}

// TaskInfo is a point-in-time view of one task.
type TaskInfo struct {
	ID        string
	Schedule  string
	Kind      schedule.Kind
	Async     bool
	CreatedAt time.Time
	Next      time.Time
	Last      time.Time
	Runs      int64
	Cancelled bool
}

// Snapshot is a lightweight view for diagnostics.
type Snapshot struct {
	Stopped  bool
	Workers  int
	QueueLen int
	QueueCap int
	Tasks    []TaskInfo
}
