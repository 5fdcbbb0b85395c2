// Package scheduler runs tasks registered under human-readable schedule
// strings (see internal/schedule for the grammar).
//
// # Lifecycle
//
// New starts the engine immediately: a sweep goroutine wakes on a fixed
// cadence (default 30s), finds registered tasks whose next fire time is due
// at whole-minute granularity, dispatches them, and either re-arms them via
// the occurrence calculator or retires them (one-shot schedules). Shutdown
// cancels every task, drains in-flight work for a bounded grace period and
// then forces termination.
//
// # Dispatch
//
// Tasks registered async run on the engine's worker pool. Non-async tasks
// run inline on the sweep goroutine, or, when a HostRunner is configured,
// are submitted to it so that hosts with thread-affinity requirements can
// run them on their own context. A slow inline task delays (never skips)
// the rest of the tick; that is the documented trade-off of the simpler
// mode.
//
// # Failure isolation
//
// Action errors and panics are reported and swallowed: a failing task stays
// armed and is retried on its next occurrence, and never disables the sweep
// for other tasks. Failure logs are rate limited to keep a hot-looping task
// from flooding the sinks.
//
// # Cancellation
//
// Cancel is a compare-and-set: exactly one caller wins the transition. A
// cancelled task never starts again, but a run already in progress is left
// to complete.
package scheduler
