package scheduler

import (
	"context"
	"runtime/debug"

	"chronod/pkg/logx"
)

// enqueue hands an async task to the worker pool without blocking the
// sweep and reports whether the queue accepted it. The sweep decides what a
// rejection means: repeating tasks skip the occurrence, one-shot tasks stay
// armed.
func (s *Scheduler) enqueue(t *Task) bool {
	select {
	case s.queue <- t:
		return true
	default:
		s.log.Warn("dispatch queue full; occurrence not dispatched",
			logx.String("task", t.id),
			logx.String("schedule", t.raw),
			logx.Int("queue_len", len(s.queue)),
			logx.Int("queue_cap", cap(s.queue)))
		return false
	}
}

func (s *Scheduler) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan *Task, idx int) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in scheduler worker",
				logx.Int("worker", idx),
				logx.Any("panic", r),
				logx.Stack(string(debug.Stack())))
		}
	}()

	for {
		// Fast-exit check so a closed stopCh wins over queued work.
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
		case t := <-queue:
			s.runTask(ctx, t)
		}
	}
}
