// Package scheduler provides the external job-scheduling boundary: register
// a callback for a future instant, get back an opaque handle, cancel by
// handle. Scheduled callbacks must survive process restarts, which is why
// the production implementation is backed by its own durable store rather
// than in-process timers.
package scheduler

import (
	"context"
	"time"
)

// Callback is invoked at (approximately) a timer's fire time with the
// reminder id the timer was registered for. Firing is fire-and-forget from
// the scheduler's perspective: once invoked it cannot be un-fired, so the
// callee owns all liveness checks.
type Callback func(ctx context.Context, reminderID string)

// Scheduler registers and cancels future callbacks.
type Scheduler interface {
	// ScheduleAt registers a callback for fireAt and returns an opaque
	// handle usable with Cancel.
	ScheduleAt(ctx context.Context, fireAt time.Time, reminderID string) (handle string, err error)

	// Cancel revokes a pending callback. Cancelling a handle that already
	// fired or was already cancelled is a no-op.
	Cancel(ctx context.Context, handle string) error
}
