// Package notify is the outbound notification boundary. Only the dispatch
// decision lives in this subsystem; channel integrations (email, SMS, push)
// are external.
package notify

import (
	"context"
	"log/slog"
)

// Dispatcher hands a fired reminder off for delivery. Dispatch is
// fire-and-forget: the caller never consumes a result, and a failed dispatch
// must not undo the reminder's fired transition.
type Dispatcher interface {
	Dispatch(ctx context.Context, taskID, ownerID string) error
}

// LogDispatcher records dispatches in the structured log. It stands in for a
// real channel integration in development and tests.
type LogDispatcher struct{}

func (LogDispatcher) Dispatch(ctx context.Context, taskID, ownerID string) error {
	slog.InfoContext(ctx, "notification dispatched", "task_id", taskID, "owner_id", ownerID)
	return nil
}
