package reminder

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/taskpulse/taskpulse/internal/domain"
	"github.com/taskpulse/taskpulse/internal/eventlog"
	"github.com/taskpulse/taskpulse/internal/notify"
)

// FiredHandler is the callback target the external job scheduler invokes at
// a reminder's trigger time. Once a timer fires it cannot be un-fired, so
// the handler re-checks reminder state before producing any effect: that
// check is the guard against the race between "task completed" and
// "reminder about to fire".
type FiredHandler struct {
	repo       Repository
	log        eventlog.Log
	dispatcher notify.Dispatcher
	now        func() time.Time
}

// FiredOption configures a FiredHandler.
type FiredOption func(*FiredHandler)

// WithFiredClock overrides the handler clock for deterministic tests.
func WithFiredClock(now func() time.Time) FiredOption {
	return func(h *FiredHandler) { h.now = now }
}

// NewFiredHandler creates the callback target.
func NewFiredHandler(repo Repository, log eventlog.Log, dispatcher notify.Dispatcher, opts ...FiredOption) *FiredHandler {
	h := &FiredHandler{
		repo:       repo,
		log:        log,
		dispatcher: dispatcher,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// OnFire validates the reminder is still live, transitions it to FIRED
// exactly once, publishes one ReminderEvent and hands off to notification
// dispatch. Duplicate callbacks and callbacks for cancelled reminders are
// absorbed as no-ops.
func (h *FiredHandler) OnFire(ctx context.Context, reminderID string) {
	rem, err := h.repo.FindReminderByID(ctx, reminderID)
	if err != nil {
		if errors.Is(err, domain.ErrReminderNotFound) {
			slog.WarnContext(ctx, "callback for unknown reminder, absorbing", "reminder_id", reminderID)
			return
		}
		slog.ErrorContext(ctx, "failed to load reminder for callback", "reminder_id", reminderID, "error", err)
		return
	}

	if rem.State != domain.ReminderScheduled {
		slog.InfoContext(ctx, "reminder no longer live, absorbing callback",
			"reminder_id", reminderID, "state", rem.State)
		return
	}

	// Compare-and-swap: losing the swap means another firing or a
	// cancellation got there first, and this callback owes no effect.
	if err := h.repo.MarkFired(ctx, rem.ID); err != nil {
		if errors.Is(err, domain.ErrStaleReminder) {
			slog.InfoContext(ctx, "lost firing race, absorbing callback", "reminder_id", reminderID)
			return
		}
		slog.ErrorContext(ctx, "failed to mark reminder fired", "reminder_id", reminderID, "error", err)
		return
	}

	ev := domain.ReminderEvent{
		SchemaVersion: domain.ReminderEventSchemaVersion,
		TaskID:        rem.TaskID,
		OwnerID:       rem.OwnerID,
		FiredAt:       h.now(),
		CorrelationID: rem.ID,
	}
	payload, err := domain.EncodeReminderEvent(ev)
	if err != nil {
		slog.ErrorContext(ctx, "failed to encode reminder event", "reminder_id", reminderID, "error", err)
		return
	}
	if err := h.log.Publish(ctx, domain.TopicReminderEvents, rem.TaskID, payload); err != nil {
		slog.ErrorContext(ctx, "failed to publish reminder event",
			"reminder_id", reminderID, "task_id", rem.TaskID, "error", err)
	}

	// Best effort: a missed notification is preferable to an
	// infinite-retry reminder loop.
	if err := h.dispatcher.Dispatch(ctx, rem.TaskID, rem.OwnerID); err != nil {
		slog.WarnContext(ctx, "notification dispatch failed",
			"reminder_id", reminderID, "task_id", rem.TaskID, "error", err)
	}

	slog.InfoContext(ctx, "reminder fired", "reminder_id", reminderID, "task_id", rem.TaskID)
}
