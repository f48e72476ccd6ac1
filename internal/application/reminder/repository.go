package reminder

import (
	"context"

	"github.com/taskpulse/taskpulse/internal/domain"
)

// Repository defines the storage operations for reminders. State transitions
// are compare-and-swap: they succeed only from the SCHEDULED state and
// return domain.ErrStaleReminder when the row moved on concurrently. That,
// plus a one-scheduled-row-per-task uniqueness constraint, is the only
// cross-process coordination the reminder subsystem uses - no locks.
type Repository interface {
	// CreateReminder persists a new reminder in state SCHEDULED.
	// Returns domain.ErrLiveReminderExists if the task already has a
	// scheduled reminder.
	CreateReminder(ctx context.Context, reminder *domain.Reminder) error

	// FindReminderByID retrieves a reminder.
	// Returns domain.ErrReminderNotFound if it doesn't exist.
	FindReminderByID(ctx context.Context, id string) (*domain.Reminder, error)

	// FindScheduledByTask retrieves the live reminder for a task.
	// Returns domain.ErrReminderNotFound if none is scheduled.
	FindScheduledByTask(ctx context.Context, taskID string) (*domain.Reminder, error)

	// MarkCancelled transitions SCHEDULED -> CANCELLED.
	// Returns domain.ErrStaleReminder if the reminder is not SCHEDULED.
	MarkCancelled(ctx context.Context, id string) error

	// MarkFired transitions SCHEDULED -> FIRED.
	// Returns domain.ErrStaleReminder if the reminder is not SCHEDULED.
	MarkFired(ctx context.Context, id string) error
}
