package domain

import (
	"fmt"
	"strings"
	"time"
)

// Task is the aggregate root of the subsystem. Recurring chains are modeled
// as a linked series of Task rows: completing an instance spawns the next
// one with ParentTaskID pointing back at the completed instance.
type Task struct {
	ID      string
	OwnerID string

	Title       string
	Description *string
	Status      TaskStatus
	Priority    TaskPriority

	// Scheduling fields
	DueAt                 *time.Time
	ReminderOffsetMinutes *int // minutes before DueAt to fire the reminder

	// Recurrence is copied per instance (see RecurrencePattern). nil means
	// the task does not recur, or recurrence was stopped on this instance.
	Recurrence *RecurrencePattern

	// ParentTaskID is a weak back-reference to the instance whose completion
	// spawned this one. Lookup only, no ownership.
	ParentTaskID *string

	// IdempotencyKey dedupes next-instance creation under event redelivery.
	// Derived from (completed task id, correlation id); nil for tasks created
	// directly through TaskService.
	IdempotencyKey *string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// Validate checks the task invariants that hold independent of storage.
func (t *Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return ErrTitleRequired
	}
	if t.Recurrence != nil {
		if t.DueAt == nil {
			return ErrRecurrenceNeedsDue
		}
		if err := t.Recurrence.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ReminderTrigger returns the timestamp the task's reminder should fire at,
// or nil when the task has no due date or no reminder offset.
func (t *Task) ReminderTrigger() *time.Time {
	if t.DueAt == nil || t.ReminderOffsetMinutes == nil {
		return nil
	}
	trigger := t.DueAt.Add(-time.Duration(*t.ReminderOffsetMinutes) * time.Minute)
	return &trigger
}

// Reminder tracks one scheduled due-date notification for a task.
// At most one reminder per task may be in ReminderScheduled at any time;
// rescheduling replaces, never duplicates.
type Reminder struct {
	ID      string
	TaskID  string
	OwnerID string

	TriggerAt time.Time
	State     ReminderState

	// Handle is the opaque token returned by the external job scheduler,
	// used to cancel the pending callback.
	Handle string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NextInstanceKey derives the idempotency key that dedupes next-instance
// creation for a given completion event.
func NextInstanceKey(completedTaskID, correlationID string) string {
	return fmt.Sprintf("%s:%s", completedTaskID, correlationID)
}
