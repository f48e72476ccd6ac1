package domain

import "errors"

// Domain errors returned by services and repository implementations.

var (
	// ErrTaskNotFound indicates the requested task does not exist.
	ErrTaskNotFound = errors.New("task not found")

	// ErrReminderNotFound indicates the requested reminder does not exist.
	ErrReminderNotFound = errors.New("reminder not found")

	// ErrDuplicateIdempotencyKey indicates a create-if-absent hit an existing
	// row for the same idempotency key. Callers treat this as success.
	ErrDuplicateIdempotencyKey = errors.New("idempotency key already used")

	// ErrLiveReminderExists indicates a second scheduled reminder was about to
	// be created for a task that already has one.
	ErrLiveReminderExists = errors.New("task already has a scheduled reminder")

	// ErrStaleReminder indicates a state transition lost a compare-and-swap:
	// the reminder is no longer in the state the caller observed.
	ErrStaleReminder = errors.New("reminder state changed concurrently")

	// ErrUnknownSchemaVersion indicates an event with a schema version this
	// build does not understand. Such events are dead-lettered, never guessed at.
	ErrUnknownSchemaVersion = errors.New("unknown event schema version")

	// ErrTitleRequired indicates an empty task title.
	ErrTitleRequired = errors.New("title is required")

	// ErrRecurrenceNeedsDue indicates a recurring task without a due timestamp.
	// Recurrence requires a due date to anchor the next occurrence.
	ErrRecurrenceNeedsDue = errors.New("recurring task requires a due timestamp")

	// ErrInvalidPattern indicates a recurrence pattern that fails validation.
	ErrInvalidPattern = errors.New("invalid recurrence pattern")
)
