package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Logical event-log topics. Both are partitioned by task id, so events for
// the same task are delivered in publish order.
const (
	TopicTaskEvents     = "task-events"
	TopicReminderEvents = "reminder-events"
)

// TaskEventSchemaVersion is the schema version this build writes and accepts.
const TaskEventSchemaVersion = 1

// ReminderEventSchemaVersion is the schema version this build writes and accepts.
const ReminderEventSchemaVersion = 1

// TaskEventType identifies the task mutation an event records.
type TaskEventType string

const (
	TaskCreated   TaskEventType = "created"
	TaskCompleted TaskEventType = "completed"
	TaskUpdated   TaskEventType = "updated"
	TaskDeleted   TaskEventType = "deleted"
)

// TaskSnapshot carries the task fields consumers need at the time the event
// was published. For completed events this includes the recurrence pattern
// and due date as of completion, so the next instance can be derived without
// re-reading mutable state.
type TaskSnapshot struct {
	Title                 string             `json:"title"`
	Description           *string            `json:"description,omitempty"`
	Priority              TaskPriority       `json:"priority"`
	DueAt                 *time.Time         `json:"due_at,omitempty"`
	ReminderOffsetMinutes *int               `json:"reminder_offset_minutes,omitempty"`
	Recurrence            *RecurrencePattern `json:"recurrence,omitempty"`
}

// TaskEvent is the record published to task-events on every task mutation.
type TaskEvent struct {
	SchemaVersion int           `json:"schema_version"`
	Type          TaskEventType `json:"type"`
	TaskID        string        `json:"task_id"`
	OwnerID       string        `json:"owner_id"`
	OccurredAt    time.Time     `json:"occurred_at"`

	// CorrelationID is stable per logical completion operation and is the
	// dedup key for next-instance creation under event redelivery.
	CorrelationID string `json:"correlation_id"`

	Snapshot TaskSnapshot `json:"snapshot"`
}

// ReminderEvent is the record published to reminder-events when a reminder fires.
type ReminderEvent struct {
	SchemaVersion int       `json:"schema_version"`
	TaskID        string    `json:"task_id"`
	OwnerID       string    `json:"owner_id"`
	FiredAt       time.Time `json:"fired_at"`
	CorrelationID string    `json:"correlation_id"`
}

// EncodeTaskEvent serializes an event for the log.
func EncodeTaskEvent(ev TaskEvent) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to encode task event: %w", err)
	}
	return payload, nil
}

// DecodeTaskEvent deserializes an event payload and checks its schema
// version. Returns ErrUnknownSchemaVersion for versions this build does not
// understand; callers must dead-letter such events.
func DecodeTaskEvent(payload []byte) (TaskEvent, error) {
	var ev TaskEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return TaskEvent{}, fmt.Errorf("failed to decode task event: %w", err)
	}
	if ev.SchemaVersion != TaskEventSchemaVersion {
		return TaskEvent{}, fmt.Errorf("%w: %d", ErrUnknownSchemaVersion, ev.SchemaVersion)
	}
	return ev, nil
}

// EncodeReminderEvent serializes a reminder event for the log.
func EncodeReminderEvent(ev ReminderEvent) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to encode reminder event: %w", err)
	}
	return payload, nil
}

// DecodeReminderEvent deserializes a reminder event payload and checks its
// schema version.
func DecodeReminderEvent(payload []byte) (ReminderEvent, error) {
	var ev ReminderEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return ReminderEvent{}, fmt.Errorf("failed to decode reminder event: %w", err)
	}
	if ev.SchemaVersion != ReminderEventSchemaVersion {
		return ReminderEvent{}, fmt.Errorf("%w: %d", ErrUnknownSchemaVersion, ev.SchemaVersion)
	}
	return ev, nil
}

// DeadLetterEvent preserves an event that could not be processed, with its
// full payload, for manual inspection and replay.
type DeadLetterEvent struct {
	ID       string
	Topic    string
	Key      string
	Payload  []byte
	Reason   string
	Attempts int
	FailedAt time.Time
}
