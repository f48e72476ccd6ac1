package domain

// TaskStatus represents the current state of a task.
// Value object - immutable string enum.
type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "TODO"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusCompleted  TaskStatus = "COMPLETED"
)

// TaskPriority represents the priority level of a task.
// Value object - immutable string enum.
type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "LOW"
	TaskPriorityMedium TaskPriority = "MEDIUM"
	TaskPriorityHigh   TaskPriority = "HIGH"
)

// PatternType represents the kind of recurrence for recurring tasks.
// Value object - immutable string enum.
type PatternType string

const (
	PatternDaily   PatternType = "DAILY"
	PatternWeekly  PatternType = "WEEKLY"
	PatternMonthly PatternType = "MONTHLY"
)

// EndCondition describes when a recurrence chain stops producing instances.
type EndCondition string

const (
	EndNever            EndCondition = "NEVER"
	EndAfterOccurrences EndCondition = "AFTER_OCCURRENCES"
	EndByDate           EndCondition = "BY_DATE"
)

// ReminderState represents the lifecycle state of a reminder.
// A reminder is "live" only while it is in ReminderScheduled.
type ReminderState string

const (
	ReminderScheduled ReminderState = "SCHEDULED"
	ReminderFired     ReminderState = "FIRED"
	ReminderCancelled ReminderState = "CANCELLED"
)
