// Package task owns the Task lifecycle and is the producer boundary of the
// event stream: every successful mutation persists first, then publishes
// exactly one TaskEvent to task-events, keyed by task id.
//
// Persistence and publication are not atomic. Complete is idempotent
// (completing a completed task republishes nothing), which bounds a crash
// between the two steps to "the event might be missing" - duplication is
// left entirely to the broker and its consumers.
package task

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/taskpulse/taskpulse/internal/domain"
	"github.com/taskpulse/taskpulse/internal/eventlog"
)

// Field names for update masks.
const (
	FieldTitle          = "title"
	FieldDescription    = "description"
	FieldPriority       = "priority"
	FieldDueAt          = "due_at"
	FieldReminderOffset = "reminder_offset_minutes"
)

// Service provides business logic for task management.
type Service struct {
	repo Repository
	log  eventlog.Log
	now  func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the service clock. Tests use this for deterministic
// timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a task service publishing to log.
func NewService(repo Repository, log eventlog.Log, opts ...Option) *Service {
	s := &Service{
		repo: repo,
		log:  log,
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateParams contains the fields for a new task.
type CreateParams struct {
	OwnerID               string
	Title                 string
	Description           *string
	Priority              domain.TaskPriority
	DueAt                 *time.Time
	ReminderOffsetMinutes *int
	Recurrence            *domain.RecurrencePattern
}

// Create validates and persists a new task, then publishes a created event.
func (s *Service) Create(ctx context.Context, params CreateParams) (*domain.Task, error) {
	idObj, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate id: %w", err)
	}

	now := s.now()
	priority := params.Priority
	if priority == "" {
		priority = domain.TaskPriorityMedium
	}

	task := &domain.Task{
		ID:                    idObj.String(),
		OwnerID:               params.OwnerID,
		Title:                 params.Title,
		Description:           params.Description,
		Status:                domain.TaskStatusTodo,
		Priority:              priority,
		DueAt:                 params.DueAt,
		ReminderOffsetMinutes: params.ReminderOffsetMinutes,
		Recurrence:            params.Recurrence,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	s.publish(ctx, domain.TaskCreated, task)
	return task, nil
}

// Complete marks a task completed and publishes a completed event carrying
// the recurrence pattern and due date at completion time, under a fresh
// correlation id. Completing an already-completed task is a no-op that
// republishes nothing.
func (s *Service) Complete(ctx context.Context, taskID string) (*domain.Task, error) {
	task, err := s.repo.FindTaskByID(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if task.Status == domain.TaskStatusCompleted {
		slog.InfoContext(ctx, "task already completed, absorbing", "task_id", taskID)
		return task, nil
	}

	now := s.now()
	task.Status = domain.TaskStatusCompleted
	task.CompletedAt = &now
	task.UpdatedAt = now

	if err := s.repo.UpdateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to complete task: %w", err)
	}

	s.publish(ctx, domain.TaskCompleted, task)
	return task, nil
}

// UpdateParams carries a field-mask update for a task.
type UpdateParams struct {
	TaskID string

	// UpdateMask names the fields to modify; fields outside the mask keep
	// their current value. A masked field with a nil value is cleared.
	UpdateMask []string

	Title                 *string
	Description           *string
	Priority              *domain.TaskPriority
	DueAt                 *time.Time
	ReminderOffsetMinutes *int
}

// Update applies a field-mask update and publishes an updated event.
func (s *Service) Update(ctx context.Context, params UpdateParams) (*domain.Task, error) {
	task, err := s.repo.FindTaskByID(ctx, params.TaskID)
	if err != nil {
		return nil, err
	}

	if slices.Contains(params.UpdateMask, FieldTitle) && params.Title != nil {
		task.Title = *params.Title
	}
	if slices.Contains(params.UpdateMask, FieldDescription) {
		task.Description = params.Description
	}
	if slices.Contains(params.UpdateMask, FieldPriority) && params.Priority != nil {
		task.Priority = *params.Priority
	}
	if slices.Contains(params.UpdateMask, FieldDueAt) {
		task.DueAt = params.DueAt
	}
	if slices.Contains(params.UpdateMask, FieldReminderOffset) {
		task.ReminderOffsetMinutes = params.ReminderOffsetMinutes
	}
	task.UpdatedAt = s.now()

	if err := task.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	s.publish(ctx, domain.TaskUpdated, task)
	return task, nil
}

// Delete removes a task and publishes a deleted event. Downstream consumers
// cancel any pending reminder for it.
func (s *Service) Delete(ctx context.Context, taskID string) error {
	task, err := s.repo.FindTaskByID(ctx, taskID)
	if err != nil {
		return err
	}

	if err := s.repo.DeleteTask(ctx, taskID); err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	s.publish(ctx, domain.TaskDeleted, task)
	return nil
}

// StopRecurrence clears the recurrence pattern on this instance only, so its
// eventual completion spawns nothing. Already-non-recurring tasks absorb the
// call as a no-op.
func (s *Service) StopRecurrence(ctx context.Context, taskID string) (*domain.Task, error) {
	task, err := s.repo.FindTaskByID(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if task.Recurrence == nil {
		return task, nil
	}

	task.Recurrence = nil
	task.UpdatedAt = s.now()

	if err := s.repo.UpdateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to stop recurrence: %w", err)
	}

	s.publish(ctx, domain.TaskUpdated, task)
	return task, nil
}

// publish emits one TaskEvent for a persisted mutation. A publish failure is
// logged and absorbed: the mutation is already durable, and the tolerated
// failure mode is a missing event, never a duplicated one.
func (s *Service) publish(ctx context.Context, eventType domain.TaskEventType, task *domain.Task) {
	correlationID, err := uuid.NewV7()
	if err != nil {
		slog.ErrorContext(ctx, "failed to generate correlation id, dropping event",
			"task_id", task.ID, "event_type", eventType, "error", err)
		return
	}

	ev := domain.TaskEvent{
		SchemaVersion: domain.TaskEventSchemaVersion,
		Type:          eventType,
		TaskID:        task.ID,
		OwnerID:       task.OwnerID,
		OccurredAt:    s.now(),
		CorrelationID: correlationID.String(),
		Snapshot: domain.TaskSnapshot{
			Title:                 task.Title,
			Description:           task.Description,
			Priority:              task.Priority,
			DueAt:                 task.DueAt,
			ReminderOffsetMinutes: task.ReminderOffsetMinutes,
			Recurrence:            task.Recurrence,
		},
	}
	if eventType == domain.TaskCompleted && task.CompletedAt != nil {
		ev.OccurredAt = *task.CompletedAt
	}

	payload, err := domain.EncodeTaskEvent(ev)
	if err != nil {
		slog.ErrorContext(ctx, "failed to encode event, dropping",
			"task_id", task.ID, "event_type", eventType, "error", err)
		return
	}

	if err := s.log.Publish(ctx, domain.TopicTaskEvents, task.ID, payload); err != nil {
		slog.ErrorContext(ctx, "failed to publish event, state persisted without it",
			"task_id", task.ID, "event_type", eventType, "error", err)
	}
}
