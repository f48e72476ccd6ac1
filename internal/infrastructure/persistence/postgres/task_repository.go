package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/taskpulse/taskpulse/internal/application/consumer"
	"github.com/taskpulse/taskpulse/internal/domain"
	"github.com/taskpulse/taskpulse/internal/ptr"
)

const taskColumns = `id, owner_id, title, description, status, priority,
	due_at, reminder_offset_minutes, recurrence, parent_task_id,
	idempotency_key, created_at, updated_at, completed_at`

const insertTaskSQL = `INSERT INTO tasks (` + taskColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

// CreateTask persists a new task created through the producer service.
func (s *Store) CreateTask(ctx context.Context, task *domain.Task) error {
	if err := s.insertTask(ctx, task); err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// CreateNextInstance inserts the successor of a completed recurring task.
// The partial unique index on idempotency_key arbitrates concurrent inserts
// for the same completion event: exactly one wins, the rest observe
// domain.ErrDuplicateIdempotencyKey. Other failures are wrapped as
// transient so the consumer retries them.
func (s *Store) CreateNextInstance(ctx context.Context, task *domain.Task) error {
	err := s.insertTask(ctx, task)
	if err == nil {
		return nil
	}
	if isUniqueViolation(err, "tasks_idempotency_key_unique") {
		return fmt.Errorf("%w: key %q", domain.ErrDuplicateIdempotencyKey, ptr.Deref(task.IdempotencyKey, ""))
	}
	return consumer.Transient(fmt.Errorf("failed to insert next instance: %w", err))
}

func (s *Store) insertTask(ctx context.Context, task *domain.Task) error {
	recurrence, err := recurrenceToJSON(task.Recurrence)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, insertTaskSQL,
		task.ID,
		task.OwnerID,
		task.Title,
		task.Description,
		string(task.Status),
		string(task.Priority),
		task.DueAt,
		task.ReminderOffsetMinutes,
		recurrence,
		task.ParentTaskID,
		task.IdempotencyKey,
		task.CreatedAt,
		task.UpdatedAt,
		task.CompletedAt,
	)
	return err
}

// FindTaskByID retrieves a task by ID.
func (s *Store) FindTaskByID(ctx context.Context, id string) (*domain.Task, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)

	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: task %s", domain.ErrTaskNotFound, id)
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// UpdateTask persists the full current state of an existing task.
func (s *Store) UpdateTask(ctx context.Context, task *domain.Task) error {
	recurrence, err := recurrenceToJSON(task.Recurrence)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `UPDATE tasks SET
			title = $2,
			description = $3,
			status = $4,
			priority = $5,
			due_at = $6,
			reminder_offset_minutes = $7,
			recurrence = $8,
			updated_at = $9,
			completed_at = $10
		WHERE id = $1`,
		task.ID,
		task.Title,
		task.Description,
		string(task.Status),
		string(task.Priority),
		task.DueAt,
		task.ReminderOffsetMinutes,
		recurrence,
		task.UpdatedAt,
		task.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: task %s", domain.ErrTaskNotFound, task.ID)
	}
	return nil
}

// DeleteTask removes a task by ID.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: task %s", domain.ErrTaskNotFound, id)
	}
	return nil
}

func scanTask(row pgx.Row) (*domain.Task, error) {
	var (
		task       domain.Task
		status     string
		priority   string
		recurrence []byte
	)
	err := row.Scan(
		&task.ID,
		&task.OwnerID,
		&task.Title,
		&task.Description,
		&status,
		&priority,
		&task.DueAt,
		&task.ReminderOffsetMinutes,
		&recurrence,
		&task.ParentTaskID,
		&task.IdempotencyKey,
		&task.CreatedAt,
		&task.UpdatedAt,
		&task.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	task.Status = domain.TaskStatus(status)
	task.Priority = domain.TaskPriority(priority)
	task.Recurrence, err = recurrenceFromJSON(recurrence)
	if err != nil {
		return nil, err
	}
	return &task, nil
}
