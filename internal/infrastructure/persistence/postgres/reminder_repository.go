package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/taskpulse/taskpulse/internal/domain"
)

const reminderColumns = `id, task_id, owner_id, trigger_at, state, handle, created_at, updated_at`

// CreateReminder persists a new reminder in state SCHEDULED. The partial
// unique index on (task_id) WHERE state = 'SCHEDULED' guarantees at most one
// live reminder per task across processes.
func (s *Store) CreateReminder(ctx context.Context, reminder *domain.Reminder) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO reminders (`+reminderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		reminder.ID,
		reminder.TaskID,
		reminder.OwnerID,
		reminder.TriggerAt,
		string(reminder.State),
		reminder.Handle,
		reminder.CreatedAt,
		reminder.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "reminders_one_scheduled_per_task") {
			return fmt.Errorf("%w: task %s", domain.ErrLiveReminderExists, reminder.TaskID)
		}
		return fmt.Errorf("failed to insert reminder: %w", err)
	}
	return nil
}

// FindReminderByID retrieves a reminder by ID.
func (s *Store) FindReminderByID(ctx context.Context, id string) (*domain.Reminder, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE id = $1`, id)

	reminder, err := scanReminder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: reminder %s", domain.ErrReminderNotFound, id)
		}
		return nil, fmt.Errorf("failed to get reminder: %w", err)
	}
	return reminder, nil
}

// FindScheduledByTask retrieves the live reminder for a task, if any.
func (s *Store) FindScheduledByTask(ctx context.Context, taskID string) (*domain.Reminder, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+reminderColumns+` FROM reminders
		WHERE task_id = $1 AND state = $2`, taskID, string(domain.ReminderScheduled))

	reminder, err := scanReminder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: no scheduled reminder for task %s", domain.ErrReminderNotFound, taskID)
		}
		return nil, fmt.Errorf("failed to get scheduled reminder: %w", err)
	}
	return reminder, nil
}

// MarkCancelled transitions a reminder SCHEDULED -> CANCELLED.
func (s *Store) MarkCancelled(ctx context.Context, id string) error {
	return s.transition(ctx, id, domain.ReminderCancelled)
}

// MarkFired transitions a reminder SCHEDULED -> FIRED.
func (s *Store) MarkFired(ctx context.Context, id string) error {
	return s.transition(ctx, id, domain.ReminderFired)
}

// transition performs the compare-and-swap state update. The WHERE clause
// only matches rows still in SCHEDULED, so concurrent cancel/fire races
// resolve to exactly one winner; losers observe domain.ErrStaleReminder.
func (s *Store) transition(ctx context.Context, id string, to domain.ReminderState) error {
	tag, err := s.pool.Exec(ctx, `UPDATE reminders SET state = $2, updated_at = $3
		WHERE id = $1 AND state = $4`,
		id, string(to), time.Now().UTC(), string(domain.ReminderScheduled))
	if err != nil {
		return fmt.Errorf("failed to transition reminder to %s: %w", to, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM reminders WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check reminder existence: %w", err)
		}
		if !exists {
			return fmt.Errorf("%w: reminder %s", domain.ErrReminderNotFound, id)
		}
		return fmt.Errorf("%w: reminder %s is no longer scheduled", domain.ErrStaleReminder, id)
	}
	return nil
}

func scanReminder(row pgx.Row) (*domain.Reminder, error) {
	var (
		reminder domain.Reminder
		state    string
	)
	err := row.Scan(
		&reminder.ID,
		&reminder.TaskID,
		&reminder.OwnerID,
		&reminder.TriggerAt,
		&state,
		&reminder.Handle,
		&reminder.CreatedAt,
		&reminder.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	reminder.State = domain.ReminderState(state)
	return &reminder, nil
}
