// Package reminder owns the Reminder lifecycle: scheduling a future
// callback for every task with a due date and reminder offset, replacing it
// when the task changes, cancelling it when the task completes or goes away,
// and turning the callback into exactly one reminder-events record.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/taskpulse/taskpulse/internal/domain"
	"github.com/taskpulse/taskpulse/internal/eventlog"
	"github.com/taskpulse/taskpulse/internal/scheduler"
)

// Group is the consumer-group name the reminder subsystem subscribes under.
const Group = "reminders"

// DeadLetters records task events the reminder consumer could not process.
type DeadLetters interface {
	Insert(ctx context.Context, event domain.DeadLetterEvent) error
}

// Scheduler maps task lifecycle changes onto reminder state.
type Scheduler struct {
	repo        Repository
	jobs        scheduler.Scheduler
	deadLetters DeadLetters
	now         func() time.Time
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithClock overrides the scheduler clock for deterministic tests.
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

// NewScheduler creates a reminder scheduler on top of the external job
// scheduler.
func NewScheduler(repo Repository, jobs scheduler.Scheduler, deadLetters DeadLetters, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		repo:        repo,
		jobs:        jobs,
		deadLetters: deadLetters,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run subscribes the scheduler to task-events until ctx is done.
func (s *Scheduler) Run(ctx context.Context, log eventlog.Log) error {
	return log.Subscribe(ctx, domain.TopicTaskEvents, Group, s.HandleTaskEvent)
}

// HandleTaskEvent routes one task-events envelope to schedule, reschedule or
// cancel. Undecodable and unknown-schema events are dead-lettered.
func (s *Scheduler) HandleTaskEvent(ctx context.Context, env eventlog.Envelope) error {
	ev, err := domain.DecodeTaskEvent(env.Payload)
	if err != nil {
		slog.WarnContext(ctx, "dead-lettering undecodable event", "key", env.Key, "error", err)
		return s.deadLetter(ctx, env, err.Error())
	}

	task := taskFromEvent(ev)

	switch ev.Type {
	case domain.TaskCreated:
		return s.Schedule(ctx, task)
	case domain.TaskUpdated:
		return s.Reschedule(ctx, task)
	case domain.TaskCompleted, domain.TaskDeleted:
		return s.Cancel(ctx, task.ID)
	default:
		slog.WarnContext(ctx, "dead-lettering event of unknown type", "type", ev.Type, "key", env.Key)
		return s.deadLetter(ctx, env, fmt.Sprintf("unknown event type %q", ev.Type))
	}
}

// Schedule registers a reminder for the task if it carries a due date and
// offset. A trigger already in the past is skipped, not fired immediately.
// Tasks without a computable trigger are a no-op.
func (s *Scheduler) Schedule(ctx context.Context, task *domain.Task) error {
	trigger := task.ReminderTrigger()
	if trigger == nil {
		return nil
	}

	now := s.now()
	if !trigger.After(now) {
		slog.InfoContext(ctx, "reminder trigger already in the past, skipping",
			"task_id", task.ID, "trigger_at", trigger)
		return nil
	}

	idObj, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("failed to generate reminder id: %w", err)
	}
	reminderID := idObj.String()

	handle, err := s.jobs.ScheduleAt(ctx, *trigger, reminderID)
	if err != nil {
		return fmt.Errorf("failed to register callback: %w", err)
	}

	rem := &domain.Reminder{
		ID:        reminderID,
		TaskID:    task.ID,
		OwnerID:   task.OwnerID,
		TriggerAt: *trigger,
		State:     domain.ReminderScheduled,
		Handle:    handle,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.CreateReminder(ctx, rem); err != nil {
		if errors.Is(err, domain.ErrLiveReminderExists) {
			// Lost to a concurrent schedule; revoke the callback we just
			// registered so only one timer stays pending.
			if cancelErr := s.jobs.Cancel(ctx, handle); cancelErr != nil {
				slog.WarnContext(ctx, "failed to revoke redundant callback",
					"task_id", task.ID, "handle", handle, "error", cancelErr)
			}
			return nil
		}
		// The persisted row is the source of truth; without it the callback
		// would fire into a void, so revoke it before failing.
		if cancelErr := s.jobs.Cancel(ctx, handle); cancelErr != nil {
			slog.WarnContext(ctx, "failed to revoke orphaned callback",
				"task_id", task.ID, "handle", handle, "error", cancelErr)
		}
		return fmt.Errorf("failed to persist reminder: %w", err)
	}

	slog.InfoContext(ctx, "reminder scheduled",
		"task_id", task.ID, "reminder_id", reminderID, "trigger_at", trigger)
	return nil
}

// Cancel revokes the task's live reminder, if any. Safe to call when none
// exists.
func (s *Scheduler) Cancel(ctx context.Context, taskID string) error {
	rem, err := s.repo.FindScheduledByTask(ctx, taskID)
	if errors.Is(err, domain.ErrReminderNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up live reminder: %w", err)
	}

	if err := s.jobs.Cancel(ctx, rem.Handle); err != nil {
		return fmt.Errorf("failed to cancel callback: %w", err)
	}

	if err := s.repo.MarkCancelled(ctx, rem.ID); err != nil {
		if errors.Is(err, domain.ErrStaleReminder) {
			// Fired between lookup and cancellation; the fired handler's
			// state check already arbitrated the race.
			return nil
		}
		return fmt.Errorf("failed to mark reminder cancelled: %w", err)
	}

	slog.InfoContext(ctx, "reminder cancelled", "task_id", taskID, "reminder_id", rem.ID)
	return nil
}

// Reschedule atomically replaces the task's reminder: the old handle is
// fully cancelled before the new reminder is persisted, so no window exists
// with two live reminders for the task.
func (s *Scheduler) Reschedule(ctx context.Context, task *domain.Task) error {
	if err := s.Cancel(ctx, task.ID); err != nil {
		return err
	}
	return s.Schedule(ctx, task)
}

func (s *Scheduler) deadLetter(ctx context.Context, env eventlog.Envelope, reason string) error {
	idObj, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("failed to generate dead letter id: %w", err)
	}
	event := domain.DeadLetterEvent{
		ID:       idObj.String(),
		Topic:    env.Topic,
		Key:      env.Key,
		Payload:  env.Payload,
		Reason:   reason,
		FailedAt: s.now(),
	}
	if err := s.deadLetters.Insert(ctx, event); err != nil {
		return fmt.Errorf("failed to record dead letter: %w", err)
	}
	return nil
}

// taskFromEvent reconstructs the task fields the reminder subsystem needs
// from an event snapshot.
func taskFromEvent(ev domain.TaskEvent) *domain.Task {
	return &domain.Task{
		ID:                    ev.TaskID,
		OwnerID:               ev.OwnerID,
		Title:                 ev.Snapshot.Title,
		DueAt:                 ev.Snapshot.DueAt,
		ReminderOffsetMinutes: ev.Snapshot.ReminderOffsetMinutes,
	}
}
