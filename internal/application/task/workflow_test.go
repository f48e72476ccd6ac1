package task_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskpulse/taskpulse/internal/application/consumer"
	"github.com/taskpulse/taskpulse/internal/application/reminder"
	"github.com/taskpulse/taskpulse/internal/application/task"
	"github.com/taskpulse/taskpulse/internal/domain"
	"github.com/taskpulse/taskpulse/internal/eventlog"
	"github.com/taskpulse/taskpulse/internal/infrastructure/persistence/memory"
	"github.com/taskpulse/taskpulse/internal/notify"
	"github.com/taskpulse/taskpulse/internal/ptr"
	"github.com/taskpulse/taskpulse/internal/scheduler"
)

// TestRecurringTaskWorkflow drives the full loop through the in-memory
// event log: create a recurring task, watch its reminder fire, complete it,
// and follow the successor chain until the recurrence terminates.
func TestRecurringTaskWorkflow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	store := memory.NewStore()
	log := eventlog.NewMemory()

	var reminderEvents []domain.ReminderEvent
	log.Attach(domain.TopicReminderEvents, "capture", func(ctx context.Context, env eventlog.Envelope) error {
		ev, err := domain.DecodeReminderEvent(env.Payload)
		require.NoError(t, err)
		reminderEvents = append(reminderEvents, ev)
		return nil
	})

	fired := reminder.NewFiredHandler(store, log, notify.LogDispatcher{}, reminder.WithFiredClock(clock))
	jobs := scheduler.NewFake(fired.OnFire)
	reminders := reminder.NewScheduler(store, jobs, store, reminder.WithClock(clock))
	log.Attach(domain.TopicTaskEvents, reminder.Group, reminders.HandleTaskEvent)

	recurring := consumer.New(store, store, log, consumer.WithClock(clock),
		consumer.WithSleeper(func(ctx context.Context, d time.Duration) error { return nil }))
	log.Attach(domain.TopicTaskEvents, consumer.Group, recurring.Handle)

	svc := task.NewService(store, log, task.WithClock(clock))

	// Daily standup notes, due tomorrow at 14:00, reminder an hour before,
	// recurring twice more after the first instance.
	due := time.Date(2024, 3, 2, 14, 0, 0, 0, time.UTC)
	created, err := svc.Create(ctx, task.CreateParams{
		OwnerID:               "owner-1",
		Title:                 "standup notes",
		DueAt:                 &due,
		ReminderOffsetMinutes: ptr.To(60),
		Recurrence: &domain.RecurrencePattern{
			Type:           domain.PatternDaily,
			Interval:       1,
			End:            domain.EndAfterOccurrences,
			MaxOccurrences: 2,
		},
	})
	require.NoError(t, err)

	// The created event scheduled a reminder for 13:00 tomorrow.
	rem, err := store.FindScheduledByTask(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, due.Add(-time.Hour), rem.TriggerAt)

	// Time passes; the timer fires.
	now = rem.TriggerAt
	jobs.FireAll(ctx, now)
	require.Len(t, reminderEvents, 1)
	assert.Equal(t, created.ID, reminderEvents[0].TaskID)

	// Completing the task spawns the next instance through the consumer.
	completedAt := due.Add(-30 * time.Minute)
	now = completedAt
	_, err = svc.Complete(ctx, created.ID)
	require.NoError(t, err)

	successors := store.TasksByParent(created.ID)
	require.Len(t, successors, 1)
	second := successors[0]
	require.NotNil(t, second.DueAt)
	assert.Equal(t, completedAt.AddDate(0, 0, 1), *second.DueAt, "next due is one interval after completion")
	require.NotNil(t, second.Recurrence)
	assert.Equal(t, 1, second.Recurrence.OccurrencesUsed)

	// The consumer announced the successor, so it has its own reminder an
	// hour before its due date.
	secondRem, err := store.FindScheduledByTask(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, second.DueAt.Add(-time.Hour), secondRem.TriggerAt)

	now = secondRem.TriggerAt
	jobs.FireAll(ctx, now)
	require.Len(t, reminderEvents, 2)
	assert.Equal(t, second.ID, reminderEvents[1].TaskID)

	// Completing the second instance spawns the last one.
	now = *second.DueAt
	_, err = svc.Complete(ctx, second.ID)
	require.NoError(t, err)

	thirds := store.TasksByParent(second.ID)
	require.Len(t, thirds, 1)
	third := thirds[0]
	assert.Equal(t, 2, third.Recurrence.OccurrencesUsed)

	// The chain is exhausted: completing the last instance spawns nothing.
	now = *third.DueAt
	_, err = svc.Complete(ctx, third.ID)
	require.NoError(t, err)
	assert.Empty(t, store.TasksByParent(third.ID))

	// The last completion also cancelled the last pending reminder.
	_, err = store.FindScheduledByTask(ctx, third.ID)
	assert.ErrorIs(t, err, domain.ErrReminderNotFound)

	assert.Empty(t, store.DeadLetters())
}

// TestCompletionCancelsPendingReminder covers the task completed before its
// reminder fires: the live reminder is cancelled and the late timer callback
// produces nothing.
func TestCompletionCancelsPendingReminder(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	store := memory.NewStore()
	log := eventlog.NewMemory()

	var reminderEvents int
	log.Attach(domain.TopicReminderEvents, "capture", func(ctx context.Context, env eventlog.Envelope) error {
		reminderEvents++
		return nil
	})

	fired := reminder.NewFiredHandler(store, log, notify.LogDispatcher{}, reminder.WithFiredClock(clock))
	jobs := scheduler.NewFake(fired.OnFire)
	reminders := reminder.NewScheduler(store, jobs, store, reminder.WithClock(clock))
	log.Attach(domain.TopicTaskEvents, reminder.Group, reminders.HandleTaskEvent)

	svc := task.NewService(store, log, task.WithClock(clock))

	due := now.Add(5 * time.Hour)
	created, err := svc.Create(ctx, task.CreateParams{
		OwnerID:               "owner-1",
		Title:                 "early finisher",
		DueAt:                 &due,
		ReminderOffsetMinutes: ptr.To(60),
	})
	require.NoError(t, err)

	rem, err := store.FindScheduledByTask(ctx, created.ID)
	require.NoError(t, err)

	// Completed well before the trigger.
	_, err = svc.Complete(ctx, created.ID)
	require.NoError(t, err)

	got, err := store.FindReminderByID(ctx, rem.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReminderCancelled, got.State)

	// A stray callback for the cancelled reminder is absorbed.
	jobs.FireReminder(ctx, rem.ID)
	assert.Zero(t, reminderEvents)
}
