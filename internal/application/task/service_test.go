package task_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskpulse/taskpulse/internal/application/task"
	"github.com/taskpulse/taskpulse/internal/domain"
	"github.com/taskpulse/taskpulse/internal/eventlog"
	"github.com/taskpulse/taskpulse/internal/infrastructure/persistence/memory"
	"github.com/taskpulse/taskpulse/internal/ptr"
)

// capture subscribes to task-events and collects every decoded event.
func capture(t *testing.T, log *eventlog.Memory) *[]domain.TaskEvent {
	t.Helper()
	var events []domain.TaskEvent
	log.Attach(domain.TopicTaskEvents, "capture", func(ctx context.Context, env eventlog.Envelope) error {
		ev, err := domain.DecodeTaskEvent(env.Payload)
		require.NoError(t, err)
		events = append(events, ev)
		return nil
	})
	return &events
}

func newService(t *testing.T, now time.Time) (*task.Service, *memory.Store, *[]domain.TaskEvent) {
	t.Helper()
	store := memory.NewStore()
	log := eventlog.NewMemory()
	events := capture(t, log)
	svc := task.NewService(store, log, task.WithClock(func() time.Time { return now }))
	return svc, store, events
}

func TestCreatePublishesCreatedEvent(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	svc, store, events := newService(t, now)

	due := now.Add(48 * time.Hour)
	created, err := svc.Create(context.Background(), task.CreateParams{
		OwnerID:               "owner-1",
		Title:                 "water the plants",
		DueAt:                 &due,
		ReminderOffsetMinutes: ptr.To(30),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, domain.TaskStatusTodo, created.Status)
	assert.Equal(t, domain.TaskPriorityMedium, created.Priority, "priority defaults to medium")
	assert.Len(t, store.Tasks(), 1)

	require.Len(t, *events, 1)
	ev := (*events)[0]
	assert.Equal(t, domain.TaskCreated, ev.Type)
	assert.Equal(t, created.ID, ev.TaskID)
	assert.Equal(t, "water the plants", ev.Snapshot.Title)
	assert.NotEmpty(t, ev.CorrelationID)
}

func TestCreateValidation(t *testing.T) {
	svc, store, events := newService(t, time.Now().UTC())

	_, err := svc.Create(context.Background(), task.CreateParams{OwnerID: "o", Title: "  "})
	require.ErrorIs(t, err, domain.ErrTitleRequired)

	_, err = svc.Create(context.Background(), task.CreateParams{
		OwnerID: "o",
		Title:   "recurring without due",
		Recurrence: &domain.RecurrencePattern{
			Type:     domain.PatternDaily,
			Interval: 1,
			End:      domain.EndNever,
		},
	})
	require.ErrorIs(t, err, domain.ErrRecurrenceNeedsDue)

	assert.Empty(t, store.Tasks(), "nothing persisted on validation failure")
	assert.Empty(t, *events, "nothing published on validation failure")
}

func TestCompleteIsIdempotent(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	svc, _, events := newService(t, now)

	created, err := svc.Create(context.Background(), task.CreateParams{OwnerID: "o", Title: "t"})
	require.NoError(t, err)

	completed, err := svc.Complete(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, completed.Status)
	require.NotNil(t, completed.CompletedAt)

	require.Len(t, *events, 2)
	ev := (*events)[1]
	assert.Equal(t, domain.TaskCompleted, ev.Type)
	assert.Equal(t, *completed.CompletedAt, ev.OccurredAt, "completed event carries completion time")

	// Completing again changes nothing and republishes nothing.
	again, err := svc.Complete(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, again.Status)
	assert.Len(t, *events, 2)
}

func TestCompleteNotFound(t *testing.T) {
	svc, _, _ := newService(t, time.Now().UTC())

	_, err := svc.Complete(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
}

func TestUpdateHonorsFieldMask(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	svc, _, events := newService(t, now)

	due := now.Add(24 * time.Hour)
	created, err := svc.Create(context.Background(), task.CreateParams{
		OwnerID:               "o",
		Title:                 "original",
		Description:           ptr.To("keep me"),
		DueAt:                 &due,
		ReminderOffsetMinutes: ptr.To(15),
	})
	require.NoError(t, err)

	// Title changes; due date is cleared by naming it in the mask with a
	// nil value; description stays because it is outside the mask.
	updated, err := svc.Update(context.Background(), task.UpdateParams{
		TaskID:     created.ID,
		UpdateMask: []string{task.FieldTitle, task.FieldDueAt, task.FieldReminderOffset},
		Title:      ptr.To("renamed"),
	})
	require.NoError(t, err)

	assert.Equal(t, "renamed", updated.Title)
	assert.Nil(t, updated.DueAt)
	assert.Nil(t, updated.ReminderOffsetMinutes)
	require.NotNil(t, updated.Description)
	assert.Equal(t, "keep me", *updated.Description)

	require.Len(t, *events, 2)
	assert.Equal(t, domain.TaskUpdated, (*events)[1].Type)
}

func TestDeletePublishesDeletedEvent(t *testing.T) {
	svc, store, events := newService(t, time.Now().UTC())

	created, err := svc.Create(context.Background(), task.CreateParams{OwnerID: "o", Title: "t"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), created.ID))
	assert.Empty(t, store.Tasks())

	require.Len(t, *events, 2)
	assert.Equal(t, domain.TaskDeleted, (*events)[1].Type)

	assert.ErrorIs(t, svc.Delete(context.Background(), created.ID), domain.ErrTaskNotFound)
}

func TestStopRecurrence(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	svc, _, events := newService(t, now)

	due := now.Add(24 * time.Hour)
	created, err := svc.Create(context.Background(), task.CreateParams{
		OwnerID: "o",
		Title:   "recurring",
		DueAt:   &due,
		Recurrence: &domain.RecurrencePattern{
			Type:     domain.PatternDaily,
			Interval: 1,
			End:      domain.EndNever,
		},
	})
	require.NoError(t, err)

	stopped, err := svc.StopRecurrence(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Nil(t, stopped.Recurrence)

	require.Len(t, *events, 2)
	assert.Equal(t, domain.TaskUpdated, (*events)[1].Type)
	assert.Nil(t, (*events)[1].Snapshot.Recurrence)

	// Stopping a non-recurring task is a silent no-op.
	_, err = svc.StopRecurrence(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Len(t, *events, 2)
}
