package deadletter_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskpulse/taskpulse/internal/application/deadletter"
	"github.com/taskpulse/taskpulse/internal/domain"
	"github.com/taskpulse/taskpulse/internal/infrastructure/persistence/memory"
)

func TestListDeadLettersNewestFirstPerTopic(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, store.Insert(ctx, domain.DeadLetterEvent{
		ID: "dl-1", Topic: domain.TopicTaskEvents, Key: "t-1", Reason: "old", FailedAt: base,
	}))
	require.NoError(t, store.Insert(ctx, domain.DeadLetterEvent{
		ID: "dl-2", Topic: domain.TopicTaskEvents, Key: "t-2", Reason: "new", FailedAt: base.Add(time.Hour),
	}))
	require.NoError(t, store.Insert(ctx, domain.DeadLetterEvent{
		ID: "dl-3", Topic: domain.TopicReminderEvents, Key: "t-3", Reason: "other topic", FailedAt: base,
	}))

	events, err := store.ListDeadLetters(ctx, domain.TopicTaskEvents, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "dl-2", events[0].ID, "newest first")
	assert.Equal(t, "dl-1", events[1].ID)

	events, err = store.ListDeadLetters(ctx, domain.TopicTaskEvents, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "dl-2", events[0].ID)
}

// recordingLister captures which topics the monitor inspects.
type recordingLister struct {
	topics []string
	limits []int
}

func (r *recordingLister) ListDeadLetters(ctx context.Context, topic string, limit int) ([]domain.DeadLetterEvent, error) {
	r.topics = append(r.topics, topic)
	r.limits = append(r.limits, limit)
	return nil, nil
}

func TestMonitorInspectsEveryTopic(t *testing.T) {
	lister := &recordingLister{}
	m := deadletter.NewMonitor(lister)

	m.ReportOnce(context.Background())

	assert.Equal(t, []string{domain.TopicTaskEvents, domain.TopicReminderEvents}, lister.topics)
	for _, limit := range lister.limits {
		assert.Positive(t, limit)
	}
}

func TestMonitorReportsBacklog(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.Insert(ctx, domain.DeadLetterEvent{
		ID: "dl-1", Topic: domain.TopicTaskEvents, Key: "t-1", Reason: "unknown schema", FailedAt: time.Now().UTC(),
	}))

	// Reporting a non-empty backlog must not error or panic; the output is a
	// log line for operators.
	deadletter.NewMonitor(store).ReportOnce(ctx)
}
