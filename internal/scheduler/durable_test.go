package scheduler

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	fired []string
}

func (r *recorder) record(ctx context.Context, reminderID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fired = append(r.fired, reminderID)
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.fired...)
}

func TestDurableFiresDueTimers(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}

	s, err := OpenDurable(filepath.Join(t.TempDir(), "timers.db"), rec.record)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.ScheduleAt(ctx, time.Now().UTC().Add(-time.Second), "r-due")
	require.NoError(t, err)
	_, err = s.ScheduleAt(ctx, time.Now().UTC().Add(time.Hour), "r-future")
	require.NoError(t, err)

	require.NoError(t, s.FireDueOnce(ctx))
	assert.Equal(t, []string{"r-due"}, rec.all())

	// A second poll must not fire the same timer again.
	require.NoError(t, s.FireDueOnce(ctx))
	assert.Equal(t, []string{"r-due"}, rec.all())
}

// TestDurableMarksTimerAfterDelivery pins the crash-safety ordering: while
// the callback is running the row is still unfired, so a process that dies
// mid-delivery leaves the timer for its replacement to fire again.
func TestDurableMarksTimerAfterDelivery(t *testing.T) {
	ctx := context.Background()

	var s *Durable
	var handle string
	firedDuringCallback := -1
	cb := func(ctx context.Context, reminderID string) {
		require.NoError(t, s.db.QueryRowContext(ctx,
			"SELECT fired FROM timers WHERE handle = ?", handle).Scan(&firedDuringCallback))
	}

	s, err := OpenDurable(filepath.Join(t.TempDir(), "timers.db"), cb)
	require.NoError(t, err)
	defer s.Close()

	handle, err = s.ScheduleAt(ctx, time.Now().UTC().Add(-time.Second), "r-1")
	require.NoError(t, err)

	require.NoError(t, s.FireDueOnce(ctx))
	assert.Zero(t, firedDuringCallback, "row stays unfired until the callback returns")

	var firedAfter int
	require.NoError(t, s.db.QueryRowContext(ctx,
		"SELECT fired FROM timers WHERE handle = ?", handle).Scan(&firedAfter))
	assert.Equal(t, 1, firedAfter)
}

func TestDurableCancelPreventsFiring(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}

	s, err := OpenDurable(filepath.Join(t.TempDir(), "timers.db"), rec.record)
	require.NoError(t, err)
	defer s.Close()

	handle, err := s.ScheduleAt(ctx, time.Now().UTC().Add(-time.Second), "r-1")
	require.NoError(t, err)

	require.NoError(t, s.Cancel(ctx, handle))
	require.NoError(t, s.FireDueOnce(ctx))
	assert.Empty(t, rec.all())

	// Cancelling again is a no-op.
	require.NoError(t, s.Cancel(ctx, handle))
}

func TestDurableTimersSurviveReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "timers.db")

	first, err := OpenDurable(path, func(ctx context.Context, reminderID string) {})
	require.NoError(t, err)
	_, err = first.ScheduleAt(ctx, time.Now().UTC().Add(-time.Second), "r-persisted")
	require.NoError(t, err)
	require.NoError(t, first.Close())

	// A replacement process still fires the timer.
	rec := &recorder{}
	second, err := OpenDurable(path, rec.record)
	require.NoError(t, err)
	defer second.Close()

	require.NoError(t, second.FireDueOnce(ctx))
	assert.Equal(t, []string{"r-persisted"}, rec.all())
}
