package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Fake is an in-memory Scheduler for tests. Timers never fire on their own;
// tests pump them with Fire or FireAll, which also makes it easy to simulate
// the race where a callback lands after the task was already mutated.
type Fake struct {
	mu      sync.Mutex
	seq     int
	pending map[string]FakeTimer
	cb      Callback
}

// FakeTimer is one registered timer.
type FakeTimer struct {
	Handle     string
	ReminderID string
	FireAt     time.Time
}

// NewFake creates a fake scheduler delivering to cb.
func NewFake(cb Callback) *Fake {
	return &Fake{pending: make(map[string]FakeTimer), cb: cb}
}

// ScheduleAt records a timer and returns its handle.
func (f *Fake) ScheduleAt(ctx context.Context, fireAt time.Time, reminderID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	handle := fmt.Sprintf("fake-%d", f.seq)
	f.pending[handle] = FakeTimer{Handle: handle, ReminderID: reminderID, FireAt: fireAt}
	return handle, nil
}

// Cancel drops a pending timer. Unknown handles are a no-op.
func (f *Fake) Cancel(ctx context.Context, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pending, handle)
	return nil
}

// Fire invokes the callback for a specific handle, whether or not it is still
// pending - duplicate firing is exactly the condition callees must tolerate.
func (f *Fake) Fire(ctx context.Context, handle string) {
	f.mu.Lock()
	timer, ok := f.pending[handle]
	delete(f.pending, handle)
	f.mu.Unlock()
	if ok {
		f.cb(ctx, timer.ReminderID)
	}
}

// FireReminder invokes the callback directly for a reminder id, bypassing
// timer bookkeeping. Tests use it to simulate duplicate scheduler callbacks.
func (f *Fake) FireReminder(ctx context.Context, reminderID string) {
	f.cb(ctx, reminderID)
}

// FireAll fires every pending timer due at or before now, in registration order.
func (f *Fake) FireAll(ctx context.Context, now time.Time) {
	f.mu.Lock()
	var due []FakeTimer
	for h, timer := range f.pending {
		if !timer.FireAt.After(now) {
			due = append(due, timer)
			delete(f.pending, h)
		}
	}
	f.mu.Unlock()

	for _, timer := range due {
		f.cb(ctx, timer.ReminderID)
	}
}

// Pending returns the currently registered timers.
func (f *Fake) Pending() []FakeTimer {
	f.mu.Lock()
	defer f.mu.Unlock()
	timers := make([]FakeTimer, 0, len(f.pending))
	for _, timer := range f.pending {
		timers = append(timers, timer)
	}
	return timers
}
