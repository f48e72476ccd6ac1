// Package memory provides an in-memory store implementing every repository
// interface of the subsystem. It honors the same uniqueness and
// compare-and-swap semantics as the Postgres store, which makes it the
// substrate for unit and workflow tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/taskpulse/taskpulse/internal/application/consumer"
	"github.com/taskpulse/taskpulse/internal/application/deadletter"
	"github.com/taskpulse/taskpulse/internal/application/reminder"
	"github.com/taskpulse/taskpulse/internal/application/task"
	"github.com/taskpulse/taskpulse/internal/domain"
)

// Store is a mutex-guarded map store.
type Store struct {
	mu          sync.Mutex
	tasks       map[string]domain.Task
	byIdemKey   map[string]string // idempotency key -> task id
	reminders   map[string]domain.Reminder
	deadLetters []domain.DeadLetterEvent
}

// Compile-time verification that Store implements all repository interfaces.
var (
	_ task.Repository      = (*Store)(nil)
	_ consumer.Repository  = (*Store)(nil)
	_ consumer.DeadLetters = (*Store)(nil)
	_ reminder.Repository  = (*Store)(nil)
	_ reminder.DeadLetters = (*Store)(nil)
	_ deadletter.Lister    = (*Store)(nil)
)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		tasks:     make(map[string]domain.Task),
		byIdemKey: make(map[string]string),
		reminders: make(map[string]domain.Reminder),
	}
}

// === task.Repository ===

func (s *Store) CreateTask(ctx context.Context, t *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = cloneTask(t)
	return nil
}

func (s *Store) FindTaskByID(ctx context.Context, id string) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	out := cloneTask(&t)
	return &out, nil
}

func (s *Store) UpdateTask(ctx context.Context, t *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[t.ID]; !ok {
		return domain.ErrTaskNotFound
	}
	s.tasks[t.ID] = cloneTask(t)
	return nil
}

func (s *Store) DeleteTask(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return domain.ErrTaskNotFound
	}
	delete(s.tasks, id)
	return nil
}

// === consumer.Repository ===

func (s *Store) CreateNextInstance(ctx context.Context, t *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.IdempotencyKey != nil {
		if _, taken := s.byIdemKey[*t.IdempotencyKey]; taken {
			return domain.ErrDuplicateIdempotencyKey
		}
		s.byIdemKey[*t.IdempotencyKey] = t.ID
	}
	s.tasks[t.ID] = cloneTask(t)
	return nil
}

// === reminder.Repository ===

func (s *Store) CreateReminder(ctx context.Context, r *domain.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.reminders {
		if existing.TaskID == r.TaskID && existing.State == domain.ReminderScheduled {
			return domain.ErrLiveReminderExists
		}
	}
	s.reminders[r.ID] = *r
	return nil
}

func (s *Store) FindReminderByID(ctx context.Context, id string) (*domain.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[id]
	if !ok {
		return nil, domain.ErrReminderNotFound
	}
	out := r
	return &out, nil
}

func (s *Store) FindScheduledByTask(ctx context.Context, taskID string) (*domain.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reminders {
		if r.TaskID == taskID && r.State == domain.ReminderScheduled {
			out := r
			return &out, nil
		}
	}
	return nil, domain.ErrReminderNotFound
}

func (s *Store) MarkCancelled(ctx context.Context, id string) error {
	return s.transition(id, domain.ReminderCancelled)
}

func (s *Store) MarkFired(ctx context.Context, id string) error {
	return s.transition(id, domain.ReminderFired)
}

func (s *Store) transition(id string, to domain.ReminderState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[id]
	if !ok {
		return domain.ErrReminderNotFound
	}
	if r.State != domain.ReminderScheduled {
		return domain.ErrStaleReminder
	}
	r.State = to
	s.reminders[id] = r
	return nil
}

// === dead letters ===

func (s *Store) Insert(ctx context.Context, event domain.DeadLetterEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deadLetters = append(s.deadLetters, event)
	return nil
}

// ListDeadLetters returns dead-lettered events for a topic, newest first.
func (s *Store) ListDeadLetters(ctx context.Context, topic string, limit int) ([]domain.DeadLetterEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.DeadLetterEvent
	for _, ev := range s.deadLetters {
		if ev.Topic == topic {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FailedAt.After(out[j].FailedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// === test inspection helpers ===

// Tasks returns a snapshot of all stored tasks.
func (s *Store) Tasks() []domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	return out
}

// TasksByParent returns the tasks spawned from the given parent.
func (s *Store) TasksByParent(parentID string) []domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Task
	for _, t := range s.tasks {
		if t.ParentTaskID != nil && *t.ParentTaskID == parentID {
			out = append(out, t)
		}
	}
	return out
}

// Reminders returns a snapshot of all reminder rows.
func (s *Store) Reminders() []domain.Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Reminder, 0, len(s.reminders))
	for _, r := range s.reminders {
		out = append(out, r)
	}
	return out
}

// DeadLetters returns a snapshot of recorded dead letters.
func (s *Store) DeadLetters() []domain.DeadLetterEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.DeadLetterEvent(nil), s.deadLetters...)
}

func cloneTask(t *domain.Task) domain.Task {
	out := *t
	if t.Recurrence != nil {
		rec := *t.Recurrence
		rec.Weekdays = append([]time.Weekday(nil), t.Recurrence.Weekdays...)
		out.Recurrence = &rec
	}
	return out
}
