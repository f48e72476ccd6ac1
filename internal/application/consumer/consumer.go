// Package consumer implements the recurring-task consumer: it reads
// task-events and creates the next instance of a recurring task exactly once
// per completion, despite at-least-once delivery. Each created instance is
// announced back on task-events so the reminder subsystem schedules its
// reminder the same way it does for directly created tasks.
package consumer

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/taskpulse/taskpulse/internal/domain"
	"github.com/taskpulse/taskpulse/internal/eventlog"
	"github.com/taskpulse/taskpulse/internal/recurring"
)

// Group is the consumer-group name this consumer subscribes under.
const Group = "recurring"

// Repository defines the storage operations the consumer needs.
type Repository interface {
	// CreateNextInstance inserts a successor task. The task's idempotency
	// key is enforced unique by the persistence layer; an insert that loses
	// to an earlier one returns domain.ErrDuplicateIdempotencyKey.
	// Transient infrastructure errors are wrapped with Transient.
	CreateNextInstance(ctx context.Context, task *domain.Task) error
}

// DeadLetters records events that could not be processed.
type DeadLetters interface {
	Insert(ctx context.Context, event domain.DeadLetterEvent) error
}

// RetryConfig bounds the consumer's retry budget for one event.
type RetryConfig struct {
	MaxRetries int           // attempts beyond the first
	BaseDelay  time.Duration // initial backoff
	MaxDelay   time.Duration // backoff cap
}

// DefaultRetryConfig returns the default retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   time.Minute,
	}
}

// Consumer turns completed events into next task instances.
type Consumer struct {
	repo        Repository
	deadLetters DeadLetters
	log         eventlog.Log
	retry       RetryConfig
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

// Option configures a Consumer.
type Option func(*Consumer)

// WithRetryConfig overrides the retry policy.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(c *Consumer) { c.retry = cfg }
}

// WithClock overrides the consumer clock for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(c *Consumer) { c.now = now }
}

// WithSleeper overrides the backoff sleep. Tests use this to avoid real delays.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Consumer) { c.sleep = sleep }
}

// New creates a consumer reading from and announcing new instances on log.
func New(repo Repository, deadLetters DeadLetters, log eventlog.Log, opts ...Option) *Consumer {
	c := &Consumer{
		repo:        repo,
		deadLetters: deadLetters,
		log:         log,
		retry:       DefaultRetryConfig(),
		now:         func() time.Time { return time.Now().UTC() },
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run subscribes the consumer to task-events until ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	return c.log.Subscribe(ctx, domain.TopicTaskEvents, Group, c.Handle)
}

// Handle processes one task-events envelope.
//
// Returning nil acknowledges the envelope. Malformed or unknown-schema
// events and exhausted retries are dead-lettered and then acknowledged so a
// poisoned event cannot starve its partition; only a failure to record the
// dead letter itself propagates, forcing broker redelivery - an event is
// never silently dropped.
func (c *Consumer) Handle(ctx context.Context, env eventlog.Envelope) error {
	ev, err := domain.DecodeTaskEvent(env.Payload)
	if err != nil {
		slog.WarnContext(ctx, "dead-lettering undecodable event", "key", env.Key, "error", err)
		return c.deadLetter(ctx, env, err.Error(), 0)
	}

	if ev.Type != domain.TaskCompleted || ev.Snapshot.Recurrence == nil {
		return nil
	}

	next := recurring.NextOccurrence(ev.Snapshot.Recurrence, ev.OccurredAt)
	if next == nil {
		slog.InfoContext(ctx, "recurrence exhausted", "task_id", ev.TaskID, "correlation_id", ev.CorrelationID)
		return nil
	}

	successor, err := c.buildSuccessor(ev, *next)
	if err != nil {
		return c.deadLetter(ctx, env, err.Error(), 0)
	}

	return c.createWithRetry(ctx, env, ev, successor)
}

// buildSuccessor derives the next task instance from a completion event.
func (c *Consumer) buildSuccessor(ev domain.TaskEvent, due time.Time) (*domain.Task, error) {
	idObj, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate id: %w", err)
	}

	now := c.now()
	key := domain.NextInstanceKey(ev.TaskID, ev.CorrelationID)

	return &domain.Task{
		ID:                    idObj.String(),
		OwnerID:               ev.OwnerID,
		Title:                 ev.Snapshot.Title,
		Description:           ev.Snapshot.Description,
		Status:                domain.TaskStatusTodo,
		Priority:              ev.Snapshot.Priority,
		DueAt:                 &due,
		ReminderOffsetMinutes: ev.Snapshot.ReminderOffsetMinutes,
		Recurrence:            ev.Snapshot.Recurrence.NextCopy(),
		ParentTaskID:          &ev.TaskID,
		IdempotencyKey:        &key,
		CreatedAt:             now,
		UpdatedAt:             now,
	}, nil
}

func (c *Consumer) createWithRetry(ctx context.Context, env eventlog.Envelope, ev domain.TaskEvent, successor *domain.Task) error {
	var lastErr error

	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, retryDelay(attempt, c.retry)); err != nil {
				return err
			}
		}

		err := c.repo.CreateNextInstance(ctx, successor)
		if err == nil {
			slog.InfoContext(ctx, "created next instance",
				"task_id", successor.ID,
				"parent_task_id", ev.TaskID,
				"correlation_id", ev.CorrelationID,
				"due_at", successor.DueAt)
			c.publishCreated(ctx, successor)
			return nil
		}

		// Duplicate key means a previous delivery already created the
		// instance: success, not failure.
		if errors.Is(err, domain.ErrDuplicateIdempotencyKey) {
			slog.InfoContext(ctx, "next instance already exists, absorbing redelivery",
				"parent_task_id", ev.TaskID, "correlation_id", ev.CorrelationID)
			return nil
		}

		if !IsRetryable(err) {
			slog.ErrorContext(ctx, "permanent error creating next instance",
				"parent_task_id", ev.TaskID, "error", err)
			return c.deadLetter(ctx, env, err.Error(), attempt+1)
		}

		lastErr = err
		slog.WarnContext(ctx, "transient error creating next instance, will retry",
			"parent_task_id", ev.TaskID, "attempt", attempt+1, "error", err)
	}

	slog.ErrorContext(ctx, "retries exhausted creating next instance",
		"parent_task_id", ev.TaskID, "error", lastErr)
	return c.deadLetter(ctx, env, lastErr.Error(), c.retry.MaxRetries+1)
}

// publishCreated announces a newly created instance on task-events, under a
// fresh correlation id, so the reminder subsystem schedules its reminder.
// Only the winning insert reaches here: the duplicate-key branch absorbs
// redeliveries without republishing, so a completion event can announce its
// successor at most once. A publish failure is logged and absorbed - the
// instance is already durable, and redelivery could not recover the event
// anyway because the insert now hits the duplicate-key branch.
func (c *Consumer) publishCreated(ctx context.Context, successor *domain.Task) {
	correlationID, err := uuid.NewV7()
	if err != nil {
		slog.ErrorContext(ctx, "failed to generate correlation id, dropping created event",
			"task_id", successor.ID, "error", err)
		return
	}

	ev := domain.TaskEvent{
		SchemaVersion: domain.TaskEventSchemaVersion,
		Type:          domain.TaskCreated,
		TaskID:        successor.ID,
		OwnerID:       successor.OwnerID,
		OccurredAt:    c.now(),
		CorrelationID: correlationID.String(),
		Snapshot: domain.TaskSnapshot{
			Title:                 successor.Title,
			Description:           successor.Description,
			Priority:              successor.Priority,
			DueAt:                 successor.DueAt,
			ReminderOffsetMinutes: successor.ReminderOffsetMinutes,
			Recurrence:            successor.Recurrence,
		},
	}

	payload, err := domain.EncodeTaskEvent(ev)
	if err != nil {
		slog.ErrorContext(ctx, "failed to encode created event, dropping",
			"task_id", successor.ID, "error", err)
		return
	}

	if err := c.log.Publish(ctx, domain.TopicTaskEvents, successor.ID, payload); err != nil {
		slog.ErrorContext(ctx, "failed to publish created event, instance persisted without it",
			"task_id", successor.ID, "error", err)
	}
}

func (c *Consumer) deadLetter(ctx context.Context, env eventlog.Envelope, reason string, attempts int) error {
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
		Attempts: attempts,
		FailedAt: c.now(),
	}

	if err := c.deadLetters.Insert(ctx, event); err != nil {
		// Propagate so the broker redelivers: the event must not be lost.
		return fmt.Errorf("failed to record dead letter: %w", err)
	}

	slog.WarnContext(ctx, "event routed to dead letter",
		"topic", env.Topic, "key", env.Key, "reason", reason, "attempts", attempts)
	return nil
}

// retryDelay computes exponential backoff with full jitter:
// random(0, min(max_delay, base_delay * 2^(attempt-1))).
func retryDelay(attempt int, cfg RetryConfig) time.Duration {
	backoff := float64(cfg.BaseDelay) * math.Pow(2, float64(attempt-1))
	if backoff > float64(cfg.MaxDelay) {
		backoff = float64(cfg.MaxDelay)
	}

	maxJitter := int64(backoff)
	if maxJitter <= 0 {
		return cfg.BaseDelay
	}
	n, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
	if err != nil {
		return time.Duration(maxJitter)
	}
	return time.Duration(n.Int64())
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
