// Package deadletter surfaces the dead-letter backlog to operators.
// Dead-lettered events are acknowledged on the broker, so without a report
// they rot unnoticed; the monitor periodically logs the newest entries per
// topic.
package deadletter

import (
	"context"
	"log/slog"
	"time"

	"github.com/taskpulse/taskpulse/internal/domain"
)

// Lister reads back dead-lettered events, newest first.
type Lister interface {
	ListDeadLetters(ctx context.Context, topic string, limit int) ([]domain.DeadLetterEvent, error)
}

// Monitor periodically reports the dead-letter backlog.
type Monitor struct {
	lister   Lister
	topics   []string
	interval time.Duration
	limit    int
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithInterval overrides how often the backlog is reported.
func WithInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithTopics overrides which topics are inspected.
func WithTopics(topics ...string) MonitorOption {
	return func(m *Monitor) {
		if len(topics) > 0 {
			m.topics = topics
		}
	}
}

// NewMonitor creates a monitor over both event topics.
func NewMonitor(lister Lister, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		lister:   lister,
		topics:   []string{domain.TopicTaskEvents, domain.TopicReminderEvents},
		interval: 5 * time.Minute,
		limit:    10,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run reports the backlog on every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.ReportOnce(ctx)
		}
	}
}

// ReportOnce logs the newest dead letters per topic. An empty backlog logs
// nothing.
func (m *Monitor) ReportOnce(ctx context.Context) {
	for _, topic := range m.topics {
		events, err := m.lister.ListDeadLetters(ctx, topic, m.limit)
		if err != nil {
			slog.ErrorContext(ctx, "failed to read dead-letter backlog", "topic", topic, "error", err)
			continue
		}
		if len(events) == 0 {
			continue
		}
		newest := events[0]
		slog.WarnContext(ctx, "dead-letter backlog needs attention",
			"topic", topic,
			"count", len(events),
			"newest_key", newest.Key,
			"newest_reason", newest.Reason,
			"newest_failed_at", newest.FailedAt)
	}
}
