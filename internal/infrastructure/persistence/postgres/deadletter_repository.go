package postgres

import (
	"context"
	"fmt"

	"github.com/taskpulse/taskpulse/internal/domain"
)

// Insert records an event that exhausted its processing budget. Insertion
// must succeed for the originating event to be acknowledged, so failures
// here propagate to the caller and force broker redelivery.
func (s *Store) Insert(ctx context.Context, event domain.DeadLetterEvent) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO dead_letter_events
			(id, topic, key, payload, reason, attempts, failed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.ID,
		event.Topic,
		event.Key,
		event.Payload,
		event.Reason,
		event.Attempts,
		event.FailedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert dead letter: %w", err)
	}
	return nil
}

// ListDeadLetters returns dead-lettered events for a topic, newest first,
// for operator review.
func (s *Store) ListDeadLetters(ctx context.Context, topic string, limit int) ([]domain.DeadLetterEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `SELECT id, topic, key, payload, reason, attempts, failed_at
		FROM dead_letter_events WHERE topic = $1
		ORDER BY failed_at DESC LIMIT $2`, topic, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	defer rows.Close()

	var events []domain.DeadLetterEvent
	for rows.Next() {
		var ev domain.DeadLetterEvent
		if err := rows.Scan(&ev.ID, &ev.Topic, &ev.Key, &ev.Payload, &ev.Reason, &ev.Attempts, &ev.FailedAt); err != nil {
			return nil, fmt.Errorf("failed to scan dead letter: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read dead letters: %w", err)
	}
	return events, nil
}
