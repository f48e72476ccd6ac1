// Package postgres provides the PostgreSQL implementation of the
// repository interfaces defined by the application packages.
package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/taskpulse/taskpulse/internal/application/consumer"
	"github.com/taskpulse/taskpulse/internal/application/deadletter"
	"github.com/taskpulse/taskpulse/internal/application/reminder"
	"github.com/taskpulse/taskpulse/internal/application/task"
)

// Store provides the PostgreSQL implementation of all repository interfaces.
//
// This store implements:
// - application/task.Repository (task CRUD for the producer service)
// - application/consumer.Repository (idempotent next-instance creation)
// - application/consumer.DeadLetters and application/reminder.DeadLetters
// - application/reminder.Repository (CAS reminder state transitions)
// - application/deadletter.Lister (backlog inspection)
type Store struct {
	pool *pgxpool.Pool
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

// NewStore creates a new PostgreSQL store with the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close closes the database connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// isUniqueViolation reports whether err is a unique-constraint violation on
// the named constraint or index.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}
