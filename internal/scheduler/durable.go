package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	_ "modernc.org/sqlite" // pure-Go sqlite driver
)

const timersSchema = `
CREATE TABLE IF NOT EXISTS timers (
	handle      TEXT PRIMARY KEY,
	reminder_id TEXT NOT NULL,
	fire_at_ms  INTEGER NOT NULL,
	fired       INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_timers_due ON timers (fired, fire_at_ms);
`

// Durable is a restart-safe Scheduler backed by a SQLite timer table.
// A cron tick polls for due timers and delivers each at least once: a row
// is marked fired only after its callback returns, so a crash mid-delivery
// re-fires the timer on the next poll or in a replacement process. Callback
// targets must absorb duplicate deliveries.
type Durable struct {
	db   *sql.DB
	cron *cron.Cron
	cb   Callback
	tick time.Duration
}

// DurableOption configures a Durable scheduler.
type DurableOption func(*Durable)

// WithTick sets the polling interval. Timers fire within one tick of their
// target time, so this bounds reminder lag.
func WithTick(d time.Duration) DurableOption {
	return func(s *Durable) {
		if d > 0 {
			s.tick = d
		}
	}
}

// OpenDurable opens (creating if needed) the timer store at path and returns
// a scheduler that will invoke cb for due timers once Run is called.
func OpenDurable(path string, cb Callback, opts ...DurableOption) (*Durable, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open timer store: %w", err)
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to configure timer store: %w", err)
	}
	if _, err := db.Exec(timersSchema); err != nil {
		return nil, fmt.Errorf("failed to migrate timer store: %w", err)
	}

	s := &Durable{
		db:   db,
		cron: cron.New(),
		cb:   cb,
		tick: time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ScheduleAt persists a timer row and returns its handle. The timer outlives
// this process: a later replacement process will still fire it.
func (s *Durable) ScheduleAt(ctx context.Context, fireAt time.Time, reminderID string) (string, error) {
	handleID, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate handle: %w", err)
	}
	handle := handleID.String()

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO timers (handle, reminder_id, fire_at_ms, fired) VALUES (?, ?, ?, 0)",
		handle, reminderID, fireAt.UnixMilli())
	if err != nil {
		return "", fmt.Errorf("failed to persist timer: %w", err)
	}
	return handle, nil
}

// Cancel removes a pending timer. Unknown or already-fired handles are a no-op.
func (s *Durable) Cancel(ctx context.Context, handle string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM timers WHERE handle = ? AND fired = 0", handle)
	if err != nil {
		return fmt.Errorf("failed to cancel timer: %w", err)
	}
	return nil
}

// Run polls for due timers until ctx is done.
func (s *Durable) Run(ctx context.Context) error {
	spec := fmt.Sprintf("@every %s", s.tick)
	if _, err := s.cron.AddFunc(spec, func() { _ = s.fireDue(ctx) }); err != nil {
		return fmt.Errorf("failed to register polling job: %w", err)
	}

	slog.InfoContext(ctx, "timer scheduler started", "tick", s.tick)
	s.cron.Start()

	<-ctx.Done()

	stopped := s.cron.Stop()
	<-stopped.Done()
	slog.InfoContext(ctx, "timer scheduler stopped")
	return ctx.Err()
}

// FireDueOnce runs a single polling cycle. Exposed for tests and for
// deployments that drive the tick externally.
func (s *Durable) FireDueOnce(ctx context.Context) error {
	return s.fireDue(ctx)
}

func (s *Durable) fireDue(ctx context.Context) error {
	now := time.Now().UTC().UnixMilli()

	rows, err := s.db.QueryContext(ctx,
		"SELECT handle, reminder_id FROM timers WHERE fired = 0 AND fire_at_ms <= ?", now)
	if err != nil {
		slog.ErrorContext(ctx, "timer poll failed", "error", err)
		return err
	}

	type due struct{ handle, reminderID string }
	var ready []due
	for rows.Next() {
		var d due
		if err := rows.Scan(&d.handle, &d.reminderID); err != nil {
			rows.Close()
			return err
		}
		ready = append(ready, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, d := range ready {
		// Deliver before marking: a crash between the two re-fires the
		// timer on restart, and callees absorb the duplicate.
		s.cb(ctx, d.reminderID)

		if _, err := s.db.ExecContext(ctx,
			"UPDATE timers SET fired = 1 WHERE handle = ?", d.handle); err != nil {
			slog.ErrorContext(ctx, "failed to mark timer fired", "handle", d.handle, "error", err)
		}
	}

	return nil
}

// Close releases the timer store.
func (s *Durable) Close() error {
	return s.db.Close()
}
