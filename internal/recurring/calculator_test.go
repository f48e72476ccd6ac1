package recurring

import (
	"testing"
	"time"

	"github.com/taskpulse/taskpulse/internal/domain"
)

func mustNext(t *testing.T, p *domain.RecurrencePattern, completedAt time.Time) time.Time {
	t.Helper()
	next := NextOccurrence(p, completedAt)
	if next == nil {
		t.Fatal("expected next occurrence, got nil")
	}
	return *next
}

func TestDailyPattern(t *testing.T) {
	completed := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)

	t.Run("interval 1", func(t *testing.T) {
		p := &domain.RecurrencePattern{Type: domain.PatternDaily, Interval: 1, End: domain.EndNever}
		next := mustNext(t, p, completed)
		expected := time.Date(2024, 1, 11, 9, 0, 0, 0, time.UTC)
		if !next.Equal(expected) {
			t.Errorf("expected %v, got %v", expected, next)
		}
	})

	t.Run("interval 3", func(t *testing.T) {
		p := &domain.RecurrencePattern{Type: domain.PatternDaily, Interval: 3, End: domain.EndNever}
		next := mustNext(t, p, completed)
		expected := time.Date(2024, 1, 13, 9, 0, 0, 0, time.UTC)
		if !next.Equal(expected) {
			t.Errorf("expected %v, got %v", expected, next)
		}
	})
}

func TestWeeklyPattern(t *testing.T) {
	// 2024-01-10 is a Wednesday.
	completed := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)

	t.Run("next set weekday in same week", func(t *testing.T) {
		p := &domain.RecurrencePattern{
			Type:     domain.PatternWeekly,
			Interval: 2,
			Weekdays: []time.Weekday{time.Monday, time.Friday},
			End:      domain.EndNever,
		}
		next := mustNext(t, p, completed)
		// Friday of the same week, the interval jump only applies once the
		// week's set is exhausted.
		expected := time.Date(2024, 1, 12, 9, 0, 0, 0, time.UTC)
		if !next.Equal(expected) {
			t.Errorf("expected %v, got %v", expected, next)
		}
	})

	t.Run("set exhausted advances by interval weeks", func(t *testing.T) {
		p := &domain.RecurrencePattern{
			Type:     domain.PatternWeekly,
			Interval: 2,
			Weekdays: []time.Weekday{time.Monday},
			End:      domain.EndNever,
		}
		next := mustNext(t, p, completed)
		// Monday two weeks after the completion week's Monday (Jan 8).
		expected := time.Date(2024, 1, 22, 9, 0, 0, 0, time.UTC)
		if !next.Equal(expected) {
			t.Errorf("expected %v, got %v", expected, next)
		}
	})

	t.Run("completion on a set day picks the following set day", func(t *testing.T) {
		p := &domain.RecurrencePattern{
			Type:     domain.PatternWeekly,
			Interval: 1,
			Weekdays: []time.Weekday{time.Wednesday},
			End:      domain.EndNever,
		}
		next := mustNext(t, p, completed)
		expected := time.Date(2024, 1, 17, 9, 0, 0, 0, time.UTC)
		if !next.Equal(expected) {
			t.Errorf("expected %v, got %v", expected, next)
		}
	})
}

func TestMonthlyPattern(t *testing.T) {
	t.Run("same day next month", func(t *testing.T) {
		p := &domain.RecurrencePattern{Type: domain.PatternMonthly, Interval: 1, DayOfMonth: 15, End: domain.EndNever}
		completed := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
		next := mustNext(t, p, completed)
		expected := time.Date(2024, 4, 15, 9, 0, 0, 0, time.UTC)
		if !next.Equal(expected) {
			t.Errorf("expected %v, got %v", expected, next)
		}
	})

	t.Run("day 31 clamps to last day of February in a leap year", func(t *testing.T) {
		p := &domain.RecurrencePattern{Type: domain.PatternMonthly, Interval: 1, DayOfMonth: 31, End: domain.EndNever}
		completed := time.Date(2024, 1, 31, 9, 0, 0, 0, time.UTC)
		next := mustNext(t, p, completed)
		expected := time.Date(2024, 2, 29, 9, 0, 0, 0, time.UTC)
		if !next.Equal(expected) {
			t.Errorf("expected %v, got %v", expected, next)
		}
	})

	t.Run("day 31 clamps to Feb 28 outside leap years", func(t *testing.T) {
		p := &domain.RecurrencePattern{Type: domain.PatternMonthly, Interval: 1, DayOfMonth: 31, End: domain.EndNever}
		completed := time.Date(2023, 1, 31, 9, 0, 0, 0, time.UTC)
		next := mustNext(t, p, completed)
		expected := time.Date(2023, 2, 28, 9, 0, 0, 0, time.UTC)
		if !next.Equal(expected) {
			t.Errorf("expected %v, got %v", expected, next)
		}
	})

	t.Run("interval crosses year boundary", func(t *testing.T) {
		p := &domain.RecurrencePattern{Type: domain.PatternMonthly, Interval: 3, DayOfMonth: 10, End: domain.EndNever}
		completed := time.Date(2024, 11, 10, 9, 0, 0, 0, time.UTC)
		next := mustNext(t, p, completed)
		expected := time.Date(2025, 2, 10, 9, 0, 0, 0, time.UTC)
		if !next.Equal(expected) {
			t.Errorf("expected %v, got %v", expected, next)
		}
	})
}

func TestEndConditions(t *testing.T) {
	completed := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)

	t.Run("after occurrences exhausts once used reaches max", func(t *testing.T) {
		p := &domain.RecurrencePattern{
			Type: domain.PatternDaily, Interval: 1,
			End: domain.EndAfterOccurrences, MaxOccurrences: 3,
		}

		// Walk the chain: each successor's pattern has used+1.
		var created int
		current := completed
		for {
			next := NextOccurrence(p, current)
			if next == nil {
				break
			}
			created++
			p = p.NextCopy()
			current = *next
		}

		if created != 3 {
			t.Errorf("expected exactly 3 successors, got %d", created)
		}
		if NextOccurrence(p, current) != nil {
			t.Error("expected exhausted pattern to stay exhausted")
		}
	})

	t.Run("by date stops past the end date", func(t *testing.T) {
		end := time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC)
		p := &domain.RecurrencePattern{
			Type: domain.PatternDaily, Interval: 1,
			End: domain.EndByDate, EndDate: &end,
		}
		next := NextOccurrence(p, completed)
		if next != nil {
			t.Errorf("expected nil past end date, got %v", *next)
		}
	})

	t.Run("by date allows occurrences on or before the end date", func(t *testing.T) {
		end := time.Date(2024, 1, 11, 9, 0, 0, 0, time.UTC)
		p := &domain.RecurrencePattern{
			Type: domain.PatternDaily, Interval: 1,
			End: domain.EndByDate, EndDate: &end,
		}
		next := NextOccurrence(p, completed)
		if next == nil || !next.Equal(end) {
			t.Errorf("expected %v, got %v", end, next)
		}
	})

	t.Run("nil pattern yields nil", func(t *testing.T) {
		if NextOccurrence(nil, completed) != nil {
			t.Error("expected nil for nil pattern")
		}
	})
}
