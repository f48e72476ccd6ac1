// Package recurring computes the next occurrence of a repeating task.
// The calculator is pure: no I/O, no clocks, fully deterministic.
package recurring

import (
	"time"

	"github.com/taskpulse/taskpulse/internal/domain"
)

// NextOccurrence returns the due timestamp of the instance that should
// follow a completion at completedAt, or nil when the recurrence chain is
// exhausted. The time of day of completedAt is preserved.
//
// The pattern is assumed valid (see domain.RecurrencePattern.Validate);
// an unknown pattern type yields nil.
func NextOccurrence(p *domain.RecurrencePattern, completedAt time.Time) *time.Time {
	if p == nil {
		return nil
	}

	if p.End == domain.EndAfterOccurrences && p.OccurrencesUsed >= p.MaxOccurrences {
		return nil
	}

	var next time.Time
	switch p.Type {
	case domain.PatternDaily:
		next = completedAt.AddDate(0, 0, p.Interval)
	case domain.PatternWeekly:
		next = nextWeekly(p, completedAt)
	case domain.PatternMonthly:
		next = nextMonthly(p, completedAt)
	default:
		return nil
	}

	if p.End == domain.EndByDate && p.EndDate != nil && next.After(*p.EndDate) {
		return nil
	}

	return &next
}

// nextWeekly finds the smallest date at least one day after completedAt
// whose weekday is in the pattern's set. Once the set is exhausted for the
// completion week, the search jumps Interval weeks ahead and takes the
// earliest set weekday of that week.
func nextWeekly(p *domain.RecurrencePattern, completedAt time.Time) time.Time {
	// Remainder of the completion week first.
	for c := completedAt.AddDate(0, 0, 1); sameWeek(c, completedAt); c = c.AddDate(0, 0, 1) {
		if p.OnWeekday(c.Weekday()) {
			return c
		}
	}

	// Jump Interval weeks from the completion week.
	week := startOfWeek(completedAt).AddDate(0, 0, 7*p.Interval)
	for i := 0; i < 7; i++ {
		c := week.AddDate(0, 0, i)
		if p.OnWeekday(c.Weekday()) {
			return c
		}
	}

	// Unreachable for a validated pattern (non-empty weekday set).
	return week
}

// nextMonthly lands on the pattern's day of month, Interval months after the
// completion month. Months shorter than DayOfMonth clamp to their last day,
// so a day-31 pattern completed in January yields the last day of February.
func nextMonthly(p *domain.RecurrencePattern, completedAt time.Time) time.Time {
	anchor := p.DayOfMonth
	if anchor == 0 {
		anchor = completedAt.Day()
	}

	year, month, _ := completedAt.Date()
	// Normalize the target month via time.Date (month arithmetic overflows
	// year boundaries cleanly with day 1).
	target := time.Date(year, month+time.Month(p.Interval), 1, 0, 0, 0, 0, completedAt.Location())

	day := anchor
	if last := daysInMonth(target.Year(), target.Month()); day > last {
		day = last
	}

	h, m, s := completedAt.Clock()
	return time.Date(target.Year(), target.Month(), day, h, m, s, completedAt.Nanosecond(), completedAt.Location())
}

// startOfWeek returns the Monday of t's week, preserving time of day.
func startOfWeek(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7 // Monday = 0
	return t.AddDate(0, 0, -offset)
}

func sameWeek(a, b time.Time) bool {
	ya, wa := a.ISOWeek()
	yb, wb := b.ISOWeek()
	return ya == yb && wa == wb
}

func daysInMonth(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
