package domain

import (
	"fmt"
	"time"
)

// RecurrencePattern describes how a task repeats. Every task instance owns
// its own copy of the pattern; the successor instance gets a fresh copy with
// OccurrencesUsed incremented. Stopping recurrence on a single instance is
// therefore just clearing that instance's pattern.
type RecurrencePattern struct {
	Type     PatternType `json:"type"`
	Interval int         `json:"interval"` // every N days/weeks/months, >= 1

	// Weekdays is the set of weekdays the pattern fires on. Weekly only,
	// must be non-empty there.
	Weekdays []time.Weekday `json:"weekdays,omitempty"`

	// DayOfMonth anchors monthly patterns, in [1,31]. Clamped to the last
	// day of months that are shorter.
	DayOfMonth int `json:"day_of_month,omitempty"`

	End EndCondition `json:"end"`

	// MaxOccurrences bounds the chain when End is EndAfterOccurrences.
	MaxOccurrences int `json:"max_occurrences,omitempty"`

	// EndDate bounds the chain when End is EndByDate.
	EndDate *time.Time `json:"end_date,omitempty"`

	// OccurrencesUsed counts successor instances created so far in this
	// chain. The calculator stops an AFTER_OCCURRENCES pattern once
	// OccurrencesUsed >= MaxOccurrences, even under retried events.
	OccurrencesUsed int `json:"occurrences_used"`
}

// Validate checks the pattern invariants.
func (p *RecurrencePattern) Validate() error {
	if p.Interval < 1 {
		return fmt.Errorf("%w: interval must be >= 1, got %d", ErrInvalidPattern, p.Interval)
	}

	switch p.Type {
	case PatternDaily:
	case PatternWeekly:
		if len(p.Weekdays) == 0 {
			return fmt.Errorf("%w: weekly pattern requires a weekday set", ErrInvalidPattern)
		}
	case PatternMonthly:
		if p.DayOfMonth < 1 || p.DayOfMonth > 31 {
			return fmt.Errorf("%w: day of month must be in [1,31], got %d", ErrInvalidPattern, p.DayOfMonth)
		}
	default:
		return fmt.Errorf("%w: unknown pattern type %q", ErrInvalidPattern, p.Type)
	}

	switch p.End {
	case EndNever:
	case EndAfterOccurrences:
		if p.MaxOccurrences < 1 {
			return fmt.Errorf("%w: max occurrences must be >= 1, got %d", ErrInvalidPattern, p.MaxOccurrences)
		}
	case EndByDate:
		if p.EndDate == nil {
			return fmt.Errorf("%w: by-date pattern requires an end date", ErrInvalidPattern)
		}
	default:
		return fmt.Errorf("%w: unknown end condition %q", ErrInvalidPattern, p.End)
	}

	return nil
}

// NextCopy returns the pattern copy the successor instance should own.
func (p *RecurrencePattern) NextCopy() *RecurrencePattern {
	next := *p
	next.Weekdays = append([]time.Weekday(nil), p.Weekdays...)
	next.OccurrencesUsed = p.OccurrencesUsed + 1
	return &next
}

// OnWeekday reports whether d is in the pattern's weekday set.
func (p *RecurrencePattern) OnWeekday(d time.Weekday) bool {
	for _, wd := range p.Weekdays {
		if wd == d {
			return true
		}
	}
	return false
}
