package postgres

import (
	"encoding/json"
	"fmt"

	"github.com/taskpulse/taskpulse/internal/domain"
)

// recurrenceToJSON serializes a recurrence pattern for the tasks.recurrence
// JSONB column. A nil pattern maps to SQL NULL.
func recurrenceToJSON(p *domain.RecurrencePattern) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal recurrence pattern: %w", err)
	}
	return data, nil
}

// recurrenceFromJSON deserializes the tasks.recurrence column. SQL NULL
// maps to a nil pattern.
func recurrenceFromJSON(data []byte) (*domain.RecurrencePattern, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var p domain.RecurrencePattern
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal recurrence pattern: %w", err)
	}
	return &p, nil
}
