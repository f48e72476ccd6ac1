package task

import (
	"context"

	"github.com/taskpulse/taskpulse/internal/domain"
)

// Repository defines the storage operations TaskService needs. Implementations
// return domain errors (domain.ErrTaskNotFound) rather than driver errors.
type Repository interface {
	// CreateTask persists a new task.
	CreateTask(ctx context.Context, task *domain.Task) error

	// FindTaskByID retrieves a task.
	// Returns domain.ErrTaskNotFound if it doesn't exist.
	FindTaskByID(ctx context.Context, id string) (*domain.Task, error)

	// UpdateTask persists the full current state of an existing task.
	// Returns domain.ErrTaskNotFound if it doesn't exist.
	UpdateTask(ctx context.Context, task *domain.Task) error

	// DeleteTask removes a task.
	// Returns domain.ErrTaskNotFound if it doesn't exist.
	DeleteTask(ctx context.Context, id string) error
}
