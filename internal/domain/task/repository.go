package task

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists tasks
type Repository interface {
	// Enqueue stores a new task. A task whose idempotency key already exists
	// is dropped and Enqueue returns false.
	Enqueue(ctx context.Context, t *Task) (bool, error)
	// ClaimDue leases up to limit pending tasks due at now, plus processing
	// tasks whose lease expired.
	ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*Task, error)
	Update(ctx context.Context, t *Task) error
	FindByID(ctx context.Context, id uuid.UUID) (*Task, error)
	FindByEntity(ctx context.Context, entityType string, entityID uuid.UUID) ([]*Task, error)
	DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error)
	CountByStatus(ctx context.Context) (map[Status]int64, error)
}
