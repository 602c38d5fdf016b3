package listing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EntityTypeItem is the dirty-mark entity type of publishable items
const EntityTypeItem = "publishable_item"

// DirtyMark flags an entity whose state core has not seen yet. At most one
// mark exists per entity; marking again bumps MarkedAt.
type DirtyMark struct {
	EntityType string
	EntityID   uuid.UUID
	MarkedAt   time.Time
}

// DirtyRepository persists dirty marks
type DirtyRepository interface {
	Mark(ctx context.Context, entityType string, entityID uuid.UUID, at time.Time) error
	List(ctx context.Context, limit int) ([]DirtyMark, error)
	// ListStuckItems returns marks older than cutoff of items still in
	// progress, oldest first.
	ListStuckItems(ctx context.Context, cutoff time.Time, limit int) ([]DirtyMark, error)
	// Clear removes the mark only if it was not re-marked after markedAt.
	// It returns false when the mark was kept.
	Clear(ctx context.Context, entityType string, entityID uuid.UUID, markedAt time.Time) (bool, error)
}
