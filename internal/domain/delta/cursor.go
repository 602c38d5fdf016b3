package delta

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SyncCursor records when the last successful run of a kind finished pulling
// for an account. One row exists per (account, kind).
type SyncCursor struct {
	AccountID    uuid.UUID
	Kind         SyncKind
	LastSyncedAt time.Time
	UpdatedAt    time.Time
}

// Since returns the lower bound for the next delta pull. A missing cursor
// falls back to now minus the initial lookback.
func Since(cursor *SyncCursor, now time.Time, initialLookback time.Duration) time.Time {
	if cursor == nil || cursor.LastSyncedAt.IsZero() {
		return now.Add(-initialLookback)
	}
	return cursor.LastSyncedAt
}

// CursorRepository persists sync cursors
type CursorRepository interface {
	// Get returns the cursor, or shared.ErrNotFound when none exists yet
	Get(ctx context.Context, accountID uuid.UUID, kind SyncKind) (*SyncCursor, error)
	// Advance creates or moves the cursor forward. It never moves it backwards.
	Advance(ctx context.Context, accountID uuid.UUID, kind SyncKind, to time.Time) error
}
