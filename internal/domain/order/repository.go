package order

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists orders with their line items and returns
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Order, error)
	// FindByMarketplaceID looks the order up within the account only
	FindByMarketplaceID(ctx context.Context, accountID uuid.UUID, externalID string) (*Order, error)
	// FindByCoreID looks the order up within the account only
	FindByCoreID(ctx context.Context, accountID uuid.UUID, coreID string) (*Order, error)
	Create(ctx context.Context, o *Order) error
	// Save writes status, core ids and returns. It fails with
	// shared.ErrConcurrencyConflict when the version moved.
	Save(ctx context.Context, o *Order) error
}
