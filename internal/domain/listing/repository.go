package listing

import (
	"context"

	"github.com/google/uuid"
)

// ItemRepository persists publishable items
type ItemRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*PublishableItem, error)
	// FindActiveByProduct returns the newest item of the product that is
	// Draft, InProgress or Published, or shared.ErrNotFound.
	FindActiveByProduct(ctx context.Context, productID uuid.UUID) (*PublishableItem, error)
	ListPublished(ctx context.Context, accountID uuid.UUID) ([]PublishableItem, error)
	Create(ctx context.Context, item *PublishableItem) error
	// Save fails with shared.ErrConcurrencyConflict when the version moved
	Save(ctx context.Context, item *PublishableItem) error
}
