package sideeffect

import (
	"context"
	"errors"
	"fmt"

	"github.com/Inventorum/ebay-sub000/internal/application/ports"
	"github.com/Inventorum/ebay-sub000/internal/domain/core"
	"github.com/Inventorum/ebay-sub000/internal/domain/listing"
	"github.com/Inventorum/ebay-sub000/internal/domain/shared"
	"github.com/Inventorum/ebay-sub000/internal/domain/task"
	"github.com/google/uuid"
)

// StatePusher tells core about the publish state of items
type StatePusher struct {
	store ports.Store
	core  core.Client
}

// NewStatePusher creates a StatePusher
func NewStatePusher(store ports.Store, coreClient core.Client) *StatePusher {
	return &StatePusher{store: store, core: coreClient}
}

// PushItem sends the item's current state to core and returns the item
func (p *StatePusher) PushItem(ctx context.Context, itemID uuid.UUID) (*listing.PublishableItem, error) {
	item, err := p.store.Items().FindByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	acct, err := p.store.Accounts().FindByID(ctx, item.AccountID)
	if err != nil {
		return nil, err
	}
	coreProductID := item.Snapshot.CoreProductID
	if coreProductID == "" {
		product, err := p.store.Products().FindByID(ctx, item.ProductID)
		if err != nil {
			return nil, err
		}
		coreProductID = product.CoreProductID
	}

	state := core.ProductState{
		Channel: core.ChannelEbay,
		State:   item.Status.String(),
		Details: item.FailureDetails,
	}
	if err := p.core.PushProductState(ctx, acct.CoreAccountID, coreProductID, state); err != nil {
		return item, classifyCoreError(fmt.Errorf("push state of item %s: %w", item.ID, err))
	}
	return item, nil
}

// classifyCoreError marks answers that retrying cannot change as permanent
func classifyCoreError(err error) error {
	if errors.Is(err, core.ErrCoreRejected) || errors.Is(err, shared.ErrNotFound) {
		return task.Permanent(err)
	}
	return err
}
