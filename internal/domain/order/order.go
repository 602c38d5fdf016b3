package order

import (
	"fmt"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrNoLineItems          = shared.NewDomainError("ORDER_NO_LINE_ITEMS", "order must have at least one line item")
	ErrMissingPickupCode    = shared.NewDomainError("ORDER_MISSING_PICKUP_CODE", "pickup order requires a pickup code")
	ErrUnexpectedPickupCode = shared.NewDomainError("ORDER_UNEXPECTED_PICKUP_CODE", "only pickup orders carry a pickup code")
	ErrUnknownLineItem      = shared.NewDomainError("ORDER_UNKNOWN_LINE_ITEM", "line item does not belong to order")
	ErrReturnExceedsOrdered = shared.NewDomainError("ORDER_RETURN_EXCEEDS_ORDERED", "returned quantity exceeds ordered quantity")
	ErrInvalidReturnQty     = shared.NewDomainError("ORDER_INVALID_RETURN_QUANTITY", "returned quantity must be positive")
)

// Order is a marketplace order mirrored into core. Core and marketplace
// status are tracked separately and never copied onto each other.
type Order struct {
	shared.AccountAggregateRoot
	ExternalMarketplaceID string
	ExternalCoreID        *string
	CoreStatus            OrderStatus
	MarketplaceStatus     OrderStatus
	FulfillmentMethod     FulfillmentMethod
	PickupCode            *string
	LineItems             []LineItem
	Returns               []ReturnRecord
}

// NewOrder creates an order imported from the marketplace
func NewOrder(accountID uuid.UUID, externalMarketplaceID string, method FulfillmentMethod, pickupCode string, items []LineItem) (*Order, error) {
	if externalMarketplaceID == "" {
		return nil, shared.NewDomainError("ORDER_INVALID_EXTERNAL_ID", "marketplace order id cannot be empty")
	}
	if len(items) == 0 {
		return nil, ErrNoLineItems
	}
	if !method.IsValid() {
		return nil, shared.NewDomainError("ORDER_INVALID_FULFILLMENT", fmt.Sprintf("unknown fulfillment method %q", method))
	}
	o := &Order{
		AccountAggregateRoot:  shared.NewAccountAggregateRoot(accountID),
		ExternalMarketplaceID: externalMarketplaceID,
		FulfillmentMethod:     method,
		CoreStatus:            OrderStatus{},
		MarketplaceStatus:     OrderStatus{},
	}
	switch {
	case method == FulfillmentPickup && pickupCode == "":
		return nil, ErrMissingPickupCode
	case method != FulfillmentPickup && pickupCode != "":
		return nil, ErrUnexpectedPickupCode
	case method == FulfillmentPickup:
		o.PickupCode = &pickupCode
	}
	for i := range items {
		items[i].OrderID = o.ID
		if items[i].ID == uuid.Nil {
			items[i].ID = uuid.New()
		}
	}
	o.LineItems = items
	return o, nil
}

// IsPickup returns true for in-store pickup orders
func (o *Order) IsPickup() bool {
	return o.FulfillmentMethod == FulfillmentPickup
}

// IsReadyForPickup is derived from the core shipped flag
func (o *Order) IsReadyForPickup() bool {
	return o.IsPickup() && o.CoreStatus.IsShipped
}

// IsPickedUp is derived from the core delivered flag
func (o *Order) IsPickedUp() bool {
	return o.IsPickup() && o.CoreStatus.IsDelivered
}

// IsPickupCanceled is derived from the core canceled flag
func (o *Order) IsPickupCanceled() bool {
	return o.IsPickup() && o.CoreStatus.IsCanceled
}

// ApplyCoreStatus replaces the core-side status and returns the change
func (o *Order) ApplyCoreStatus(s OrderStatus) StatusChange {
	change := StatusChange{Old: o.CoreStatus, New: s, Method: o.FulfillmentMethod}
	if change.Changed() {
		o.CoreStatus = s
		o.Touch()
	}
	return change
}

// ApplyMarketplaceStatus replaces the marketplace-side status and returns the change
func (o *Order) ApplyMarketplaceStatus(s OrderStatus) StatusChange {
	change := StatusChange{Old: o.MarketplaceStatus, New: s, Method: o.FulfillmentMethod}
	if change.Changed() {
		o.MarketplaceStatus = s
		o.Touch()
	}
	return change
}

// AssignCoreID links the order to its core counterpart once created there
func (o *Order) AssignCoreID(coreID string) {
	o.ExternalCoreID = &coreID
	o.Touch()
}

// AssignLineCoreIDs links line items to their core counterparts, keyed by
// the line's marketplace id. Unknown ids are ignored.
func (o *Order) AssignLineCoreIDs(lineIDs map[string]string) {
	for i := range o.LineItems {
		if coreID, ok := lineIDs[o.LineItems[i].ExternalID]; ok {
			id := coreID
			o.LineItems[i].ExternalCoreID = &id
		}
	}
	o.Touch()
}

// HasCoreID returns true once core knows the order
func (o *Order) HasCoreID() bool {
	return o.ExternalCoreID != nil && *o.ExternalCoreID != ""
}

// LineItemByExternalID finds a line item by its remote id
func (o *Order) LineItemByExternalID(externalID string) (*LineItem, bool) {
	for i := range o.LineItems {
		if o.LineItems[i].ExternalID == externalID {
			return &o.LineItems[i], true
		}
		if o.LineItems[i].ExternalCoreID != nil && *o.LineItems[i].ExternalCoreID == externalID {
			return &o.LineItems[i], true
		}
	}
	return nil, false
}

// HasReturn returns true if a return with the remote id is already recorded
func (o *Order) HasReturn(remoteID string) bool {
	for _, r := range o.Returns {
		if r.RemoteID == remoteID {
			return true
		}
	}
	return false
}

// RecordReturn books a return against the line items. It returns false when
// the return was already recorded.
func (o *Order) RecordReturn(remoteID string, lines []ReturnedLine, refund decimal.Decimal) (*ReturnRecord, bool, error) {
	if o.HasReturn(remoteID) {
		return nil, false, nil
	}
	// lines may name the same line item more than once
	totals := make(map[string]decimal.Decimal, len(lines))
	var touched []*LineItem
	for _, l := range lines {
		if !l.Quantity.IsPositive() {
			return nil, false, fmt.Errorf("%w: line item %s returns %s", ErrInvalidReturnQty, l.LineItemExternalID, l.Quantity)
		}
		item, ok := o.LineItemByExternalID(l.LineItemExternalID)
		if !ok {
			return nil, false, fmt.Errorf("%w: %s", ErrUnknownLineItem, l.LineItemExternalID)
		}
		if _, seen := totals[item.ExternalID]; !seen {
			touched = append(touched, item)
		}
		totals[item.ExternalID] = totals[item.ExternalID].Add(l.Quantity)
	}
	for _, item := range touched {
		if item.ReturnedQuantity.Add(totals[item.ExternalID]).GreaterThan(item.Quantity) {
			return nil, false, fmt.Errorf("%w: line item %s", ErrReturnExceedsOrdered, item.ExternalID)
		}
	}
	for _, item := range touched {
		item.ReturnedQuantity = item.ReturnedQuantity.Add(totals[item.ExternalID])
	}
	rec := ReturnRecord{
		ID:           uuid.New(),
		OrderID:      o.ID,
		RemoteID:     remoteID,
		Lines:        lines,
		RefundAmount: refund,
		CreatedAt:    time.Now(),
	}
	o.Returns = append(o.Returns, rec)
	o.Touch()
	return &rec, true, nil
}
