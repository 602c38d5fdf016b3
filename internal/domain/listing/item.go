package listing

import (
	"fmt"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/domain/order"
	"github.com/Inventorum/ebay-sub000/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PublishStatus is the lifecycle state of a publishable item
type PublishStatus string

const (
	StatusDraft       PublishStatus = "draft"
	StatusInProgress  PublishStatus = "in_progress"
	StatusPublished   PublishStatus = "published"
	StatusUnpublished PublishStatus = "unpublished"
	StatusFailed      PublishStatus = "failed"
)

// IsValid checks if the status is a known PublishStatus
func (s PublishStatus) IsValid() bool {
	switch s {
	case StatusDraft, StatusInProgress, StatusPublished, StatusUnpublished, StatusFailed:
		return true
	}
	return false
}

// String returns the string representation of PublishStatus
func (s PublishStatus) String() string {
	return string(s)
}

// IsTerminal returns true for states an item never leaves
func (s PublishStatus) IsTerminal() bool {
	return s == StatusUnpublished || s == StatusFailed
}

// CanTransitionTo checks if the status can transition to the target status
func (s PublishStatus) CanTransitionTo(target PublishStatus) bool {
	switch s {
	case StatusDraft:
		return target == StatusInProgress || target == StatusFailed
	case StatusInProgress:
		return target == StatusPublished || target == StatusFailed
	case StatusPublished:
		return target == StatusUnpublished
	case StatusUnpublished, StatusFailed:
		return false
	}
	return false
}

// FailureMessage is one message returned by the marketplace
type FailureMessage struct {
	Code     string `json:"code"`
	Severity string `json:"severity,omitempty"`
	Message  string `json:"message"`
}

// FailureDetails explain why an item ended up Failed
type FailureDetails struct {
	Reason         string           `json:"reason"`
	Classification string           `json:"classification,omitempty"`
	Messages       []FailureMessage `json:"messages,omitempty"`
	OccurredAt     time.Time        `json:"occurred_at"`
}

// Failure reasons recorded by the engine itself
const (
	ReasonPublishTimeout  = "publish_timeout"
	ReasonRetryExhausted  = "retry_exhausted"
	ReasonMarketplaceFail = "marketplace_rejected"
)

// PublishableItem is one attempt to list a catalog product on the
// marketplace. A Failed or Unpublished item is never reused; publishing the
// product again creates a new item.
type PublishableItem struct {
	shared.AccountAggregateRoot
	ProductID             uuid.UUID
	Status                PublishStatus
	ExternalMarketplaceID *string
	PublishedAt           *time.Time
	UnpublishedAt         *time.Time
	EndsAt                *time.Time
	FailureDetails        *FailureDetails
	Snapshot              ListingSnapshot
}

// NewPublishableItem creates a Draft item from a snapshot
func NewPublishableItem(accountID, productID uuid.UUID, snapshot ListingSnapshot) *PublishableItem {
	return &PublishableItem{
		AccountAggregateRoot: shared.NewAccountAggregateRoot(accountID),
		ProductID:            productID,
		Status:               StatusDraft,
		Snapshot:             snapshot,
	}
}

func (i *PublishableItem) transition(target PublishStatus) error {
	if !i.Status.CanTransitionTo(target) {
		return fmt.Errorf("%w: item %s cannot move from %s to %s", ErrInvalidTransition, i.ID, i.Status, target)
	}
	i.Status = target
	i.Touch()
	return nil
}

// StartPublishing moves a Draft item to InProgress. An item already in
// progress is left as is so a retried publish can continue.
func (i *PublishableItem) StartPublishing() error {
	if i.Status == StatusInProgress {
		return nil
	}
	return i.transition(StatusInProgress)
}

// MarkPublished records a successful listing
func (i *PublishableItem) MarkPublished(externalID string, publishedAt time.Time, endsAt *time.Time) error {
	if err := i.transition(StatusPublished); err != nil {
		return err
	}
	i.ExternalMarketplaceID = &externalID
	i.PublishedAt = &publishedAt
	i.EndsAt = endsAt
	i.FailureDetails = nil
	return nil
}

// MarkFailed records a terminal failure
func (i *PublishableItem) MarkFailed(details FailureDetails) error {
	if err := i.transition(StatusFailed); err != nil {
		return err
	}
	if details.OccurredAt.IsZero() {
		details.OccurredAt = time.Now()
	}
	i.FailureDetails = &details
	return nil
}

// MarkUnpublished records that the listing was ended
func (i *PublishableItem) MarkUnpublished(at time.Time) error {
	if err := i.transition(StatusUnpublished); err != nil {
		return err
	}
	i.UnpublishedAt = &at
	return nil
}

// Revise replaces the snapshot of a published listing
func (i *PublishableItem) Revise(snapshot ListingSnapshot) error {
	if i.Status != StatusPublished {
		return fmt.Errorf("%w: item %s is %s", ErrNotPublished, i.ID, i.Status)
	}
	i.Snapshot = snapshot
	i.Touch()
	return nil
}

// IsPublished returns true while the listing is live
func (i *PublishableItem) IsPublished() bool {
	return i.Status == StatusPublished
}

// Variation returns the snapshot variation with the core product id
func (i *PublishableItem) Variation(coreProductID string) (*Variation, bool) {
	for idx := range i.Snapshot.Variations {
		if i.Snapshot.Variations[idx].CoreProductID == coreProductID {
			return &Variation{Item: i, Data: i.Snapshot.Variations[idx]}, true
		}
	}
	return nil, false
}

// PublishableItem is the base-item Orderable of its listing.

func (i *PublishableItem) OrderableKind() order.OrderableKind { return order.OrderableBaseItem }
func (i *PublishableItem) OrderableID() uuid.UUID             { return i.ID }
func (i *PublishableItem) CoreProductID() string              { return i.Snapshot.CoreProductID }
func (i *PublishableItem) TaxRate() decimal.Decimal           { return i.Snapshot.TaxRate }

// MarketplaceItemID returns the listing id, or empty before publishing
func (i *PublishableItem) MarketplaceItemID() string {
	if i.ExternalMarketplaceID == nil {
		return ""
	}
	return *i.ExternalMarketplaceID
}

// Variation is a variation child bound to its published item
type Variation struct {
	Item *PublishableItem
	Data SnapshotVariation
}

func (v *Variation) OrderableKind() order.OrderableKind { return order.OrderableVariation }
func (v *Variation) OrderableID() uuid.UUID             { return v.Data.ID }
func (v *Variation) CoreProductID() string              { return v.Data.CoreProductID }
func (v *Variation) MarketplaceItemID() string          { return v.Data.SKU }
func (v *Variation) TaxRate() decimal.Decimal           { return v.Item.Snapshot.TaxRate }

var (
	_ order.Orderable = (*PublishableItem)(nil)
	_ order.Orderable = (*Variation)(nil)
)
