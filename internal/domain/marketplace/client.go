// Package marketplace declares the port to the external marketplace (eBay).
package marketplace

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/domain/account"
	"github.com/Inventorum/ebay-sub000/internal/domain/listing"
	"github.com/Inventorum/ebay-sub000/internal/domain/order"
	"github.com/shopspring/decimal"
)

var (
	// ErrMarketplaceUnavailable wraps transport failures. They are retryable.
	ErrMarketplaceUnavailable = errors.New("marketplace: unavailable")
	// ErrListingAlreadyEnded is returned when ending a listing that is
	// already ended on the marketplace
	ErrListingAlreadyEnded = errors.New("marketplace: listing already ended")
)

// Message is one error or warning returned by the marketplace
type Message struct {
	Code     string `json:"code"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// BusinessError is a rejection by the marketplace. Retrying the same request
// gives the same answer.
type BusinessError struct {
	Classification string
	Code           string
	Messages       []Message
}

func (e *BusinessError) Error() string {
	parts := make([]string, 0, len(e.Messages))
	for _, m := range e.Messages {
		parts = append(parts, m.Message)
	}
	return fmt.Sprintf("marketplace: %s %s: %s", e.Classification, e.Code, strings.Join(parts, "; "))
}

// FailureDetails converts the error into item failure details
func (e *BusinessError) FailureDetails() listing.FailureDetails {
	msgs := make([]listing.FailureMessage, 0, len(e.Messages))
	for _, m := range e.Messages {
		msgs = append(msgs, listing.FailureMessage{Code: m.Code, Severity: m.Severity, Message: m.Message})
	}
	return listing.FailureDetails{
		Reason:         listing.ReasonMarketplaceFail,
		Classification: e.Classification,
		Messages:       msgs,
		OccurredAt:     time.Now(),
	}
}

// AsBusinessError unwraps a *BusinessError
func AsBusinessError(err error) (*BusinessError, bool) {
	var be *BusinessError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// Listing is the result of a successful publish
type Listing struct {
	ItemID string
	// StartedAt and EndsAt are reported by the marketplace
	StartedAt time.Time
	EndsAt    *time.Time
}

// Refund describes money returned to the buyer
type Refund struct {
	OrderID  string
	ReturnID string
	Amount   decimal.Decimal
	Currency string
}

// Client is the marketplace port.
//
// PublishListing takes a request id that stays the same across retries of
// one publish; repeating it answers with the listing created for it.
type Client interface {
	PublishListing(ctx context.Context, acct *account.Account, requestID string, snapshot listing.ListingSnapshot) (*Listing, error)
	EndListing(ctx context.Context, acct *account.Account, itemID string) error
	ReviseListing(ctx context.Context, acct *account.Account, itemID string, snapshot listing.ListingSnapshot) error
	PushOrderStatus(ctx context.Context, acct *account.Account, orderID string, status order.OrderStatus) error
	SendPickupEvent(ctx context.Context, acct *account.Account, orderID string, event order.PickupEvent) error
	IssueRefund(ctx context.Context, acct *account.Account, refund Refund) error
}
