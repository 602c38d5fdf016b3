// Package account models the merchant whose catalog and orders are synced.
package account

import (
	"context"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentMethod codes accepted by the marketplace
const (
	PaymentPayPal       = "PayPal"
	PaymentMoneyXferAcc = "MoneyXferAccepted"
	PaymentCashOnPickup = "CashOnPickup"
	PaymentCreditCard   = "CreditCard"
)

// Address is the merchant billing address
type Address struct {
	Name       string `json:"name"`
	Street     string `json:"street"`
	PostalCode string `json:"postal_code"`
	City       string `json:"city"`
	Country    string `json:"country"`
}

// IsComplete returns true when every field required for listing is set
func (a *Address) IsComplete() bool {
	return a != nil && a.Name != "" && a.Street != "" && a.PostalCode != "" && a.City != "" && a.Country != ""
}

// ShippingService is a configured delivery option
type ShippingService struct {
	Code           string          `json:"code"`
	Cost           decimal.Decimal `json:"cost"`
	AdditionalCost decimal.Decimal `json:"additional_cost"`
}

// Settings are the listing defaults of an account
type Settings struct {
	BillingAddress   *Address          `json:"billing_address,omitempty"`
	PaymentMethods   []string          `json:"payment_methods"`
	PayPalEmail      string            `json:"paypal_email,omitempty"`
	ShippingServices []ShippingService `json:"shipping_services"`
	PickupEnabled    bool              `json:"pickup_enabled"`
	PickupOnly       bool              `json:"pickup_only"`
	Country          string            `json:"country"`
	Currency         string            `json:"currency"`
}

// AcceptsPayPal returns true if PayPal is a configured payment method
func (s Settings) AcceptsPayPal() bool {
	for _, m := range s.PaymentMethods {
		if m == PaymentPayPal {
			return true
		}
	}
	return false
}

// Account links a core account to a marketplace seller
type Account struct {
	shared.BaseEntity
	CoreAccountID       string
	MarketplaceSellerID string
	// MarketplaceToken is the seller's API token. It is never logged.
	MarketplaceToken string
	Settings         Settings
	Active           bool
	LastActiveAt     *time.Time
}

// NewAccount creates an active account
func NewAccount(coreAccountID, sellerID string, settings Settings) *Account {
	return &Account{
		BaseEntity:          shared.NewBaseEntity(),
		CoreAccountID:       coreAccountID,
		MarketplaceSellerID: sellerID,
		Settings:            settings,
		Active:              true,
	}
}

// Repository persists accounts
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Account, error)
	FindByCoreAccountID(ctx context.Context, coreAccountID string) (*Account, error)
	ListActive(ctx context.Context) ([]Account, error)
	Save(ctx context.Context, a *Account) error
}
