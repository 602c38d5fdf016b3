package listing

import (
	"fmt"
	"strings"

	"github.com/Inventorum/ebay-sub000/internal/domain/account"
	"github.com/shopspring/decimal"
)

// Precondition codes reported by Validate
const (
	PreconditionAlreadyPublished  = "ALREADY_PUBLISHED"
	PreconditionPublishInProgress = "PUBLISH_IN_PROGRESS"
	PreconditionPriceBelowMinimum = "PRICE_BELOW_MINIMUM"
	PreconditionMissingCategory   = "MISSING_CATEGORY"
	PreconditionMissingShipping   = "MISSING_SHIPPING_SERVICE"
	PreconditionMissingBilling    = "MISSING_BILLING_ADDRESS"
	PreconditionMissingPayment    = "MISSING_PAYMENT_METHOD"
	PreconditionMissingPayPalMail = "MISSING_PAYPAL_EMAIL"
)

// PreconditionFailure names one unmet publish precondition
type PreconditionFailure struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationError lists every unmet precondition at once
type ValidationError struct {
	Failures []PreconditionFailure
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msgs = append(msgs, f.Code)
	}
	return fmt.Sprintf("listing: publish preconditions not met: %s", strings.Join(msgs, ", "))
}

// Has returns true if the failure code is present
func (e *ValidationError) Has(code string) bool {
	for _, f := range e.Failures {
		if f.Code == code {
			return true
		}
	}
	return false
}

// Validate checks whether the product can be published for the account.
// active is the product's current Draft, InProgress or Published item, if any.
// It returns nil or a *ValidationError.
func Validate(p *CatalogProduct, settings account.Settings, active *PublishableItem, minPrice decimal.Decimal) error {
	var failures []PreconditionFailure
	add := func(code, msg string) {
		failures = append(failures, PreconditionFailure{Code: code, Message: msg})
	}

	if active != nil {
		switch active.Status {
		case StatusPublished:
			add(PreconditionAlreadyPublished, "product is already published")
		case StatusInProgress, StatusDraft:
			add(PreconditionPublishInProgress, "product is being published")
		}
	}
	if p.GrossPrice.LessThan(minPrice) {
		add(PreconditionPriceBelowMinimum, fmt.Sprintf("gross price %s is below the minimum of %s", p.GrossPrice.StringFixed(2), minPrice.StringFixed(2)))
	}
	for _, v := range p.Variations {
		if v.GrossPrice.LessThan(minPrice) {
			add(PreconditionPriceBelowMinimum, fmt.Sprintf("variation %s gross price %s is below the minimum of %s", v.CoreProductID, v.GrossPrice.StringFixed(2), minPrice.StringFixed(2)))
		}
	}
	if p.CategoryID == "" {
		add(PreconditionMissingCategory, "product has no marketplace category")
	}
	if len(settings.ShippingServices) == 0 && !settings.PickupOnly {
		add(PreconditionMissingShipping, "account has no shipping service configured")
	}
	if !settings.BillingAddress.IsComplete() {
		add(PreconditionMissingBilling, "account billing address is missing")
	}
	if len(settings.PaymentMethods) == 0 {
		add(PreconditionMissingPayment, "account has no payment method configured")
	} else if settings.AcceptsPayPal() && settings.PayPalEmail == "" {
		add(PreconditionMissingPayPalMail, "PayPal requires a PayPal email address")
	}

	if len(failures) == 0 {
		return nil
	}
	return &ValidationError{Failures: failures}
}
