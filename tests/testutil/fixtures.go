package testutil

import (
	"context"
	"testing"

	"github.com/Inventorum/ebay-sub000/internal/domain/account"
	"github.com/Inventorum/ebay-sub000/internal/domain/core"
	"github.com/Inventorum/ebay-sub000/internal/domain/listing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// ListableSettings returns account settings that satisfy every publish
// precondition.
func ListableSettings() account.Settings {
	return account.Settings{
		BillingAddress: &account.Address{
			Name:       "Test Shop GmbH",
			Street:     "Voltastr. 5",
			PostalCode: "13355",
			City:       "Berlin",
			Country:    "DE",
		},
		PaymentMethods: []string{account.PaymentPayPal, account.PaymentMoneyXferAcc},
		PayPalEmail:    "paypal@test-shop.example",
		ShippingServices: []account.ShippingService{
			{Code: "DE_DHLPaket", Cost: decimal.RequireFromString("4.90")},
		},
		Country:  "DE",
		Currency: "EUR",
	}
}

// NewListableAccount returns an active account with ListableSettings
func NewListableAccount() *account.Account {
	return account.NewAccount("core-"+uuid.New().String()[:8], "seller-1", ListableSettings())
}

// NewCoreProduct returns a listable core product
func NewCoreProduct(id, grossPrice string) *core.Product {
	return &core.Product{
		ID:         id,
		Name:       "Product " + id,
		GrossPrice: decimal.RequireFromString(grossPrice),
		Quantity:   decimal.NewFromInt(10),
		TaxRate:    decimal.NewFromInt(19),
		CategoryID: "176973",
		Images:     []string{"https://images.example/" + id + ".jpg"},
	}
}

// AccountSaver is the part of an account repository fixtures need
type AccountSaver interface {
	Save(ctx context.Context, a *account.Account) error
}

// SeedAccount stores a listable account
func SeedAccount(t *testing.T, repo AccountSaver) *account.Account {
	t.Helper()
	acct := NewListableAccount()
	require.NoError(t, repo.Save(context.Background(), acct))
	return acct
}

// ItemCreator is the part of an item repository fixtures need
type ItemCreator interface {
	Create(ctx context.Context, item *listing.PublishableItem) error
}

// ProductCreator is the part of a product repository fixtures need
type ProductCreator interface {
	Create(ctx context.Context, p *listing.CatalogProduct) error
}

// SeedPublishedItem stores a catalog product and a Published item for it.
// variations are core product ids of variation children.
func SeedPublishedItem(t *testing.T, products ProductCreator, items ItemCreator, acct *account.Account, coreProductID, listingID string, variations ...string) (*listing.CatalogProduct, *listing.PublishableItem) {
	t.Helper()
	ctx := context.Background()

	cp := NewCoreProduct(coreProductID, "12.50")
	product := listing.NewCatalogProduct(acct.ID, cp.ID, cp.Name, cp.GrossPrice, cp.Quantity)
	product.TaxRate = cp.TaxRate
	product.CategoryID = cp.CategoryID
	for _, v := range variations {
		product.Variations = append(product.Variations, listing.ProductVariation{
			ID:             uuid.New(),
			CoreProductID:  v,
			Name:           "Variation " + v,
			GrossPrice:     cp.GrossPrice,
			Quantity:       decimal.NewFromInt(3),
			MarketplaceSKU: "SKU-" + v,
		})
	}
	require.NoError(t, products.Create(ctx, product))

	item := listing.NewPublishableItem(acct.ID, product.ID, listing.NewSnapshot(product, acct.Settings))
	require.NoError(t, item.StartPublishing())
	require.NoError(t, item.MarkPublished(listingID, item.CreatedAt, nil))
	require.NoError(t, items.Create(ctx, item))
	return product, item
}
