package delta

import "fmt"

// SyncKind identifies a delta feed
type SyncKind string

const (
	KindProductsFromCore      SyncKind = "products_from_core"
	KindOrdersFromMarketplace SyncKind = "orders_from_marketplace"
	KindOrdersFromCore        SyncKind = "orders_from_core"
	KindReturnsFromCore       SyncKind = "returns_from_core"
)

// AllKinds lists every sync kind in the order a full sweep runs them
var AllKinds = []SyncKind{
	KindProductsFromCore,
	KindOrdersFromMarketplace,
	KindOrdersFromCore,
	KindReturnsFromCore,
}

// IsValid returns true if the kind is known
func (k SyncKind) IsValid() bool {
	switch k {
	case KindProductsFromCore, KindOrdersFromMarketplace, KindOrdersFromCore, KindReturnsFromCore:
		return true
	default:
		return false
	}
}

// String returns the string representation of SyncKind
func (k SyncKind) String() string {
	return string(k)
}

// ParseSyncKind converts a string into a SyncKind
func ParseSyncKind(s string) (SyncKind, error) {
	k := SyncKind(s)
	if !k.IsValid() {
		return "", fmt.Errorf("delta: unknown sync kind %q", s)
	}
	return k, nil
}
