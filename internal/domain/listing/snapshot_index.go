package listing

import "github.com/Inventorum/ebay-sub000/internal/domain/order"

// PublishedSnapshot indexes the published items of one account as of a
// single moment. A reconciliation run captures it once and resolves every
// record of the run against it.
type PublishedSnapshot struct {
	byCoreID   map[string]*PublishableItem
	byMarketID map[string]*PublishableItem
	bySKU      map[string]*Variation
}

// NewPublishedSnapshot indexes the items. Only published items are kept.
func NewPublishedSnapshot(items []PublishableItem) *PublishedSnapshot {
	s := &PublishedSnapshot{
		byCoreID:   make(map[string]*PublishableItem),
		byMarketID: make(map[string]*PublishableItem),
		bySKU:      make(map[string]*Variation),
	}
	for idx := range items {
		item := &items[idx]
		if !item.IsPublished() {
			continue
		}
		s.byCoreID[item.Snapshot.CoreProductID] = item
		if id := item.MarketplaceItemID(); id != "" {
			s.byMarketID[id] = item
		}
		for _, v := range item.Snapshot.Variations {
			if v.SKU != "" {
				s.bySKU[v.SKU] = &Variation{Item: item, Data: v}
			}
		}
	}
	return s
}

// Len returns the number of published items
func (s *PublishedSnapshot) Len() int {
	return len(s.byCoreID)
}

// ByCoreProductID finds a published main item
func (s *PublishedSnapshot) ByCoreProductID(coreProductID string) (*PublishableItem, bool) {
	item, ok := s.byCoreID[coreProductID]
	return item, ok
}

// VariationOf resolves a variation child through its parent only
func (s *PublishedSnapshot) VariationOf(parentCoreID, childCoreID string) (*Variation, bool) {
	parent, ok := s.byCoreID[parentCoreID]
	if !ok {
		return nil, false
	}
	return parent.Variation(childCoreID)
}

// Orderable resolves a purchased marketplace reference, either a variation
// SKU or a listing id.
func (s *PublishedSnapshot) Orderable(ref string) (order.Orderable, bool) {
	if v, ok := s.bySKU[ref]; ok {
		return v, true
	}
	if item, ok := s.byMarketID[ref]; ok {
		return item, true
	}
	return nil, false
}
