// Package testutil holds the fakes and fixtures shared by the engine tests:
// marketplace and core clients that record calls, scripted delta page
// sources and seeded accounts and listings.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/domain/account"
	"github.com/Inventorum/ebay-sub000/internal/domain/core"
	"github.com/Inventorum/ebay-sub000/internal/domain/listing"
	"github.com/Inventorum/ebay-sub000/internal/domain/marketplace"
	"github.com/Inventorum/ebay-sub000/internal/domain/order"
	"github.com/Inventorum/ebay-sub000/internal/domain/shared"
)

// Call records one invocation of a fake client
type Call struct {
	Method    string
	AccountID string
	Target    string
	Args      any
}

// callLog is the recording and error-queue part shared by the fakes
type callLog struct {
	mu    sync.Mutex
	calls []Call
	errs  map[string][]error
}

func (l *callLog) record(c Call) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, c)
	queue := l.errs[c.Method]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	l.errs[c.Method] = queue[1:]
	return err
}

// FailNext queues errors returned by the next calls of method, in order.
// Once the queue is drained calls succeed again.
func (l *callLog) FailNext(method string, errs ...error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.errs == nil {
		l.errs = make(map[string][]error)
	}
	l.errs[method] = append(l.errs[method], errs...)
}

// Calls returns the recorded calls of method, or all calls if method is empty
func (l *callLog) Calls(method string) []Call {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Call, 0, len(l.calls))
	for _, c := range l.calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// CallCount returns how often method was called
func (l *callLog) CallCount(method string) int {
	return len(l.Calls(method))
}

// Reset forgets calls and queued errors
func (l *callLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = nil
	l.errs = nil
}

// FakeMarketplace records marketplace calls in memory
type FakeMarketplace struct {
	callLog

	gateMu  sync.Mutex
	gate     chan struct{}
	entered  chan struct{}
	seq      int
	listings map[string]*marketplace.Listing
	lostNext []error
}

// NewFakeMarketplace creates a fake that accepts every call
func NewFakeMarketplace() *FakeMarketplace {
	return &FakeMarketplace{}
}

// BlockPublish makes PublishListing wait until release is called. entered
// receives once per call that reached the fake.
func (f *FakeMarketplace) BlockPublish() (entered <-chan struct{}, release func()) {
	f.gateMu.Lock()
	defer f.gateMu.Unlock()
	f.gate = make(chan struct{})
	f.entered = make(chan struct{}, 64)
	gate := f.gate
	var once sync.Once
	return f.entered, func() { once.Do(func() { close(gate) }) }
}

// LoseNextPublishReplies makes the next PublishListing calls create their
// listing and then fail with errs, as when the answer is lost in transit.
func (f *FakeMarketplace) LoseNextPublishReplies(errs ...error) {
	f.gateMu.Lock()
	defer f.gateMu.Unlock()
	f.lostNext = append(f.lostNext, errs...)
}

// ListingsCreated returns how many distinct listings PublishListing created
func (f *FakeMarketplace) ListingsCreated() int {
	f.gateMu.Lock()
	defer f.gateMu.Unlock()
	return len(f.listings)
}

// PublishListing implements marketplace.Client. A repeated requestID
// answers with the listing already created for it.
func (f *FakeMarketplace) PublishListing(ctx context.Context, acct *account.Account, requestID string, snapshot listing.ListingSnapshot) (*marketplace.Listing, error) {
	f.gateMu.Lock()
	gate, entered := f.gate, f.entered
	f.gateMu.Unlock()
	if gate != nil {
		entered <- struct{}{}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err := f.record(Call{Method: "PublishListing", AccountID: acct.ID.String(), Target: snapshot.CoreProductID, Args: snapshot}); err != nil {
		return nil, err
	}
	f.gateMu.Lock()
	if f.listings == nil {
		f.listings = make(map[string]*marketplace.Listing)
	}
	l, ok := f.listings[requestID]
	if !ok {
		f.seq++
		now := time.Now()
		ends := now.Add(30 * 24 * time.Hour)
		l = &marketplace.Listing{ItemID: fmt.Sprintf("1100%08d", f.seq), StartedAt: now, EndsAt: &ends}
		f.listings[requestID] = l
	}
	var lost error
	if len(f.lostNext) > 0 {
		lost, f.lostNext = f.lostNext[0], f.lostNext[1:]
	}
	f.gateMu.Unlock()

	if lost != nil {
		return nil, lost
	}
	out := *l
	return &out, nil
}

// EndListing implements marketplace.Client
func (f *FakeMarketplace) EndListing(ctx context.Context, acct *account.Account, itemID string) error {
	return f.record(Call{Method: "EndListing", AccountID: acct.ID.String(), Target: itemID})
}

// ReviseListing implements marketplace.Client
func (f *FakeMarketplace) ReviseListing(ctx context.Context, acct *account.Account, itemID string, snapshot listing.ListingSnapshot) error {
	return f.record(Call{Method: "ReviseListing", AccountID: acct.ID.String(), Target: itemID, Args: snapshot})
}

// PushOrderStatus implements marketplace.Client
func (f *FakeMarketplace) PushOrderStatus(ctx context.Context, acct *account.Account, orderID string, status order.OrderStatus) error {
	return f.record(Call{Method: "PushOrderStatus", AccountID: acct.ID.String(), Target: orderID, Args: status})
}

// SendPickupEvent implements marketplace.Client
func (f *FakeMarketplace) SendPickupEvent(ctx context.Context, acct *account.Account, orderID string, event order.PickupEvent) error {
	return f.record(Call{Method: "SendPickupEvent", AccountID: acct.ID.String(), Target: orderID, Args: event})
}

// IssueRefund implements marketplace.Client
func (f *FakeMarketplace) IssueRefund(ctx context.Context, acct *account.Account, refund marketplace.Refund) error {
	return f.record(Call{Method: "IssueRefund", AccountID: acct.ID.String(), Target: refund.OrderID, Args: refund})
}

// FakeCore records core calls in memory and serves products from a map
type FakeCore struct {
	callLog

	prodMu   sync.Mutex
	products map[string]*core.Product
	orders   map[string]*core.CreatedOrder
	lostNext []error
	seq      int
}

// NewFakeCore creates a fake core without products
func NewFakeCore() *FakeCore {
	return &FakeCore{products: make(map[string]*core.Product), orders: make(map[string]*core.CreatedOrder)}
}

// LoseNextCreateOrderReplies makes the next CreateOrder calls create their
// order and then fail with errs
func (f *FakeCore) LoseNextCreateOrderReplies(errs ...error) {
	f.prodMu.Lock()
	defer f.prodMu.Unlock()
	f.lostNext = append(f.lostNext, errs...)
}

// OrdersCreated returns how many orders CreateOrder stored
func (f *FakeCore) OrdersCreated() int {
	f.prodMu.Lock()
	defer f.prodMu.Unlock()
	return len(f.orders)
}

// AddProduct makes GetProduct return p
func (f *FakeCore) AddProduct(p *core.Product) {
	f.prodMu.Lock()
	defer f.prodMu.Unlock()
	f.products[p.ID] = p
}

// PushProductState implements core.Client
func (f *FakeCore) PushProductState(ctx context.Context, coreAccountID, coreProductID string, state core.ProductState) error {
	return f.record(Call{Method: "PushProductState", AccountID: coreAccountID, Target: coreProductID, Args: state})
}

// CreateOrder implements core.Client
func (f *FakeCore) CreateOrder(ctx context.Context, coreAccountID string, o core.NewOrder) (*core.CreatedOrder, error) {
	if err := f.record(Call{Method: "CreateOrder", AccountID: coreAccountID, Target: o.MarketplaceOrderID, Args: o}); err != nil {
		return nil, err
	}
	f.prodMu.Lock()
	defer f.prodMu.Unlock()
	f.seq++
	created := &core.CreatedOrder{CoreID: fmt.Sprintf("core-order-%d", f.seq), LineItemIDs: make(map[string]string)}
	for _, l := range o.Lines {
		created.LineItemIDs[l.ExternalID] = "core-line-" + l.ExternalID
	}
	f.orders[coreAccountID+"/"+o.MarketplaceOrderID] = created
	if len(f.lostNext) > 0 {
		err := f.lostNext[0]
		f.lostNext = f.lostNext[1:]
		return nil, err
	}
	return created, nil
}

// FindOrder implements core.Client
func (f *FakeCore) FindOrder(ctx context.Context, coreAccountID, marketplaceOrderID string) (*core.CreatedOrder, error) {
	if err := f.record(Call{Method: "FindOrder", AccountID: coreAccountID, Target: marketplaceOrderID}); err != nil {
		return nil, err
	}
	f.prodMu.Lock()
	defer f.prodMu.Unlock()
	created, ok := f.orders[coreAccountID+"/"+marketplaceOrderID]
	if !ok {
		return nil, fmt.Errorf("%w: core order for %s", shared.ErrNotFound, marketplaceOrderID)
	}
	cp := *created
	return &cp, nil
}

// UpdateOrderStatus implements core.Client
func (f *FakeCore) UpdateOrderStatus(ctx context.Context, coreAccountID, coreOrderID string, status order.OrderStatus) error {
	return f.record(Call{Method: "UpdateOrderStatus", AccountID: coreAccountID, Target: coreOrderID, Args: status})
}

// GetProduct implements core.Client
func (f *FakeCore) GetProduct(ctx context.Context, coreAccountID, coreProductID string) (*core.Product, error) {
	if err := f.record(Call{Method: "GetProduct", AccountID: coreAccountID, Target: coreProductID}); err != nil {
		return nil, err
	}
	f.prodMu.Lock()
	defer f.prodMu.Unlock()
	p, ok := f.products[coreProductID]
	if !ok {
		return nil, fmt.Errorf("%w: core product %s", shared.ErrNotFound, coreProductID)
	}
	cp := *p
	return &cp, nil
}

var (
	_ marketplace.Client = (*FakeMarketplace)(nil)
	_ core.Client        = (*FakeCore)(nil)
)
