package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/domain/account"
	"github.com/Inventorum/ebay-sub000/internal/domain/delta"
	"github.com/Inventorum/ebay-sub000/internal/domain/listing"
	"github.com/Inventorum/ebay-sub000/internal/domain/order"
	"github.com/Inventorum/ebay-sub000/internal/domain/shared"
	"github.com/Inventorum/ebay-sub000/internal/domain/task"
	"github.com/google/uuid"
)

func cloneOrder(o order.Order) order.Order {
	o.LineItems = append([]order.LineItem(nil), o.LineItems...)
	returns := make([]order.ReturnRecord, len(o.Returns))
	for i, r := range o.Returns {
		r.Lines = append([]order.ReturnedLine(nil), r.Lines...)
		returns[i] = r
	}
	o.Returns = returns
	return o
}

func cloneProduct(p listing.CatalogProduct) listing.CatalogProduct {
	p.Variations = append([]listing.ProductVariation(nil), p.Variations...)
	p.Images = append([]string(nil), p.Images...)
	p.Specifics = append([]listing.ItemSpecific(nil), p.Specifics...)
	return p
}

func conflict(kind string, id uuid.UUID) error {
	return fmt.Errorf("%w: %s %s", shared.ErrConcurrencyConflict, kind, id)
}

func notFound(kind string, id any) error {
	return fmt.Errorf("%w: %s %v", shared.ErrNotFound, kind, id)
}

// ---------------------------------------------------------------------------

type accountRepo struct{ v view }

func (r accountRepo) FindByID(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	defer r.v.lock()()
	a, ok := r.v.s.data.accounts[id]
	if !ok {
		return nil, notFound("account", id)
	}
	return &a, nil
}

func (r accountRepo) FindByCoreAccountID(ctx context.Context, coreAccountID string) (*account.Account, error) {
	defer r.v.lock()()
	for _, a := range r.v.s.data.accounts {
		if a.CoreAccountID == coreAccountID {
			return &a, nil
		}
	}
	return nil, notFound("account", coreAccountID)
}

func (r accountRepo) ListActive(ctx context.Context) ([]account.Account, error) {
	defer r.v.lock()()
	out := make([]account.Account, 0)
	for _, a := range r.v.s.data.accounts {
		if a.Active {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r accountRepo) Save(ctx context.Context, a *account.Account) error {
	defer r.v.lock()()
	a.UpdatedAt = r.v.s.now()
	r.v.s.data.accounts[a.ID] = *a
	return nil
}

// ---------------------------------------------------------------------------

type cursorRepo struct{ v view }

func (r cursorRepo) Get(ctx context.Context, accountID uuid.UUID, kind delta.SyncKind) (*delta.SyncCursor, error) {
	defer r.v.lock()()
	c, ok := r.v.s.data.cursors[cursorKey{accountID, kind}]
	if !ok {
		return nil, notFound("cursor", kind)
	}
	return &c, nil
}

func (r cursorRepo) Advance(ctx context.Context, accountID uuid.UUID, kind delta.SyncKind, to time.Time) error {
	defer r.v.lock()()
	key := cursorKey{accountID, kind}
	c, ok := r.v.s.data.cursors[key]
	if ok && c.LastSyncedAt.After(to) {
		return nil
	}
	r.v.s.data.cursors[key] = delta.SyncCursor{AccountID: accountID, Kind: kind, LastSyncedAt: to, UpdatedAt: r.v.s.now()}
	return nil
}

// ---------------------------------------------------------------------------

type orderRepo struct{ v view }

func (r orderRepo) FindByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	defer r.v.lock()()
	o, ok := r.v.s.data.orders[id]
	if !ok {
		return nil, notFound("order", id)
	}
	c := cloneOrder(o)
	return &c, nil
}

func (r orderRepo) find(match func(o *order.Order) bool, key string) (*order.Order, error) {
	defer r.v.lock()()
	for _, o := range r.v.s.data.orders {
		if match(&o) {
			c := cloneOrder(o)
			return &c, nil
		}
	}
	return nil, notFound("order", key)
}

func (r orderRepo) FindByMarketplaceID(ctx context.Context, accountID uuid.UUID, externalID string) (*order.Order, error) {
	return r.find(func(o *order.Order) bool {
		return o.AccountID == accountID && o.ExternalMarketplaceID == externalID
	}, externalID)
}

func (r orderRepo) FindByCoreID(ctx context.Context, accountID uuid.UUID, coreID string) (*order.Order, error) {
	return r.find(func(o *order.Order) bool {
		return o.AccountID == accountID && o.ExternalCoreID != nil && *o.ExternalCoreID == coreID
	}, coreID)
}

func (r orderRepo) Create(ctx context.Context, o *order.Order) error {
	defer r.v.lock()()
	for _, existing := range r.v.s.data.orders {
		if existing.AccountID == o.AccountID && existing.ExternalMarketplaceID == o.ExternalMarketplaceID {
			return fmt.Errorf("%w: order %s", shared.ErrAlreadyExists, o.ExternalMarketplaceID)
		}
	}
	r.v.s.data.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (r orderRepo) Save(ctx context.Context, o *order.Order) error {
	defer r.v.lock()()
	stored, ok := r.v.s.data.orders[o.ID]
	if !ok {
		return notFound("order", o.ID)
	}
	if stored.Version != o.Version {
		return conflict("order", o.ID)
	}
	o.IncrementVersion()
	r.v.s.data.orders[o.ID] = cloneOrder(*o)
	return nil
}

// ---------------------------------------------------------------------------

type productRepo struct{ v view }

func (r productRepo) FindByID(ctx context.Context, id uuid.UUID) (*listing.CatalogProduct, error) {
	defer r.v.lock()()
	p, ok := r.v.s.data.products[id]
	if !ok {
		return nil, notFound("product", id)
	}
	c := cloneProduct(p)
	return &c, nil
}

func (r productRepo) FindByCoreID(ctx context.Context, accountID uuid.UUID, coreProductID string) (*listing.CatalogProduct, error) {
	defer r.v.lock()()
	for _, p := range r.v.s.data.products {
		if p.AccountID == accountID && p.CoreProductID == coreProductID {
			c := cloneProduct(p)
			return &c, nil
		}
	}
	return nil, notFound("product", coreProductID)
}

func (r productRepo) Create(ctx context.Context, p *listing.CatalogProduct) error {
	defer r.v.lock()()
	for _, existing := range r.v.s.data.products {
		if existing.AccountID == p.AccountID && existing.CoreProductID == p.CoreProductID {
			return fmt.Errorf("%w: product %s", shared.ErrAlreadyExists, p.CoreProductID)
		}
	}
	r.v.s.data.products[p.ID] = cloneProduct(*p)
	return nil
}

func (r productRepo) Save(ctx context.Context, p *listing.CatalogProduct) error {
	defer r.v.lock()()
	stored, ok := r.v.s.data.products[p.ID]
	if !ok {
		return notFound("product", p.ID)
	}
	if stored.Version != p.Version {
		return conflict("product", p.ID)
	}
	p.IncrementVersion()
	r.v.s.data.products[p.ID] = cloneProduct(*p)
	return nil
}

// ---------------------------------------------------------------------------

type itemRepo struct{ v view }

func (r itemRepo) FindByID(ctx context.Context, id uuid.UUID) (*listing.PublishableItem, error) {
	defer r.v.lock()()
	item, ok := r.v.s.data.items[id]
	if !ok {
		return nil, notFound("item", id)
	}
	return &item, nil
}

func (r itemRepo) FindActiveByProduct(ctx context.Context, productID uuid.UUID) (*listing.PublishableItem, error) {
	defer r.v.lock()()
	var newest *listing.PublishableItem
	for _, item := range r.v.s.data.items {
		if item.ProductID != productID || item.Status.IsTerminal() {
			continue
		}
		if newest == nil || item.CreatedAt.After(newest.CreatedAt) {
			it := item
			newest = &it
		}
	}
	if newest == nil {
		return nil, notFound("active item of product", productID)
	}
	return newest, nil
}

func (r itemRepo) ListPublished(ctx context.Context, accountID uuid.UUID) ([]listing.PublishableItem, error) {
	defer r.v.lock()()
	out := make([]listing.PublishableItem, 0)
	for _, item := range r.v.s.data.items {
		if item.AccountID == accountID && item.Status == listing.StatusPublished {
			out = append(out, item)
		}
	}
	return out, nil
}

func (r itemRepo) Create(ctx context.Context, item *listing.PublishableItem) error {
	defer r.v.lock()()
	if _, ok := r.v.s.data.items[item.ID]; ok {
		return fmt.Errorf("%w: item %s", shared.ErrAlreadyExists, item.ID)
	}
	r.v.s.data.items[item.ID] = *item
	return nil
}

func (r itemRepo) Save(ctx context.Context, item *listing.PublishableItem) error {
	defer r.v.lock()()
	stored, ok := r.v.s.data.items[item.ID]
	if !ok {
		return notFound("item", item.ID)
	}
	if stored.Version != item.Version {
		return conflict("item", item.ID)
	}
	item.IncrementVersion()
	r.v.s.data.items[item.ID] = *item
	return nil
}

// ---------------------------------------------------------------------------

type dirtyRepo struct{ v view }

func (r dirtyRepo) Mark(ctx context.Context, entityType string, entityID uuid.UUID, at time.Time) error {
	defer r.v.lock()()
	r.v.s.data.dirty[dirtyKey{entityType, entityID}] = listing.DirtyMark{EntityType: entityType, EntityID: entityID, MarkedAt: at}
	return nil
}

func (r dirtyRepo) List(ctx context.Context, limit int) ([]listing.DirtyMark, error) {
	return r.list(func(listing.DirtyMark) bool { return true }, limit), nil
}

func (r dirtyRepo) ListStuckItems(ctx context.Context, cutoff time.Time, limit int) ([]listing.DirtyMark, error) {
	return r.list(func(m listing.DirtyMark) bool {
		if m.EntityType != listing.EntityTypeItem || !m.MarkedAt.Before(cutoff) {
			return false
		}
		item, ok := r.v.s.data.items[m.EntityID]
		return ok && item.Status == listing.StatusInProgress
	}, limit), nil
}

func (r dirtyRepo) list(match func(listing.DirtyMark) bool, limit int) []listing.DirtyMark {
	defer r.v.lock()()
	out := make([]listing.DirtyMark, 0)
	for _, m := range r.v.s.data.dirty {
		if match(m) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarkedAt.Before(out[j].MarkedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r dirtyRepo) Clear(ctx context.Context, entityType string, entityID uuid.UUID, markedAt time.Time) (bool, error) {
	defer r.v.lock()()
	key := dirtyKey{entityType, entityID}
	m, ok := r.v.s.data.dirty[key]
	if !ok {
		return true, nil
	}
	if !m.MarkedAt.Equal(markedAt) {
		return false, nil
	}
	delete(r.v.s.data.dirty, key)
	return true, nil
}

// ---------------------------------------------------------------------------

type taskRepo struct{ v view }

func (r taskRepo) Enqueue(ctx context.Context, t *task.Task) (bool, error) {
	defer r.v.lock()()
	if t.IdempotencyKey != nil {
		if _, ok := r.v.s.data.taskKeys[*t.IdempotencyKey]; ok {
			return false, nil
		}
		r.v.s.data.taskKeys[*t.IdempotencyKey] = t.ID
	}
	r.v.s.data.tasks[t.ID] = *t
	return true, nil
}

func (r taskRepo) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*task.Task, error) {
	defer r.v.lock()()
	due := make([]task.Task, 0)
	for _, t := range r.v.s.data.tasks {
		pending := t.Status == task.StatusPending && !t.NextRunAt.After(now)
		expired := t.Status == task.StatusProcessing && t.LockedUntil != nil && t.LockedUntil.Before(now)
		if pending || expired {
			due = append(due, t)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextRunAt.Before(due[j].NextRunAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	out := make([]*task.Task, 0, len(due))
	for i := range due {
		t := due[i]
		t.Claim(now, lease)
		r.v.s.data.tasks[t.ID] = t
		out = append(out, &t)
	}
	return out, nil
}

func (r taskRepo) Update(ctx context.Context, t *task.Task) error {
	defer r.v.lock()()
	if _, ok := r.v.s.data.tasks[t.ID]; !ok {
		return notFound("task", t.ID)
	}
	r.v.s.data.tasks[t.ID] = *t
	return nil
}

func (r taskRepo) FindByID(ctx context.Context, id uuid.UUID) (*task.Task, error) {
	defer r.v.lock()()
	t, ok := r.v.s.data.tasks[id]
	if !ok {
		return nil, notFound("task", id)
	}
	return &t, nil
}

func (r taskRepo) FindByEntity(ctx context.Context, entityType string, entityID uuid.UUID) ([]*task.Task, error) {
	defer r.v.lock()()
	out := make([]*task.Task, 0)
	for _, t := range r.v.s.data.tasks {
		if t.EntityType == entityType && t.EntityID == entityID {
			tc := t
			out = append(out, &tc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r taskRepo) DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error) {
	defer r.v.lock()()
	var n int64
	for id, t := range r.v.s.data.tasks {
		if t.Status == task.StatusDone && t.CompletedAt != nil && t.CompletedAt.Before(before) {
			delete(r.v.s.data.tasks, id)
			n++
		}
	}
	return n, nil
}

func (r taskRepo) CountByStatus(ctx context.Context) (map[task.Status]int64, error) {
	defer r.v.lock()()
	out := make(map[task.Status]int64)
	for _, t := range r.v.s.data.tasks {
		out[t.Status]++
	}
	return out, nil
}

var (
	_ account.Repository        = accountRepo{}
	_ delta.CursorRepository    = cursorRepo{}
	_ order.Repository          = orderRepo{}
	_ listing.ProductRepository = productRepo{}
	_ listing.ItemRepository    = itemRepo{}
	_ listing.DirtyRepository   = dirtyRepo{}
	_ task.Repository           = taskRepo{}
)
