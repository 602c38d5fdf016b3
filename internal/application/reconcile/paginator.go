package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/domain/delta"
)

// DefaultPageLimit is used when no page size is configured
const DefaultPageLimit = 100

// ErrNoMorePages is returned by Next after the last page
var ErrNoMorePages = errors.New("paginator: no more pages")

// DecodeFunc turns one raw record into a typed record
type DecodeFunc[R any] func(raw json.RawMessage) (R, error)

// Paginator walks a delta endpoint page by page. The first page is fetched
// on construction since its total decides how many pages follow. Records
// that fail to decode are returned in DeltaPage.Rejected. A
// paginator is not restartable; build a new one with the same since.
type Paginator[R any] struct {
	source delta.PageSource
	decode DecodeFunc[R]
	since  time.Time
	limit  int

	first      *delta.DeltaPage[R]
	totalItems int
	totalPages int
	next       int
}

// NewPaginator fetches the first page and returns a paginator positioned
// before it.
func NewPaginator[R any](ctx context.Context, source delta.PageSource, decode DecodeFunc[R], since time.Time, limit int) (*Paginator[R], error) {
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	p := &Paginator[R]{
		source: source,
		decode: decode,
		since:  since,
		limit:  limit,
		next:   1,
	}

	first, total, err := p.fetch(ctx, 1)
	if err != nil {
		return nil, err
	}
	p.first = first
	p.totalItems = total
	p.totalPages = (total + limit - 1) / limit
	if p.totalPages < 1 {
		p.totalPages = 1
	}
	return p, nil
}

// TotalItems is the record count reported by the first page
func (p *Paginator[R]) TotalItems() int {
	return p.totalItems
}

// TotalPages is ceil(TotalItems / limit), at least 1
func (p *Paginator[R]) TotalPages() int {
	return p.totalPages
}

// HasNext returns true while pages remain
func (p *Paginator[R]) HasNext() bool {
	return p.next <= p.totalPages
}

// Next returns the next page. Pages after the first are fetched lazily.
func (p *Paginator[R]) Next(ctx context.Context) (*delta.DeltaPage[R], error) {
	if !p.HasNext() {
		return nil, ErrNoMorePages
	}
	if p.next == 1 {
		p.next++
		page := p.first
		p.first = nil
		return page, nil
	}
	page, _, err := p.fetch(ctx, p.next)
	if err != nil {
		return nil, err
	}
	p.next++
	return page, nil
}

// All iterates the remaining pages. Iteration stops after the first error.
func (p *Paginator[R]) All(ctx context.Context) iter.Seq2[*delta.DeltaPage[R], error] {
	return func(yield func(*delta.DeltaPage[R], error) bool) {
		for p.HasNext() {
			page, err := p.Next(ctx)
			if !yield(page, err) || err != nil {
				return
			}
		}
	}
}

func (p *Paginator[R]) fetch(ctx context.Context, number int) (*delta.DeltaPage[R], int, error) {
	raw, err := p.source.FetchPage(ctx, delta.PageRequest{Since: p.since, Page: number, Limit: p.limit})
	if err != nil {
		return nil, 0, fmt.Errorf("fetch page %d: %w", number, err)
	}
	if raw == nil || raw.Total == nil || raw.Data == nil {
		return nil, 0, fmt.Errorf("%w: page %d lacks total or data", delta.ErrMalformedResponse, number)
	}

	page := &delta.DeltaPage[R]{PageNumber: number, Raw: raw.Body, Records: make([]R, 0, len(raw.Data))}
	for i, item := range raw.Data {
		if err, ok := raw.Invalid[i]; ok {
			page.Rejected = append(page.Rejected, delta.RecordError{Page: number, Index: i, Err: err})
			continue
		}
		rec, err := p.decode(item)
		if err != nil {
			page.Rejected = append(page.Rejected, delta.RecordError{
				Page:  number,
				Index: i,
				Err:   fmt.Errorf("%w: %v", delta.ErrMalformedResponse, err),
			})
			continue
		}
		page.Records = append(page.Records, rec)
	}

	return page, *raw.Total, nil
}
