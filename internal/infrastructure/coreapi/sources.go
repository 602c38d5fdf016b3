package coreapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/domain/account"
	"github.com/Inventorum/ebay-sub000/internal/domain/delta"
)

// deltaPaths are the core delta endpoints, relative to the account
var deltaPaths = map[delta.SyncKind]string{
	delta.KindProductsFromCore: "/products/delta",
	delta.KindOrdersFromCore:   "/orders/delta",
	delta.KindReturnsFromCore:  "/returns/delta",
}

// DeltaSource pages through one core delta endpoint for one account
type DeltaSource struct {
	client        *Client
	coreAccountID string
	kind          delta.SyncKind
}

// DeltaSource returns the core feed of kind for coreAccountID
func (c *Client) DeltaSource(coreAccountID string, kind delta.SyncKind) (*DeltaSource, error) {
	if _, ok := deltaPaths[kind]; !ok {
		return nil, fmt.Errorf("coreapi: %s is not a core feed", kind)
	}
	return &DeltaSource{client: c, coreAccountID: coreAccountID, kind: kind}, nil
}

type envelope struct {
	Total *int              `json:"total"`
	Data  []json.RawMessage `json:"data"`
}

// FetchPage implements delta.PageSource
func (s *DeltaSource) FetchPage(ctx context.Context, req delta.PageRequest) (*delta.RawPage, error) {
	q := url.Values{}
	q.Set("since", req.Since.UTC().Format(time.RFC3339Nano))
	q.Set("page", strconv.Itoa(req.Page))
	q.Set("limit", strconv.Itoa(req.Limit))

	path := "/accounts/" + url.PathEscape(s.coreAccountID) + deltaPaths[s.kind]
	body, err := s.client.send(ctx, s.coreAccountID, http.MethodGet, path, q, nil)
	if err != nil {
		return nil, err
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", delta.ErrMalformedResponse, err)
	}
	return &delta.RawPage{Total: env.Total, Data: env.Data, Body: body}, nil
}

// ValidatingSource checks every page against the kind's schema before
// handing it on. Records violating their schema are flagged in
// RawPage.Invalid.
type ValidatingSource struct {
	inner   delta.PageSource
	kind    delta.SyncKind
	schemas *Schemas
}

// NewValidatingSource wraps inner
func NewValidatingSource(inner delta.PageSource, kind delta.SyncKind, schemas *Schemas) *ValidatingSource {
	return &ValidatingSource{inner: inner, kind: kind, schemas: schemas}
}

// FetchPage implements delta.PageSource
func (s *ValidatingSource) FetchPage(ctx context.Context, req delta.PageRequest) (*delta.RawPage, error) {
	page, err := s.inner.FetchPage(ctx, req)
	if err != nil {
		return nil, err
	}
	invalid, err := s.schemas.ValidatePage(s.kind, page.Body)
	if err != nil {
		return nil, fmt.Errorf("%s page %d: %w", s.kind, req.Page, err)
	}
	for i, verr := range invalid {
		if page.Invalid == nil {
			page.Invalid = make(map[int]error, len(invalid))
		}
		page.Invalid[i] = verr
	}
	return page, nil
}

// MarketplaceFeed supplies the marketplace side order feed
type MarketplaceFeed interface {
	OrderFeed(acct *account.Account) delta.PageSource
}

// Sources routes every sync kind to its feed: core kinds to the core API,
// orders_from_marketplace to the marketplace. All pages are validated.
type Sources struct {
	core        *Client
	marketplace MarketplaceFeed
	schemas     *Schemas
}

// NewSources creates the provider. marketplace may be nil when the
// marketplace feed is not in use.
func NewSources(core *Client, marketplace MarketplaceFeed) (*Sources, error) {
	schemas, err := LoadSchemas()
	if err != nil {
		return nil, err
	}
	return &Sources{core: core, marketplace: marketplace, schemas: schemas}, nil
}

// Source returns the validated feed of kind for acct
func (s *Sources) Source(acct *account.Account, kind delta.SyncKind) (delta.PageSource, error) {
	if kind == delta.KindOrdersFromMarketplace {
		if s.marketplace == nil {
			return nil, fmt.Errorf("coreapi: no marketplace feed configured")
		}
		return NewValidatingSource(s.marketplace.OrderFeed(acct), kind, s.schemas), nil
	}
	src, err := s.core.DeltaSource(acct.CoreAccountID, kind)
	if err != nil {
		return nil, err
	}
	return NewValidatingSource(src, kind, s.schemas), nil
}

var (
	_ delta.PageSource = (*DeltaSource)(nil)
	_ delta.PageSource = (*ValidatingSource)(nil)
)
