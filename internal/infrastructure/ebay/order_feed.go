package ebay

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

// OrderFeed pages through the orders of one seller modified since a point
// in time. It is the orders_from_marketplace delta source.
type OrderFeed struct {
	client *Client
	acct   *account.Account
}

// OrderFeed returns the order delta feed of acct
func (c *Client) OrderFeed(acct *account.Account) delta.PageSource {
	return &OrderFeed{client: c, acct: acct}
}

type feedPage struct {
	Total *int              `json:"total"`
	Data  []json.RawMessage `json:"data"`
}

// FetchPage implements delta.PageSource
func (f *OrderFeed) FetchPage(ctx context.Context, req delta.PageRequest) (*delta.RawPage, error) {
	q := url.Values{}
	q.Set("modified_since", req.Since.UTC().Format(time.RFC3339Nano))
	q.Set("page", strconv.Itoa(req.Page))
	q.Set("limit", strconv.Itoa(req.Limit))

	body, err := f.client.send(ctx, f.acct, http.MethodGet, "/orders/delta?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var page feedPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("%w: %v", delta.ErrMalformedResponse, err)
	}
	return &delta.RawPage{Total: page.Total, Data: page.Data, Body: body}, nil
}

var _ delta.PageSource = (*OrderFeed)(nil)
