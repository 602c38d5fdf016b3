package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/domain/delta"
	"github.com/Inventorum/ebay-sub000/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func productRecords(n int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = map[string]any{"id": "p-" + string(rune('a'+i%26)), "name": "x", "gross_price": "1", "quantity": "1"}
	}
	return out
}

func TestPaginator_Pages(t *testing.T) {
	ctx := context.Background()
	since := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	source := testutil.NewFakePageSource(productRecords(250)...)

	p, err := NewPaginator(ctx, source, DecodeProduct, since, 100)
	require.NoError(t, err)
	assert.Len(t, source.Requests(), 1, "first page is fetched on construction")
	assert.Equal(t, 250, p.TotalItems())
	assert.Equal(t, 3, p.TotalPages())

	var sizes []int
	for page, err := range p.All(ctx) {
		require.NoError(t, err)
		sizes = append(sizes, len(page.Records))
	}
	assert.Equal(t, []int{100, 100, 50}, sizes)

	reqs := source.Requests()
	require.Len(t, reqs, 3)
	for i, r := range reqs {
		assert.Equal(t, i+1, r.Page)
		assert.Equal(t, 100, r.Limit)
		assert.True(t, r.Since.Equal(since))
	}

	assert.False(t, p.HasNext())
	_, err = p.Next(ctx)
	assert.ErrorIs(t, err, ErrNoMorePages)
}

func TestPaginator_EmptyResultHasOnePage(t *testing.T) {
	ctx := context.Background()
	p, err := NewPaginator(ctx, testutil.NewFakePageSource(), DecodeProduct, time.Now(), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, p.TotalItems())
	assert.Equal(t, 1, p.TotalPages())

	page, err := p.Next(ctx)
	require.NoError(t, err)
	assert.Empty(t, page.Records)
	assert.False(t, p.HasNext())
}

func TestPaginator_MalformedResponses(t *testing.T) {
	ctx := context.Background()

	t.Run("missing total", func(t *testing.T) {
		source := testutil.NewFakePageSource(productRecords(1)...)
		source.OmitTotal = true
		_, err := NewPaginator(ctx, source, DecodeProduct, time.Now(), 10)
		assert.ErrorIs(t, err, delta.ErrMalformedResponse)
	})


	t.Run("later page fails", func(t *testing.T) {
		boom := errors.New("connection reset")
		source := testutil.NewFakePageSource(productRecords(15)...)
		source.FailPage(2, boom)
		p, err := NewPaginator(ctx, source, DecodeProduct, time.Now(), 10)
		require.NoError(t, err)

		var pages int
		var last error
		for _, err := range p.All(ctx) {
			if err != nil {
				last = err
				break
			}
			pages++
		}
		assert.Equal(t, 1, pages)
		assert.ErrorIs(t, last, boom)
	})
}

func TestPaginator_UndecodableRecords(t *testing.T) {
	ctx := context.Background()
	good := map[string]any{"id": "p-1", "name": "x", "gross_price": "1", "quantity": "1"}
	bad := json.RawMessage(`{"name":"no id"}`)

	tests := []struct {
		name         string
		records      []any
		wantRecords  int
		wantRejected []int
	}{
		{name: "only record is undecodable", records: []any{bad}, wantRejected: []int{0}},
		{name: "bad record among good ones", records: []any{good, bad, good}, wantRecords: 2, wantRejected: []int{1}},
		{name: "all records decode", records: []any{good, good}, wantRecords: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPaginator(ctx, testutil.NewFakePageSource(tt.records...), DecodeProduct, time.Now(), 10)
			require.NoError(t, err)

			page, err := p.Next(ctx)
			require.NoError(t, err)
			assert.Len(t, page.Records, tt.wantRecords)

			var indexes []int
			for _, rejected := range page.Rejected {
				assert.ErrorIs(t, rejected, delta.ErrMalformedResponse)
				assert.Equal(t, 1, rejected.Page)
				indexes = append(indexes, rejected.Index)
			}
			assert.Equal(t, tt.wantRejected, indexes)
		})
	}
}

// flaggingSource serves one page whose second record the source refused
type flaggingSource struct{}

func (flaggingSource) FetchPage(ctx context.Context, req delta.PageRequest) (*delta.RawPage, error) {
	total := 2
	return &delta.RawPage{
		Total:   &total,
		Data:    []json.RawMessage{json.RawMessage(`{"id":"p-1"}`), json.RawMessage(`{"id":"p-2"}`)},
		Invalid: map[int]error{1: delta.ErrMalformedResponse},
	}, nil
}

func TestPaginator_SourceFlaggedRecords(t *testing.T) {
	ctx := context.Background()
	p, err := NewPaginator(ctx, flaggingSource{}, DecodeProduct, time.Now(), 10)
	require.NoError(t, err)

	page, err := p.Next(ctx)
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, "p-1", page.Records[0].RemoteID)
	require.Len(t, page.Rejected, 1)
	assert.Equal(t, 1, page.Rejected[0].Index)
	assert.ErrorIs(t, page.Rejected[0], delta.ErrMalformedResponse)
}

func TestDecodeProduct(t *testing.T) {
	d, err := DecodeProduct(json.RawMessage(`{"id":"p-1","parent":"p-0","gross_price":"9.90","quantity":"2"}`))
	require.NoError(t, err)
	assert.Equal(t, delta.RecordStateUpdated, d.State)
	assert.True(t, d.IsVariation())

	_, err = DecodeProduct(json.RawMessage(`{"id":"p-1","state":"exploded"}`))
	assert.Error(t, err)
}
