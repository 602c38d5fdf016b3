package delta

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/domain/shared"
)

// ErrMalformedResponse is returned when a delta page lacks its total or data
// field, which aborts the run, or wrapped by a RecordError when a single
// record cannot be decoded.
var ErrMalformedResponse = shared.NewDomainError("MALFORMED_RESPONSE", "delta page response is malformed")

// PageRequest is an idempotent request for one page of deltas
type PageRequest struct {
	Since time.Time
	Page  int
	Limit int
}

// RawPage is one undecoded page as returned by a PageSource. Total and Data
// are nil when the corresponding field was absent from the response.
type RawPage struct {
	Total *int
	Data  []json.RawMessage
	Body  []byte
	// Invalid maps indexes into Data to the reason the source refused them
	Invalid map[int]error
}

// PageSource fetches pages of a remote delta endpoint
type PageSource interface {
	FetchPage(ctx context.Context, req PageRequest) (*RawPage, error)
}

// DeltaPage is a decoded page. It is never persisted.
type DeltaPage[R any] struct {
	PageNumber int
	Raw        []byte
	Records    []R
	// Rejected holds the records of the page that could not be decoded
	Rejected []RecordError
}

// RecordError is one undecodable record of a page
type RecordError struct {
	Page  int
	Index int
	Err   error
}

func (e RecordError) Error() string {
	return fmt.Sprintf("page %d record %d: %v", e.Page, e.Index, e.Err)
}

func (e RecordError) Unwrap() error {
	return e.Err
}
