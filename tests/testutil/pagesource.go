package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Inventorum/ebay-sub000/internal/domain/account"
	"github.com/Inventorum/ebay-sub000/internal/domain/delta"
)

// FakePageSource serves a fixed record list as delta pages
type FakePageSource struct {
	mu       sync.Mutex
	records  []json.RawMessage
	fail     map[int]error
	requests []delta.PageRequest
	// OmitTotal drops the total field from every page
	OmitTotal bool
}

// NewFakePageSource creates a source serving records, each marshalled to JSON
func NewFakePageSource(records ...any) *FakePageSource {
	s := &FakePageSource{fail: make(map[int]error)}
	s.SetRecords(records...)
	return s
}

// SetRecords replaces the served records
func (s *FakePageSource) SetRecords(records ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = s.records[:0]
	for _, r := range records {
		if raw, ok := r.(json.RawMessage); ok {
			s.records = append(s.records, raw)
			continue
		}
		b, err := json.Marshal(r)
		if err != nil {
			panic(fmt.Sprintf("testutil: marshal record: %v", err))
		}
		s.records = append(s.records, b)
	}
}

// FailPage makes every request for page return err
func (s *FakePageSource) FailPage(page int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[page] = err
}

// Requests returns the page requests seen so far
func (s *FakePageSource) Requests() []delta.PageRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]delta.PageRequest(nil), s.requests...)
}

// FetchPage implements delta.PageSource
func (s *FakePageSource) FetchPage(ctx context.Context, req delta.PageRequest) (*delta.RawPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if err := s.fail[req.Page]; err != nil {
		return nil, err
	}

	start := (req.Page - 1) * req.Limit
	end := min(start+req.Limit, len(s.records))
	data := []json.RawMessage{}
	if start < len(s.records) {
		data = append(data, s.records[start:end]...)
	}
	page := &delta.RawPage{Data: data}
	if !s.OmitTotal {
		total := len(s.records)
		page.Total = &total
	}
	page.Body, _ = json.Marshal(map[string]any{"total": page.Total, "data": data})
	return page, nil
}

// FakeSources hands out one FakePageSource per sync kind
type FakeSources struct {
	mu      sync.Mutex
	sources map[delta.SyncKind]*FakePageSource
}

// NewFakeSources creates empty sources for every kind
func NewFakeSources() *FakeSources {
	f := &FakeSources{sources: make(map[delta.SyncKind]*FakePageSource)}
	for _, k := range delta.AllKinds {
		f.sources[k] = NewFakePageSource()
	}
	return f
}

// Kind returns the source of kind
func (f *FakeSources) Kind(kind delta.SyncKind) *FakePageSource {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sources[kind]
}

// Source returns the source of kind for any account
func (f *FakeSources) Source(acct *account.Account, kind delta.SyncKind) (delta.PageSource, error) {
	s := f.Kind(kind)
	if s == nil {
		return nil, fmt.Errorf("testutil: no source for %s", kind)
	}
	return s, nil
}

var _ delta.PageSource = (*FakePageSource)(nil)
