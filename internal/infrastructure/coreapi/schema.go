package coreapi

import (
	"bytes"
	"embed"
	"fmt"
	"sync"

	"github.com/Inventorum/ebay-sub000/internal/domain/delta"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// schemaBaseURL is where the embedded schemas are registered with the compiler
const schemaBaseURL = "https://schemas.ebaysync.invalid/delta/"

// recordSchemaFiles maps a delta kind to the schema of its records
var recordSchemaFiles = map[delta.SyncKind]string{
	delta.KindProductsFromCore:      "products.json",
	delta.KindOrdersFromCore:        "orders.json",
	delta.KindOrdersFromMarketplace: "orders.json",
	delta.KindReturnsFromCore:       "returns.json",
}

// Schemas validates delta pages before they are decoded
type Schemas struct {
	envelope *jsonschema.Schema
	records  map[delta.SyncKind]*jsonschema.Schema
}

var (
	loadSchemasOnce sync.Once
	loadedSchemas   *Schemas
	loadSchemasErr  error
)

// LoadSchemas compiles the embedded schemas once per process
func LoadSchemas() (*Schemas, error) {
	loadSchemasOnce.Do(func() {
		loadedSchemas, loadSchemasErr = compileSchemas()
	})
	return loadedSchemas, loadSchemasErr
}

func compileSchemas() (*Schemas, error) {
	c := jsonschema.NewCompiler()
	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		raw, err := schemaFS.ReadFile("schemas/" + e.Name())
		if err != nil {
			return nil, err
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("coreapi: schema %s: %w", e.Name(), err)
		}
		if err := c.AddResource(schemaBaseURL+e.Name(), doc); err != nil {
			return nil, fmt.Errorf("coreapi: schema %s: %w", e.Name(), err)
		}
	}

	s := &Schemas{records: make(map[delta.SyncKind]*jsonschema.Schema)}
	if s.envelope, err = c.Compile(schemaBaseURL + "envelope.json"); err != nil {
		return nil, fmt.Errorf("coreapi: compile envelope schema: %w", err)
	}
	for kind, file := range recordSchemaFiles {
		sch, err := c.Compile(schemaBaseURL + file)
		if err != nil {
			return nil, fmt.Errorf("coreapi: compile %s schema: %w", kind, err)
		}
		s.records[kind] = sch
	}
	return s, nil
}

// ValidatePage checks the envelope and every record of a page body. An
// envelope violation is returned as error; record violations are returned
// by index. All wrap delta.ErrMalformedResponse.
func (s *Schemas) ValidatePage(kind delta.SyncKind, body []byte) (map[int]error, error) {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", delta.ErrMalformedResponse, err)
	}
	if err := s.envelope.Validate(inst); err != nil {
		return nil, fmt.Errorf("%w: %v", delta.ErrMalformedResponse, err)
	}

	recordSchema, ok := s.records[kind]
	if !ok {
		return nil, nil
	}
	page, _ := inst.(map[string]any)
	data, _ := page["data"].([]any)
	var invalid map[int]error
	for i, rec := range data {
		if err := recordSchema.Validate(rec); err != nil {
			if invalid == nil {
				invalid = make(map[int]error)
			}
			invalid[i] = fmt.Errorf("%w: %v", delta.ErrMalformedResponse, err)
		}
	}
	return invalid, nil
}
