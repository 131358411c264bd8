// Package docstore is the collection-scoped document store the call record
// synchronizer and the CRUD screens sit on.
//
// Documents are JSON objects. Every backend normalizes written data through
// a JSON round trip, so a time.Time is stored and compared as an RFC 3339
// string and every number as float64, whichever backend is in use.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound      = errors.New("docstore: document not found")
	ErrInvalidFilter = errors.New("docstore: invalid filter")
)

type serverTimestamp struct{}

// ServerTimestamp as a field value is replaced with the store's clock at write time.
var ServerTimestamp any = serverTimestamp{}

// Data is a document body.
type Data map[string]any

// Document is a stored document.
type Document struct {
	ID        string
	Data      Data
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Decode unmarshals the document body into v.
func (d Document) Decode(v any) error {
	b, err := json.Marshal(d.Data)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// Op is a filter comparison.
type Op string

const (
	OpEq  Op = "=="
	OpLt  Op = "<"
	OpLte Op = "<="
	OpGt  Op = ">"
	OpGte Op = ">="
)

type Filter struct {
	Field string
	Op    Op
	Value any
}

type Order struct {
	Field string
	Desc  bool
}

// Query selects documents of one collection. Zero Limit means no limit.
type Query struct {
	Filters []Filter
	OrderBy []Order
	Limit   int
}

// Where appends an equality or range filter.
func (q Query) Where(field string, op Op, value any) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Field: field, Op: op, Value: value})
	return q
}

// Order appends a sort key.
func (q Query) Order(field string, desc bool) Query {
	q.OrderBy = append(append([]Order(nil), q.OrderBy...), Order{Field: field, Desc: desc})
	return q
}

func (q Query) WithLimit(n int) Query {
	q.Limit = n
	return q
}

// Store is the document store contract.
type Store interface {
	// Create inserts data under a generated id and returns the id.
	Create(ctx context.Context, collection string, data Data) (string, error)
	Get(ctx context.Context, collection, id string) (Document, error)
	// Update merges fields into an existing document; ErrNotFound when absent.
	Update(ctx context.Context, collection, id string, fields Data) error
	Delete(ctx context.Context, collection, id string) error
	Query(ctx context.Context, collection string, q Query) ([]Document, error)
	// Watch delivers the current result set, then a fresh one after every
	// write to the collection, until ctx is done.
	Watch(ctx context.Context, collection string, q Query) (<-chan []Document, error)
}

// normalize resolves ServerTimestamp and round-trips data through JSON.
func normalize(data Data, now time.Time) (Data, error) {
	resolved := make(Data, len(data))
	for k, v := range data {
		if _, ok := v.(serverTimestamp); ok {
			v = now.UTC()
		}
		resolved[k] = v
	}
	b, err := json.Marshal(resolved)
	if err != nil {
		return nil, fmt.Errorf("docstore: encode: %w", err)
	}
	out := Data{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("docstore: encode: %w", err)
	}
	return out, nil
}

func validateQuery(q Query) error {
	for _, f := range q.Filters {
		if f.Field == "" {
			return fmt.Errorf("%w: empty field", ErrInvalidFilter)
		}
		switch f.Op {
		case OpEq, OpLt, OpLte, OpGt, OpGte:
		default:
			return fmt.Errorf("%w: operator %q", ErrInvalidFilter, f.Op)
		}
	}
	if q.Limit < 0 {
		return fmt.Errorf("%w: negative limit", ErrInvalidFilter)
	}
	return nil
}
