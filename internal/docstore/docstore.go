package docstore

import (
	"context"
	"errors"
)

// Document is one record's fields. Values are the JSON primitives plus
// time.Time for the store-managed timestamps.
type Document map[string]interface{}

// Predicate is a single field filter for Query. Field may be a dotted
// path into nested objects (e.g. "metadata.processor_withdrawal_id").
type Predicate struct {
	Field string
	Op    string // "==", "<", ">"
	Value interface{}
}

var (
	// ErrNotFound is returned by Update when the document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrAlreadyExists is returned by Create when the id is taken.
	ErrAlreadyExists = errors.New("document already exists")
)

// Store is the document key-value contract the reconciliation engine is
// written against. Get returns (nil, nil) for a missing document; only
// infrastructure failures surface as errors. All writes stamp the
// store-managed created_at/updated_at timestamps.
type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Create(ctx context.Context, collection, id string, fields Document) (Document, error)
	Set(ctx context.Context, collection, id string, fields Document) (Document, error)
	Update(ctx context.Context, collection, id string, fields Document) (Document, error)
	Query(ctx context.Context, collection string, predicates []Predicate) ([]Document, error)
}
