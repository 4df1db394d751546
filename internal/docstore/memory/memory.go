// Package memory implements the document store contract in process
// memory. It backs the dev/demo profile and the test suites.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/frahmantamala/crypto-gateway/internal/docstore"
)

type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]docstore.Document
}

func NewStore() *Store {
	return &Store{
		collections: make(map[string]map[string]docstore.Document),
	}
}

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, nil
	}
	return clone(doc), nil
}

func (s *Store) Create(ctx context.Context, collection, id string, fields docstore.Document) (docstore.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.collections[collection][id]; exists {
		return nil, docstore.ErrAlreadyExists
	}
	return s.put(collection, id, fields), nil
}

func (s *Store) Set(ctx context.Context, collection, id string, fields docstore.Document) (docstore.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.put(collection, id, fields), nil
}

func (s *Store) put(collection, id string, fields docstore.Document) docstore.Document {
	if s.collections[collection] == nil {
		s.collections[collection] = make(map[string]docstore.Document)
	}

	doc := clone(fields)
	now := time.Now().UTC()
	if existing, ok := s.collections[collection][id]; ok {
		doc["created_at"] = existing["created_at"]
	} else {
		doc["created_at"] = now
	}
	doc["updated_at"] = now

	s.collections[collection][id] = doc
	return clone(doc)
}

func (s *Store) Update(ctx context.Context, collection, id string, fields docstore.Document) (docstore.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.collections[collection][id]
	if !ok {
		return nil, docstore.ErrNotFound
	}

	merged := clone(existing)
	for k, v := range fields {
		merged[k] = v
	}
	merged["updated_at"] = time.Now().UTC()

	s.collections[collection][id] = merged
	return clone(merged), nil
}

func (s *Store) Query(ctx context.Context, collection string, predicates []docstore.Predicate) ([]docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []docstore.Document
	for _, doc := range s.collections[collection] {
		if matchesAll(doc, predicates) {
			out = append(out, clone(doc))
		}
	}
	return out, nil
}

func matchesAll(doc docstore.Document, predicates []docstore.Predicate) bool {
	for _, p := range predicates {
		value, ok := lookup(doc, p.Field)
		if !ok {
			return false
		}
		switch p.Op {
		case "==":
			if !equal(value, p.Value) {
				return false
			}
		case "<":
			if !less(value, p.Value) {
				return false
			}
		case ">":
			if !less(p.Value, value) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// lookup resolves a dotted field path against nested map values.
func lookup(doc docstore.Document, field string) (interface{}, bool) {
	parts := strings.Split(field, ".")
	var current interface{} = map[string]interface{}(doc)
	for _, part := range parts {
		switch m := current.(type) {
		case map[string]interface{}:
			v, ok := m[part]
			if !ok {
				return nil, false
			}
			current = v
		case docstore.Document:
			v, ok := m[part]
			if !ok {
				return nil, false
			}
			current = v
		default:
			return nil, false
		}
	}
	return current, true
}

func equal(a, b interface{}) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return a == b
}

func less(a, b interface{}) bool {
	if at, aok := a.(time.Time); aok {
		if bt, bok := b.(time.Time); bok {
			return at.Before(bt)
		}
	}
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af < bf
		}
	}
	if as, aok := a.(string); aok {
		if bs, bok := b.(string); bok {
			return as < bs
		}
	}
	return false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func clone(doc docstore.Document) docstore.Document {
	out := make(docstore.Document, len(doc))
	for k, v := range doc {
		if nested, ok := v.(map[string]interface{}); ok {
			inner := make(map[string]interface{}, len(nested))
			for nk, nv := range nested {
				inner[nk] = nv
			}
			out[k] = inner
			continue
		}
		out[k] = v
	}
	return out
}
