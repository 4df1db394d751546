// Package postgres backs the document store contract with a single
// documents table, one row per (collection, doc_id), record fields in a
// JSONB column. The same repository also runs against the sqlite driver
// for the dev profile; only Query compiles dialect-specific SQL.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/frahmantamala/crypto-gateway/internal/docstore"
)

type documentRow struct {
	ID         int64  `gorm:"primaryKey"`
	Collection string `gorm:"column:collection;uniqueIndex:idx_documents_collection_doc_id"`
	DocID      string `gorm:"column:doc_id;uniqueIndex:idx_documents_collection_doc_id"`
	Data       []byte `gorm:"column:data;type:jsonb"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (documentRow) TableName() string { return "documents" }

type DocumentStore struct {
	db *gorm.DB
}

func NewDocumentStore(db *gorm.DB) *DocumentStore {
	return &DocumentStore{db: db}
}

func (s *DocumentStore) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	var row documentRow
	err := s.db.WithContext(ctx).
		Where("collection = ? AND doc_id = ?", collection, id).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return rowToDocument(&row)
}

func (s *DocumentStore) Create(ctx context.Context, collection, id string, fields docstore.Document) (docstore.Document, error) {
	existing, err := s.Get(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, docstore.ErrAlreadyExists
	}
	return s.write(ctx, collection, id, fields)
}

func (s *DocumentStore) Set(ctx context.Context, collection, id string, fields docstore.Document) (docstore.Document, error) {
	return s.write(ctx, collection, id, fields)
}

func (s *DocumentStore) write(ctx context.Context, collection, id string, fields docstore.Document) (docstore.Document, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal %s/%s: %w", collection, id, err)
	}

	row := documentRow{Collection: collection, DocID: id, Data: data}
	err = s.db.WithContext(ctx).
		Where("collection = ? AND doc_id = ?", collection, id).
		Assign(documentRow{Data: data}).
		FirstOrCreate(&row).Error
	if err != nil {
		return nil, fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	return s.Get(ctx, collection, id)
}

// Update merges the partial fields into the stored document. Read then
// write, no row lock: last write wins, per the store's declared
// weak-consistency model.
func (s *DocumentStore) Update(ctx context.Context, collection, id string, fields docstore.Document) (docstore.Document, error) {
	var row documentRow
	err := s.db.WithContext(ctx).
		Where("collection = ? AND doc_id = ?", collection, id).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update %s/%s: %w", collection, id, err)
	}

	var current map[string]interface{}
	if err := json.Unmarshal(row.Data, &current); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	for k, v := range fields {
		current[k] = v
	}

	data, err := json.Marshal(current)
	if err != nil {
		return nil, fmt.Errorf("marshal %s/%s: %w", collection, id, err)
	}

	err = s.db.WithContext(ctx).
		Model(&documentRow{}).
		Where("collection = ? AND doc_id = ?", collection, id).
		Updates(map[string]interface{}{"data": data, "updated_at": time.Now().UTC()}).Error
	if err != nil {
		return nil, fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	return s.Get(ctx, collection, id)
}

func (s *DocumentStore) Query(ctx context.Context, collection string, predicates []docstore.Predicate) ([]docstore.Document, error) {
	tx := s.db.WithContext(ctx).Model(&documentRow{}).Where("collection = ?", collection)

	for _, p := range predicates {
		clause, value, err := s.compilePredicate(p)
		if err != nil {
			return nil, err
		}
		tx = tx.Where(clause, value)
	}

	var rows []documentRow
	if err := tx.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}

	out := make([]docstore.Document, 0, len(rows))
	for i := range rows {
		doc, err := rowToDocument(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

func (s *DocumentStore) compilePredicate(p docstore.Predicate) (string, interface{}, error) {
	var op string
	switch p.Op {
	case "==":
		op = "="
	case "<", ">":
		op = p.Op
	default:
		return "", nil, fmt.Errorf("unsupported predicate op %q", p.Op)
	}

	// created_at/updated_at are store-managed columns, not JSON fields
	if p.Field == "created_at" || p.Field == "updated_at" {
		return fmt.Sprintf("%s %s ?", p.Field, op), p.Value, nil
	}

	sqlite := s.db.Dialector.Name() == "sqlite"
	path := strings.Split(p.Field, ".")

	var expr string
	if sqlite {
		expr = fmt.Sprintf("json_extract(data, '$.%s')", strings.Join(path, "."))
	} else {
		expr = fmt.Sprintf("data #>> '{%s}'", strings.Join(path, ","))
	}

	// numeric comparisons need a cast; equality compares as text
	if _, isNumber := toFloat(p.Value); isNumber && op != "=" {
		if !sqlite {
			expr = fmt.Sprintf("(%s)::numeric", expr)
		}
		return fmt.Sprintf("%s %s ?", expr, op), p.Value, nil
	}
	return fmt.Sprintf("%s %s ?", expr, op), fmt.Sprintf("%v", p.Value), nil
}

func rowToDocument(row *documentRow) (docstore.Document, error) {
	var doc docstore.Document
	if err := json.Unmarshal(row.Data, &doc); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", row.Collection, row.DocID, err)
	}
	doc["created_at"] = row.CreatedAt
	doc["updated_at"] = row.UpdatedAt
	return doc, nil
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
