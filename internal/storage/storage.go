// Package storage defines the document adapter contract consumed by entity
// services. Documents are plain maps; "_id" is the primary key.
package storage

import (
	"context"
	"errors"

	"github.com/odyssey-cms/odyssey-cms/internal/fieldpath"
)

// IDField is the reserved primary key field.
const IDField = "_id"

// ErrNotFound is returned by Get, Update and Remove for unknown ids.
var ErrNotFound = errors.New("storage: record not found")

// FindParams narrows a Find call.
type FindParams struct {
	Query  map[string]any
	Sort   []string
	Fields []string
	Limit  int
	Offset int
}

// Adapter stores the documents of one collection.
type Adapter interface {
	Find(ctx context.Context, params FindParams) ([]map[string]any, error)
	Count(ctx context.Context, query map[string]any) (int, error)
	Get(ctx context.Context, id string) (map[string]any, error)
	Insert(ctx context.Context, doc map[string]any) (map[string]any, error)
	// Update shallow-merges patch into the stored document.
	Update(ctx context.Context, id string, patch map[string]any) (map[string]any, error)
	Remove(ctx context.Context, id string) (map[string]any, error)
}

// Provider hands out adapters by collection key.
type Provider interface {
	Collection(name string) Adapter
}

// CollectionKey returns the storage key backing a concrete service.
func CollectionKey(serviceName string) string {
	return "collection-" + serviceName
}

// Project keeps only fields of doc. An empty field list keeps everything.
func Project(doc map[string]any, fields []string) map[string]any {
	if len(fields) == 0 {
		return doc
	}
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := doc[f]; ok {
			out[f] = v
		}
	}
	return out
}

// ID returns the string primary key of doc.
func ID(doc map[string]any) string {
	id, _ := doc[IDField].(string)
	return id
}

// Merge applies a shallow patch on a copy of doc.
func Merge(doc, patch map[string]any) map[string]any {
	out := fieldpath.CloneMap(doc)
	if out == nil {
		out = map[string]any{}
	}
	for k, v := range patch {
		if k == IDField {
			continue
		}
		out[k] = fieldpath.Clone(v)
	}
	return out
}
