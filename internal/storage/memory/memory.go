// Package memory is an in-process storage adapter used for development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/odyssey-cms/odyssey-cms/internal/fieldpath"
	"github.com/odyssey-cms/odyssey-cms/internal/query"
	"github.com/odyssey-cms/odyssey-cms/internal/shared"
	"github.com/odyssey-cms/odyssey-cms/internal/storage"
)

// Store keeps every collection in memory.
type Store struct {
	mu          sync.Mutex
	collections map[string]*Collection
}

// New constructs an empty Store.
func New() *Store {
	return &Store{collections: make(map[string]*Collection)}
}

// Collection returns the adapter for name, creating it on first use.
func (s *Store) Collection(name string) storage.Adapter {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		c = &Collection{docs: make(map[string]map[string]any)}
		s.collections[name] = c
	}
	return c
}

// Collection keeps documents in insertion order.
type Collection struct {
	mu    sync.RWMutex
	order []string
	docs  map[string]map[string]any
}

func (c *Collection) Find(ctx context.Context, params storage.FindParams) ([]map[string]any, error) {
	c.mu.RLock()
	var matched []map[string]any
	for _, id := range c.order {
		doc := c.docs[id]
		if query.Match(doc, params.Query) {
			matched = append(matched, fieldpath.CloneMap(doc))
		}
	}
	c.mu.RUnlock()

	query.SortDocuments(matched, params.Sort)
	if params.Offset > 0 {
		if params.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[params.Offset:]
		}
	}
	if params.Limit > 0 && params.Limit < len(matched) {
		matched = matched[:params.Limit]
	}
	out := make([]map[string]any, 0, len(matched))
	for _, doc := range matched {
		out = append(out, storage.Project(doc, params.Fields))
	}
	return out, nil
}

func (c *Collection) Count(ctx context.Context, q map[string]any) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, id := range c.order {
		if query.Match(c.docs[id], q) {
			n++
		}
	}
	return n, nil
}

func (c *Collection) Get(ctx context.Context, id string) (map[string]any, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, ok := c.docs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return fieldpath.CloneMap(doc), nil
}

func (c *Collection) Insert(ctx context.Context, doc map[string]any) (map[string]any, error) {
	stored := fieldpath.CloneMap(doc)
	if stored == nil {
		stored = map[string]any{}
	}
	id := storage.ID(stored)
	if id == "" {
		id = uuid.NewString()
		stored[storage.IDField] = id
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.docs[id]; exists {
		return nil, &shared.DuplicateError{Field: storage.IDField, Value: id}
	}
	c.docs[id] = stored
	c.order = append(c.order, id)
	return fieldpath.CloneMap(stored), nil
}

func (c *Collection) Update(ctx context.Context, id string, patch map[string]any) (map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, ok := c.docs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	merged := storage.Merge(doc, patch)
	c.docs[id] = merged
	return fieldpath.CloneMap(merged), nil
}

func (c *Collection) Remove(ctx context.Context, id string) (map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, ok := c.docs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	delete(c.docs, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return doc, nil
}
