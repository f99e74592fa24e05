package entity

import (
	"context"

	"github.com/odyssey-cms/odyssey-cms/internal/broker"
	"github.com/odyssey-cms/odyssey-cms/internal/query"
	"github.com/odyssey-cms/odyssey-cms/internal/shared"
	"github.com/odyssey-cms/odyssey-cms/internal/storage"
)

// guardUnique rejects writes repeating the value of a unique field held by
// another visible record.
func (s *service) guardUnique(ctx context.Context, req *broker.Request) (outcome, error) {
	id := stringParam(req.Params, paramID)
	for _, field := range s.unique {
		v, present := req.Params[field]
		if !present || v == nil || v == "" {
			continue
		}
		q := map[string]any{field: v}
		if s.archive {
			q[FieldArchived] = map[string]any{query.OpNe: true}
		}
		if req.Action == ActionUpdate && id != "" {
			q[storage.IDField] = map[string]any{query.OpNe: id}
		}
		n, err := s.store.Count(ctx, q)
		if err != nil {
			return pass, err
		}
		if n > 0 {
			return pass, &shared.DuplicateError{Field: field, Value: v}
		}
	}
	return pass, nil
}
