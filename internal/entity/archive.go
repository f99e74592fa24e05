package entity

import (
	"context"

	"github.com/odyssey-cms/odyssey-cms/internal/broker"
	"github.com/odyssey-cms/odyssey-cms/internal/query"
	"github.com/odyssey-cms/odyssey-cms/internal/shared"
)

// filterArchived hides archived records. List shaped actions get an
// "_archived != true" clause unless the caller constrained the flag; get and
// update from the API fail with not found on archived records.
func (s *service) filterArchived(ctx context.Context, req *broker.Request) (outcome, error) {
	switch req.Action {
	case ActionFind, ActionList, ActionCount:
		q, err := queryParam(req.Params)
		if err != nil {
			return pass, err
		}
		query.CoerceArchived(q)
		if req.Meta.SkipArchiveFilter || query.HasField(q, FieldArchived) {
			return pass, nil
		}
		q[FieldArchived] = map[string]any{query.OpNe: true}
	case ActionGet, ActionUpdate:
		if req.Meta.SkipArchiveFilter || !req.Meta.CalledByAPI {
			return pass, nil
		}
		ids, _, err := idsParam(req.Params)
		if err != nil {
			return pass, err
		}
		for _, id := range ids {
			doc, err := s.fetch(ctx, id)
			if err != nil {
				return pass, err
			}
			if archived, _ := doc[FieldArchived].(bool); archived {
				return pass, shared.NotFoundf("entity %s not found in %s", id, s.name)
			}
		}
	}
	return pass, nil
}

func notArchived() map[string]any {
	return map[string]any{FieldArchived: map[string]any{query.OpNe: true}}
}
