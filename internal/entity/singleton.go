package entity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/odyssey-cms/odyssey-cms/internal/broker"
	"github.com/odyssey-cms/odyssey-cms/internal/shared"
	"github.com/odyssey-cms/odyssey-cms/internal/storage"
)

// guardSingleton keeps singleton collections at one visible record. A create
// against an occupied collection is redirected to overwrite the existing record.
func (s *service) guardSingleton(ctx context.Context, req *broker.Request) (outcome, error) {
	switch req.Action {
	case ActionFind, ActionList, ActionCount, ActionGetSchema:
		return pass, nil
	case ActionCreate:
		q := map[string]any{}
		if s.archive {
			q = notArchived()
		}
		docs, err := s.store.Find(ctx, storage.FindParams{Query: q, Limit: 1})
		if err != nil {
			return pass, err
		}
		if len(docs) == 0 {
			return pass, nil
		}
		return outcome{kind: singletonExists, existingID: storage.ID(docs[0])}, nil
	default:
		if req.Meta.CalledByAPI {
			return pass, fmt.Errorf("%w: %s is not available on singleton collection %s", shared.ErrMethodNotAllowed, req.Action, s.name)
		}
		return pass, nil
	}
}

func (s *service) overwriteSingleton(ctx context.Context, req *broker.Request, existingID string) (any, error) {
	s.logger.Info("singleton already holds a record, overwriting", slog.String("id", existingID))
	params := entityParams(req.Params)
	params[paramID] = existingID
	return s.broker.Call(ctx, s.name+"."+ActionUpdate, params,
		&broker.Meta{Language: req.Meta.Language, Raw: req.Meta.Raw})
}
