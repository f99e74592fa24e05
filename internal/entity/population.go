package entity

import (
	"context"
	"errors"

	"github.com/odyssey-cms/odyssey-cms/internal/broker"
	"github.com/odyssey-cms/odyssey-cms/internal/fieldpath"
	"github.com/odyssey-cms/odyssey-cms/internal/query"
	"github.com/odyssey-cms/odyssey-cms/internal/shared"
	"github.com/odyssey-cms/odyssey-cms/internal/storage"
)

// guardPopulation diverts list shaped calls flagged with queryByPopulation to
// the in-memory fallback.
func (s *service) guardPopulation(ctx context.Context, req *broker.Request) (outcome, error) {
	if truthy(req.Params[paramQueryByPopulation]) {
		return outcome{kind: needsPopulation}, nil
	}
	return pass, nil
}

// findByPopulation answers queries that reference populated fields: the native
// part runs in storage, the rest is evaluated over the joined records.
func (s *service) findByPopulation(ctx context.Context, req *broker.Request) (any, error) {
	q, err := queryParam(req.Params)
	if err != nil {
		return nil, err
	}
	native, joined := query.Split(q, s.isPopulated)

	fields := populateParam(req.Params)
	for _, root := range query.PopulatedRoots(q, s.isPopulated) {
		fields = appendUnique(fields, root)
	}

	docs, err := s.store.Find(ctx, storage.FindParams{
		Query: native,
		Sort:  query.ParseSort(req.Params[paramSort]),
	})
	if err != nil {
		return nil, err
	}
	if docs, err = s.populate(ctx, req, docs, fields); err != nil {
		return nil, err
	}

	matched := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		if query.Match(doc, joined) {
			matched = append(matched, doc)
		}
	}

	switch req.Action {
	case ActionCount:
		return len(matched), nil
	case ActionList:
		rows, p := shared.Paginate(matched,
			intParam(req.Params, paramPage, shared.DefaultPage),
			intParam(req.Params, paramPageSize, shared.DefaultPageSize))
		return newListResult(rows, p), nil
	default:
		return matched, nil
	}
}

func (s *service) isPopulated(root string) bool {
	_, ok := s.populates[root]
	return ok
}

// populate replaces reference values in fields with the records returned by
// the field's target action. Unresolvable references keep their raw value; a
// missing target service is returned so the caller can provision it.
func (s *service) populate(ctx context.Context, req *broker.Request, docs []map[string]any, fields []string) ([]map[string]any, error) {
	if len(docs) == 0 || len(fields) == 0 {
		return docs, nil
	}
	language := s.language
	if language == "" {
		language = req.Meta.Language
	}
	vars := map[string]string{"language": language, "collectionName": req.Meta.CollectionName}

	for _, field := range fields {
		action, declared := s.populates[field]
		if !declared {
			continue
		}
		target := shared.ExpandVars(action, vars)
		cache := map[string]any{}
		for _, doc := range docs {
			raw, present := doc[field]
			if !present || raw == nil {
				continue
			}
			resolved, err := s.resolve(ctx, target, raw, cache, language)
			if err != nil {
				return nil, err
			}
			doc[field] = resolved
		}
	}
	return docs, nil
}

func (s *service) resolve(ctx context.Context, target string, raw any, cache map[string]any, language string) (any, error) {
	items, isList := fieldpath.AsList(raw)
	if !isList {
		return s.resolveOne(ctx, target, raw, cache, language)
	}
	out := make([]any, 0, len(items))
	for _, item := range items {
		v, err := s.resolveOne(ctx, target, item, cache, language)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *service) resolveOne(ctx context.Context, target string, ref any, cache map[string]any, language string) (any, error) {
	id, isID := ref.(string)
	if !isID {
		return ref, nil
	}
	if v, hit := cache[id]; hit {
		return v, nil
	}
	res, err := s.broker.Call(ctx, target, map[string]any{paramID: id}, &broker.Meta{Language: language})
	switch {
	case err == nil:
		cache[id] = res
		return res, nil
	case errors.Is(err, shared.ErrNotFound):
		cache[id] = ref
		return ref, nil
	default:
		return nil, err
	}
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
