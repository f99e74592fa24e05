package entity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-cms/odyssey-cms/internal/broker"
	"github.com/odyssey-cms/odyssey-cms/internal/query"
	"github.com/odyssey-cms/odyssey-cms/internal/shared"
	"github.com/odyssey-cms/odyssey-cms/internal/storage"
)

type outcomeKind int

const (
	proceed outcomeKind = iota
	needsPopulation
	singletonExists
)

// outcome tells the action dispatcher which path to take once the before
// chain has run.
type outcome struct {
	kind       outcomeKind
	existingID string
}

var pass = outcome{kind: proceed}

type beforeHook func(ctx context.Context, req *broker.Request) (outcome, error)

type afterHook func(ctx context.Context, req *broker.Request, res any) (any, error)

type service struct {
	name      string
	def       Definition
	language  string
	archive   bool
	store     storage.Adapter
	broker    *broker.Broker
	logger    *slog.Logger
	now       func() time.Time
	unique    []string
	hidden    []string
	fields    []string
	populates map[string]string
}

func (s *service) beforeChain(action string, extras []extraHook) []beforeHook {
	hooks := []beforeHook{s.checkRole}
	switch action {
	case ActionFind, ActionList, ActionCount, ActionGet, ActionUpdate, ActionRemove:
		if len(s.def.ItemPrivileges) > 0 {
			hooks = append(hooks, s.checkItems)
		}
	}
	if s.def.Singleton {
		hooks = append(hooks, s.guardSingleton)
	}
	if s.archive {
		switch action {
		case ActionFind, ActionList, ActionCount, ActionGet, ActionUpdate:
			hooks = append(hooks, s.filterArchived)
		}
	}
	for _, extra := range extras {
		if _, ok := extra.actions[action]; !ok {
			continue
		}
		hook := extra.hook
		hooks = append(hooks, func(ctx context.Context, req *broker.Request) (outcome, error) {
			return pass, hook(ctx, req)
		})
	}
	switch action {
	case ActionFind, ActionList, ActionCount:
		hooks = append(hooks, s.guardPopulation)
	case ActionCreate, ActionUpdate:
		if len(s.unique) > 0 {
			hooks = append(hooks, s.guardUnique)
		}
	}
	return hooks
}

func (s *service) afterChain() []afterHook {
	return []afterHook{s.project, s.stripHidden, s.dispatch}
}

func (s *service) handle(core func(context.Context, *broker.Request) (any, error), before []beforeHook) broker.Handler {
	after := s.afterChain()
	return func(ctx context.Context, req *broker.Request) (any, error) {
		if req.Meta == nil {
			req.Meta = &broker.Meta{}
		}
		next := pass
		for _, hook := range before {
			out, err := hook(ctx, req)
			if err != nil {
				return nil, err
			}
			if out.kind != proceed {
				next = out
				break
			}
		}

		var (
			res any
			err error
		)
		switch next.kind {
		case needsPopulation:
			res, err = s.findByPopulation(ctx, req)
		case singletonExists:
			res, err = s.overwriteSingleton(ctx, req, next.existingID)
		default:
			res, err = core(ctx, req)
		}
		if err != nil {
			return nil, err
		}

		for _, hook := range after {
			if res, err = hook(ctx, req, res); err != nil {
				return nil, err
			}
		}
		return res, nil
	}
}

func (s *service) find(ctx context.Context, req *broker.Request) (any, error) {
	q, err := queryParam(req.Params)
	if err != nil {
		return nil, err
	}
	docs, err := s.store.Find(ctx, storage.FindParams{
		Query:  q,
		Sort:   query.ParseSort(req.Params[paramSort]),
		Limit:  intParam(req.Params, paramLimit, 0),
		Offset: intParam(req.Params, paramOffset, 0),
	})
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []map[string]any{}
	}
	return s.populate(ctx, req, docs, populateParam(req.Params))
}

func (s *service) list(ctx context.Context, req *broker.Request) (any, error) {
	q, err := queryParam(req.Params)
	if err != nil {
		return nil, err
	}
	total, err := s.store.Count(ctx, q)
	if err != nil {
		return nil, err
	}
	p := shared.NewPagination(
		intParam(req.Params, paramPage, shared.DefaultPage),
		intParam(req.Params, paramPageSize, shared.DefaultPageSize),
		total,
	)
	rows, err := s.store.Find(ctx, storage.FindParams{
		Query:  q,
		Sort:   query.ParseSort(req.Params[paramSort]),
		Limit:  p.PageSize,
		Offset: p.Offset(),
	})
	if err != nil {
		return nil, err
	}
	if rows, err = s.populate(ctx, req, rows, populateParam(req.Params)); err != nil {
		return nil, err
	}
	return newListResult(rows, p), nil
}

func (s *service) count(ctx context.Context, req *broker.Request) (any, error) {
	q, err := queryParam(req.Params)
	if err != nil {
		return nil, err
	}
	return s.store.Count(ctx, q)
}

func (s *service) get(ctx context.Context, req *broker.Request) (any, error) {
	ids, single, err := idsParam(req.Params)
	if err != nil {
		return nil, err
	}
	docs := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		doc, err := s.fetch(ctx, id)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if docs, err = s.populate(ctx, req, docs, populateParam(req.Params)); err != nil {
		return nil, err
	}
	if single {
		return docs[0], nil
	}
	return docs, nil
}

func (s *service) create(ctx context.Context, req *broker.Request) (any, error) {
	return s.insertOne(ctx, entityParams(req.Params))
}

func (s *service) insert(ctx context.Context, req *broker.Request) (any, error) {
	if doc, ok := req.Params[paramEntity].(map[string]any); ok {
		return s.insertOne(ctx, doc)
	}
	raw, ok := req.Params[paramEntities].([]any)
	if !ok {
		return nil, fmt.Errorf("%w: entity or entities is required", shared.ErrValidation)
	}
	out := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		doc, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: entities must be objects", shared.ErrValidation)
		}
		created, err := s.insertOne(ctx, doc)
		if err != nil {
			return nil, err
		}
		out = append(out, created)
	}
	return out, nil
}

func (s *service) insertOne(ctx context.Context, doc map[string]any) (map[string]any, error) {
	now := s.timestamp()
	doc[FieldCreatedAt] = now
	doc[FieldUpdatedAt] = now
	return s.store.Insert(ctx, doc)
}

func (s *service) update(ctx context.Context, req *broker.Request) (any, error) {
	id := stringParam(req.Params, paramID)
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", shared.ErrValidation)
	}
	patch := entityParams(req.Params)
	delete(patch, FieldCreatedAt)
	patch[FieldUpdatedAt] = s.timestamp()
	doc, err := s.store.Update(ctx, id, patch)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, shared.NotFoundf("entity %s not found in %s", id, s.name)
	}
	return doc, err
}

// remove toggles the archive flag through this service's own update action.
// Without archiving the record is deleted.
func (s *service) remove(ctx context.Context, req *broker.Request) (any, error) {
	id := stringParam(req.Params, paramID)
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", shared.ErrValidation)
	}
	if !s.archive {
		doc, err := s.store.Remove(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, shared.NotFoundf("entity %s not found in %s", id, s.name)
		}
		return doc, err
	}
	current, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	archived, _ := current[FieldArchived].(bool)
	return s.broker.Call(ctx, s.name+"."+ActionUpdate,
		map[string]any{paramID: id, FieldArchived: !archived},
		&broker.Meta{SkipArchiveFilter: true, Language: req.Meta.Language, Raw: req.Meta.Raw})
}

func (s *service) getSchema(ctx context.Context, req *broker.Request) (any, error) {
	return map[string]any{
		"name":               s.def.Name,
		"displayName":        s.def.DisplayName,
		"icon":               s.def.Icon,
		"schema":             s.def.Schema,
		"requiredPrivileges": s.def.RequiredPrivileges,
		"populateSchema":     s.def.PopulateSchema,
		"singleton":          s.def.Singleton,
	}, nil
}

// fetch reads a record directly from storage, bypassing every filter.
func (s *service) fetch(ctx context.Context, id string) (map[string]any, error) {
	doc, err := s.store.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, shared.NotFoundf("entity %s not found in %s", id, s.name)
	}
	return doc, err
}

func (s *service) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

func (s *service) project(ctx context.Context, req *broker.Request, res any) (any, error) {
	if len(s.fields) == 0 || req.Action == ActionGetSchema {
		return res, nil
	}
	return mapRecords(res, func(doc map[string]any) map[string]any {
		return storage.Project(doc, s.fields)
	}), nil
}

func (s *service) stripHidden(ctx context.Context, req *broker.Request, res any) (any, error) {
	if len(s.hidden) == 0 || req.Meta.Raw {
		return res, nil
	}
	return mapRecords(res, s.dropHidden), nil
}

func (s *service) dropHidden(doc map[string]any) map[string]any {
	for _, f := range s.hidden {
		delete(doc, f)
	}
	return doc
}

// dispatch republishes every result as an event named after the action.
// Hidden fields never leave through events, even for raw internal calls.
func (s *service) dispatch(ctx context.Context, req *broker.Request, res any) (any, error) {
	payload := res
	if req.Meta.Raw && len(s.hidden) > 0 {
		payload = mapRecords(copyRecords(res), s.dropHidden)
	}
	s.broker.Emit(ctx, req.FullName(), payload)
	return res, nil
}
