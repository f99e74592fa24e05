// Package registry materialises collection definitions into per-language
// entity services and keeps them in step with definition changes.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-cms/odyssey-cms/internal/broker"
	"github.com/odyssey-cms/odyssey-cms/internal/entity"
	"github.com/odyssey-cms/odyssey-cms/internal/shared"
	"github.com/odyssey-cms/odyssey-cms/internal/storage"
)

// Names of the services the registry reads from and exposes.
const (
	ServiceName            = "collections-loader"
	CollectionsServiceName = "collections"
	LanguagesServiceName   = "languages"
)

// instance is one materialised collection: the definition it was built from
// and the languages it is registered for.
type instance struct {
	def       entity.Definition
	languages map[string]struct{}
}

// Registry owns the map from collection name to its registered services.
type Registry struct {
	broker  *broker.Broker
	factory *entity.Factory
	logger  *slog.Logger

	group singleflight.Group

	mu        sync.Mutex
	instances map[string]*instance
	// generations counts unloads per collection; a load only registers
	// services while the generation it started under is still current.
	generations map[string]uint64
}

// New constructs a Registry.
func New(b *broker.Broker, factory *entity.Factory, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		broker:    b,
		factory:   factory,
		logger:    logger.With(slog.String("component", "registry")),
		instances:   make(map[string]*instance),
		generations: make(map[string]uint64),
	}
}

// Load registers name in every known language. Concurrent loads of the same
// collection share one pass.
func (r *Registry) Load(ctx context.Context, name string) error {
	_, err, _ := r.group.Do(name, func() (any, error) {
		return nil, r.load(ctx, name)
	})
	return err
}

func (r *Registry) load(ctx context.Context, name string) error {
	gen := r.generation(name)
	def, err := r.definition(ctx, name)
	if err != nil {
		return err
	}
	languages, err := r.languages(ctx)
	if err != nil {
		return err
	}
	return r.materialise(ctx, def, languages, gen)
}

func (r *Registry) generation(name string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generations[name]
}

func (r *Registry) materialise(ctx context.Context, def entity.Definition, languages []string, gen uint64) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, lang := range languages {
		lang := lang
		g.Go(func() error {
			return r.register(gctx, def, lang, gen)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	r.logger.Info("collection loaded",
		slog.String("collection", def.Name),
		slog.Any("languages", languages))
	return nil
}

// register builds def for lang unless the collection was unloaded after gen
// was read, in which case def may predate the change and is dropped.
func (r *Registry) register(ctx context.Context, def entity.Definition, lang string, gen uint64) error {
	r.mu.Lock()
	if r.generations[def.Name] != gen {
		r.mu.Unlock()
		r.logger.Debug("stale definition skipped",
			slog.String("collection", def.Name),
			slog.String("language", lang))
		return nil
	}
	svc := r.factory.Build(def, lang)
	if err := r.broker.CreateService(svc); err != nil && !errors.Is(err, broker.ErrServiceExists) {
		r.mu.Unlock()
		return fmt.Errorf("registry: create %s: %w", svc.Name, err)
	}
	inst, ok := r.instances[def.Name]
	if !ok {
		inst = &instance{languages: make(map[string]struct{})}
		r.instances[def.Name] = inst
	}
	inst.def = def
	inst.languages[lang] = struct{}{}
	r.mu.Unlock()

	return r.broker.WaitForService(ctx, svc.Name)
}

// LoadAll registers every stored collection.
func (r *Registry) LoadAll(ctx context.Context) error {
	r.mu.Lock()
	gens := make(map[string]uint64, len(r.generations))
	for name, gen := range r.generations {
		gens[name] = gen
	}
	r.mu.Unlock()

	defs, err := r.definitions(ctx, nil)
	if err != nil {
		return err
	}
	if len(defs) == 0 {
		return nil
	}
	languages, err := r.languages(ctx)
	if err != nil {
		return err
	}
	for _, def := range defs {
		if err := r.materialise(ctx, def, languages, gens[def.Name]); err != nil {
			return err
		}
	}
	return nil
}

// Unload destroys every registered instance of name.
func (r *Registry) Unload(name string) {
	r.mu.Lock()
	inst, ok := r.instances[name]
	delete(r.instances, name)
	r.generations[name]++
	r.mu.Unlock()
	if !ok {
		return
	}
	for lang := range inst.languages {
		service := entity.ServiceName(name, lang)
		if err := r.broker.DestroyService(service); err != nil {
			r.logger.Warn("destroy service", slog.String("service", service), slog.Any("error", err))
		}
	}
	r.logger.Info("collection unloaded", slog.String("collection", name))
}

// Reload replaces the instances of name with ones built from its current
// definition. It never joins a load that started before the unload.
func (r *Registry) Reload(ctx context.Context, name string) error {
	r.Unload(name)
	r.group.Forget(name)
	return r.Load(ctx, name)
}

// Loaded lists the registered collections.
func (r *Registry) Loaded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.instances))
	for name := range r.instances {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// byDefinitionID finds the loaded collection built from the stored record id.
func (r *Registry) byDefinitionID(id string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, inst := range r.instances {
		if id != "" && inst.def.ID == id {
			return name, true
		}
	}
	return "", false
}

func (r *Registry) definition(ctx context.Context, name string) (entity.Definition, error) {
	defs, err := r.definitions(ctx, map[string]any{"name": name})
	if err != nil {
		return entity.Definition{}, err
	}
	if len(defs) == 0 {
		return entity.Definition{}, shared.NotFoundf("service %s not found in collections", name)
	}
	return defs[0], nil
}

func (r *Registry) definitions(ctx context.Context, q map[string]any) ([]entity.Definition, error) {
	params := map[string]any{}
	if q != nil {
		params["query"] = q
	}
	res, err := r.broker.Call(ctx, CollectionsServiceName+"."+entity.ActionFind, params, &broker.Meta{Raw: true})
	if err != nil {
		return nil, fmt.Errorf("registry: read collections: %w", err)
	}
	records, _ := res.([]map[string]any)
	defs := make([]entity.Definition, 0, len(records))
	for _, rec := range records {
		def, err := entity.ParseDefinition(rec)
		if err != nil {
			return nil, err
		}
		if err := def.Validate(); err != nil {
			return nil, shared.Configurationf("collection %s: %v", def.Name, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func (r *Registry) languages(ctx context.Context) ([]string, error) {
	res, err := r.broker.Call(ctx, LanguagesServiceName+"."+entity.ActionFind, nil, &broker.Meta{Raw: true})
	if err != nil {
		return nil, fmt.Errorf("registry: read languages: %w", err)
	}
	records, _ := res.([]map[string]any)
	codes := make([]string, 0, len(records))
	for _, rec := range records {
		if code, ok := rec["code"].(string); ok && code != "" {
			codes = append(codes, code)
		}
	}
	if len(codes) == 0 {
		return nil, shared.Configurationf("no languages found")
	}
	return codes, nil
}

// Service exposes the registry on the broker and subscribes it to definition
// and language changes.
func (r *Registry) Service() *broker.Service {
	return &broker.Service{
		Name: ServiceName,
		Actions: map[string]broker.Handler{
			"load":                    r.handleLoad,
			"loadCollectionAsService": r.handleLoadAsService,
			"loaded": func(ctx context.Context, req *broker.Request) (any, error) {
				return r.Loaded(), nil
			},
		},
		Events: map[string]broker.EventHandler{
			CollectionsServiceName + "." + entity.ActionUpdate: r.onCollectionUpdate,
			CollectionsServiceName + "." + entity.ActionRemove: r.onCollectionRemove,
			LanguagesServiceName + "." + entity.ActionCreate:   r.onLanguageCreate,
		},
	}
}

func (r *Registry) handleLoad(ctx context.Context, req *broker.Request) (any, error) {
	name, _ := req.Params["collectionName"].(string)
	if name == "" {
		return nil, fmt.Errorf("%w: collectionName is required", shared.ErrValidation)
	}
	if err := r.Load(ctx, name); err != nil {
		return nil, err
	}
	return map[string]any{"collectionName": name}, nil
}

// handleLoadAsService builds a single language instance from the definition
// passed in params, or from the store when only a name is given.
func (r *Registry) handleLoadAsService(ctx context.Context, req *broker.Request) (any, error) {
	lang, _ := req.Params["language"].(string)
	if lang == "" {
		return nil, fmt.Errorf("%w: language is required", shared.ErrValidation)
	}
	var (
		def entity.Definition
		gen uint64
		err error
	)
	if raw, ok := req.Params["collection"].(map[string]any); ok {
		if def, err = entity.ParseDefinition(raw); err == nil {
			err = def.Validate()
		}
		gen = r.generation(def.Name)
	} else {
		name, _ := req.Params["collectionName"].(string)
		gen = r.generation(name)
		def, err = r.definition(ctx, name)
	}
	if err != nil {
		return nil, err
	}
	if err := r.register(ctx, def, lang, gen); err != nil {
		return nil, err
	}
	return map[string]any{"service": entity.ServiceName(def.Name, lang)}, nil
}

// onCollectionUpdate rebuilds the changed collection. A rename drops the
// instances registered under the old name.
func (r *Registry) onCollectionUpdate(ctx context.Context, event string, payload any) error {
	rec, ok := payload.(map[string]any)
	if !ok {
		return nil
	}
	name, _ := rec["name"].(string)
	if previous, found := r.byDefinitionID(storage.ID(rec)); found && previous != name {
		r.Unload(previous)
	}
	if name == "" {
		return nil
	}
	if archived, _ := rec[entity.FieldArchived].(bool); archived {
		r.Unload(name)
		return nil
	}
	return r.Reload(ctx, name)
}

func (r *Registry) onCollectionRemove(ctx context.Context, event string, payload any) error {
	rec, ok := payload.(map[string]any)
	if !ok {
		return nil
	}
	if name, found := r.byDefinitionID(storage.ID(rec)); found {
		r.Unload(name)
	}
	if name, _ := rec["name"].(string); name != "" {
		r.Unload(name)
	}
	return nil
}

// onLanguageCreate registers every loaded collection in the new language.
func (r *Registry) onLanguageCreate(ctx context.Context, event string, payload any) error {
	rec, ok := payload.(map[string]any)
	if !ok {
		return nil
	}
	lang, _ := rec["code"].(string)
	if lang == "" {
		return nil
	}
	r.mu.Lock()
	defs := make([]entity.Definition, 0, len(r.instances))
	gens := make([]uint64, 0, len(r.instances))
	for name, inst := range r.instances {
		defs = append(defs, inst.def)
		gens = append(gens, r.generations[name])
	}
	r.mu.Unlock()

	var errs []error
	for i, def := range defs {
		if err := r.register(ctx, def, lang, gens[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
