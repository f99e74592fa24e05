// Package entity builds concrete CRUD services from collection definitions.
// Every service wraps a storage adapter with access control, soft delete,
// population and singleton handling, composed per action at build time.
package entity

import (
	"context"
	"log/slog"
	"time"

	"github.com/odyssey-cms/odyssey-cms/internal/broker"
	"github.com/odyssey-cms/odyssey-cms/internal/storage"
)

// BeforeHook runs after the access, singleton and archive guards of the
// actions it is attached to, and before uniqueness checks.
type BeforeHook func(ctx context.Context, req *broker.Request) error

type extraHook struct {
	actions map[string]struct{}
	hook    BeforeHook
}

type config struct {
	language   string
	archive    bool
	collection string
	unique     []string
	hidden     []string
	extras     []extraHook
}

// Option customises a service built by the Factory.
type Option func(*config)

// WithLanguage sets the language used to expand population targets.
func WithLanguage(language string) Option {
	return func(c *config) { c.language = language }
}

// WithoutArchive makes remove delete records instead of toggling _archived.
func WithoutArchive() Option {
	return func(c *config) { c.archive = false }
}

// WithCollectionKey overrides the storage collection key.
func WithCollectionKey(key string) Option {
	return func(c *config) { c.collection = key }
}

// WithUnique rejects create/update calls that repeat an existing value.
func WithUnique(fields ...string) Option {
	return func(c *config) { c.unique = append(c.unique, fields...) }
}

// WithHidden strips fields from responses unless the caller asks for raw data.
func WithHidden(fields ...string) Option {
	return func(c *config) { c.hidden = append(c.hidden, fields...) }
}

// WithBefore attaches hook to the given actions.
func WithBefore(hook BeforeHook, actions ...string) Option {
	return func(c *config) {
		set := make(map[string]struct{}, len(actions))
		for _, a := range actions {
			set[a] = struct{}{}
		}
		c.extras = append(c.extras, extraHook{actions: set, hook: hook})
	}
}

// Factory turns definitions into broker services.
type Factory struct {
	broker *broker.Broker
	store  storage.Provider
	logger *slog.Logger
	now    func() time.Time
}

// NewFactory constructs a Factory.
func NewFactory(b *broker.Broker, store storage.Provider, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{
		broker: b,
		store:  store,
		logger: logger,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Build returns the concrete service for def in language. It does not
// register the service.
func (f *Factory) Build(def Definition, language string) *broker.Service {
	return f.New(ServiceName(def.Name, language), def, WithLanguage(language))
}

// New builds a service named name from def.
func (f *Factory) New(name string, def Definition, opts ...Option) *broker.Service {
	cfg := config{archive: true, collection: storage.CollectionKey(name)}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &service{
		name:      name,
		def:       def,
		language:  cfg.language,
		archive:   cfg.archive,
		store:     f.store.Collection(cfg.collection),
		broker:    f.broker,
		logger:    f.logger.With(slog.String("service", name)),
		now:       f.now,
		unique:    append(def.SlugFields(), cfg.unique...),
		hidden:    cfg.hidden,
		fields:    projection(def),
		populates: def.Populates(),
	}

	actions := map[string]func(context.Context, *broker.Request) (any, error){
		ActionFind:      s.find,
		ActionList:      s.list,
		ActionCount:     s.count,
		ActionGet:       s.get,
		ActionCreate:    s.create,
		ActionInsert:    s.insert,
		ActionUpdate:    s.update,
		ActionRemove:    s.remove,
		ActionGetSchema: s.getSchema,
	}
	svc := &broker.Service{Name: name, Actions: make(map[string]broker.Handler, len(actions))}
	for action, core := range actions {
		svc.Actions[action] = s.handle(core, s.beforeChain(action, cfg.extras))
	}
	return svc
}

func projection(def Definition) []string {
	props := def.Properties()
	if len(props) == 0 {
		return nil
	}
	return append([]string{storage.IDField, FieldArchived, FieldCreatedAt, FieldUpdatedAt}, props...)
}
