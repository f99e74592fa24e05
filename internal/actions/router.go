// Package actions implements the generic router that forwards
// "act on collection X in language Y" calls to the concrete per-language
// service, provisioning it on first use.
package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/odyssey-cms/odyssey-cms/internal/broker"
	"github.com/odyssey-cms/odyssey-cms/internal/entity"
	"github.com/odyssey-cms/odyssey-cms/internal/registry"
	"github.com/odyssey-cms/odyssey-cms/internal/shared"
)

// ServiceName is the fixed name the router registers under.
const ServiceName = "actions"

const (
	paramCollectionName = "collectionName"
	paramLanguage       = "language"
)

// Routed lists the actions the router forwards.
var Routed = []string{
	entity.ActionList,
	entity.ActionFind,
	entity.ActionCount,
	entity.ActionGet,
	entity.ActionCreate,
	entity.ActionUpdate,
	entity.ActionRemove,
}

// ProvisionObserver records provisioning attempts.
type ProvisionObserver interface {
	ObserveProvision(collection string, err error)
}

// Router forwards calls to "<collection>__<language>" services.
type Router struct {
	broker          *broker.Broker
	logger          *slog.Logger
	defaultLanguage string
	retries         int
	observer        ProvisionObserver
}

// Option customises a Router.
type Option func(*Router)

// WithLogger sets the router logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithDefaultLanguage sets the language used when a call names none.
func WithDefaultLanguage(language string) Option {
	return func(r *Router) {
		if language != "" {
			r.defaultLanguage = language
		}
	}
}

// WithRetries sets how many times a call is retried after provisioning.
func WithRetries(n int) Option {
	return func(r *Router) {
		if n >= 0 {
			r.retries = n
		}
	}
}

// WithObserver attaches a provisioning observer.
func WithObserver(observer ProvisionObserver) Option {
	return func(r *Router) { r.observer = observer }
}

// New constructs a Router with a default language of "pl" and two retries.
func New(b *broker.Broker, opts ...Option) *Router {
	r := &Router{
		broker:          b,
		logger:          slog.Default(),
		defaultLanguage: "pl",
		retries:         2,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(slog.String("service", ServiceName))
	return r
}

// Service returns the broker service exposing the routed actions.
func (r *Router) Service() *broker.Service {
	svc := &broker.Service{Name: ServiceName, Actions: make(map[string]broker.Handler, len(Routed))}
	for _, action := range Routed {
		svc.Actions[action] = r.forward(action)
	}
	return svc
}

func (r *Router) forward(action string) broker.Handler {
	return func(ctx context.Context, req *broker.Request) (any, error) {
		collection, language := r.route(req)
		if collection == "" {
			return nil, fmt.Errorf("%w: collectionName is required", shared.ErrValidation)
		}
		target := entity.ServiceName(collection, language) + "." + action
		r.logger.Info("forwarding call", slog.String("action", action), slog.String("target", target))

		provisioned := make(map[string]struct{})
		var lastErr error
		for attempt := 0; attempt <= r.retries; attempt++ {
			res, err := r.broker.Call(ctx, target, req.Params, req.Meta)
			if err == nil {
				return res, nil
			}
			lastErr = err

			var missing *broker.ServiceNotFoundError
			if !errors.As(err, &missing) {
				return nil, err
			}
			name, ok := entity.CollectionOf(missing.Service)
			if !ok {
				return nil, err
			}
			if attempt == r.retries {
				break
			}
			if _, done := provisioned[name]; done {
				continue
			}
			provisioned[name] = struct{}{}
			if err := r.provision(ctx, name); err != nil {
				return nil, err
			}
		}
		return nil, lastErr
	}
}

// route strips the routing params and resolves the target collection and
// language, falling back to meta set by the gateway and then the default.
func (r *Router) route(req *broker.Request) (string, string) {
	collection, _ := req.Params[paramCollectionName].(string)
	language, _ := req.Params[paramLanguage].(string)
	delete(req.Params, paramCollectionName)
	delete(req.Params, paramLanguage)

	if collection == "" {
		collection = req.Meta.CollectionName
	}
	if language == "" {
		language = req.Meta.Language
	}
	if language == "" {
		language = r.defaultLanguage
	}
	req.Meta.CollectionName = collection
	req.Meta.Language = language
	return collection, language
}

func (r *Router) provision(ctx context.Context, collection string) error {
	r.logger.Info("service missing, provisioning collection", slog.String("collection", collection))
	_, err := r.broker.Call(ctx, registry.ServiceName+".load",
		map[string]any{paramCollectionName: collection}, &broker.Meta{})
	if r.observer != nil {
		r.observer.ObserveProvision(collection, err)
	}
	if err != nil {
		r.logger.Warn("provisioning failed", slog.String("collection", collection), slog.Any("error", err))
	}
	return err
}
