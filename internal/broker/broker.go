// Package broker is the in-process service mesh: a name to service table with
// request/response calls, lifecycle management and fire-and-forget events.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/odyssey-cms/odyssey-cms/internal/fieldpath"
)

var tracer = otel.Tracer("broker")

// ErrServiceExists is returned when registering a name that is already taken.
var ErrServiceExists = errors.New("broker: service already registered")

// ErrServiceNotFound is matched by every ServiceNotFoundError.
var ErrServiceNotFound = errors.New("broker: service not found")

// ServiceNotFoundError is returned by Call when the target service or action
// is not registered.
type ServiceNotFoundError struct {
	Service string
	Action  string
}

func (e *ServiceNotFoundError) Error() string {
	if e.Action == "" {
		return fmt.Sprintf("service '%s' is not found", e.Service)
	}
	return fmt.Sprintf("service '%s.%s' is not found", e.Service, e.Action)
}

// Is makes ServiceNotFoundError match ErrServiceNotFound.
func (e *ServiceNotFoundError) Is(target error) bool {
	return target == ErrServiceNotFound
}

// Meta carries caller identity and routing hints alongside the params.
type Meta struct {
	// CalledByAPI marks calls that entered through the HTTP gateway.
	CalledByAPI bool
	// DecodedToken holds the caller's claims; nil for anonymous callers.
	DecodedToken map[string]any
	// Privileges are injected by trusted internal callers, e.g. $SYSTEM.
	Privileges     []string
	CollectionName string
	Language       string
	// SkipArchiveFilter lets internal callers read archived records.
	SkipArchiveFilter bool
	// Raw asks services not to strip hidden fields.
	Raw bool
}

// Clone returns a copy that can be mutated without affecting the caller.
func (m *Meta) Clone() *Meta {
	if m == nil {
		return &Meta{}
	}
	out := *m
	out.DecodedToken = fieldpath.CloneMap(m.DecodedToken)
	out.Privileges = append([]string(nil), m.Privileges...)
	return &out
}

// Request is the per-call envelope handed to action handlers. Handlers and
// hooks may rewrite Params and Meta in place.
type Request struct {
	Service string
	Action  string
	Params  map[string]any
	Meta    *Meta
}

// FullName returns "service.action".
func (r *Request) FullName() string {
	return r.Service + "." + r.Action
}

// Handler implements one action.
type Handler func(ctx context.Context, req *Request) (any, error)

// EventHandler reacts to an emitted event.
type EventHandler func(ctx context.Context, event string, payload any) error

// Service is a named set of actions and event subscriptions.
type Service struct {
	Name    string
	Actions map[string]Handler
	Events  map[string]EventHandler
}

// Relay forwards locally emitted events to other nodes.
type Relay interface {
	Publish(ctx context.Context, event string, payload any) error
}

// Observer records call outcomes.
type Observer interface {
	ObserveCall(service, action string, elapsed time.Duration, err error)
}

type subscription struct {
	owner   string
	handler EventHandler
}

// Broker routes calls and events between services.
type Broker struct {
	logger   *slog.Logger
	relay    Relay
	observer Observer

	mu       sync.RWMutex
	services map[string]*Service
	waiters  map[string][]chan struct{}
	subs     map[string][]subscription
}

// Option customises a Broker.
type Option func(*Broker)

// WithLogger sets the broker logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Broker) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithRelay forwards emitted events through relay.
func WithRelay(relay Relay) Option {
	return func(b *Broker) { b.relay = relay }
}

// WithObserver reports call outcomes to observer.
func WithObserver(observer Observer) Option {
	return func(b *Broker) { b.observer = observer }
}

// New constructs an empty Broker.
func New(opts ...Option) *Broker {
	b := &Broker{
		logger:   slog.Default(),
		services: make(map[string]*Service),
		waiters:  make(map[string][]chan struct{}),
		subs:     make(map[string][]subscription),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SetRelay attaches a relay after construction.
func (b *Broker) SetRelay(relay Relay) {
	b.mu.Lock()
	b.relay = relay
	b.mu.Unlock()
}

// Call invokes target ("service.action") with a private copy of params.
func (b *Broker) Call(ctx context.Context, target string, params map[string]any, meta *Meta) (any, error) {
	service, action := SplitTarget(target)

	b.mu.RLock()
	svc, ok := b.services[service]
	var handler Handler
	if ok {
		handler = svc.Actions[action]
	}
	observer := b.observer
	b.mu.RUnlock()

	if handler == nil {
		return nil, &ServiceNotFoundError{Service: service, Action: action}
	}

	ctx, span := tracer.Start(ctx, "broker.Call "+target)
	defer span.End()
	span.SetAttributes(attribute.String("cms.service", service), attribute.String("cms.action", action))

	if params == nil {
		params = map[string]any{}
	}
	req := &Request{
		Service: service,
		Action:  action,
		Params:  fieldpath.CloneMap(params),
		Meta:    meta.Clone(),
	}
	start := time.Now()
	res, err := handler(ctx, req)
	if observer != nil {
		observer.ObserveCall(service, action, time.Since(start), err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return res, nil
}

// CreateService registers svc and wakes anyone waiting for it.
func (b *Broker) CreateService(svc *Service) error {
	if svc == nil || svc.Name == "" {
		return errors.New("broker: service name required")
	}
	b.mu.Lock()
	if _, exists := b.services[svc.Name]; exists {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrServiceExists, svc.Name)
	}
	b.services[svc.Name] = svc
	for event, handler := range svc.Events {
		b.subs[event] = append(b.subs[event], subscription{owner: svc.Name, handler: handler})
	}
	waiters := b.waiters[svc.Name]
	delete(b.waiters, svc.Name)
	b.mu.Unlock()

	for _, ch := range waiters {
		close(ch)
	}
	b.logger.Debug("service registered", slog.String("service", svc.Name))
	return nil
}

// DestroyService unregisters name together with its event subscriptions.
func (b *Broker) DestroyService(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.services[name]; !ok {
		return &ServiceNotFoundError{Service: name}
	}
	delete(b.services, name)
	for event, subs := range b.subs {
		kept := subs[:0]
		for _, s := range subs {
			if s.owner != name {
				kept = append(kept, s)
			}
		}
		if len(kept) == 0 {
			delete(b.subs, event)
			continue
		}
		b.subs[event] = kept
	}
	b.logger.Debug("service destroyed", slog.String("service", name))
	return nil
}

// HasService reports whether name is registered.
func (b *Broker) HasService(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.services[name]
	return ok
}

// Services lists registered service names.
func (b *Broker) Services() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.services))
	for name := range b.services {
		names = append(names, name)
	}
	return names
}

// WaitForService blocks until every name is registered or ctx is done.
func (b *Broker) WaitForService(ctx context.Context, names ...string) error {
	for _, name := range names {
		b.mu.Lock()
		if _, ok := b.services[name]; ok {
			b.mu.Unlock()
			continue
		}
		ch := make(chan struct{})
		b.waiters[name] = append(b.waiters[name], ch)
		b.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return fmt.Errorf("broker: wait for %s: %w", name, ctx.Err())
		}
	}
	return nil
}

// Emit delivers event to local subscribers and to the relay, if any.
func (b *Broker) Emit(ctx context.Context, event string, payload any) {
	b.EmitLocal(ctx, event, payload)

	b.mu.RLock()
	relay := b.relay
	b.mu.RUnlock()
	if relay == nil {
		return
	}
	if err := relay.Publish(ctx, event, payload); err != nil {
		b.logger.Warn("relay event", slog.String("event", event), slog.Any("error", err))
	}
}

// EmitLocal delivers event to local subscribers only. Subscribers listening on
// "*" receive every event. Handler failures are logged and never surface to
// the emitter.
func (b *Broker) EmitLocal(ctx context.Context, event string, payload any) {
	b.mu.RLock()
	subs := append([]subscription(nil), b.subs[event]...)
	subs = append(subs, b.subs["*"]...)
	b.mu.RUnlock()

	for _, s := range subs {
		if err := s.handler(ctx, event, payload); err != nil {
			b.logger.Warn("event handler failed",
				slog.String("event", event),
				slog.String("service", s.owner),
				slog.Any("error", err))
		}
	}
}

// On subscribes an anonymous handler to event. The returned function removes
// the subscription.
func (b *Broker) On(event string, handler EventHandler) func() {
	owner := fmt.Sprintf("$listener:%p", &handler)
	b.mu.Lock()
	b.subs[event] = append(b.subs[event], subscription{owner: owner, handler: handler})
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[event]
		kept := subs[:0]
		for _, s := range subs {
			if s.owner != owner {
				kept = append(kept, s)
			}
		}
		b.subs[event] = kept
	}
}

// SplitTarget splits "service.action" at the last dot.
func SplitTarget(target string) (service, action string) {
	idx := strings.LastIndexByte(target, '.')
	if idx < 0 {
		return target, ""
	}
	return target[:idx], target[idx+1:]
}
