package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/odyssey-cms/odyssey-cms/internal/actions"
	"github.com/odyssey-cms/odyssey-cms/internal/broker"
	"github.com/odyssey-cms/odyssey-cms/internal/entity"
	"github.com/odyssey-cms/odyssey-cms/internal/observability"
	"github.com/odyssey-cms/odyssey-cms/internal/registry"
	"github.com/odyssey-cms/odyssey-cms/internal/storage"
	"github.com/odyssey-cms/odyssey-cms/internal/storage/memory"
	"github.com/odyssey-cms/odyssey-cms/internal/storage/postgres"
	"github.com/odyssey-cms/odyssey-cms/internal/system"
)

// OpenStorage returns the configured storage provider and a release function.
func OpenStorage(ctx context.Context, cfg *Config) (storage.Provider, func(), error) {
	switch cfg.StorageDriver {
	case StorageMemory:
		return memory.New(), func() {}, nil
	case StoragePostgres:
		pool, err := postgres.Open(ctx, cfg.PGDSN)
		if err != nil {
			return nil, nil, err
		}
		store := postgres.New(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

// CoreParams groups the dependencies of the service mesh.
type CoreParams struct {
	Config  *Config
	Logger  *slog.Logger
	Store   storage.Provider
	Metrics *observability.Metrics
	Relay   broker.Relay
}

// Core is the broker with the system services, the registry and the actions
// router registered on it.
type Core struct {
	Broker   *broker.Broker
	Factory  *entity.Factory
	Registry *registry.Registry
	Router   *actions.Router
}

// NewCore registers every built-in service on a new broker.
func NewCore(params CoreParams) (*Core, error) {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	opts := []broker.Option{broker.WithLogger(logger)}
	if params.Metrics != nil {
		opts = append(opts, broker.WithObserver(params.Metrics))
	}
	if params.Relay != nil {
		opts = append(opts, broker.WithRelay(params.Relay))
	}
	b := broker.New(opts...)

	factory := entity.NewFactory(b, params.Store, logger)
	if err := system.Register(b, factory, logger); err != nil {
		return nil, err
	}

	reg := registry.New(b, factory, logger)
	if err := b.CreateService(reg.Service()); err != nil {
		return nil, err
	}

	routerOpts := []actions.Option{actions.WithLogger(logger)}
	if params.Config != nil {
		routerOpts = append(routerOpts,
			actions.WithDefaultLanguage(params.Config.DefaultLanguage),
			actions.WithRetries(params.Config.RouterRetries))
	}
	if params.Metrics != nil {
		routerOpts = append(routerOpts, actions.WithObserver(params.Metrics))
	}
	router := actions.New(b, routerOpts...)
	if err := b.CreateService(router.Service()); err != nil {
		return nil, err
	}

	return &Core{Broker: b, Factory: factory, Registry: reg, Router: router}, nil
}

// Preload registers every stored collection so the first requests do not pay
// for provisioning. Stores without languages yet are left for lazy loading.
func (c *Core) Preload(ctx context.Context, logger *slog.Logger) {
	if err := c.Registry.LoadAll(ctx); err != nil {
		logger.Warn("preload collections", slog.Any("error", err))
		return
	}
	logger.Info("collections loaded", slog.Any("collections", c.Registry.Loaded()))
}
