package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/futurebuildai/lumber-boss/internal/handlers"
	"github.com/futurebuildai/lumber-boss/internal/platform/config"
	pfirestore "github.com/futurebuildai/lumber-boss/internal/platform/firestore"
	"github.com/futurebuildai/lumber-boss/internal/platform/jobs"
	"github.com/futurebuildai/lumber-boss/internal/platform/observability"
	"github.com/futurebuildai/lumber-boss/internal/platform/session"
	"github.com/futurebuildai/lumber-boss/internal/repositories"
	"github.com/futurebuildai/lumber-boss/internal/repositories/catalogsource"
	"github.com/futurebuildai/lumber-boss/internal/repositories/file"
	firestoreRepo "github.com/futurebuildai/lumber-boss/internal/repositories/firestore"
	"github.com/futurebuildai/lumber-boss/internal/repositories/memory"
	redisRepo "github.com/futurebuildai/lumber-boss/internal/repositories/redis"
	"github.com/futurebuildai/lumber-boss/internal/services"
)

const (
	secretHealthReference = "secret://system/healthz?version=latest"
	defaultFetchTimeout   = 10 * time.Second
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Catalog     services.CatalogService
	Cart        services.CartService
	Preferences services.PreferenceService
	System      services.SystemService
}

// Options carries process-level dependencies built before the container.
type Options struct {
	Logger *zap.Logger
	Build  services.BuildInfo

	// Secrets enables the Secret Manager readiness probe.
	Secrets       config.SecretResolver
	// Store overrides the configured key-value backend.
	Store         repositories.KeyValueStore
	// CatalogSource overrides the configured catalog location.
	CatalogSource repositories.CatalogSource
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config    config.Config
	Services  Services
	Events    *services.CartEventBus
	Refresher *services.CatalogRefresher
	Sessions  *session.Manager

	logger  *zap.Logger
	build   services.BuildInfo
	closers []func(context.Context) error
}

// NewContainer constructs the runtime dependencies. An initial catalog load failure is logged
// and served as the catalog error state rather than aborting startup.
func NewContainer(ctx context.Context, cfg config.Config, opts Options) (*Container, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Container{
		Config: cfg,
		Events: services.NewCartEventBus(),
		logger: logger,
		build:  opts.Build,
	}

	var checks []repositories.DependencyCheck

	store := opts.Store
	if store == nil {
		built, check, err := c.buildStore(cfg)
		if err != nil {
			_ = c.Close(ctx)
			return nil, err
		}
		store = built
		if check != nil {
			checks = append(checks, *check)
		}
	}

	source := opts.CatalogSource
	if source == nil {
		built, err := catalogsource.New(ctx, cfg.Catalog, catalogsource.Options{})
		if err != nil {
			_ = c.Close(ctx)
			return nil, fmt.Errorf("catalog source: %w", err)
		}
		source = built
	}

	catalog, err := services.NewCatalogService(services.CatalogServiceDeps{
		Source:   source,
		Logger:   logger.Named("catalog"),
		Clock:    time.Now,
		SiteName: cfg.Site.Name,
	})
	if err != nil {
		_ = c.Close(ctx)
		return nil, fmt.Errorf("catalog service: %w", err)
	}
	fetchTimeout := cfg.Catalog.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = defaultFetchTimeout
	}
	loadCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	if err := catalog.Refresh(loadCtx); err != nil {
		logger.Error("initial catalog load failed", zap.Error(err))
	}
	cancel()
	checks = append(checks, repositories.DependencyCheck{
		Name: "catalog",
		Check: func(ctx context.Context) error {
			_, err := catalog.Catalog(ctx)
			return err
		},
	})

	if spec := strings.TrimSpace(cfg.Catalog.RefreshSchedule); spec != "" {
		refresher, err := services.NewCatalogRefresher(catalog, spec, fetchTimeout, logger.Named("catalog"))
		if err != nil {
			_ = c.Close(ctx)
			return nil, err
		}
		c.Refresher = refresher
		c.closers = append(c.closers, func(ctx context.Context) error {
			refresher.Stop(ctx)
			return nil
		})
	}

	publisher, err := c.buildPublisher(ctx, cfg)
	if err != nil {
		_ = c.Close(ctx)
		return nil, err
	}

	carts, err := services.NewCartService(services.CartServiceDeps{
		Store:          store,
		Catalog:        catalog,
		Publisher:      publisher,
		Logger:         logger.Named("cart"),
		Clock:          time.Now,
		StorageKey:     cfg.Cart.StorageKey,
		MaxCachedCarts: cfg.Cart.MaxCachedCarts,
	})
	if err != nil {
		_ = c.Close(ctx)
		return nil, fmt.Errorf("cart service: %w", err)
	}

	prefs, err := services.NewPreferenceService(services.PreferenceServiceDeps{
		Store:  store,
		Key:    cfg.Cart.LocationKey,
		Logger: logger.Named("preferences"),
	})
	if err != nil {
		_ = c.Close(ctx)
		return nil, fmt.Errorf("preference service: %w", err)
	}

	if opts.Secrets != nil {
		checks = append(checks, secretManagerCheck(opts.Secrets))
	}
	healthRepo, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		_ = c.Close(ctx)
		return nil, fmt.Errorf("health repository: %w", err)
	}
	system, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: healthRepo,
		Clock:            time.Now,
		Build:            opts.Build,
	})
	if err != nil {
		_ = c.Close(ctx)
		return nil, fmt.Errorf("system service: %w", err)
	}

	c.Services = Services{
		Catalog:     catalog,
		Cart:        carts,
		Preferences: prefs,
		System:      system,
	}
	c.Sessions = session.NewManager(cfg.Session, logger.Named("session"))
	return c, nil
}

// Start launches background workers.
func (c *Container) Start() {
	if c.Refresher != nil {
		c.Refresher.Start()
	}
}

// Router assembles the HTTP handler tree.
func (c *Container) Router() http.Handler {
	cfg := c.Config
	httpLogger := c.logger.Named("http")
	projectID := strings.TrimSpace(cfg.Firestore.ProjectID)

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(httpLogger),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(httpLogger),
		observability.RequestLoggerMiddleware(),
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(c.build),
		handlers.WithHealthSystemService(c.Services.System),
	)

	live := handlers.NewLiveHandlers(c.Services.Catalog, handlers.LiveConfig{
		SiteName:       cfg.Site.Name,
		ListingPath:    services.DefaultListingPath,
		SearchDebounce: cfg.Filters.SearchDebounce,
		PriceDebounce:  cfg.Filters.PriceDebounce,
	}, c.logger.Named("live"))
	catalogHandlers := handlers.NewCatalogHandlers(c.Services.Catalog, handlers.WithLiveFilters(live))
	cartHandlers := handlers.NewCartHandlers(c.Services.Cart, handlers.NewCartEventHandlers(c.Services.Cart, c.Events, 0))
	preferenceHandlers := handlers.NewPreferenceHandlers(c.Services.Preferences)

	return handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithAPIMiddlewares(
			handlers.RateLimitMiddleware(cfg.RateLimits.PerSecond, cfg.RateLimits.Burst),
			c.Sessions.Middleware,
		),
		handlers.WithCatalogRoutes(catalogHandlers.Routes),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithPreferenceRoutes(preferenceHandlers.Routes),
	)
}

// Close releases resources in reverse construction order.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func (c *Container) buildStore(cfg config.Config) (repositories.KeyValueStore, *repositories.DependencyCheck, error) {
	switch cfg.Storage.Backend {
	case config.StorageBackendMemory, "":
		c.logger.Warn("storage: using in-memory backend; carts are lost on restart")
		return memory.NewStore(), nil, nil
	case config.StorageBackendFile:
		store, err := file.NewStore(cfg.Storage.Directory)
		if err != nil {
			return nil, nil, fmt.Errorf("file store: %w", err)
		}
		return store, &repositories.DependencyCheck{Name: "storage", Check: store.Ping}, nil
	case config.StorageBackendRedis:
		client, err := redisRepo.NewClient(cfg.Storage.RedisURL, cfg.Storage.RedisPassword)
		if err != nil {
			return nil, nil, err
		}
		store, err := redisRepo.NewStore(client)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		c.closers = append(c.closers, func(context.Context) error { return store.Close() })
		return store, &repositories.DependencyCheck{Name: "storage", Check: store.Ping}, nil
	case config.StorageBackendFirestore:
		provider := pfirestore.NewProvider(cfg.Firestore)
		c.closers = append(c.closers, func(context.Context) error { return provider.Close() })
		store, err := firestoreRepo.NewKeyValueStore(provider, cfg.Storage.Collection)
		if err != nil {
			return nil, nil, err
		}
		return store, &repositories.DependencyCheck{Name: "storage", Check: firestorePing(provider)}, nil
	default:
		return nil, nil, fmt.Errorf("storage: unsupported backend %q", cfg.Storage.Backend)
	}
}

// buildPublisher always delivers to the in-process bus and additionally to Pub/Sub when a
// topic is configured.
func (c *Container) buildPublisher(ctx context.Context, cfg config.Config) (services.CartEventPublisher, error) {
	topicID := strings.TrimSpace(cfg.Events.TopicID)
	if topicID == "" {
		return c.Events, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.Events.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}
	publisher, err := jobs.NewPubSubCartEventPublisher(client.Topic(topicID))
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	c.closers = append(c.closers, func(context.Context) error {
		publisher.Stop()
		return client.Close()
	})
	return services.MultiPublisher{c.Events, publisher}, nil
}

func firestorePing(provider *pfirestore.Provider) func(context.Context) error {
	return func(ctx context.Context) error {
		client, err := provider.Client(ctx)
		if err != nil {
			return err
		}
		iter := client.Collections(ctx)
		_, err = iter.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		return err
	}
}

func secretManagerCheck(resolver config.SecretResolver) repositories.DependencyCheck {
	return repositories.DependencyCheck{
		Name:    "secretManager",
		Timeout: time.Second,
		Check: func(ctx context.Context) error {
			_, err := resolver.ResolveSecret(ctx, secretHealthReference)
			if err == nil {
				return nil
			}
			// The probe secret need not exist; reaching the API is enough.
			if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
				return nil
			}
			return err
		},
	}
}
