// Package app builds the long-lived services a command needs from a loaded
// configuration and shuts them down again.
package app

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/climatedb/internal/api"
	"github.com/JakeFAU/climatedb/internal/archive"
	"github.com/JakeFAU/climatedb/internal/clock/system"
	"github.com/JakeFAU/climatedb/internal/collect"
	"github.com/JakeFAU/climatedb/internal/config"
	collyfetcher "github.com/JakeFAU/climatedb/internal/fetcher/colly"
	"github.com/JakeFAU/climatedb/internal/filter"
	"github.com/JakeFAU/climatedb/internal/hash/sha256"
	"github.com/JakeFAU/climatedb/internal/id/uuid"
	"github.com/JakeFAU/climatedb/internal/ingest"
	"github.com/JakeFAU/climatedb/internal/newspaper"
	"github.com/JakeFAU/climatedb/internal/policy/ratelimit"
	pubsubpublisher "github.com/JakeFAU/climatedb/internal/publisher/pubsub"
	"github.com/JakeFAU/climatedb/internal/registry"
	"github.com/JakeFAU/climatedb/internal/search"
	"github.com/JakeFAU/climatedb/internal/search/google"
	"github.com/JakeFAU/climatedb/internal/storage"
	"github.com/JakeFAU/climatedb/internal/storage/postgres"
	"github.com/JakeFAU/climatedb/internal/telemetry"
)

// ServiceName identifies climatedb in traces.
const ServiceName = "climatedb"

// App holds the services shared by every command.
type App struct {
	Config   config.Config
	Logger   *zap.Logger
	Archive  *storage.Provider
	Registry *registry.Registry
	Runner   *collect.Runner

	pubsubClient   *pubsub.Client
	publisher      *pubsubpublisher.Publisher
	tracerProvider *sdktrace.TracerProvider
}

// Option customizes New.
type Option func(*options)

type options struct {
	storage  *storage.Config
	searcher archive.Searcher
}

// WithStorage overrides the storage backends derived from the config.
func WithStorage(cfg storage.Config) Option {
	return func(o *options) { o.storage = &cfg }
}

// WithSearcher replaces the live search upstream.
func WithSearcher(s archive.Searcher) Option {
	return func(o *options) { o.searcher = s }
}

// New wires the archive, source registry and collection pipeline. It fails
// fast if a configured backend cannot be reached.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	storageCfg := StorageConfig(cfg)
	if o.storage != nil {
		storageCfg = *o.storage
	}
	provider, err := storage.New(ctx, storageCfg, logger.Named("storage"))
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	a := &App{Config: cfg, Logger: logger, Archive: provider}

	tp, err := telemetry.InitTracerProvider(ctx, ServiceName)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.tracerProvider = tp

	defs, err := loadDefinitions(cfg.Sources.File)
	if err != nil {
		a.Close()
		return nil, err
	}
	articleFetcher := collyfetcher.New(
		collyfetcher.Config{
			UserAgent:     cfg.Fetch.UserAgent,
			RespectRobots: cfg.Fetch.RespectRobots,
			Timeout:       cfg.Fetch.Timeout,
		},
		collyfetcher.WithLimiter(ratelimit.New(ratelimit.Config{RPS: cfg.Fetch.RequestsPerSecond})),
		collyfetcher.WithLogger(logger.Named("fetch")),
	)
	sources, err := newspaper.Build(defs, articleFetcher, logger.Named("source"))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build sources: %w", err)
	}
	reg, err := registry.New(sources)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build registry: %w", err)
	}
	a.Registry = reg

	searcher := o.searcher
	if searcher == nil {
		// Result pages are never gated on robots.txt.
		searchFetcher := collyfetcher.New(
			collyfetcher.Config{
				UserAgent: cfg.Search.UserAgent,
				Timeout:   cfg.Search.Timeout,
			},
			collyfetcher.WithLimiter(ratelimit.New(ratelimit.Config{RPS: cfg.Search.RequestsPerSecond})),
			collyfetcher.WithLogger(logger.Named("search")),
		)
		searcher = google.New(searchFetcher, google.Config{
			BaseURL:  cfg.Search.BaseURL,
			PageSize: cfg.Search.PageSize,
		}, logger.Named("google"))
	}
	clock := system.New()
	engine := search.New(searcher, provider, clock, search.Config{
		Topic:       cfg.Search.Topic,
		MaxAttempts: cfg.Search.MaxAttempts,
		BackoffUnit: cfg.Search.BackoffUnit,
	}, logger.Named("search"))

	var ingestOpts []ingest.Option
	if cfg.PubSub.Enabled() {
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init pubsub: %w", err)
		}
		a.pubsubClient = client
		a.publisher = pubsubpublisher.New(client.Topic(cfg.PubSub.Topic))
		ingestOpts = append(ingestOpts, ingest.WithPublisher(a.publisher))
		logger.Info("pubsub notifications enabled", zap.String("topic", cfg.PubSub.Topic))
	}
	stage := ingest.New(reg, provider, sha256.New(), clock, logger.Named("ingest"), ingestOpts...)

	a.Runner = collect.New(
		reg,
		engine,
		filter.New(provider, logger.Named("filter")),
		stage,
		provider,
		uuid.New(),
		logger.Named("collect"),
	)
	logger.Info("application services initialized",
		zap.Int("sources", reg.Len()),
		zap.String("archive_backend", storageCfg.Backend),
		zap.String("log_backend", storageCfg.LogBackend),
	)
	return a, nil
}

// StorageConfig maps the archive and log sections onto storage.Config.
func StorageConfig(cfg config.Config) storage.Config {
	return storage.Config{
		Root:       cfg.Archive.Root,
		Backend:    cfg.Archive.Backend,
		GCSBucket:  cfg.Archive.GCSBucket,
		GCSPrefix:  cfg.Archive.GCSPrefix,
		LogBackend: cfg.Log.Backend,
		Postgres: postgres.Config{
			DSN:      cfg.DB.DSN,
			Table:    cfg.DB.Table,
			MaxConns: cfg.DB.MaxConns,
		},
	}
}

func loadDefinitions(path string) ([]newspaper.Definition, error) {
	defs, err := newspaper.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}
	return defs, nil
}

// Server returns the read-only archive API over this app's services.
func (a *App) Server() *api.Server {
	return api.NewServer(a.Registry, a.Archive, a.Logger.Named("api"))
}

// Close releases every service. It is safe on a partially built App.
func (a *App) Close() {
	if a.publisher != nil {
		a.publisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.Logger.Warn("close pubsub client", zap.Error(err))
		}
	}
	if a.Archive != nil {
		a.Archive.Close()
	}
	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(context.Background()); err != nil {
			a.Logger.Warn("shutdown tracer provider", zap.Error(err))
		}
	}
}
