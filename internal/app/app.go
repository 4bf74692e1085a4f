package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/listing-search/internal/cache"
	"github.com/utafrali/listing-search/internal/config"
	"github.com/utafrali/listing-search/internal/engine"
	esengine "github.com/utafrali/listing-search/internal/engine/elasticsearch"
	"github.com/utafrali/listing-search/internal/engine/memory"
	"github.com/utafrali/listing-search/internal/event"
	"github.com/utafrali/listing-search/internal/facets"
	handler "github.com/utafrali/listing-search/internal/handler/http"
	"github.com/utafrali/listing-search/internal/projector"
	"github.com/utafrali/listing-search/internal/repository/postgres"
	"github.com/utafrali/listing-search/internal/schema"
	"github.com/utafrali/listing-search/internal/service"
	sourcepg "github.com/utafrali/listing-search/internal/source/postgres"
	"github.com/utafrali/listing-search/migrations"
	"github.com/utafrali/listing-search/pkg/database"
	"github.com/utafrali/listing-search/pkg/health"
	pkgkafka "github.com/utafrali/listing-search/pkg/kafka"
	"github.com/utafrali/listing-search/pkg/tracing"
)

// Components is the service graph shared by the server and the CLI.
type Components struct {
	Engine    engine.Engine
	Pool      *pgxpool.Pool
	Redis     *redis.Client
	Schema    *service.SchemaManager
	Indexer   *service.Indexer
	Search    *service.SearchService
	Runs      *postgres.ReindexRunRepository
	Reindexer *service.ReindexRunner
}

// Close releases the connections held by the components.
func (c *Components) Close() error {
	var errs []error
	if c.Redis != nil {
		errs = append(errs, c.Redis.Close())
	}
	if c.Pool != nil {
		c.Pool.Close()
	}
	return errors.Join(errs...)
}

// Build connects to the search engine, the listing database and the optional
// suggestion cache, and assembles the services on top. sink may be nil.
func Build(ctx context.Context, cfg *config.Config, sink service.FailureSink, logger *slog.Logger) (*Components, error) {
	eng, err := newEngine(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	pgCfg := cfg.Postgres()
	pool, err := database.NewPostgresPool(connectCtx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.DBHost),
		slog.Int("port", cfg.DBPort),
		slog.String("database", cfg.DBName),
	)

	if err := database.RunMigrations(connectCtx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	c := &Components{Engine: eng, Pool: pool}

	var suggestCache service.SuggestCache
	if redisCfg, ok := cfg.Redis(); ok {
		client, err := database.NewRedisClient(connectCtx, redisCfg)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		c.Redis = client
		suggestCache = cache.NewSuggestCache(client, cfg.IndexName, cfg.SuggestCacheTTL)
		logger.Info("suggestion cache enabled", slog.String("addr", redisCfg.Addr()))
	}

	tracer := database.QueryTracer{SlowThreshold: cfg.DBSlowThreshold, Logger: logger}
	src := sourcepg.NewListingSource(pool, tracer)

	c.Schema = service.NewSchemaManager(eng, schema.Options{
		Shards:   cfg.Shards,
		Replicas: cfg.Replicas,
		Synonyms: cfg.SynonymGroups(),
		MinGram:  cfg.AutocompleteMinGram,
		MaxGram:  cfg.AutocompleteMaxGram,
	}, logger)
	c.Indexer = service.NewIndexer(eng, src, projector.New(cfg.Locale), c.Schema, sink, cfg.BatchSize, logger)
	c.Search = service.NewSearchService(eng, service.SearchConfig{
		Facets: facets.Config{
			PriceBuckets: cfg.PriceBuckets,
			YearBuckets:  cfg.YearBuckets,
		},
		Overfetch: cfg.SuggestOverfetch,
	}, suggestCache, logger)
	c.Runs = postgres.NewReindexRunRepository(pool)
	c.Reindexer = service.NewReindexRunner(c.Indexer, c.Runs, logger)
	return c, nil
}

func newEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger) (engine.Engine, error) {
	if cfg.SearchEngine == config.EngineMemory {
		logger.Info("in-memory search engine initialized")
		return memory.New(), nil
	}

	breaker := esengine.DefaultBreakerConfig()
	breaker.Timeout = cfg.BreakerOpenTimeout
	breaker.FailureRatio = cfg.BreakerFailureRatio
	breaker.MinRequests = cfg.BreakerMinRequests

	client, err := esengine.NewClient(esengine.ClientConfig{
		Addresses: cfg.ElasticsearchURLs,
		Username:  cfg.ElasticsearchUser,
		Password:  cfg.ElasticsearchPass,
		Breaker:   breaker,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init elasticsearch engine: %w", err)
	}
	eng := esengine.New(client, cfg.IndexName, logger)
	if err := esengine.WaitForCluster(ctx, eng, cfg.ElasticsearchWait, logger); err != nil {
		return nil, err
	}
	logger.Info("elasticsearch search engine initialized",
		slog.Any("urls", cfg.ElasticsearchURLs),
		slog.String("index", cfg.IndexName),
	)
	return eng, nil
}

// App wires together all dependencies and runs the search service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	components     *Components
	consumers      []*pkgkafka.Consumer
	producer       *pkgkafka.Producer
	dlq            *pkgkafka.DLQProducer
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx := context.Background()

	tracerShutdown, err := tracing.InitTracer(ctx, cfg.Tracing())
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	kafkaEnabled := len(cfg.KafkaBrokers) > 0

	var (
		producer *pkgkafka.Producer
		dlq      *pkgkafka.DLQProducer
		sink     service.FailureSink
	)
	if kafkaEnabled {
		producer = pkgkafka.NewProducer(cfg.KafkaBrokers, logger)
		dlq = pkgkafka.NewDLQProducer(cfg.KafkaBrokers, logger)
		sink = event.NewFailureSink(producer, cfg.ServiceName, logger)
	}

	components, err := Build(ctx, cfg, sink, logger)
	if err != nil {
		return nil, err
	}
	database.RegisterPoolMetrics(components.Pool, cfg.ServiceName)

	ensureCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := components.Schema.EnsureIndex(ensureCtx); err != nil {
		logger.Warn("search index not ensured at startup", slog.String("error", err.Error()))
	}

	// Kafka consumers for listing lifecycle events.
	var consumers []*pkgkafka.Consumer
	if kafkaEnabled {
		eventConsumer := event.NewConsumer(components.Indexer, logger)
		for _, topic := range event.Topics() {
			consumerCfg := pkgkafka.ConsumerConfig{
				Brokers:  cfg.KafkaBrokers,
				GroupID:  cfg.KafkaGroupID,
				Topic:    topic,
				MinBytes: 1,
				MaxBytes: 10e6,
			}
			consumers = append(consumers, pkgkafka.NewConsumer(consumerCfg, eventConsumer.Handle, logger).WithDLQ(dlq))
		}
		logger.Info("kafka consumers initialized",
			slog.Any("brokers", cfg.KafkaBrokers),
			slog.Int("topic_count", len(consumers)),
		)
	} else {
		logger.Warn("KAFKA_BROKERS not set, listing events will not be consumed")
	}

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.Register("elasticsearch", components.Engine.Ping)
	healthHandler.Register("postgres", func(ctx context.Context) error {
		return components.Pool.Ping(ctx)
	})
	if components.Redis != nil {
		healthHandler.Register("redis", func(ctx context.Context) error {
			return components.Redis.Ping(ctx).Err()
		})
	}
	if kafkaEnabled {
		healthHandler.Register("kafka", func(ctx context.Context) error {
			return pkgkafka.PingBrokers(ctx, cfg.KafkaBrokers)
		})
	}

	// HTTP router.
	router := handler.NewRouter(
		handler.RouterConfig{
			ServiceName:    cfg.ServiceName,
			RequestTimeout: cfg.RequestTimeout,
			CORSOrigins:    cfg.CORSOrigins,
			CacheMaxAge:    cfg.CacheMaxAge,
			PprofEnabled:   cfg.PprofEnabled,
			PprofAllowlist: cfg.PprofAllowlist,
		},
		handler.NewSearchHandler(components.Search, logger),
		handler.NewAdminHandler(components.Indexer, components.Reindexer, components.Schema, logger),
		healthHandler,
		logger,
	)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		components:     components,
		consumers:      consumers,
		producer:       producer,
		dlq:            dlq,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// Run starts the HTTP server and Kafka consumers, blocking until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1+len(a.consumers))

	for _, c := range a.consumers {
		go func() {
			if err := c.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("kafka consumer: %w", err)
			}
		}()
	}

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components. An active reindex is cancelled
// and given the shutdown deadline to record its result.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	for _, c := range a.consumers {
		if err := c.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if err := a.components.Reindexer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("reindex shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.dlq != nil {
		if err := a.dlq.Close(); err != nil {
			a.logger.Error("kafka dlq close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if err := a.components.Close(); err != nil {
		errs = append(errs, err)
	}

	if err := a.tracerShutdown(shutdownCtx); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
