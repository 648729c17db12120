package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wardenhq/warden/pkg/api"
	"github.com/wardenhq/warden/pkg/assignments"
	"github.com/wardenhq/warden/pkg/audit"
	"github.com/wardenhq/warden/pkg/bundle"
	"github.com/wardenhq/warden/pkg/config"
	"github.com/wardenhq/warden/pkg/httputil"
	"github.com/wardenhq/warden/pkg/observability"
	"github.com/wardenhq/warden/pkg/policy"
	"github.com/wardenhq/warden/pkg/store"
	"github.com/wardenhq/warden/pkg/store/dynamo"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "warden: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Infof("Starting warden with %s storage", cfg.Storage.Type)

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)

	// OpenTelemetry
	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return err
	}
	if providers != nil {
		shutdown.RegisterShutdownFunc("otel", func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, providers, logger)
		})
	}

	// Metrics
	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	// Persistence backends
	entityBackend, edgeBackend, versionBackend, err := buildBackends(ctx, cfg)
	if err != nil {
		return err
	}

	entities := store.NewStore(entityBackend)
	graph := assignments.NewStore(edgeBackend)

	// Bundle cache, wired into the engine's change notifications so a stale
	// bundle can never outlive a policy mutation.
	var redisClient *redis.Client
	var cache *bundle.Cache
	var engineOpts []policy.Option
	if cfg.Bundle.CacheEnabled {
		if cfg.Bundle.RedisURL != "" {
			redisClient = redis.NewClient(&redis.Options{
				Addr:     cfg.Bundle.RedisURL,
				Password: cfg.Bundle.RedisPassword,
				DB:       cfg.Bundle.RedisDB,
			})
			shutdown.RegisterShutdownFunc("redis", func(ctx context.Context) error {
				return redisClient.Close()
			})
		}
		cache, err = bundle.NewCache(cfg.Bundle.L1CacheSize, redisClient, cfg.Bundle.CacheTTL)
		if err != nil {
			return fmt.Errorf("failed to create bundle cache: %w", err)
		}
		engineOpts = append(engineOpts, policy.WithChangeListener(cache.Invalidate))
	}

	engine := policy.NewEngine(versionBackend, engineOpts...)
	exporter := bundle.NewExporter(engine, cache)

	// Bundle publishing
	var publisher *bundle.Publisher
	if cfg.Bundle.S3Bucket != "" {
		s3Client, err := buildS3Client(ctx, cfg)
		if err != nil {
			return err
		}
		publisher = bundle.NewPublisher(exporter, s3Client, cfg.Bundle.S3Bucket, cfg.Bundle.S3Prefix)
	}
	if cfg.Bundle.PublishSchedule != "" {
		scheduler := bundle.NewScheduler(publisher, cfg.Bundle.PublishTenants, logger)
		if err := scheduler.Start(cfg.Bundle.PublishSchedule); err != nil {
			return fmt.Errorf("failed to start bundle scheduler: %w", err)
		}
		shutdown.RegisterShutdownFunc("bundle scheduler", func(ctx context.Context) error {
			scheduler.Stop()
			return nil
		})
	}

	// Seed data
	if cfg.SeedFile != "" {
		seed, err := store.LoadSeedFile(cfg.SeedFile)
		if err != nil {
			return err
		}
		result, err := entities.ApplySeed(ctx, seed)
		if err != nil {
			return err
		}
		logger.Infof("Applied seed file: %d created, %d skipped", result.Created, result.Skipped)
	}

	// Audit trail
	sink, err := buildAuditSink(cfg)
	if err != nil {
		return err
	}
	shutdown.RegisterShutdownFunc("audit sink", func(ctx context.Context) error {
		return sink.Close()
	})

	server := api.NewServer(api.Deps{
		Entities:  entities,
		Graph:     graph,
		Policies:  engine,
		Exporter:  exporter,
		Publisher: publisher,
		Logger:    logger,
		Metrics:   metrics,
		AuditSink: sink,
	})

	middlewares := []func(http.Handler) http.Handler{
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(logger),
		httputil.RecoveryMiddleware(logger),
		httputil.ContentTypeMiddleware,
		httputil.MaxBytesMiddleware(1 << 20),
	}
	if metrics != nil {
		middlewares = append(middlewares, metrics.HTTPMiddleware)
	}
	var handler http.Handler = httputil.Chain(middlewares...)(server.Router())
	if cfg.Observability.OTelEnabled {
		handler = otelhttp.NewHandler(handler, "warden-api")
	}

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	shutdown.RegisterServer(apiServer)

	healthServer := buildHealthServer(cfg, registry, redisClient)
	shutdown.RegisterServer(healthServer)

	go func() {
		logger.Infof("Health server listening on %s", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Health server failed")
		}
	}()
	go func() {
		logger.Infof("API server listening on %s", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("API server failed")
		}
	}()

	return shutdown.WaitForShutdown()
}

// buildBackends constructs the three persistence backends from one storage
// config, so memory and DynamoDB deployments differ only here.
func buildBackends(ctx context.Context, cfg *config.Config) (store.EntityBackend, assignments.EdgeBackend, policy.VersionBackend, error) {
	switch cfg.Storage.Type {
	case "memory":
		return store.NewMemoryBackend(), assignments.NewMemoryBackend(), policy.NewMemoryBackend(), nil
	case "dynamodb":
		client, err := dynamo.NewClient(ctx, dynamo.Config{
			Region:       cfg.Storage.Region,
			Endpoint:     cfg.Storage.Endpoint,
			AccessKey:    cfg.Storage.AccessKey,
			SecretKey:    cfg.Storage.SecretKey,
			EntityTable:  cfg.Storage.EntityTable,
			EdgeTable:    cfg.Storage.EdgeTable,
			VersionTable: cfg.Storage.VersionTable,
			ActiveIndex:  cfg.Storage.ActiveIndex,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		return dynamo.NewEntityBackend(client, cfg.Storage.EntityTable),
			dynamo.NewEdgeBackend(client, cfg.Storage.EdgeTable),
			dynamo.NewVersionBackend(client, cfg.Storage.VersionTable, cfg.Storage.ActiveIndex),
			nil
	default:
		return nil, nil, nil, fmt.Errorf("unsupported storage type %q", cfg.Storage.Type)
	}
}

func buildS3Client(ctx context.Context, cfg *config.Config) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Storage.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

func buildAuditSink(cfg *config.Config) (audit.Sink, error) {
	if !cfg.Audit.Enabled {
		return audit.NopSink{}, nil
	}
	if cfg.Audit.Path != "" {
		return audit.NewFileSink(cfg.Audit.Path)
	}
	return audit.NewLogSink(os.Stdout), nil
}

func buildHealthServer(cfg *config.Config, registry *prometheus.Registry, redisClient *redis.Client) *http.Server {
	checker := observability.NewHealthChecker(0)
	if redisClient != nil {
		checker.Register("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", checker.LivenessHandler())
	mux.HandleFunc("/health/ready", checker.ReadinessHandler())
	if cfg.Observability.MetricsEnabled {
		mux.Handle("/metrics", observability.Handler(registry))
	}

	return &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: mux,
	}
}
