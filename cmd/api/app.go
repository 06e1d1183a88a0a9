package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/time/rate"

	"github.com/mrlynn/mikes-mongodb-minute-sub001/internal/api/handlers"
	"github.com/mrlynn/mikes-mongodb-minute-sub001/internal/api/middleware"
	"github.com/mrlynn/mikes-mongodb-minute-sub001/internal/config"
	"github.com/mrlynn/mikes-mongodb-minute-sub001/internal/googleai"
	"github.com/mrlynn/mikes-mongodb-minute-sub001/internal/observability"
	"github.com/mrlynn/mikes-mongodb-minute-sub001/internal/openai"
	"github.com/mrlynn/mikes-mongodb-minute-sub001/internal/service"
)

// maxEmbeddingClients bounds the per-key provider client cache.
const maxEmbeddingClients = 256

var errUnsupportedEmbeddingProvider = errors.New("unsupported embedding provider")

// App holds all server dependencies and coordinates startup and shutdown.
type App struct {
	cfg            *config.Config
	store          *backend
	server         *http.Server
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
}

// NewApp opens the configured backend and wires services, handlers and the HTTP server.
// It does not start serving; call Run.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	meterProvider, metricsHandler, metrics, err := setupMetrics(cfg)
	if err != nil {
		return nil, err
	}

	var tracerProvider *sdktrace.TracerProvider

	if cfg.OtelTracesExporter == "" {
		slog.Warn("tracing not enabled (OTEL_TRACES_EXPORTER empty or unset)")
	} else {
		tracerProvider, err = observability.NewTracerProvider(cfg)
		if err != nil {
			logShutdownError(shutdownObservability(context.Background(), nil, meterProvider))

			return nil, fmt.Errorf("create tracer provider: %w", err)
		}

		otel.SetTracerProvider(tracerProvider)
	}

	store, err := openBackend(ctx, cfg)
	if err != nil {
		logShutdownError(shutdownObservability(context.Background(), tracerProvider, meterProvider))

		return nil, err
	}

	handler, err := newHandler(cfg, store, metrics, metricsHandler, meterProvider, tracerProvider)
	if err != nil {
		store.close(context.Background())
		logShutdownError(shutdownObservability(context.Background(), tracerProvider, meterProvider))

		return nil, err
	}

	const (
		readTimeout  = 15 * time.Second
		writeTimeout = 30 * time.Second
		idleTimeout  = 60 * time.Second
	)

	return &App{
		cfg:   cfg,
		store: store,
		server: &http.Server{
			Addr:         ":" + cfg.Port,
			Handler:      handler,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			IdleTimeout:  idleTimeout,
		},
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
	}, nil
}

// setupMetrics creates the meter provider and instruments. All results are nil when
// OTEL_METRICS_EXPORTER is unset.
func setupMetrics(cfg *config.Config) (*sdkmetric.MeterProvider, http.Handler, *observability.Metrics, error) {
	if cfg.OtelMetricsExporter == "" {
		slog.Warn("metrics not enabled (OTEL_METRICS_EXPORTER empty or unset)")

		return nil, nil, nil, nil
	}

	mp, promHandler, err := observability.NewMeterProvider(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create meter provider: %w", err)
	}

	metrics, err := observability.NewMetrics(mp.Meter(observability.ServiceName))
	if err != nil {
		logShutdownError(observability.ShutdownMeterProvider(context.Background(), mp))

		return nil, nil, nil, fmt.Errorf("create metrics: %w", err)
	}

	otel.SetMeterProvider(mp)

	return mp, promHandler, metrics, nil
}

// newEmbeddingClientFunc returns the provider constructor for EMBEDDING_PROVIDER, or nil when
// embeddings are disabled.
func newEmbeddingClientFunc(cfg *config.Config) (service.NewEmbeddingClientFunc, error) {
	switch cfg.EmbeddingProvider {
	case "":
		return nil, nil
	case config.EmbeddingProviderOpenAI:
		return func(_ context.Context, apiKey string) (service.EmbeddingClient, error) {
			return openai.NewClient(apiKey, openai.WithModel(cfg.EmbeddingModel)), nil
		}, nil
	case config.EmbeddingProviderGoogle:
		return func(ctx context.Context, apiKey string) (service.EmbeddingClient, error) {
			client, err := googleai.NewClient(ctx, apiKey, googleai.WithModel(cfg.EmbeddingModel))
			if err != nil {
				return nil, fmt.Errorf("create google embedding client: %w", err)
			}

			return client, nil
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", errUnsupportedEmbeddingProvider, cfg.EmbeddingProvider)
	}
}

// newServices wires ingestion and aggregation over store.
func newServices(
	cfg *config.Config, store *backend, metrics *observability.Metrics,
) (*service.FeedbackService, *service.InsightsService, error) {
	var (
		feedbackMetrics observability.FeedbackMetrics
		insightsMetrics observability.InsightsMetrics
		cacheMetrics    observability.CacheMetrics
	)

	if metrics != nil {
		feedbackMetrics = metrics.Feedback
		insightsMetrics = metrics.Insights
		cacheMetrics = metrics.Cache
	}

	feedbackParams := service.FeedbackServiceParams{
		Store:   store.feedback,
		Metrics: feedbackMetrics,
		Logger:  slog.Default(),
	}

	newClient, err := newEmbeddingClientFunc(cfg)
	if err != nil {
		return nil, nil, err
	}

	if newClient != nil {
		keys, err := service.NewEmbeddingKeyResolver(service.EmbeddingKeyResolverParams{
			Store:        store.settings,
			DefaultKey:   cfg.EmbeddingDefaultAPIKey,
			CacheSize:    cfg.EmbeddingKeyCacheSize,
			CacheTTL:     cfg.EmbeddingKeyCacheTTL,
			CacheMetrics: cacheMetrics,
			Logger:       slog.Default(),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create embedding key resolver: %w", err)
		}

		clients, err := service.NewCachingClientFactory(newClient, maxEmbeddingClients)
		if err != nil {
			return nil, nil, fmt.Errorf("create embedding client factory: %w", err)
		}

		feedbackParams.Keys = keys
		feedbackParams.Clients = clients
		feedbackParams.Limiter = rate.NewLimiter(rate.Limit(cfg.EmbeddingRateLimit), cfg.EmbeddingRateBurst)

		slog.Info("embeddings enabled", "provider", cfg.EmbeddingProvider, "model", cfg.EmbeddingModel,
			"default_key", cfg.EmbeddingDefaultAPIKey != "")
	} else {
		slog.Info("embeddings disabled (EMBEDDING_PROVIDER not set)")
	}

	clusterOpts := service.DefaultClusteringOptions()
	clusterOpts.NumCandidates = cfg.ClusterNumCandidates
	clusterOpts.NeighborLimit = cfg.ClusterNeighborLimit
	clusterOpts.MaxFold = cfg.ClusterMaxFold

	clusterer := service.NewClusteringService(store.searcher, clusterOpts, insightsMetrics, slog.Default())

	insights := service.NewInsightsService(service.InsightsServiceParams{
		Store:     store.feedback,
		Episodes:  store.episodes,
		Clusterer: clusterer,
		Metrics:   insightsMetrics,
		Logger:    slog.Default(),
	})

	return service.NewFeedbackService(feedbackParams), insights, nil
}

// newHandler builds the routes and the middleware chain:
// RequestID -> otelhttp -> Metrics -> Logging -> Recover -> MaxBody -> Session -> mux.
func newHandler(
	cfg *config.Config,
	store *backend,
	metrics *observability.Metrics,
	metricsHandler http.Handler,
	meterProvider *sdkmetric.MeterProvider,
	tracerProvider *sdktrace.TracerProvider,
) (http.Handler, error) {
	feedbackService, insightsService, err := newServices(cfg, store, metrics)
	if err != nil {
		return nil, err
	}

	feedback := handlers.NewFeedbackHandler(feedbackService, insightsService, slog.Default())
	health := handlers.NewHealthHandler(store.pinger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", health.Check)
	mux.HandleFunc("POST /api/feedback", feedback.Create)
	mux.Handle("GET /api/feedback/insights", middleware.APIKey(cfg.InsightsAPIKey)(http.HandlerFunc(feedback.Insights)))

	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}

	var httpMetrics observability.HTTPMetrics

	var bodyRecorder middleware.RequestBodyTooLargeRecorder

	if metrics != nil && metrics.HTTP != nil {
		httpMetrics = metrics.HTTP
		bodyRecorder = metrics.HTTP
	}

	otelOpts := []otelhttp.Option{
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/health" && r.URL.Path != "/metrics"
		}),
	}
	if meterProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithMeterProvider(meterProvider))
	}

	if tracerProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(tracerProvider))
	}

	var handler http.Handler = mux
	handler = middleware.Session(cfg.SessionSecret, slog.Default())(handler)
	handler = middleware.MaxBody(cfg.MaxRequestBodyBytes, bodyRecorder)(handler)
	handler = middleware.Recover(slog.Default())(handler)
	handler = middleware.Logging(slog.Default())(handler)
	handler = middleware.Metrics(httpMetrics)(handler)
	handler = otelhttp.NewHandler(handler, observability.ServiceName, otelOpts...)
	handler = middleware.RequestID(handler)

	return handler, nil
}

// Run serves HTTP until ctx is cancelled or the server fails. Call Shutdown afterwards.
func (a *App) Run(ctx context.Context) error {
	runErr := make(chan error, 1)

	go func() {
		slog.Info("Starting server", "port", a.cfg.Port, "database_driver", a.cfg.DatabaseDriver)

		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr <- fmt.Errorf("server: %w", err)
		}
	}()

	select {
	case err := <-runErr:
		return err
	case <-ctx.Done():
		return nil
	}
}

// Shutdown stops the server, then closes the backend and observability providers.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error

	if err := a.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errs = append(errs, fmt.Errorf("server shutdown: %w", err))
	}

	a.store.close(ctx)

	if err := shutdownObservability(ctx, a.tracerProvider, a.meterProvider); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// shutdownObservability shuts down tracer and meter providers.
func shutdownObservability(ctx context.Context, tracer *sdktrace.TracerProvider, meter *sdkmetric.MeterProvider) error {
	var errs []error

	if tracer != nil {
		if err := observability.ShutdownTracerProvider(ctx, tracer); err != nil {
			errs = append(errs, err)
		}
	}

	if meter != nil {
		if err := observability.ShutdownMeterProvider(ctx, meter); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func logShutdownError(err error) {
	if err != nil {
		slog.Error("shutdown after startup failure", "error", err)
	}
}
