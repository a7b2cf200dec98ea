package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wonderwork/funnel-upsell/internal/domain/auth"
	"github.com/wonderwork/funnel-upsell/internal/domain/changeset"
	"github.com/wonderwork/funnel-upsell/internal/domain/offer"
	"github.com/wonderwork/funnel-upsell/internal/domain/statistic"
	"github.com/wonderwork/funnel-upsell/internal/handler"
	"github.com/wonderwork/funnel-upsell/internal/shopify"
	"github.com/wonderwork/funnel-upsell/internal/storage/postgres"
	"github.com/wonderwork/funnel-upsell/internal/storage/redis"
	"github.com/wonderwork/funnel-upsell/pkg/health"
	"github.com/wonderwork/funnel-upsell/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))
	if cfg.Shopify.APISecret == "" {
		lg.Warn("App secret is not set: session tokens are rejected and changesets cannot be signed")
	}

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Redis is optional; without it duplicate statistic updates are counted.
	var idem statistic.IdempotencyStore
	if cfg.RedisURL != "" {
		rdb, err := redis.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return errors.Wrap(err, "connect redis")
		}
		defer func() { _ = rdb.Close() }()

		idem = redis.NewIdempotencyStore(rdb, cfg.Statistics.KeyPrefix)
		healthSvc.AddReadinessCheck("redis", 2*time.Second, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	} else {
		lg.Warn("Redis is not configured, statistic updates are not deduplicated")
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	h, err := newHandler(ctx, cfg, pool, idem, m.TracerProvider(), m.MeterProvider())
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/", h)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      cfg.Shopify.Timeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           mux,
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// newHandler wires the repositories, catalog client and domain services into
// the API handler wrapped with the middleware chain.
func newHandler(
	ctx context.Context,
	cfg *Config,
	pool *pgxpool.Pool,
	idem statistic.IdempotencyStore,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
	catalogOpts ...shopify.Option,
) (http.Handler, error) {
	// Repositories.
	funnelRepo := postgres.NewFunnelRepository(pool)
	statRepo := postgres.NewStatisticRepository(pool)
	sessionRepo := postgres.NewSessionRepository(pool)

	// Catalog gateway.
	catalogClient := shopify.NewClient(append([]shopify.Option{
		shopify.WithAPIVersion(cfg.Shopify.APIVersion),
		shopify.WithHTTPClient(&http.Client{Timeout: cfg.Shopify.Timeout}),
		shopify.WithTracerProvider(tp),
	}, catalogOpts...)...)

	// Domain services.
	secret := []byte(cfg.Shopify.APISecret)
	offerService := offer.NewService(
		offer.NewMatcher(funnelRepo),
		offer.NewCompiler(catalogClient),
		sessionRepo,
		changeset.NewAuthorizer(cfg.Shopify.APIKey, secret),
	)
	recorder := statistic.NewRecorder(statRepo, funnelRepo, idem).
		WithClaimTTL(cfg.Statistics.IdempotencyTTL)
	verifier := auth.NewVerifier(cfg.Shopify.APIKey, secret)

	// HTTP handlers.
	metrics, err := handler.NewMetrics(mp)
	if err != nil {
		return nil, errors.Wrap(err, "create metrics")
	}
	h := handler.NewHandler(
		handler.Config{EnrichConcurrency: cfg.Shopify.EnrichConcurrency},
		offerService,
		recorder,
		funnelRepo,
		sessionRepo,
		catalogClient,
		verifier,
		metrics,
	)

	mux := http.NewServeMux()
	h.Routes(mux)

	return httpmiddleware.Wrap(mux,
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:  cfg.CORS.Origins,
			AllowHeaders:  []string{"Content-Type", "Authorization"},
			ExposeHeaders: []string{httpmiddleware.RequestIDHeader},
			MaxAge:        86400,
		}),
		httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.Instrument("funnel-api", tp, mp),
		httpmiddleware.LogRequests(),
	), nil
}
