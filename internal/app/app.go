package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/storelane/cartsync/internal/domain/cart"
	"github.com/storelane/cartsync/internal/domain/pwp"
	"github.com/storelane/cartsync/internal/handler"
	"github.com/storelane/cartsync/internal/idempotency"
	"github.com/storelane/cartsync/internal/reconcile"
	"github.com/storelane/cartsync/internal/storage/postgres"
	"github.com/storelane/cartsync/pkg/health"
	"github.com/storelane/cartsync/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server and the async
// reconciliation worker, and handles graceful shutdown. It is the single
// wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

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
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Idempotency store: process-local by default, shared Redis when the
	// deployment runs more than one instance.
	var idemStore idempotency.Store
	switch cfg.Idempotency.Backend {
	case "redis":
		redisStore, err := idempotency.NewRedisStore(cfg.Idempotency.RedisURL, "")
		if err != nil {
			return errors.Wrap(err, "create redis idempotency store")
		}
		defer func() { _ = redisStore.Close() }()
		healthSvc.AddReadinessCheck("redis", 5*time.Second, redisStore.Ping)
		idemStore = redisStore
	default:
		memStore := idempotency.NewMemoryStore(0)
		memStore.StartSweep(ctx, cfg.Idempotency.SweepInterval)
		idemStore = memStore
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	cartRepo := postgres.NewCartRepository(pool)
	catalogRepo := postgres.NewCatalogRepository(pool)
	pwpRepo := postgres.NewPWPRepository(pool)
	loyaltyRepo := postgres.NewLoyaltyRepository(pool)

	// Reconciliation pipeline: trigger bus -> debounce -> guarded pass.
	trigger := reconcile.NewTrigger(cfg.Reconcile.Buffer, lg)
	guard := reconcile.NewGuard()
	checker := pwp.NewChecker(pwpRepo)
	reconciler := cart.NewReconciler(cartRepo, catalogRepo, checker, loyaltyRepo, lg, m.TracerProvider())
	worker := reconcile.NewWorker(trigger, guard, reconciler, cfg.Reconcile.Debounce, lg, m.MeterProvider())
	go worker.Run(ctx)

	// Domain services.
	cartService := cart.NewService(cartRepo, catalogRepo, trigger, lg)

	// HTTP surface.
	h := handler.New(cartService, reconciler, trigger, idemStore, cfg.Idempotency.TTL)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	h.Register(mux)

	instrumented := otelhttp.NewHandler(mux, "cartsync-api",
		otelhttp.WithTracerProvider(m.TracerProvider()),
		otelhttp.WithMeterProvider(m.MeterProvider()),
	)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(instrumented,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.LogRequests(),
		),
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
