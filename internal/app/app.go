package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/auth"
	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/handler"
	"github.com/xenking/kart-checkout/internal/storage/postgres"
	redisstore "github.com/xenking/kart-checkout/internal/storage/redis"
	"github.com/xenking/kart-checkout/pkg/health"
	"github.com/xenking/kart-checkout/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m httpmiddleware.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("cart_storage", cfg.Cart.Storage),
		zap.String("merge_policy", cfg.Cart.MergePolicy),
	)

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New()
	healthSvc.Add(health.Readiness, "postgres", 5*time.Second, health.PingCheck("postgres", pool))
	healthSvc.Add(health.Liveness, "goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Cart storage.
	var carts cart.Repository = postgres.NewCartRepository(pool)
	if cfg.Cart.Storage == StorageRedis {
		rdb, err := newRedisClient(cfg.Redis)
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()

		redisCarts := redisstore.NewCartRepository(rdb, cfg.Redis.GuestTTL)
		if err := redisCarts.Ping(ctx); err != nil {
			return errors.Wrap(err, "connect redis")
		}
		healthSvc.Add(health.Readiness, "redis", 2*time.Second, health.PingCheck("redis", redisCarts))
		carts = redisCarts
	}

	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	settingsRepo := postgres.NewSettingsRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)

	// Domain services.
	policy, err := cart.ParseMergePolicy(cfg.Cart.MergePolicy)
	if err != nil {
		return err
	}
	placer := order.NewBreakerPlacer(order.NewService(productRepo, orderRepo), order.BreakerConfig{
		MaxFailures: cfg.Breaker.MaxFailures,
		OpenTimeout: cfg.Breaker.OpenTimeout,
	})
	sessions := handler.NewSessions(cfg.Checkout.SessionIdleTimeout)
	go sessions.Run(ctx, cfg.Checkout.SweepInterval)

	h, err := handler.New(handler.Deps{
		Carts:    carts,
		Catalog:  productRepo,
		Orders:   orderRepo,
		Placer:   placer,
		Settings: settingsRepo,
		Merger:   cart.NewMerger(carts, productRepo, policy),
		Auth:     auth.NewAuthenticator(apikeyRepo, cfg.APIKeyPepper),
		Sessions: sessions,
		Meter:    m.MeterProvider().Meter("kart-checkout"),
	})
	if err != nil {
		return errors.Wrap(err, "create handler")
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.Recovery(),
		cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORS.Origins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Content-Type", "Authorization", "api_key", "X-User-ID", "X-Guest-ID"},
			ExposedHeaders:   []string{middleware.RequestIDHeader, "X-RateLimit-Remaining", "Retry-After"},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
		}),
		httpmiddleware.Instrument("kart-api", m),
		httpmiddleware.LogRequests,
	)
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	router.Route("/api", h.Mount)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           router,
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

func newRedisClient(cfg RedisConfig) (*redis.Client, error) {
	if cfg.URL != "" {
		opts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, errors.Wrap(err, "parse redis url")
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}), nil
}
