package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/artifact"
	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/provider/card"
	"github.com/xenking/storefront/internal/provider/crypto"
	"github.com/xenking/storefront/internal/provider/manual"
	"github.com/xenking/storefront/internal/provider/wallet"
	"github.com/xenking/storefront/internal/reconcile"
	"github.com/xenking/storefront/internal/repository"
	"github.com/xenking/storefront/pkg/health"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck(handler.DatabaseCheck, 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Callback de-duplication.
	var guard reconcile.Guard = reconcile.NopGuard{}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()
		healthSvc.AddReadinessCheck("redis", 2*time.Second, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
		guard = reconcile.NewRedisGuard(rdb, "shop:callback:", cfg.Redis.DedupeTTL)
		lg.Info("Callback de-duplication enabled", zap.String("redis", cfg.Redis.Addr))
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Artifact storage.
	store, err := artifact.New(cfg.Uploads.Dir, cfg.Uploads.Prefix)
	if err != nil {
		return errors.Wrap(err, "create artifact store")
	}

	// Repositories.
	paymentRepo := repository.NewPaymentRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	catalogRepo := repository.NewCatalogRepository(pool)
	userRepo := repository.NewUserRepository(pool)

	// Domain services.
	orderService := order.NewService(orderRepo)
	catalogService := catalog.NewService(catalogRepo, store)
	authService, err := auth.NewService(userRepo, []byte(cfg.JWT.Secret), cfg.JWT.TTL)
	if err != nil {
		return errors.Wrap(err, "create auth service")
	}

	engine, err := reconcile.NewEngine(paymentRepo, orderService, reconcile.Options{
		Guard:          guard,
		TracerProvider: m.TracerProvider(),
		MeterProvider:  m.MeterProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create reconciliation engine")
	}

	// Payment channels.
	manualService := manual.NewService(paymentRepo, store, engine)
	cardService := card.NewService(
		card.NewStripeGateway(cfg.Card.SecretKey, providerClient(m, cfg.Card.Timeout)),
		paymentRepo, engine, cfg.Card.Currency,
	)
	cryptoService := crypto.NewService(
		crypto.NewNOWPayments(cfg.Crypto.BaseURL, cfg.Crypto.APIKey, providerClient(m, cfg.Crypto.Timeout)),
		paymentRepo, engine,
		crypto.Config{
			IPNSecret:   cfg.Crypto.IPNSecret,
			CallbackURL: cfg.CallbackURL(),
			PayCurrency: cfg.Crypto.PayCurrency,
		},
	)
	walletService := wallet.NewService(paymentRepo, engine)
	for _, a := range []reconcile.Adapter{manualService, cardService, cryptoService, walletService} {
		engine.Register(a)
	}
	if cfg.Crypto.IPNSecret == "" {
		lg.Warn("Crypto IPN secret is not set, every callback will be rejected")
	}

	// HTTP handlers.
	h := handler.New(
		handler.Config{BaseURL: cfg.BaseURL, MaxUploadBytes: cfg.Uploads.MaxBytes},
		handler.Deps{
			Auth:    authService,
			Catalog: catalogService,
			Orders:  orderService,
			Manual:  manualService,
			Card:    cardService,
			Crypto:  cryptoService,
			Wallet:  walletService,
			Store:   store,
			Health:  healthSvc,
		},
	)
	router := h.Router(
		httpmiddleware.Instrument("storefront-api", m),
		httpmiddleware.LogRequests(),
	)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", httpmiddleware.RequestIDHeader},
				ExposeHeaders:    []string{httpmiddleware.RequestIDHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
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

// providerClient returns an instrumented HTTP client for outbound provider
// calls, bounded by timeout.
func providerClient(m *app.Telemetry, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		),
	}
}
