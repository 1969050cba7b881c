package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/spa-turnos/internal/api/router"
	"github.com/wolfman30/spa-turnos/internal/app/bootstrap"
	"github.com/wolfman30/spa-turnos/internal/booking"
	"github.com/wolfman30/spa-turnos/internal/chat"
	appconfig "github.com/wolfman30/spa-turnos/internal/config"
	"github.com/wolfman30/spa-turnos/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/spa-turnos/internal/http/middleware"
	"github.com/wolfman30/spa-turnos/internal/observability/metrics"
	"github.com/wolfman30/spa-turnos/internal/payments"
	"github.com/wolfman30/spa-turnos/internal/session"
	"github.com/wolfman30/spa-turnos/internal/spaapi"
	"github.com/wolfman30/spa-turnos/pkg/logging"
)

const sessionCookieName = "spa_session"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	format := "json"
	if cfg.Env == "development" {
		format = "text"
	}
	logger := logging.NewWithOptions(logging.Options{Level: cfg.LogLevel, Format: format, Service: "spa-turnos"})
	logger.Info("starting spa-turnos web server",
		"env", cfg.Env,
		"port", cfg.Port,
		"spa_api", cfg.SpaAPIBaseURL,
		"session_store", cfg.SessionStore,
	)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	// Create HTTP server. WriteTimeout leaves room for the upstream retry
	// schedule on top of the per-attempt timeout.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// webApp is the wired HTTP surface plus the resources it owns.
type webApp struct {
	handler  http.Handler
	registry *prometheus.Registry
	redis    *redis.Client
}

func (a *webApp) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

// newApp wires every component from configuration. The returned app owns the
// Redis connection; ctx bounds background goroutines such as the rate limiter
// janitor.
func newApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*webApp, error) {
	rules, err := cfg.Rules()
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	bookingMetrics := metrics.NewBookingMetrics(registry)

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	sessions, err := bootstrap.BuildSessions(cfg, redisClient, logger)
	if err != nil {
		if redisClient != nil {
			_ = redisClient.Close()
		}
		return nil, err
	}

	manager := session.NewManager(sessions.Store, session.NewUnauthorizedGuard(cfg.UnauthorizedDedupeWindow), logger).
		WithObserver(bookingMetrics)

	client, err := spaapi.New(spaapi.Options{
		BaseURL:        cfg.SpaAPIBaseURL,
		Timeout:        cfg.SpaAPITimeout,
		MaxRetries:     spaAPIRetries(cfg.SpaAPIMaxRetries),
		RetryStep:      cfg.SpaAPIRetryStep,
		Logger:         logger,
		Observer:       metrics.NewUpstreamMetrics(registry),
		OnUnauthorized: manager.HandleUnauthorized,
		OnRetry:        logRetry(logger),
	})
	if err != nil {
		if redisClient != nil {
			_ = redisClient.Close()
		}
		return nil, err
	}

	cookie := httpmiddleware.SessionCookie{
		Name:   sessionCookieName,
		Secure: cfg.SessionCookieSecure,
		TTL:    cfg.SessionTTL,
	}

	submitter := booking.NewSubmitter(client, sessions.Locker, rules, logger).WithMetrics(bookingMetrics)
	velocity := bootstrap.BuildVelocityChecker(cfg, redisClient, logger)
	checkout := payments.NewCheckout(client, rules, velocity, logger).WithMetrics(bookingMetrics)

	var limiter *httpmiddleware.RateLimiter
	if cfg.RateLimitRPS > 0 {
		limiter = httpmiddleware.NewRateLimiter(ctx, cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	handler := router.New(&router.Config{
		Logger:             logger,
		HTTPMetrics:        metrics.NewHTTPMetrics(registry),
		Sessions:           manager,
		Cookie:             cookie,
		Auth:               handlers.NewAuthHandler(client, manager, cookie, logger),
		Catalog:            handlers.NewCatalogHandler(client, rules, cookie, logger),
		Flow:               handlers.NewFlowHandler(client, manager.Store(), submitter, cookie, logger).WithLocker(sessions.Locker),
		Account:            handlers.NewAccountHandler(client, checkout, rules, cookie, logger),
		Admin:              handlers.NewAdminHandler(client, cookie, logger).WithAttemptResetter(velocity),
		Chat:               chat.NewHandler(chat.NewBot(nil), logger).WithObserver(bookingMetrics),
		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        limiter,
	})

	return &webApp{handler: handler, registry: registry, redis: redisClient}, nil
}

// spaAPIRetries maps SPA_API_MAX_RETRIES onto spaapi.Options, where zero
// selects the client default and a negative count disables retries.
func spaAPIRetries(n int) int {
	if n <= 0 {
		return -1
	}
	return n
}

func logRetry(logger *logging.Logger) func(context.Context, spaapi.RetryEvent) {
	return func(ctx context.Context, ev spaapi.RetryEvent) {
		logger.InfoContext(ctx, ev.Message(),
			"endpoint", ev.Endpoint,
			"attempt", ev.Attempt,
			"delay", ev.Delay,
			"reason", ev.Reason,
		)
	}
}
