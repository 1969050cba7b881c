// Package bootstrap builds the runtime dependencies shared by the web
// entrypoint: the Redis connection, session persistence and the payment
// attempt limiter.
package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/spa-turnos/internal/booking"
	appconfig "github.com/wolfman30/spa-turnos/internal/config"
	"github.com/wolfman30/spa-turnos/internal/payments"
	"github.com/wolfman30/spa-turnos/internal/session"
	"github.com/wolfman30/spa-turnos/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || cfg.SessionStore != "redis" || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "addr", cfg.RedisAddr, "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// Sessions bundles the session store with the submission lock that matches
// it. A Redis store pairs with a Redis lock so replicas share both.
type Sessions struct {
	Store  session.Store
	Locker booking.Locker
}

// BuildSessions picks the session backend named by SESSION_STORE. Asking for
// redis without a reachable client is an error.
func BuildSessions(cfg *appconfig.Config, redisClient *redis.Client, logger *logging.Logger) (Sessions, error) {
	if cfg == nil {
		return Sessions{}, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	switch cfg.SessionStore {
	case "redis":
		if redisClient == nil {
			return Sessions{}, fmt.Errorf("bootstrap: SESSION_STORE=redis but redis is unavailable at %q", cfg.RedisAddr)
		}
		logger.Info("session store ready", "backend", "redis", "ttl", cfg.SessionTTL)
		return Sessions{
			Store:  session.NewRedisStore(redisClient, cfg.SessionTTL),
			Locker: session.NewRedisLocker(redisClient),
		}, nil
	case "memory", "":
		logger.Info("session store ready", "backend", "memory", "ttl", cfg.SessionTTL)
		return Sessions{
			Store:  session.NewMemoryStore(cfg.SessionTTL),
			Locker: session.NewMemoryLocker(),
		}, nil
	default:
		return Sessions{}, fmt.Errorf("bootstrap: unknown session store %q", cfg.SessionStore)
	}
}

// BuildVelocityChecker returns the payment attempt limiter. Without Redis the
// checker allows every attempt.
func BuildVelocityChecker(cfg *appconfig.Config, redisClient *redis.Client, logger *logging.Logger) *payments.VelocityChecker {
	enabled := cfg != nil && redisClient != nil && cfg.PaymentMaxAttempts > 0
	vc := payments.VelocityConfig{Enabled: enabled}
	if cfg != nil {
		vc.MaxAttemptsPerClient = cfg.PaymentMaxAttempts
		vc.Window = cfg.PaymentAttemptWindow
	}
	if logger != nil && !enabled {
		logger.Info("payment attempt limit disabled")
	}
	return payments.NewVelocityChecker(redisClient, vc, logger)
}
