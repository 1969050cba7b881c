package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/spa-turnos/pkg/logging"
)

// VelocityChecker caps how many payment attempts a client may make per window.
type VelocityChecker struct {
	redis  *redis.Client
	logger *logging.Logger
	config VelocityConfig
}

// VelocityConfig contains velocity check configuration.
type VelocityConfig struct {
	MaxAttemptsPerClient int
	Window               time.Duration
	Enabled              bool
}

// DefaultVelocityConfig returns default velocity limits.
func DefaultVelocityConfig() VelocityConfig {
	return VelocityConfig{
		MaxAttemptsPerClient: 5,
		Window:               time.Hour,
		Enabled:              true,
	}
}

// VelocityResult contains the result of a velocity check.
type VelocityResult struct {
	Allowed      bool
	CurrentCount int
	MaxAllowed   int
	WindowExpiry time.Time
	Message      string
}

// NewVelocityChecker creates a new velocity checker.
func NewVelocityChecker(redisClient *redis.Client, config VelocityConfig, logger *logging.Logger) *VelocityChecker {
	if logger == nil {
		logger = logging.Default()
	}
	return &VelocityChecker{
		redis:  redisClient,
		logger: logger,
		config: config,
	}
}

// CheckPaymentVelocity counts one attempt for clientID and reports whether it
// is still within the limit. Redis failures allow the attempt.
func (v *VelocityChecker) CheckPaymentVelocity(ctx context.Context, clientID string) (*VelocityResult, error) {
	ctx, span := paymentsTracer.Start(ctx, "velocity.check_payment")
	defer span.End()
	span.SetAttributes(attribute.String("spa.client_id", clientID))

	if v == nil || !v.config.Enabled || v.redis == nil {
		return &VelocityResult{Allowed: true}, nil
	}

	key := fmt.Sprintf("spa:velocity:payment:%s", clientID)
	count, expiry, err := v.incrementAndGet(ctx, key, v.config.Window)
	if err != nil {
		v.logger.Error("velocity check failed", "error", err, "key", key)
		return &VelocityResult{Allowed: true, Message: "velocity check unavailable"}, nil
	}

	result := &VelocityResult{
		Allowed:      count <= v.config.MaxAttemptsPerClient,
		CurrentCount: count,
		MaxAllowed:   v.config.MaxAttemptsPerClient,
		WindowExpiry: expiry,
	}
	if !result.Allowed {
		result.Message = fmt.Sprintf("exceeded %d payment attempts in %s", v.config.MaxAttemptsPerClient, v.config.Window)
		v.logger.Warn("payment velocity exceeded",
			"client_id", clientID,
			"count", count,
			"max", v.config.MaxAttemptsPerClient,
		)
		span.SetAttributes(attribute.Bool("velocity.exceeded", true))
	}
	return result, nil
}

// Reset clears the counter for a client (admin use).
func (v *VelocityChecker) Reset(ctx context.Context, clientID string) error {
	if v == nil || v.redis == nil {
		return nil
	}
	return v.redis.Del(ctx, fmt.Sprintf("spa:velocity:payment:%s", clientID)).Err()
}

// incrementAndGet increments a counter and returns the new value with expiry time.
func (v *VelocityChecker) incrementAndGet(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	count, err := v.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, time.Time{}, err
	}
	if count == 1 {
		v.redis.Expire(ctx, key, window)
	}
	ttl, err := v.redis.TTL(ctx, key).Result()
	if err != nil {
		ttl = window
	}
	return int(count), time.Now().Add(ttl), nil
}
