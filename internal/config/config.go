package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/spa-turnos/internal/booking"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Spa REST backend
	SpaAPIBaseURL    string
	SpaAPITimeout    time.Duration
	SpaAPIMaxRetries int
	SpaAPIRetryStep  time.Duration

	// Booking rules
	BusinessTimezone    string
	BookingLeadTime     time.Duration
	CardDiscountPercent float64

	// Sessions
	SessionStore             string
	SessionTTL               time.Duration
	SessionCookieSecure      bool
	UnauthorizedDedupeWindow time.Duration
	RedisAddr                string
	RedisPassword            string
	RedisTLS                 bool

	// Payment attempt limit (needs SESSION_STORE=redis)
	PaymentMaxAttempts   int
	PaymentAttemptWindow time.Duration

	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		SpaAPIBaseURL:    strings.TrimRight(getEnv("SPA_API_BASE_URL", "http://localhost:3000/api"), "/"),
		SpaAPITimeout:    getEnvAsDuration("SPA_API_TIMEOUT", 15*time.Second),
		SpaAPIMaxRetries: getEnvAsInt("SPA_API_MAX_RETRIES", 3),
		SpaAPIRetryStep:  getEnvAsDuration("SPA_API_RETRY_STEP", 4*time.Second),

		BusinessTimezone:    getEnv("BUSINESS_TIMEZONE", "America/Argentina/Buenos_Aires"),
		BookingLeadTime:     getEnvAsDuration("BOOKING_LEAD_TIME", booking.LeadTime),
		CardDiscountPercent: getEnvAsFloat("CARD_DISCOUNT_PERCENT", booking.CardDiscount*100),

		SessionStore:             strings.ToLower(strings.TrimSpace(getEnv("SESSION_STORE", "memory"))),
		SessionTTL:               getEnvAsDuration("SESSION_TTL", 24*time.Hour),
		SessionCookieSecure:      getEnvAsBool("SESSION_COOKIE_SECURE", true),
		UnauthorizedDedupeWindow: getEnvAsDuration("UNAUTHORIZED_DEDUPE_WINDOW", 5*time.Second),
		RedisAddr:                getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword:            getEnv("REDIS_PASSWORD", ""),
		RedisTLS:                 getEnvAsBool("REDIS_TLS", false),

		PaymentMaxAttempts:   getEnvAsInt("PAYMENT_MAX_ATTEMPTS", 5),
		PaymentAttemptWindow: getEnvAsDuration("PAYMENT_ATTEMPT_WINDOW", time.Hour),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 20),
	}
}

// Validate reports settings the service cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.SpaAPIBaseURL == "" {
		errs = append(errs, errors.New("SPA_API_BASE_URL is required"))
	}
	switch c.SessionStore {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("SESSION_STORE must be memory or redis, got %q", c.SessionStore))
	}
	if math.IsNaN(c.CardDiscountPercent) || c.CardDiscountPercent < 0 || c.CardDiscountPercent >= 100 {
		errs = append(errs, fmt.Errorf("CARD_DISCOUNT_PERCENT must be in [0, 100), got %v", c.CardDiscountPercent))
	}
	if c.BookingLeadTime < 0 {
		errs = append(errs, errors.New("BOOKING_LEAD_TIME must not be negative"))
	}
	if _, err := time.LoadLocation(c.BusinessTimezone); err != nil {
		errs = append(errs, fmt.Errorf("BUSINESS_TIMEZONE: %w", err))
	}
	return errors.Join(errs...)
}

// Rules builds the booking rules from the configuration.
func (c *Config) Rules() (booking.Rules, error) {
	loc, err := time.LoadLocation(c.BusinessTimezone)
	if err != nil {
		return booking.Rules{}, fmt.Errorf("config: business timezone: %w", err)
	}
	return booking.Rules{
		LeadTime:     c.BookingLeadTime,
		CardDiscount: c.CardDiscountPercent / 100,
		Location:     loc,
	}, nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated variable, dropping empty entries.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
