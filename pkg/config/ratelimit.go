package config

import (
	"time"

	"github.com/tendant/simple-device-trust/pkg/ratelimit"
)

// RateLimitConfig limits requests per client IP on the token-authorized management endpoints
type RateLimitConfig struct {
	Enabled    bool          `env:"RATELIMIT_MANAGEMENT_ENABLED" env-default:"true"`
	Capacity   int           `env:"RATELIMIT_MANAGEMENT_CAPACITY" env-default:"20"`
	RefillRate float64       `env:"RATELIMIT_MANAGEMENT_REFILL_RATE" env-default:"0.333"` // tokens per second
	BucketTTL  time.Duration `env:"RATELIMIT_MANAGEMENT_BUCKET_TTL" env-default:"1h"`
}

// ToMiddlewareConfig converts the config to ratelimit.Config
func (r RateLimitConfig) ToMiddlewareConfig() *ratelimit.Config {
	cfg := ratelimit.DefaultConfig()
	cfg.Enabled = r.Enabled
	cfg.Capacity = r.Capacity
	cfg.RefillRate = r.RefillRate
	cfg.BucketTTL = r.BucketTTL
	return cfg
}

// NewRateLimitConfigFromEnv loads RateLimitConfig from environment variables
func NewRateLimitConfigFromEnv() RateLimitConfig {
	return RateLimitConfig{
		Enabled:    GetEnvBool("RATELIMIT_MANAGEMENT_ENABLED", true),
		Capacity:   GetEnvInt("RATELIMIT_MANAGEMENT_CAPACITY", 20),
		RefillRate: GetEnvFloat64("RATELIMIT_MANAGEMENT_REFILL_RATE", 0.333),
		BucketTTL:  GetEnvDuration("RATELIMIT_MANAGEMENT_BUCKET_TTL", time.Hour),
	}
}
