package config

import (
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the shared removal cooldown store.
// With an empty Addr the cooldowns are kept in process memory.
type RedisConfig struct {
	Addr        string        `env:"DEVICE_REDIS_ADDR"`
	Password    string        `env:"DEVICE_REDIS_PASSWORD"`
	DB          int           `env:"DEVICE_REDIS_DB" env-default:"0"`
	DialTimeout time.Duration `env:"DEVICE_REDIS_DIAL_TIMEOUT" env-default:"5s"`
}

// Enabled reports whether a Redis address is configured
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// ToOptions converts the config to go-redis client options
func (r RedisConfig) ToOptions() *redis.Options {
	return &redis.Options{
		Addr:        r.Addr,
		Password:    r.Password,
		DB:          r.DB,
		DialTimeout: r.DialTimeout,
	}
}

// NewRedisConfigFromEnv creates a RedisConfig from environment variables
func NewRedisConfigFromEnv() RedisConfig {
	return RedisConfig{
		Addr:        GetEnv("DEVICE_REDIS_ADDR"),
		Password:    GetEnv("DEVICE_REDIS_PASSWORD"),
		DB:          GetEnvInt("DEVICE_REDIS_DB", 0),
		DialTimeout: GetEnvDuration("DEVICE_REDIS_DIAL_TIMEOUT", 5*time.Second),
	}
}
