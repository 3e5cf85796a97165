package config

import (
	"fmt"
	"time"

	"github.com/tendant/simple-device-trust/pkg/mgmttoken"
	"github.com/tendant/simple-device-trust/pkg/similarity"
)

// Persistence backends for device records and trust state
const (
	PersistencePostgres = "postgres"
	PersistenceFile     = "file"
	PersistenceMemory   = "memory"
)

// DeviceTrustConfig is loaded once at startup, validated, and then passed by
// value into the matcher, enforcer, throttler and token service.
type DeviceTrustConfig struct {
	MaxDevicesPerUser   int     `env:"DEVICE_MAX_PER_USER" env-default:"2"`
	SimilarityThreshold float64 `env:"DEVICE_SIMILARITY_THRESHOLD" env-default:"0.65"`
	ColorDepthVariance  int     `env:"DEVICE_COLOR_DEPTH_VARIANCE" env-default:"8"`
	// SimilarityWeights overrides individual weights, e.g. "platform=0.30,screen=0.25"
	SimilarityWeights string `env:"DEVICE_SIMILARITY_WEIGHTS"`

	ManagementTokenTTL    time.Duration `env:"DEVICE_MANAGEMENT_TOKEN_TTL" env-default:"300s"`
	ManagementTokenSecret string        `env:"DEVICE_MANAGEMENT_TOKEN_SECRET"`
	// ManagementURL is the page linked from block alerts; the token is appended as ?token=
	ManagementURL string `env:"DEVICE_MANAGEMENT_URL" env-default:"http://localhost:4000/device-management"`

	// RemovalCooldown has no default and must be set explicitly
	RemovalCooldown time.Duration `env:"DEVICE_REMOVAL_COOLDOWN"`
	AutoUnblock     bool          `env:"DEVICE_AUTO_UNBLOCK" env-default:"false"`

	Persistence    string        `env:"DEVICE_PERSISTENCE" env-default:"postgres"`
	DataDir        string        `env:"DEVICE_DATA_DIR" env-default:"./data"`
	StorageTimeout time.Duration `env:"DEVICE_STORAGE_TIMEOUT" env-default:"5s"`
}

// NewDeviceTrustConfigFromEnv creates a DeviceTrustConfig from environment variables
func NewDeviceTrustConfigFromEnv() DeviceTrustConfig {
	return DeviceTrustConfig{
		MaxDevicesPerUser:     GetEnvInt("DEVICE_MAX_PER_USER", 2),
		SimilarityThreshold:   GetEnvFloat64("DEVICE_SIMILARITY_THRESHOLD", similarity.DefaultThreshold),
		ColorDepthVariance:    GetEnvInt("DEVICE_COLOR_DEPTH_VARIANCE", similarity.DefaultColorDepthVariance),
		SimilarityWeights:     GetEnv("DEVICE_SIMILARITY_WEIGHTS"),
		ManagementTokenTTL:    GetEnvDuration("DEVICE_MANAGEMENT_TOKEN_TTL", mgmttoken.DefaultTTL),
		ManagementTokenSecret: GetEnv("DEVICE_MANAGEMENT_TOKEN_SECRET"),
		ManagementURL:         GetEnvOrDefault("DEVICE_MANAGEMENT_URL", "http://localhost:4000/device-management"),
		RemovalCooldown:       GetEnvDuration("DEVICE_REMOVAL_COOLDOWN", 0),
		AutoUnblock:           GetEnvBool("DEVICE_AUTO_UNBLOCK", false),
		Persistence:           GetEnvOrDefault("DEVICE_PERSISTENCE", PersistencePostgres),
		DataDir:               GetEnvOrDefault("DEVICE_DATA_DIR", "./data"),
		StorageTimeout:        GetEnvDuration("DEVICE_STORAGE_TIMEOUT", 5*time.Second),
	}
}

// Similarity builds the matcher configuration, applying any weight overrides
func (c DeviceTrustConfig) Similarity() (similarity.Config, error) {
	weights, err := similarity.ParseWeights(c.SimilarityWeights)
	if err != nil {
		return similarity.Config{}, err
	}
	return similarity.Config{
		Weights:            weights,
		Threshold:          c.SimilarityThreshold,
		ColorDepthVariance: c.ColorDepthVariance,
	}, nil
}

// Validate checks every field and reports all problems at once
func (c DeviceTrustConfig) Validate() error {
	return Validate(func() ValidationErrors {
		errs := CollectErrors(
			RequirePositive("DEVICE_MAX_PER_USER", c.MaxDevicesPerUser),
			RequireUnitInterval("DEVICE_SIMILARITY_THRESHOLD", c.SimilarityThreshold),
			RequireNonNegative("DEVICE_COLOR_DEPTH_VARIANCE", c.ColorDepthVariance),
			RequirePositiveDuration("DEVICE_MANAGEMENT_TOKEN_TTL", c.ManagementTokenTTL),
			RequireMinLength("DEVICE_MANAGEMENT_TOKEN_SECRET", c.ManagementTokenSecret, mgmttoken.MinSecretLength),
			RequirePositiveDuration("DEVICE_REMOVAL_COOLDOWN", c.RemovalCooldown),
			RequireOneOf("DEVICE_PERSISTENCE", c.Persistence, []string{PersistencePostgres, PersistenceFile, PersistenceMemory}),
			RequirePositiveDuration("DEVICE_STORAGE_TIMEOUT", c.StorageTimeout),
		)
		if c.Persistence == PersistenceFile {
			errs = append(errs, CollectErrors(RequireNonEmpty("DEVICE_DATA_DIR", c.DataDir))...)
		}
		if weights, err := similarity.ParseWeights(c.SimilarityWeights); err != nil {
			errs = append(errs, ValidationError{Field: "DEVICE_SIMILARITY_WEIGHTS", Message: err.Error()})
		} else if err := weights.Validate(); err != nil {
			errs = append(errs, ValidationError{Field: "DEVICE_SIMILARITY_WEIGHTS", Message: err.Error()})
		}
		return errs
	})
}

// String never includes the token secret
func (c DeviceTrustConfig) String() string {
	return fmt.Sprintf("max_devices=%d threshold=%.2f color_depth_variance=%d token_ttl=%s removal_cooldown=%s auto_unblock=%t persistence=%s",
		c.MaxDevicesPerUser, c.SimilarityThreshold, c.ColorDepthVariance, c.ManagementTokenTTL,
		c.RemovalCooldown, c.AutoUnblock, c.Persistence)
}
