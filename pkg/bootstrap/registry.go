package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	dbutils "github.com/tendant/db-utils/db"
	"github.com/tendant/simple-device-trust/pkg/config"
	"github.com/tendant/simple-device-trust/pkg/device"
	"github.com/tendant/simple-device-trust/pkg/metrics"
	"github.com/tendant/simple-device-trust/pkg/mgmttoken"
	"github.com/tendant/simple-device-trust/pkg/notification"
	"github.com/tendant/simple-device-trust/pkg/ratelimit"
	"github.com/tendant/simple-device-trust/pkg/similarity"
	"github.com/tendant/simple-device-trust/pkg/trust"
)

// Config collects everything needed to assemble a device registry
type Config struct {
	DeviceTrust config.DeviceTrustConfig
	Database    config.DatabaseConfig
	Email       config.EmailConfig
	Redis       config.RedisConfig
}

// Validate checks every section and reports all problems at once
func (c Config) Validate() error {
	return errors.Join(c.DeviceTrust.Validate(), c.Email.Validate())
}

// Components is the assembled registry together with the resources it owns
type Components struct {
	Registry *device.Registry
	Repo     device.Repository
	Metrics  *metrics.Metrics
	Tokens   *mgmttoken.Service
	Result   *BootstrapResult

	closers []func()
}

// Close releases pools and clients in reverse order of creation
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// Build validates cfg and wires the matcher, enforcer, throttler, token service,
// repository and block alerter into a registry. Callers must Close the result.
func Build(ctx context.Context, cfg Config) (*Components, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	dt := cfg.DeviceTrust

	c := &Components{
		Metrics: metrics.New(),
		Result:  &BootstrapResult{Persistence: dt.Persistence, MaxDevices: dt.MaxDevicesPerUser, AutoUnblock: dt.AutoUnblock},
	}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	simCfg, err := dt.Similarity()
	if err != nil {
		return nil, err
	}
	matcher, err := similarity.NewMatcher(simCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create matcher: %w", err)
	}

	enforcer, err := trust.NewEnforcer(dt.MaxDevicesPerUser, trust.WithAutoUnblock(dt.AutoUnblock))
	if err != nil {
		return nil, fmt.Errorf("failed to create enforcer: %w", err)
	}

	tokens, err := mgmttoken.NewService(dt.ManagementTokenSecret, mgmttoken.WithTTL(dt.ManagementTokenTTL))
	if err != nil {
		return nil, fmt.Errorf("failed to create token service: %w", err)
	}
	c.Tokens = tokens

	store, err := c.cooldownStore(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	throttler, err := ratelimit.NewRemovalThrottler(store, dt.RemovalCooldown)
	if err != nil {
		return nil, fmt.Errorf("failed to create removal throttler: %w", err)
	}

	repoCfg := device.RepositoryConfig{DataDir: dt.DataDir}
	var db device.DBTX
	if dt.Persistence == config.PersistencePostgres {
		dbConfig := cfg.Database.ToDbConfig()
		pool, err := dbutils.NewDbPool(ctx, dbConfig)
		if err != nil {
			slog.Error("Failed creating dbpool", "db", dbConfig.Database, "host", dbConfig.Host, "port", dbConfig.Port, "user", dbConfig.User)
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		c.closers = append(c.closers, pool.Close)
		repoCfg.DB = pool
		db = pool
		c.Result.Database = cfg.Database.RedactedDatabaseURL()
	}

	repo, err := device.NewRepository(dt.Persistence, repoCfg)
	if err != nil {
		return nil, err
	}
	c.Repo = repo

	opts := []device.Option{
		device.WithMetrics(c.Metrics),
		device.WithStorageTimeout(dt.StorageTimeout),
	}
	if alerter := blockAlerter(cfg, db); alerter != nil {
		opts = append(opts, device.WithAlerter(alerter))
		c.Result.EmailAlerts = true
	}

	registry, err := device.NewRegistry(repo, matcher, enforcer, throttler, tokens, opts...)
	if err != nil {
		return nil, err
	}
	c.Registry = registry

	ok = true
	slog.Info("Device trust initialized", "config", dt.String())
	return c, nil
}

func (c *Components) cooldownStore(ctx context.Context, cfg config.RedisConfig) (ratelimit.CooldownStore, error) {
	if !cfg.Enabled() {
		slog.Warn("No Redis configured, removal cooldowns are kept in process memory")
		return ratelimit.NewMemoryCooldownStore(), nil
	}

	client := redis.NewClient(cfg.ToOptions())
	c.closers = append(c.closers, func() {
		if err := client.Close(); err != nil {
			slog.Warn("Failed to close redis client", "error", err)
		}
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	c.Result.Redis = cfg.Addr
	return ratelimit.NewRedisCooldownStore(client), nil
}

// blockAlerter returns nil when alerts cannot be emailed; the registry then logs instead
func blockAlerter(cfg Config, db device.DBTX) device.BlockAlerter {
	if !cfg.Email.Enabled {
		return nil
	}
	if db == nil {
		slog.Warn("Email alerts need the postgres users table, block alerts disabled", "persistence", cfg.DeviceTrust.Persistence)
		return nil
	}

	manager, err := notification.NewNotificationManager(
		notification.WithSMTP(cfg.Email.ToSMTPConfig()),
		notification.WithAccountBlockedTemplate(),
	)
	if err != nil {
		slog.Error("Failed to create notification manager, block alerts disabled", "error", err)
		return nil
	}
	return notification.NewBlockAlerter(manager, EmailResolver(db), cfg.DeviceTrust.ManagementURL, cfg.DeviceTrust.MaxDevicesPerUser)
}

// EmailResolver reads a user's address from the users table
func EmailResolver(db device.DBTX) notification.RecipientResolverFunc {
	return func(ctx context.Context, userID string) (string, error) {
		var email string
		err := db.QueryRow(ctx, `SELECT email FROM users WHERE id = $1`, userID).Scan(&email)
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to look up email for user %s: %w", userID, err)
		}
		return email, nil
	}
}
