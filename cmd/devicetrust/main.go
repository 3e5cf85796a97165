package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/jwtauth/v5"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/tendant/chi-demo/app"
	"github.com/tendant/simple-device-trust/pkg/bootstrap"
	"github.com/tendant/simple-device-trust/pkg/config"
	"github.com/tendant/simple-device-trust/pkg/device/api"
	"github.com/tendant/simple-device-trust/pkg/metrics"
	"github.com/tendant/simple-device-trust/pkg/ratelimit"
	"github.com/tendant/simple-device-trust/pkg/router"
)

type Config struct {
	DeviceTrust config.DeviceTrustConfig
	Database    config.DatabaseConfig
	Email       config.EmailConfig
	Redis       config.RedisConfig
	RateLimit   config.RateLimitConfig
	JWT         config.JWTConfig
	Prefix      config.PrefixConfig

	MetricsEnabled bool   `env:"METRICS_ENABLED" env-default:"true"`
	AdminRole      string `env:"ADMIN_ROLE_NAME" env-default:"admin"`

	AppConfig app.AppConfig
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
	}))
	slog.SetDefault(logger)

	loadEnvFile()

	cfg := Config{}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		slog.Error("Failed to read configuration", "error", err)
		os.Exit(1)
	}

	components, err := bootstrap.Build(context.Background(), bootstrap.Config{
		DeviceTrust: cfg.DeviceTrust,
		Database:    cfg.Database,
		Email:       cfg.Email,
		Redis:       cfg.Redis,
	})
	if err != nil {
		slog.Error("Failed to initialize device trust", "error", err)
		os.Exit(1)
	}
	defer components.Close()

	limiter := ratelimit.NewMiddleware(cfg.RateLimit.ToMiddlewareConfig())
	defer limiter.Close()

	server := app.DefaultApp()
	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)

	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		metricsHandler, err = metrics.Handler(components.Metrics)
		if err != nil {
			slog.Error("Failed to register metrics", "error", err)
			os.Exit(1)
		}
	}

	router.SetupRoutes(server.R, router.Config{
		PrefixConfig:      cfg.Prefix,
		DeviceHandle:      api.NewDeviceHandler(components.Registry),
		Registry:          components.Registry,
		HMACAuth:          jwtauth.New("HS256", []byte(cfg.JWT.Secret), nil),
		ManagementLimiter: limiter.Handler,
		AdminRole:         cfg.AdminRole,
		MetricsHandler:    metricsHandler,
	})

	bootstrap.PrintBootstrapResult(os.Stdout, components.Result)
	bootstrap.LogBootstrapSummary(components.Result)

	server.Run()
}

func loadEnvFile() {
	execPath, err := os.Executable()
	if err != nil {
		return
	}

	envFile := filepath.Join(filepath.Dir(execPath), ".env")
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		cwd, _ := os.Getwd()
		envFile = filepath.Join(cwd, ".env")
	}

	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		slog.Debug("No .env file found (using environment variables or defaults)")
		return
	}

	slog.Info("Loading configuration from .env file", "path", envFile)
	if err := godotenv.Load(envFile); err != nil {
		slog.Warn("Failed to load .env file", "error", err)
	}
}
