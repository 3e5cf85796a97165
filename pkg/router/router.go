package router

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/tendant/simple-device-trust/pkg/client"
	"github.com/tendant/simple-device-trust/pkg/config"
	"github.com/tendant/simple-device-trust/pkg/device"
	"github.com/tendant/simple-device-trust/pkg/device/api"
)

// Config holds everything needed to mount the device trust routes
type Config struct {
	PrefixConfig config.PrefixConfig

	DeviceHandle *api.DeviceHandler
	Registry     *device.Registry

	// HMACAuth verifies session JWTs
	HMACAuth *jwtauth.JWTAuth

	// ManagementLimiter guards the token-authorized routes. Optional.
	ManagementLimiter func(http.Handler) http.Handler

	AdminRole string

	// MetricsHandler is mounted at /metrics when set
	MetricsHandler http.Handler

	// ProtectedRoutes lets the host application mount its own session routes.
	// They are refused with 403 while the account is blocked.
	ProtectedRoutes func(r chi.Router)
}

// SetupRoutes mounts the management, session and admin routes on router
func SetupRoutes(router chi.Router, cfg Config) {
	if cfg.PrefixConfig == (config.PrefixConfig{}) {
		cfg.PrefixConfig = config.DefaultV1Prefixes()
	}
	if cfg.AdminRole == "" {
		cfg.AdminRole = "admin"
	}

	if cfg.MetricsHandler != nil {
		router.Handle("/metrics", cfg.MetricsHandler)
	}

	SetupPublicRoutes(router, cfg)
	SetupAuthenticatedRoutes(router, cfg)

	slog.Info("Device trust routes mounted",
		"devices", cfg.PrefixConfig.Devices,
		"management", cfg.PrefixConfig.Management,
		"admin", cfg.PrefixConfig.Admin)
}

// SetupPublicRoutes mounts the routes that carry no session. The device
// management token in the query string authorizes them.
func SetupPublicRoutes(router chi.Router, cfg Config) {
	router.Group(func(r chi.Router) {
		if cfg.ManagementLimiter != nil {
			r.Use(cfg.ManagementLimiter)
		}
		r.Mount(cfg.PrefixConfig.Management, api.ManagementRoutes(cfg.DeviceHandle))
	})
}

// SetupAuthenticatedRoutes mounts the routes that require a session JWT
func SetupAuthenticatedRoutes(router chi.Router, cfg Config) {
	router.Group(func(r chi.Router) {
		r.Use(client.Verifier(cfg.HMACAuth))
		r.Use(jwtauth.Authenticator(cfg.HMACAuth))
		r.Use(client.AuthUserMiddleware)

		r.Mount(cfg.PrefixConfig.Devices, api.SessionRoutes(cfg.DeviceHandle))

		r.Group(func(r chi.Router) {
			r.Use(client.RequireRole(cfg.AdminRole))
			r.Mount(cfg.PrefixConfig.Admin, api.AdminRoutes(cfg.DeviceHandle))
		})

		if cfg.ProtectedRoutes != nil {
			r.Group(func(r chi.Router) {
				r.Use(api.RequireActiveAccount(cfg.Registry))
				cfg.ProtectedRoutes(r)
			})
		}
	})
}
