// Package config loads and validates the settings of the device trust service.
//
// Every setting can be populated either with cleanenv struct tags:
//
//	var cfg config.DeviceTrustConfig
//	if err := cleanenv.ReadEnv(&cfg); err != nil { ... }
//
// or with the NewXxxConfigFromEnv helpers, which read the same variables
// through GetEnvOrDefault and friends. Validate reports every problem at once:
//
//	if err := cfg.Validate(); err != nil {
//		slog.Error("invalid configuration", "err", err)
//		os.Exit(1)
//	}
//
// DEVICE_REMOVAL_COOLDOWN and DEVICE_MANAGEMENT_TOKEN_SECRET have no defaults.
package config
