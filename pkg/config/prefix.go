package config

// PrefixConfig holds the mount points of the device trust HTTP routes
type PrefixConfig struct {
	Devices    string `env:"PREFIX_DEVICES" env-default:"/api/v1/devices"`                     // Session routes
	Management string `env:"PREFIX_DEVICE_MANAGEMENT" env-default:"/api/v1/device-management"` // Token-authorized routes linked from block alerts
	Admin      string `env:"PREFIX_ADMIN" env-default:"/api/v1/admin/accounts"`                // Administrator routes
}

// DefaultV1Prefixes returns the default v1 prefix configuration
func DefaultV1Prefixes() PrefixConfig {
	return PrefixConfig{
		Devices:    "/api/v1/devices",
		Management: "/api/v1/device-management",
		Admin:      "/api/v1/admin/accounts",
	}
}

// NewPrefixConfigFromEnv creates a PrefixConfig from environment variables
func NewPrefixConfigFromEnv() PrefixConfig {
	defaults := DefaultV1Prefixes()
	return PrefixConfig{
		Devices:    GetEnvOrDefault("PREFIX_DEVICES", defaults.Devices),
		Management: GetEnvOrDefault("PREFIX_DEVICE_MANAGEMENT", defaults.Management),
		Admin:      GetEnvOrDefault("PREFIX_ADMIN", defaults.Admin),
	}
}
