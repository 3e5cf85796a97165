package config

// JWTConfig holds the secret used to verify session tokens issued by the identity service
type JWTConfig struct {
	Secret string `env:"JWT_SECRET" env-default:"very-secure-jwt-secret"`
}

// NewJWTConfigFromEnv creates a JWTConfig from environment variables
func NewJWTConfigFromEnv() JWTConfig {
	return JWTConfig{
		Secret: GetEnvOrDefault("JWT_SECRET", "very-secure-jwt-secret"),
	}
}
