package config

import (
	"fmt"
	"net/url"

	dbutils "github.com/tendant/db-utils/db"
)

// DatabaseConfig holds PostgreSQL database configuration
type DatabaseConfig struct {
	Host     string `env:"DEVICE_PG_HOST" env-default:"localhost"`
	Port     uint16 `env:"DEVICE_PG_PORT" env-default:"5432"`
	Database string `env:"DEVICE_PG_DATABASE" env-default:"device_trust"`
	User     string `env:"DEVICE_PG_USER" env-default:"device_trust"`
	Password string `env:"DEVICE_PG_PASSWORD" env-default:"pwd"`
	Schema   string `env:"DEVICE_PG_SCHEMA" env-default:"public"`
}

// RedactedDatabaseURL returns the PostgreSQL connection URL with the password masked
func (d DatabaseConfig) RedactedDatabaseURL() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.Database,
		RawQuery: fmt.Sprintf("sslmode=disable&search_path=%s,public", d.Schema),
	}
	return u.Redacted()
}

// ToDbConfig converts the config to a db-utils DbConfig
func (d DatabaseConfig) ToDbConfig() dbutils.DbConfig {
	return dbutils.DbConfig{
		Host:     d.Host,
		Port:     d.Port,
		Database: d.Database,
		User:     d.User,
		Password: d.Password,
	}
}

// NewDatabaseConfigFromEnv creates a DatabaseConfig from environment variables
func NewDatabaseConfigFromEnv() DatabaseConfig {
	return DatabaseConfig{
		Host:     GetEnvOrDefault("DEVICE_PG_HOST", "localhost"),
		Port:     GetEnvUint16("DEVICE_PG_PORT", 5432),
		Database: GetEnvOrDefault("DEVICE_PG_DATABASE", "device_trust"),
		User:     GetEnvOrDefault("DEVICE_PG_USER", "device_trust"),
		Password: GetEnvOrDefault("DEVICE_PG_PASSWORD", "pwd"),
		Schema:   GetEnvOrDefault("DEVICE_PG_SCHEMA", "public"),
	}
}
