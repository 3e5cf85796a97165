package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// GetEnv returns the variable's value, or "" when unset
func GetEnv(key string) string {
	return os.Getenv(key)
}

// GetEnvOrDefault returns defaultValue when the variable is unset or empty
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvParsed returns defaultValue when the variable is unset or parse fails
func getEnvParsed[T any](key string, defaultValue T, parse func(string) (T, error)) T {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := parse(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func GetEnvInt(key string, defaultValue int) int {
	return getEnvParsed(key, defaultValue, strconv.Atoi)
}

// GetEnvUint16 is used for ports
func GetEnvUint16(key string, defaultValue uint16) uint16 {
	return getEnvParsed(key, defaultValue, func(s string) (uint16, error) {
		v, err := strconv.ParseUint(s, 10, 16)
		return uint16(v), err
	})
}

func GetEnvFloat64(key string, defaultValue float64) float64 {
	return getEnvParsed(key, defaultValue, func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	})
}

// GetEnvBool accepts true/1/yes/on and false/0/no/off, case-insensitive
func GetEnvBool(key string, defaultValue bool) bool {
	return getEnvParsed(key, defaultValue, func(s string) (bool, error) {
		switch strings.ToLower(s) {
		case "true", "1", "yes", "on":
			return true, nil
		case "false", "0", "no", "off":
			return false, nil
		}
		return false, strconv.ErrSyntax
	})
}

// GetEnvDuration parses Go duration strings such as "5m" or "24h"
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	return getEnvParsed(key, defaultValue, time.ParseDuration)
}
