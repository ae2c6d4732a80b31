// Package config provides configuration management for the API gateway.
// It handles loading configuration from environment variables with sensible
// defaults and validates the configuration to ensure the gateway starts
// safely.
//
// The package supports multiple database backends (SQLite and PostgreSQL)
// for rule persistence, Redis for rate limiting, and per-service backend
// addresses for the forwarding layer.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: Server port (default: 8080)
//   - LOG_LEVEL: Logging level (default: info)
//
// Routing Settings:
//   - RULES_FILE: Optional JSON file of routing rules loaded at startup
//   - RULES_RELOAD_SCHEDULE: Optional cron expression for re-reading RULES_FILE
//
// Backend Services:
//   - USER_SERVICE_URL: Base URL of the user/profile service
//   - LISTING_SERVICE_URL: Base URL of the property listing service
//   - BOOKING_SERVICE_URL: Base URL of the booking service
//   - PAYMENT_SERVICE_URL: Base URL of the payment service
//   - SERVICE_<NAME>_URL: Base URL for any additional named service
//
// Database Configuration:
//   - DATABASE_TYPE: Database type - "sqlite" or "postgres" (default: sqlite)
//   - DATABASE_PATH: SQLite database file path (default: ./gateway.db)
//   - POSTGRES_HOST: PostgreSQL host (required if using PostgreSQL)
//   - POSTGRES_PORT: PostgreSQL port (default: 5432)
//   - POSTGRES_DB: PostgreSQL database name (required if using PostgreSQL)
//   - POSTGRES_USER: PostgreSQL username (required if using PostgreSQL)
//   - POSTGRES_PASSWORD: PostgreSQL password
//   - POSTGRES_SSL_MODE: PostgreSQL SSL mode (default: disable)
//
// Redis Configuration:
//   - REDIS_ADDRESS: Redis server address (default: localhost:6379)
//   - REDIS_PASSWORD: Redis password
//   - REDIS_DB: Redis database number 0-15 (default: 0)
//   - REDIS_POOL_SIZE: Redis connection pool size (default: 10)
//
// Rate Limiting:
//   - RATE_LIMIT_ENABLED: Enable rate limiting (default: true)
//   - RATE_LIMIT_DEFAULT: Default rate limit per window (default: 100)
//   - RATE_LIMIT_WINDOW: Rate limit time window (default: 60s)
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration values for the API gateway. All string
// fields correspond to environment variables that can be set to override
// the default values.
//
// The configuration is loaded using the Load() function and should be
// validated using the Validate() method before use.
type Config struct {
	// Application settings
	Port     string // Server port number
	LogLevel string // Logging level (debug, info, warn, error)

	// Routing settings
	RulesFile           string // Optional JSON rules file loaded at startup
	RulesReloadSchedule string // Optional cron expression for file reload

	// Backend service addresses, keyed by target service identifier
	Services map[string]string

	// Database configuration for rule persistence
	DatabaseType     string // Database type: "sqlite" or "postgres"
	DatabasePath     string // Path to SQLite database file
	PostgresHost     string // PostgreSQL host address
	PostgresPort     string // PostgreSQL port number
	PostgresDB       string // PostgreSQL database name
	PostgresUser     string // PostgreSQL username
	PostgresPassword string // PostgreSQL password
	PostgresSSLMode  string // PostgreSQL SSL mode (disable, require, etc.)

	// Redis configuration for rate limiting
	RedisAddress  string // Redis server address (host:port)
	RedisPassword string // Redis authentication password
	RedisDB       string // Redis database number (0-15)
	RedisPoolSize string // Redis connection pool size

	// Rate limiting configuration
	RateLimitEnabled bool   // Whether rate limiting is enabled
	RateLimitDefault string // Default requests per window
	RateLimitWindow  string // Rate limiting time window (e.g., "60s", "1m")
}

// Load creates a new Config instance with values loaded from environment
// variables. If an environment variable is not set, the corresponding
// default value is used.
//
// This function does not validate the configuration - call Validate() on
// the returned Config to ensure all required values are properly set.
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		RulesFile:           getEnv("RULES_FILE", ""),
		RulesReloadSchedule: getEnv("RULES_RELOAD_SCHEDULE", ""),

		Services: loadServices(),

		// Database configuration
		DatabaseType:     getEnv("DATABASE_TYPE", "sqlite"),
		DatabasePath:     getEnv("DATABASE_PATH", "./gateway.db"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresDB:       getEnv("POSTGRES_DB", "gateway"),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresSSLMode:  getEnv("POSTGRES_SSL_MODE", "disable"),

		// Redis configuration
		RedisAddress:  getEnv("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnv("REDIS_DB", "0"),
		RedisPoolSize: getEnv("REDIS_POOL_SIZE", "10"),

		// Rate limiting configuration
		RateLimitEnabled: getBoolEnv("RATE_LIMIT_ENABLED", true),
		RateLimitDefault: getEnv("RATE_LIMIT_DEFAULT", "100"),
		RateLimitWindow:  getEnv("RATE_LIMIT_WINDOW", "60s"),
	}
}

// loadServices builds the service address map from the four well-known
// backend variables plus any SERVICE_<NAME>_URL extras. Names from the
// generic form are lowercased with underscores turned into hyphens, so
// SERVICE_REVIEW_SERVICE_URL maps "review-service".
func loadServices() map[string]string {
	services := map[string]string{}

	wellKnown := map[string]string{
		"user-service":    "USER_SERVICE_URL",
		"listing-service": "LISTING_SERVICE_URL",
		"booking-service": "BOOKING_SERVICE_URL",
		"payment-service": "PAYMENT_SERVICE_URL",
	}
	for name, envVar := range wellKnown {
		if url := os.Getenv(envVar); url != "" {
			services[name] = url
		}
	}

	for _, entry := range os.Environ() {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || value == "" {
			continue
		}
		name, found := strings.CutPrefix(key, "SERVICE_")
		if !found {
			continue
		}
		name, found = strings.CutSuffix(name, "_URL")
		if !found || name == "" {
			continue
		}
		name = strings.ReplaceAll(strings.ToLower(name), "_", "-")
		services[name] = value
	}

	return services
}

// getEnv retrieves an environment variable value or returns a default
// value if not set.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getBoolEnv retrieves a boolean environment variable value or returns a
// default value if not set, empty, or invalid.
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Validate performs comprehensive validation on the configuration to
// ensure all required fields are present and all values are valid.
//
// This method checks:
//   - Field format validation (ports, durations, etc.)
//   - Cross-field dependencies (PostgreSQL configuration requirements)
//   - Service address well-formedness
//
// The gateway should call this method after loading configuration and
// before starting to ensure safe operation.
func (c *Config) Validate() error {
	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a valid port number between 1 and 65535")
	}

	// Validate database type
	switch c.DatabaseType {
	case "sqlite", "postgres", "postgresql":
		// Valid database types
	default:
		return fmt.Errorf("DATABASE_TYPE must be 'sqlite' or 'postgres'")
	}

	// Validate PostgreSQL config if using PostgreSQL
	if c.DatabaseType == "postgres" || c.DatabaseType == "postgresql" {
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required when using PostgreSQL")
		}
		if c.PostgresDB == "" {
			return fmt.Errorf("POSTGRES_DB is required when using PostgreSQL")
		}
		if c.PostgresUser == "" {
			return fmt.Errorf("POSTGRES_USER is required when using PostgreSQL")
		}
		if port, err := strconv.Atoi(c.PostgresPort); err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("POSTGRES_PORT must be a valid port number")
		}
	}

	// Validate Redis config if provided
	if c.RedisAddress != "" {
		if db, err := strconv.Atoi(c.RedisDB); err != nil || db < 0 || db > 15 {
			return fmt.Errorf("REDIS_DB must be a number between 0 and 15")
		}
		if poolSize, err := strconv.Atoi(c.RedisPoolSize); err != nil || poolSize < 1 {
			return fmt.Errorf("REDIS_POOL_SIZE must be a positive number")
		}
	}

	// Validate rate limit config
	if c.RateLimitEnabled {
		if limit, err := strconv.Atoi(c.RateLimitDefault); err != nil || limit < 1 {
			return fmt.Errorf("RATE_LIMIT_DEFAULT must be a positive number")
		}
		if _, err := time.ParseDuration(c.RateLimitWindow); err != nil {
			return fmt.Errorf("RATE_LIMIT_WINDOW must be a valid duration (e.g., '60s', '1m')")
		}
	}

	// Validate service addresses
	for name, url := range c.Services {
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			return fmt.Errorf("service %q address %q must start with http:// or https://", name, url)
		}
	}

	return nil
}
