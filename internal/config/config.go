// Package config provides configuration management for the locate gateway.
// It handles loading configuration from environment variables with sensible
// defaults and validates the configuration to ensure the application starts
// safely.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: Server port (default: 8080)
//   - LOG_LEVEL: Logging level (default: info)
//   - API_KEY: Key required on management API requests (empty disables auth)
//
// Upstream Service:
//   - LOCATE_BASE_URL: Base URL of the locate service (required)
//   - AUTH_TIMEOUT: Upstream login timeout (default: 30s)
//   - SEARCH_TIMEOUT: Upstream query timeout (default: 60s)
//
// Token Cache:
//   - TOKEN_TTL: Assumed token lifetime when upstream reports none (default: 1h)
//   - REFRESH_BUFFER: Refresh tokens this long before expiry (default: 5m)
//   - CLEANUP_INTERVAL: Interval between cleanup sweeps (default: 30m)
//   - CLEANUP_GRACE: Keep expired tokens this long before removal (default: 5m)
//
// Token Store:
//   - STORE_BACKEND: "memory", "sqlite", "postgres" or "redis" (default: memory)
//   - SQLITE_PATH: SQLite database file path (default: ./locate_tokens.db)
//   - POSTGRES_URL: PostgreSQL connection string (required for postgres)
//   - REDIS_URL: Redis connection URL (required for redis)
//   - REDIS_PASSWORD: Redis password override
//   - REDIS_DB: Redis database number 0-15 (default: 0)
//
// Rate Limiting:
//   - RATE_LIMIT_ENABLED: Enable the local call budget (default: true)
//   - RATE_LIMIT_BUDGET: Calls allowed per window (default: 10)
//   - RATE_LIMIT_WINDOW: Budget window (default: 1m)
//   - RATE_LIMIT_BLOCKING: Wait for capacity instead of failing fast (default: true)
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration values for the locate gateway. All fields
// correspond to environment variables that can be set to override defaults.
// Load() reads them; Validate() must pass before the values are used.
type Config struct {
	// Application settings
	Port     string
	LogLevel string
	APIKey   string

	// Upstream service
	LocateBaseURL string
	AuthTimeout   time.Duration
	SearchTimeout time.Duration

	// Token cache
	TokenTTL        time.Duration
	RefreshBuffer   time.Duration
	CleanupInterval time.Duration
	CleanupGrace    time.Duration

	// Token store
	StoreBackend  string
	SQLitePath    string
	PostgresURL   string
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Rate limiting
	RateLimitEnabled  bool
	RateLimitBudget   int
	RateLimitWindow   time.Duration
	RateLimitBlocking bool
}

// Load creates a Config with values from environment variables, falling back
// to defaults for anything unset. Call Validate() on the result before use.
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		APIKey:   getEnv("API_KEY", ""),

		LocateBaseURL: getEnv("LOCATE_BASE_URL", ""),
		AuthTimeout:   getDurationEnv("AUTH_TIMEOUT", 30*time.Second),
		SearchTimeout: getDurationEnv("SEARCH_TIMEOUT", 60*time.Second),

		TokenTTL:        getDurationEnv("TOKEN_TTL", time.Hour),
		RefreshBuffer:   getDurationEnv("REFRESH_BUFFER", 5*time.Minute),
		CleanupInterval: getDurationEnv("CLEANUP_INTERVAL", 30*time.Minute),
		CleanupGrace:    getDurationEnv("CLEANUP_GRACE", 5*time.Minute),

		StoreBackend:  getEnv("STORE_BACKEND", "memory"),
		SQLitePath:    getEnv("SQLITE_PATH", "./locate_tokens.db"),
		PostgresURL:   getEnv("POSTGRES_URL", ""),
		RedisURL:      getEnv("REDIS_URL", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		RateLimitEnabled:  getBoolEnv("RATE_LIMIT_ENABLED", true),
		RateLimitBudget:   getIntEnv("RATE_LIMIT_BUDGET", 10),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
		RateLimitBlocking: getBoolEnv("RATE_LIMIT_BLOCKING", true),
	}
}

// getEnv retrieves an environment variable value or returns a default value
// if not set.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getBoolEnv retrieves a boolean environment variable, accepting the forms
// strconv.ParseBool does. Unset or unparsable values return the default.
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getIntEnv retrieves an integer environment variable or the default.
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getDurationEnv retrieves a duration environment variable ("30s", "5m") or
// the default.
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Validate checks required fields, value ranges, and cross-field
// dependencies. The application should call this after Load and before
// starting.
func (c *Config) Validate() error {
	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a valid port number between 1 and 65535")
	}

	if c.LocateBaseURL == "" {
		return fmt.Errorf("LOCATE_BASE_URL environment variable is required")
	}
	if parsed, err := url.Parse(c.LocateBaseURL); err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("LOCATE_BASE_URL must be an absolute URL")
	}

	if c.AuthTimeout <= 0 {
		return fmt.Errorf("AUTH_TIMEOUT must be positive")
	}
	if c.SearchTimeout <= 0 {
		return fmt.Errorf("SEARCH_TIMEOUT must be positive")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}
	if c.RefreshBuffer < 0 {
		return fmt.Errorf("REFRESH_BUFFER must not be negative")
	}
	if c.RefreshBuffer >= c.TokenTTL {
		return fmt.Errorf("REFRESH_BUFFER must be shorter than TOKEN_TTL")
	}
	if c.CleanupInterval <= 0 {
		return fmt.Errorf("CLEANUP_INTERVAL must be positive")
	}
	if c.CleanupGrace < 0 {
		return fmt.Errorf("CLEANUP_GRACE must not be negative")
	}

	switch c.StoreBackend {
	case "memory":
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when using the sqlite store")
		}
	case "postgres", "postgresql":
		if c.PostgresURL == "" {
			return fmt.Errorf("POSTGRES_URL is required when using the postgres store")
		}
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when using the redis store")
		}
		if c.RedisDB < 0 || c.RedisDB > 15 {
			return fmt.Errorf("REDIS_DB must be a number between 0 and 15")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be 'memory', 'sqlite', 'postgres' or 'redis'")
	}

	if c.RateLimitEnabled {
		if c.RateLimitBudget < 1 {
			return fmt.Errorf("RATE_LIMIT_BUDGET must be a positive number")
		}
		if c.RateLimitWindow <= 0 {
			return fmt.Errorf("RATE_LIMIT_WINDOW must be a valid positive duration (e.g., '60s', '1m')")
		}
	}

	return nil
}
