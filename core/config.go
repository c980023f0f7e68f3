package core

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends accepted in STORE_BACKEND.
const (
	StoreBackendSQLite = "sqlite"
	StoreBackendMemory = "memory"
)

// Config holds all configuration values of the dashboard service.
type Config struct {
	// HTTP server
	Host string
	Port int

	// Logging
	DevMode  bool
	LogLevel string
	LogFile  string

	// Key-value store
	StoreBackend string
	DatabasePath string
	SeedOnStart  bool

	// Streaming
	StreamPollInterval time.Duration
	// StreamStaticCategories lists category names that are served without
	// live updates.
	StreamStaticCategories []string

	// Simulate-update guard
	AdminPassword         string
	AdminPasswordHash     string
	SimulateRatePerMinute int

	// Background work and shutdown
	HealthCheckInterval time.Duration
	ShutdownTimeout     time.Duration
}

// DefaultConfig returns the configuration used when no variable is set.
func DefaultConfig() *Config {
	return &Config{
		Host:                  "localhost",
		Port:                  3000,
		LogLevel:              "info",
		LogFile:               "dashboard.log",
		StoreBackend:          StoreBackendSQLite,
		DatabasePath:          "dashboard.db",
		SeedOnStart:           true,
		StreamPollInterval:    3 * time.Second,
		SimulateRatePerMinute: 30,
		HealthCheckInterval:   30 * time.Second,
		ShutdownTimeout:       30 * time.Second,
	}
}

// LoadConfig reads the configuration from environment variables, applying
// DefaultConfig for anything unset, and validates the result.
func LoadConfig() (*Config, error) {
	d := DefaultConfig()

	cfg := &Config{
		Host:                   GetEnvOrDefault("HOST", d.Host),
		Port:                   ParseIntEnv("PORT", d.Port),
		DevMode:                ParseBoolEnv("DEV_MODE", d.DevMode),
		LogLevel:               GetEnvOrDefault("LOG_LEVEL", d.LogLevel),
		LogFile:                GetEnvOrDefault("LOG_FILE", d.LogFile),
		StoreBackend:           strings.ToLower(GetEnvOrDefault("STORE_BACKEND", d.StoreBackend)),
		DatabasePath:           GetEnvOrDefault("DATABASE_PATH", d.DatabasePath),
		SeedOnStart:            ParseBoolEnv("SEED_ON_START", d.SeedOnStart),
		StreamPollInterval:     ParseMillisEnv("STREAM_POLL_INTERVAL_MS", int(d.StreamPollInterval/time.Millisecond)),
		StreamStaticCategories: ParseListEnv("STREAM_STATIC_CATEGORIES"),
		AdminPassword:          os.Getenv("ADMIN_PASSWORD"),
		AdminPasswordHash:      os.Getenv("ADMIN_PASSWORD_HASH"),
		SimulateRatePerMinute:  ParseIntEnv("SIMULATE_RATE_PER_MINUTE", d.SimulateRatePerMinute),
		HealthCheckInterval:    ParseDurationEnv("HEALTH_CHECK_INTERVAL", int(d.HealthCheckInterval/time.Second)),
		ShutdownTimeout:        ParseDurationEnv("SHUTDOWN_TIMEOUT", int(d.ShutdownTimeout/time.Second)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration and returns the first problem found
// as a *ConfigError.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return ErrInvalidValue("PORT", strconv.Itoa(c.Port), "must be between 1 and 65535")
	}

	switch c.StoreBackend {
	case StoreBackendSQLite:
		if strings.TrimSpace(c.DatabasePath) == "" {
			return ErrMissingConfig("DATABASE_PATH")
		}
	case StoreBackendMemory:
	default:
		return ErrInvalidValue("STORE_BACKEND", c.StoreBackend, "must be sqlite or memory")
	}

	if c.StreamPollInterval < 100*time.Millisecond {
		return ErrInvalidValue("STREAM_POLL_INTERVAL_MS",
			strconv.FormatInt(c.StreamPollInterval.Milliseconds(), 10), "must be at least 100")
	}
	if c.SimulateRatePerMinute < 0 {
		return ErrInvalidValue("SIMULATE_RATE_PER_MINUTE", strconv.Itoa(c.SimulateRatePerMinute), "must not be negative")
	}
	if c.HealthCheckInterval <= 0 {
		return ErrInvalidValue("HEALTH_CHECK_INTERVAL", c.HealthCheckInterval.String(), "must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return ErrInvalidValue("SHUTDOWN_TIMEOUT", c.ShutdownTimeout.String(), "must be positive")
	}
	if c.AdminPasswordHash != "" && !strings.HasPrefix(c.AdminPasswordHash, "$2") {
		return ErrInvalidValue("ADMIN_PASSWORD_HASH", "(hidden)", "must be a bcrypt hash")
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// AdminGuardEnabled reports whether simulate-update requires credentials.
func (c *Config) AdminGuardEnabled() bool {
	return c.AdminPassword != "" || c.AdminPasswordHash != ""
}

// String summarises the configuration without secrets.
func (c *Config) String() string {
	return fmt.Sprintf("addr=%s store=%s poll=%s admin_guard=%t",
		c.Addr(), c.StoreBackend, c.StreamPollInterval, c.AdminGuardEnabled())
}
