// Package config provides environment-based configuration for the DropMyBeat services.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config holds all configuration for the API and worker processes.
type Config struct {
	// Storage
	DatabaseURL string
	StoreDriver string

	// Authentication
	JWTSecret        string
	JWTExpiry        time.Duration
	GuestTokenExpiry time.Duration

	// Server configuration
	APIHost            string
	APIPort            int
	ShutdownTimeout    time.Duration
	CORSAllowedOrigins []string

	Redis    RedisConfig
	TimeBomb TimeBombConfig

	LogLevel  string
	LogFormat string
}

// RedisConfig holds the optional Redis broadcast settings. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// Enabled reports whether a Redis server is configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// TimeBombConfig holds the expiry sweeper settings.
type TimeBombConfig struct {
	SweepInterval time.Duration
	SweepBatch    int
	// SweepInAPI runs the sweeper inside the API process instead of a dedicated worker.
	SweepInAPI bool
}

// Load reads an optional .env file, then configuration from environment variables, and validates it.
func Load() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	cfg := fromEnv("")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWithDefaults loads configuration with defaults for development.
// It does not validate required fields, useful for testing.
func LoadWithDefaults() *Config {
	return fromEnv("development-secret-key-min-32-chars")
}

func loadDotEnv() error {
	err := godotenv.Load()
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("loading .env: %w", err)
}

func fromEnv(defaultSecret string) *Config {
	return &Config{
		DatabaseURL:        getEnv("DATABASE_URL", "postgres://localhost:5432/dropmybeat?sslmode=disable"),
		StoreDriver:        getEnv("STORE_DRIVER", StoreDriverPostgres),
		JWTSecret:          getEnv("JWT_SECRET", defaultSecret),
		JWTExpiry:          getDurationEnv("JWT_EXPIRY", 24*time.Hour),
		GuestTokenExpiry:   getDurationEnv("GUEST_TOKEN_EXPIRY", 12*time.Hour),
		APIHost:            getEnv("API_HOST", "0.0.0.0"),
		APIPort:            getIntEnv("API_PORT", 8080),
		ShutdownTimeout:    getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
		CORSAllowedOrigins: getListEnv("CORS_ALLOWED_ORIGINS", []string{"*"}),
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
			Channel:  getEnv("REDIS_CHANNEL", "broadcast"),
		},
		TimeBomb: TimeBombConfig{
			SweepInterval: getDurationEnv("TIMEBOMB_SWEEP_INTERVAL", 30*time.Second),
			SweepBatch:    getIntEnv("TIMEBOMB_SWEEP_BATCH", 100),
			SweepInAPI:    getBoolEnv("TIMEBOMB_SWEEP_IN_API", true),
		},
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q", StoreDriverPostgres, StoreDriverMemory)
	}
	if c.TimeBomb.SweepInterval <= 0 {
		return fmt.Errorf("TIMEBOMB_SWEEP_INTERVAL must be positive")
	}
	if c.TimeBomb.SweepBatch <= 0 {
		return fmt.Errorf("TIMEBOMB_SWEEP_BATCH must be positive")
	}
	if c.Redis.Enabled() && c.Redis.Channel == "" {
		return fmt.Errorf("REDIS_CHANNEL must not be empty when REDIS_ADDR is set")
	}
	return nil
}

// ListenAddr returns the API listen address.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.APIHost, c.APIPort)
}

// JSONLogs reports whether logs should be written as JSON.
func (c *Config) JSONLogs() bool {
	return !strings.EqualFold(c.LogFormat, "text")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
