package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("API_PORT", "9000")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("TIMEBOMB_SWEEP_INTERVAL", "5s")
	t.Setenv("TIMEBOMB_SWEEP_IN_API", "false")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	assert.Equal(t, "0.0.0.0:9000", cfg.ListenAddr())
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, "broadcast", cfg.Redis.Channel)
	assert.Equal(t, 5*time.Second, cfg.TimeBomb.SweepInterval)
	assert.False(t, cfg.TimeBomb.SweepInAPI)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
}

func TestLoadRejectsShortSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "too-short")
	_, err := Load()
	assert.ErrorContains(t, err, "at least 32 characters")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults are valid", func(*Config) {}, ""},
		{"unknown driver", func(c *Config) { c.StoreDriver = "sqlite" }, "STORE_DRIVER"},
		{"postgres without url", func(c *Config) { c.DatabaseURL = "" }, "DATABASE_URL"},
		{"memory without url", func(c *Config) {
			c.StoreDriver = StoreDriverMemory
			c.DatabaseURL = ""
		}, ""},
		{"zero sweep interval", func(c *Config) { c.TimeBomb.SweepInterval = 0 }, "TIMEBOMB_SWEEP_INTERVAL"},
		{"zero batch", func(c *Config) { c.TimeBomb.SweepBatch = 0 }, "TIMEBOMB_SWEEP_BATCH"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := LoadWithDefaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestJSONLogs(t *testing.T) {
	cfg := LoadWithDefaults()
	assert.True(t, cfg.JSONLogs())
	cfg.LogFormat = "TEXT"
	assert.False(t, cfg.JSONLogs())
}
