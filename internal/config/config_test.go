package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Env:              "prod",
		DBDriver:         "mysql",
		JWTSecret:        strings.Repeat("s", MinProdSecretLen),
		AccessTTLMin:     60,
		SessionTTLMin:    60,
		BcryptCost:       12,
		LockoutThreshold: 5,
		LockoutDuration:  time.Hour,
		CSRFRotation:     30 * time.Minute,
		CSRFCookieTTL:    time.Hour,
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	cases := map[string]func(*Config){
		"short prod secret": func(c *Config) { c.JWTSecret = "short" },
		"bcrypt cost":       func(c *Config) { c.BcryptCost = 2 },
		"ttl":               func(c *Config) { c.SessionTTLMin = 0 },
		"lockout":           func(c *Config) { c.LockoutThreshold = 0 },
		"csrf":              func(c *Config) { c.CSRFRotation = 0 },
		"driver":            func(c *Config) { c.DBDriver = "postgres" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := validConfig()
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}

	dev := validConfig()
	dev.Env = "dev"
	dev.JWTSecret = "short"
	assert.NoError(t, dev.Validate())
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("LOCKOUT_DURATION", "90m")
	t.Setenv("BCRYPT_COST", "10")

	cfg := Load()
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, 90*time.Minute, cfg.LockoutDuration)
	assert.Equal(t, 10, cfg.BcryptCost)
	assert.Equal(t, time.Hour, cfg.AccessTTL())
	assert.Equal(t, time.Hour, cfg.SessionTTL())
	assert.False(t, cfg.CookieSecure, "dev defaults to insecure cookies")
	assert.True(t, cfg.CSRFEnabled)
}

func TestEnvironmentNames(t *testing.T) {
	assert.True(t, IsProd("Production"))
	assert.False(t, IsProd("staging"))
	assert.True(t, IsDev("local"))
	assert.False(t, IsDev("prod"))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, Config{Env: "test", LogLevel: "warn"})
	log.Info("dropped")
	log.Warn("kept", "k", "v")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "kept", rec["msg"])
	assert.Equal(t, "admin-auth", rec["service"])
	assert.Equal(t, "test", rec["env"])

	assert.Equal(t, slog.LevelDebug, parseLevel(" DEBUG "))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}

func TestRateLimitConfig(t *testing.T) {
	c := RateLimitConfig{Capacity: 0, RefillTokens: 0, RefillInterval: 0}.normalized()
	assert.Equal(t, 1, c.Capacity)
	assert.Equal(t, time.Second, c.RefillInterval)
	assert.Equal(t, 5*time.Second, c.TTL)
	assert.InDelta(t, 1.0, c.PerSecond(), 1e-9)

	t.Setenv("RATE_LIMIT_REFILL_EVERY", "500ms")
	t.Setenv("RATE_LIMIT_BURST", "7")
	loaded := LoadRateLimitConfig()
	assert.Equal(t, 7, loaded.Capacity)
	assert.InDelta(t, 2.0, loaded.PerSecond(), 1e-9)
}
