package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("API_KEY", "k")
	t.Setenv("JWT_SECRET", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "5000", cfg.Port)
	assert.Equal(t, "k", cfg.APIKey)
	assert.Equal(t, time.Hour, cfg.TokenTTL)
	assert.Equal(t, 100, cfg.RateLimitQuota)
	assert.Equal(t, time.Hour, cfg.RateLimitWindow)
	assert.Equal(t, RateStoreMemory, cfg.RateStore)
	assert.Equal(t, []string{"http://localhost:5000"}, cfg.AllowedOrigins)
	assert.Equal(t, "chai_v3", cfg.UpstreamModel)
	assert.Equal(t, 60*time.Second, cfg.UpstreamTimeout)
	assert.Empty(t, cfg.JWTSecret)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "fixed")
	t.Setenv("RATE_LIMIT_QUOTA", "5")
	t.Setenv("RATE_LIMIT_WINDOW", "2m")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("UPSTREAM_URL", "http://localhost:9999/v1/")
	t.Setenv("UPSTREAM_API_KEY", "")
	t.Setenv("CHAI_API_KEY", "legacy")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "fixed", cfg.JWTSecret)
	assert.Equal(t, 5, cfg.RateLimitQuota)
	assert.Equal(t, 2*time.Minute, cfg.RateLimitWindow)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, "http://localhost:9999/v1", cfg.UpstreamURL)
	assert.Equal(t, "legacy", cfg.UpstreamAPIKey)
}

func TestLoadRejectsRedisWithoutURL(t *testing.T) {
	t.Setenv("RATE_STORE", "redis")
	t.Setenv("REDIS_URL", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidateRejectsUnknownStore(t *testing.T) {
	cfg := &Config{
		TokenTTL:        time.Hour,
		RateLimitQuota:  1,
		RateLimitWindow: time.Hour,
		UpstreamTimeout: time.Second,
		RateStore:       "etcd",
	}
	assert.Error(t, cfg.Validate())
}
