// internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Rate window store drivers.
const (
	RateStoreMemory = "memory"
	RateStoreRedis  = "redis"
)

// Config holds every recognized option of the server.
type Config struct {
	Port      string
	DebugMode bool
	StaticDir string

	// access gate
	APIKey    string
	JWTSecret string
	TokenTTL  time.Duration

	// rate gate
	RateLimitQuota  int
	RateLimitWindow time.Duration
	RateStore       string
	RedisURL        string

	// http surface
	AllowedOrigins []string
	MaxBodyBytes   int64

	// upstream completion API
	UpstreamURL     string
	UpstreamAPIKey  string
	UpstreamModel   string
	UpstreamTimeout time.Duration
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "5000")
	v.SetDefault("DEBUG_MODE", false)
	v.SetDefault("STATIC_DIR", "static")
	v.SetDefault("TOKEN_TTL", time.Hour)
	v.SetDefault("RATE_LIMIT_QUOTA", 100)
	v.SetDefault("RATE_LIMIT_WINDOW", time.Hour)
	v.SetDefault("RATE_STORE", RateStoreMemory)
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:5000")
	v.SetDefault("MAX_BODY_BYTES", 10*1024)
	v.SetDefault("UPSTREAM_URL", "https://api.chai-research.com/v1")
	v.SetDefault("UPSTREAM_MODEL", "chai_v3")
	v.SetDefault("UPSTREAM_TIMEOUT", 60*time.Second)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:            v.GetString("PORT"),
		DebugMode:       v.GetBool("DEBUG_MODE"),
		StaticDir:       v.GetString("STATIC_DIR"),
		APIKey:          v.GetString("API_KEY"),
		JWTSecret:       v.GetString("JWT_SECRET"),
		TokenTTL:        v.GetDuration("TOKEN_TTL"),
		RateLimitQuota:  v.GetInt("RATE_LIMIT_QUOTA"),
		RateLimitWindow: v.GetDuration("RATE_LIMIT_WINDOW"),
		RateStore:       strings.ToLower(v.GetString("RATE_STORE")),
		RedisURL:        v.GetString("REDIS_URL"),
		AllowedOrigins:  splitList(v.GetString("ALLOWED_ORIGINS")),
		MaxBodyBytes:    v.GetInt64("MAX_BODY_BYTES"),
		UpstreamURL:     strings.TrimRight(v.GetString("UPSTREAM_URL"), "/"),
		UpstreamAPIKey:  v.GetString("UPSTREAM_API_KEY"),
		UpstreamModel:   v.GetString("UPSTREAM_MODEL"),
		UpstreamTimeout: v.GetDuration("UPSTREAM_TIMEOUT"),
	}

	// CHAI_API_KEY is the historical name of the upstream credential
	if cfg.UpstreamAPIKey == "" {
		cfg.UpstreamAPIKey = v.GetString("CHAI_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects option combinations the server cannot run with.
func (c *Config) Validate() error {
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive, got %s", c.TokenTTL)
	}
	if c.RateLimitQuota <= 0 {
		return fmt.Errorf("RATE_LIMIT_QUOTA must be positive, got %d", c.RateLimitQuota)
	}
	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got %s", c.RateLimitWindow)
	}
	if c.UpstreamTimeout <= 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT must be positive, got %s", c.UpstreamTimeout)
	}
	switch c.RateStore {
	case RateStoreMemory:
	case RateStoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when RATE_STORE=redis")
		}
	default:
		return fmt.Errorf("unknown RATE_STORE %q", c.RateStore)
	}
	return nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
