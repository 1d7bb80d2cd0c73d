package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (CARTSYNC_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (CARTSYNC_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Reconcile   ReconcileConfig
	Idempotency IdempotencyConfig
	Graceful    GracefulConfig
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// ReconcileConfig controls the async reconciliation worker.
type ReconcileConfig struct {
	Debounce time.Duration `default:"300ms" usage:"Coalescing window for cart-changed events"`
	Buffer   int           `default:"256"   usage:"Cart-changed event buffer size"`
}

// IdempotencyConfig selects and tunes the handled-event store.
type IdempotencyConfig struct {
	Backend       string        `default:"memory" usage:"Idempotency store backend (memory or redis)"`
	RedisURL      string        `default:""       usage:"Redis URL for the shared idempotency store" flag:"redis-url"`
	TTL           time.Duration `default:"72h"    usage:"How long handled event ids are remembered"`
	SweepInterval time.Duration `default:"5m"     usage:"Expired entry sweep interval (memory backend)"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "CARTSYNC",
		Files:     []string{"config.yaml", "/etc/cartsync/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set CARTSYNC_DATABASE_URL or DATABASE_URL")
	}
	if cfg.Idempotency.Backend == "redis" && cfg.Idempotency.RedisURL == "" {
		return nil, errors.New("redis idempotency backend requires CARTSYNC_IDEMPOTENCY_REDIS_URL")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables
// (Railway, Render, etc.) that use standard names like DATABASE_URL and PORT
// to the application's CARTSYNC_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
