package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (STOREFRONT_ prefix), flags, or YAML config files.
type Config struct {
	Addr          string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL   string `env:"DATABASE_URL" usage:"PostgreSQL connection URL (STOREFRONT_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisURL      string `env:"REDIS_URL" usage:"Redis connection URL (STOREFRONT_REDIS_URL or REDIS_URL)" flag:"redis-url"`
	SessionPepper string `env:"SESSION_PEPPER" usage:"HMAC pepper for password hashing (STOREFRONT_SESSION_PEPPER)" flag:"session-pepper"`
	Session       SessionConfig
	PixPay        PixPayConfig
	Postal        PostalConfig
	Checkout      CheckoutConfig
	RateLimit     RateLimitConfig
	CORS          CORSConfig
	Graceful      GracefulConfig
}

// SessionConfig controls session token lifetimes in Redis.
type SessionConfig struct {
	TTL       time.Duration `default:"24h" usage:"Session token lifetime"`
	RecordTTL time.Duration `default:"1h"  usage:"Selected-address record lifetime" flag:"record-ttl"`
}

// PixPayConfig points at the PIX payment provider.
type PixPayConfig struct {
	BaseURL string        `env:"BASE_URL" usage:"Payment provider base URL" flag:"pixpay-url"`
	APIKey  string        `env:"API_KEY" usage:"Payment provider API key" flag:"pixpay-key"`
	Timeout time.Duration `default:"10s" usage:"Payment provider request timeout" flag:"pixpay-timeout"`
}

// PostalConfig points at the postal code lookup service.
type PostalConfig struct {
	BaseURL string        `default:"https://viacep.com.br" usage:"Postal lookup base URL" flag:"postal-url"`
	Timeout time.Duration `default:"5s" usage:"Postal lookup request timeout" flag:"postal-timeout"`
}

// CheckoutConfig tunes checkout payment polling.
type CheckoutConfig struct {
	PollInterval      time.Duration `default:"5s" usage:"Payment status poll interval" flag:"poll-interval"`
	CountdownInterval time.Duration `default:"1s" usage:"PIX countdown tick interval" flag:"countdown-interval"`
	Currency          string        `default:"BRL" usage:"Payment currency"`
	Method            string        `default:"PIX" usage:"Payment method"`
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
		EnvPrefix: "STOREFRONT",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set STOREFRONT_DATABASE_URL or DATABASE_URL")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("redis URL is required: set STOREFRONT_REDIS_URL or REDIS_URL")
	}
	if cfg.PixPay.BaseURL == "" {
		return nil, errors.New("payment provider URL is required: set STOREFRONT_PIXPAY_BASE_URL")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables
// (Railway, Render, etc.) that use standard names like DATABASE_URL and PORT
// to the application's STOREFRONT_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if c.RedisURL == "" {
		if v := os.Getenv("REDIS_URL"); v != "" {
			c.RedisURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
