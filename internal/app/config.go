package app

import (
	"io/fs"
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"

	"github.com/xenking/kart-checkout/internal/domain/cart"
)

const (
	StoragePostgres = "postgres"
	StorageRedis    = "redis"
)

// Config holds the complete application configuration, loadable from
// environment variables (KART_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (KART_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (KART_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Cart         CartConfig
	Redis        RedisConfig
	Checkout     CheckoutConfig
	Breaker      BreakerConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// CartConfig selects cart storage and the login merge policy.
type CartConfig struct {
	Storage     string `default:"postgres" usage:"Cart storage backend: postgres or redis" flag:"cart-storage"`
	MergePolicy string `default:"presence" usage:"Login merge policy: presence or union" flag:"cart-merge-policy"`
}

// RedisConfig is used when Cart.Storage is redis. URL takes precedence over
// the individual fields.
type RedisConfig struct {
	URL      string        `usage:"Redis URL (KART_REDIS_URL or REDIS_URL)" flag:"redis-url"`
	Addr     string        `default:"localhost:6379" usage:"Redis address"`
	Password string        `usage:"Redis password"`
	DB       int           `default:"0" usage:"Redis database"`
	GuestTTL time.Duration `default:"168h" usage:"Expiry of guest carts; 0 keeps them forever" flag:"guest-cart-ttl"`
}

// CheckoutConfig controls in-memory checkout sessions.
type CheckoutConfig struct {
	SessionIdleTimeout time.Duration `default:"30m" usage:"Idle time after which a checkout session is dropped" flag:"session-idle-timeout"`
	SweepInterval      time.Duration `default:"1m"  usage:"How often idle sessions are swept"`
}

// BreakerConfig guards order submission.
type BreakerConfig struct {
	MaxFailures uint32        `default:"5"   usage:"Consecutive submission failures that open the breaker"`
	OpenTimeout time.Duration `default:"30s" usage:"How long the breaker stays open"`
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

// LoadConfig loads a .env file if present, then environment variables and
// YAML config files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "KART",
		Files:     []string{"config.yaml", "/etc/kart/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that have no usable default.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set KART_DATABASE_URL or DATABASE_URL")
	}
	switch c.Cart.Storage {
	case StoragePostgres, StorageRedis:
	default:
		return errors.Errorf("unknown cart storage %q", c.Cart.Storage)
	}
	if _, err := cart.ParseMergePolicy(c.Cart.MergePolicy); err != nil {
		return err
	}
	if c.Checkout.SessionIdleTimeout <= 0 || c.Checkout.SweepInterval <= 0 {
		return errors.New("checkout session timeout and sweep interval must be positive")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL, REDIS_URL and PORT
// to the application's KART_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if c.Redis.URL == "" {
		if v := os.Getenv("REDIS_URL"); v != "" {
			c.Redis.URL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
