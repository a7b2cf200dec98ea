package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (FUNNEL_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (FUNNEL_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisURL    string `usage:"Redis URL for statistic idempotency; disabled when empty" flag:"redis-url"`
	Shopify     ShopifyConfig
	Statistics  StatisticsConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// ShopifyConfig holds the app credentials and Admin API settings.
type ShopifyConfig struct {
	APIKey            string        `usage:"App API key, also the changeset issuer (SHOPIFY_API_KEY)" flag:"shopify-api-key"`
	APISecret         string        `usage:"App API secret for session tokens and changesets (SHOPIFY_API_SECRET)" flag:"shopify-api-secret"`
	APIVersion        string        `default:"2024-07" usage:"Admin GraphQL API version" flag:"shopify-api-version"`
	Timeout           time.Duration `default:"10s" usage:"Catalog request timeout" flag:"shopify-timeout"`
	EnrichConcurrency int           `default:"4" usage:"Concurrent catalog lookups when listing funnels" flag:"enrich-concurrency"`
}

// StatisticsConfig controls duplicate suppression of statistic updates.
type StatisticsConfig struct {
	IdempotencyTTL time.Duration `default:"168h" usage:"How long a recorded purchase blocks duplicates" flag:"idempotency-ttl"`
	KeyPrefix      string        `default:"funnel:idempotency:" usage:"Redis key prefix for idempotency claims" flag:"idempotency-prefix"`
}

// RateLimitConfig controls the per-client token bucket rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins []string `default:"https://extensions.shopifycdn.com,https://*.shopifycdn.com" usage:"Allowed CORS origins"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(os.Args[1:])
}

func loadConfig(args []string) (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "FUNNEL",
		Args:      args,
		Files:     []string{"config.yaml", "/etc/funnel/config.yaml"},
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

// Validate reports missing required settings.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set FUNNEL_DATABASE_URL or DATABASE_URL")
	}
	if c.Statistics.IdempotencyTTL <= 0 {
		return errors.New("statistics idempotency TTL must be positive")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables that use
// standard names like DATABASE_URL and PORT to the FUNNEL_-prefixed
// configuration.
func (c *Config) applyPlatformDefaults() {
	fallback := func(dst *string, env string) {
		if *dst == "" {
			*dst = os.Getenv(env)
		}
	}
	fallback(&c.DatabaseURL, "DATABASE_URL")
	fallback(&c.RedisURL, "REDIS_URL")
	fallback(&c.Shopify.APIKey, "SHOPIFY_API_KEY")
	fallback(&c.Shopify.APISecret, "SHOPIFY_API_SECRET")

	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
