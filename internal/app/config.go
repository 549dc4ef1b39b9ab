package app

import (
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (SHOP_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (SHOP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	BaseURL     string `default:"" usage:"Public base URL for artifact links and provider callbacks (e.g. https://shop.example.com)" flag:"base-url"`
	Uploads     UploadsConfig
	JWT         JWTConfig
	Redis       RedisConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
	Card        CardConfig
	Crypto      CryptoConfig
}

// UploadsConfig controls where uploaded artifacts are written and served.
type UploadsConfig struct {
	Dir      string `default:"uploads" usage:"Directory uploaded files are written to"`
	Prefix   string `default:"uploads" usage:"URL path prefix uploaded files are served under"`
	MaxBytes int64  `default:"10485760" usage:"Maximum multipart request size" flag:"uploads-max-bytes"`
}

// JWTConfig controls administrator tokens.
type JWTConfig struct {
	Secret string        `usage:"HS256 signing secret (SHOP_JWT_SECRET or JWT_SECRET)" flag:"jwt-secret"`
	TTL    time.Duration `default:"168h" usage:"Token lifetime"`
}

// RedisConfig enables exactly-once callback processing. Empty Addr keeps
// de-duplication off.
type RedisConfig struct {
	Addr      string        `default:"" usage:"Redis address (host:port)"`
	Password  string        `default:"" usage:"Redis password"`
	DB        int           `default:"0" usage:"Redis database number"`
	DedupeTTL time.Duration `default:"24h" usage:"How long callback delivery keys are remembered" flag:"redis-dedupe-ttl"`
}

// RateLimitConfig controls the per-client token bucket rate limiter.
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

// CardConfig configures the Stripe card gateway.
type CardConfig struct {
	SecretKey string        `usage:"Stripe secret key (SHOP_CARD_SECRET_KEY or STRIPE_SECRET_KEY)" flag:"card-secret-key"`
	Currency  string        `default:"pkr" usage:"Charge currency"`
	Timeout   time.Duration `default:"15s" usage:"Gateway request timeout"`
}

// CryptoConfig configures the NOWPayments processor.
type CryptoConfig struct {
	APIKey          string        `usage:"NOWPayments API key (SHOP_CRYPTO_API_KEY or NOWPAYMENTS_API_KEY)" flag:"crypto-api-key"`
	IPNSecret       string        `usage:"NOWPayments IPN secret (SHOP_CRYPTO_IPN_SECRET or NOWPAYMENTS_IPN_SECRET)" flag:"crypto-ipn-secret"`
	BaseURL         string        `default:"https://api.nowpayments.io" usage:"Processor API base URL" flag:"crypto-base-url"`
	CallbackBaseURL string        `default:"" usage:"Public base URL of the IPN endpoint, defaults to base-url" flag:"crypto-callback-base-url"`
	PayCurrency     string        `default:"LTC" usage:"Currency the customer pays in" flag:"crypto-pay-currency"`
	Timeout         time.Duration `default:"15s" usage:"Processor request timeout"`
}

// CallbackURL is the absolute IPN endpoint handed to the processor.
func (c *Config) CallbackURL() string {
	base := c.Crypto.CallbackBaseURL
	if base == "" {
		base = c.BaseURL
	}
	if base == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/api/crypto/ipn"
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "SHOP",
		Files:     []string{"config.yaml", "/etc/shop/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set SHOP_DATABASE_URL or DATABASE_URL")
	}
	if c.JWT.Secret == "" {
		return errors.New("JWT secret is required: set SHOP_JWT_SECRET or JWT_SECRET")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables that use
// standard names like DATABASE_URL and PORT, and the provider variables the
// storefront has always used, to the application's SHOP_-prefixed
// configuration.
func (c *Config) applyPlatformDefaults() {
	for _, d := range []struct {
		dst *string
		env string
	}{
		{&c.DatabaseURL, "DATABASE_URL"},
		{&c.BaseURL, "BASE_URL"},
		{&c.JWT.Secret, "JWT_SECRET"},
		{&c.Redis.Addr, "REDIS_ADDR"},
		{&c.Card.SecretKey, "STRIPE_SECRET_KEY"},
		{&c.Crypto.APIKey, "NOWPAYMENTS_API_KEY"},
		{&c.Crypto.IPNSecret, "NOWPAYMENTS_IPN_SECRET"},
	} {
		if *d.dst == "" {
			*d.dst = os.Getenv(d.env)
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
