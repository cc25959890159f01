package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Carrier token stores.
const (
	TokenStoreMemory = "memory"
	TokenStoreRedis  = "redis"
)

// Config holds the complete application configuration, loadable from
// environment variables (STORE_ prefix), flags, or YAML config files.
type Config struct {
	Addr          string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Storage       StorageConfig
	SessionPepper string `usage:"HMAC pepper for session token hashing (STORE_SESSION_PEPPER)" flag:"session-pepper"`
	Carrier       CarrierConfig
	Redis         RedisConfig
	Payments      PaymentsConfig
	Notify        NotifyConfig
	RateLimit     RateLimitConfig
	CORS          CORSConfig
	Graceful      GracefulConfig
}

// StorageConfig selects the primary store.
type StorageConfig struct {
	Driver        string `default:"postgres" usage:"Primary store: postgres or mongo"`
	DatabaseURL   string `usage:"PostgreSQL connection URL (STORE_STORAGE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	MongoURI      string `usage:"MongoDB connection URI" flag:"mongo-uri"`
	MongoDatabase string `default:"storefront" usage:"MongoDB database name" flag:"mongo-database"`
}

// CarrierConfig holds shipping carrier credentials. The carrier is disabled
// when Email is empty.
type CarrierConfig struct {
	BaseURL        string        `default:"https://apiv2.shiprocket.in" usage:"Carrier API root"`
	Email          string        `usage:"Carrier API login email"`
	Password       string        `usage:"Carrier API login password"`
	QuoteTimeout   time.Duration `default:"5s" usage:"Deadline for a realtime rate quote when settings do not set one" flag:"carrier-quote-timeout"`
	RequestTimeout time.Duration `default:"15s" usage:"Timeout of a single carrier request" flag:"carrier-request-timeout"`
	TokenStore     string        `default:"memory" usage:"Carrier token cache: memory or redis" flag:"carrier-token-store"`
}

// RedisConfig configures the shared cache. Redis is disabled when Addr is
// empty.
type RedisConfig struct {
	Addr     string `usage:"Redis address (host:port)"`
	Password string `usage:"Redis password"`
	DB       int    `default:"0" usage:"Redis database number"`
}

// PaymentsConfig configures payment gateways.
type PaymentsConfig struct {
	Currency string `default:"INR" usage:"Currency of payment intents"`
	Razorpay RazorpayConfig
	PhonePe  PhonePeConfig
}

// RazorpayConfig holds Razorpay API keys. The gateway is disabled when
// KeyID is empty.
type RazorpayConfig struct {
	KeyID     string `usage:"Razorpay key id"`
	KeySecret string `usage:"Razorpay key secret"`
	BaseURL   string `default:"https://api.razorpay.com" usage:"Razorpay API root"`
}

// PhonePeConfig is accepted for forward compatibility. PhonePe has no
// gateway yet, so checkout with it answers PAYMENT_METHOD_UNAVAILABLE.
type PhonePeConfig struct {
	Enabled bool `default:"false" usage:"Reserved; PhonePe is not implemented"`
}

// NotifyConfig configures order event publishing. Events are logged when
// no brokers are set.
type NotifyConfig struct {
	Brokers []string `usage:"Kafka brokers for order events"`
	Topic   string   `default:"storefront.orders" usage:"Kafka topic for order events"`
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

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "STORE",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
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

// Validate checks cross-field requirements that tags cannot express.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			return errors.New("database URL is required: set STORE_STORAGE_DATABASE_URL or DATABASE_URL")
		}
	case DriverMongo:
		if c.Storage.MongoURI == "" {
			return errors.New("mongo URI is required: set STORE_STORAGE_MONGO_URI")
		}
	default:
		return errors.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Carrier.TokenStore {
	case TokenStoreMemory:
	case TokenStoreRedis:
		if c.Redis.Addr == "" {
			return errors.New("redis token store requires STORE_REDIS_ADDR")
		}
	default:
		return errors.Errorf("unknown carrier token store %q", c.Carrier.TokenStore)
	}
	if c.SessionPepper == "" {
		return errors.New("session pepper is required: set STORE_SESSION_PEPPER")
	}
	if c.Payments.Razorpay.KeyID != "" && c.Payments.Razorpay.KeySecret == "" {
		return errors.New("razorpay key secret is required when a key id is set")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's STORE_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.Storage.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.Storage.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
