package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Module provides the application Config loaded from the environment.
var Module = fx.Module("config",
	fx.Provide(Load),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	BaseURL     string

	LogLevel  string
	LogFormat string

	OtelEnabled       bool
	OTLPEndpoint      string
	OTLPProtocol      string
	OtelSamplingRatio float64

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	OrderLockTTL  time.Duration
	OrderLockWait time.Duration

	Mollie    MollieConfig
	RateLimit RateLimitConfig

	// AdminAPIToken guards the /admin routes. Empty disables them.
	AdminAPIToken string

	SweepInterval    time.Duration
	SweepEnabled     bool
	BillingConfigDir string
}

type MollieConfig struct {
	APIKey         string
	BaseURL        string
	OrderIDPrefix  string
	Locale         string
	RequestTimeout time.Duration
}

type RateLimitConfig struct {
	Enabled           bool
	PayQuotePerMinute float64
	PayQuoteBurst     int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "quotepay"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		BaseURL:           strings.TrimRight(getenv("PUBLIC_BASE_URL", "http://localhost:3000"), "/"),
		LogLevel:          strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
		LogFormat:         strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
		OtelEnabled:       getenvBool("OTEL_ENABLED", false),
		OTLPEndpoint:      getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTLPProtocol:      strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
		OtelSamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "quotepay"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		RedisAddr:         strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword:     getenv("REDIS_PASSWORD", ""),
		RedisDB:           getenvInt("REDIS_DB", 0),
		OrderLockTTL:      getenvDuration("ORDER_LOCK_TTL", 30*time.Second),
		OrderLockWait:     getenvDuration("ORDER_LOCK_WAIT", 2*time.Second),
		Mollie: MollieConfig{
			APIKey:         strings.TrimSpace(getenv("MOLLIE_API_KEY", "")),
			BaseURL:        strings.TrimRight(getenv("MOLLIE_BASE_URL", "https://api.mollie.com/v2"), "/"),
			OrderIDPrefix:  getenv("MOLLIE_ORDER_ID_PREFIX", "ord_"),
			Locale:         getenv("MOLLIE_LOCALE", "fr_FR"),
			RequestTimeout: getenvDuration("MOLLIE_REQUEST_TIMEOUT", 12*time.Second),
		},
		RateLimit: RateLimitConfig{
			Enabled:           getenvBool("RATE_LIMIT_ENABLED", true),
			PayQuotePerMinute: getenvFloat("RATE_LIMIT_PAY_QUOTE_PER_MINUTE", 10),
			PayQuoteBurst:     getenvInt("RATE_LIMIT_PAY_QUOTE_BURST", 5),
		},
		AdminAPIToken:    strings.TrimSpace(getenv("ADMIN_API_TOKEN", "")),
		SweepInterval:    getenvDuration("SWEEP_INTERVAL", 15*time.Minute),
		SweepEnabled:     getenvBool("SWEEP_ENABLED", true),
		BillingConfigDir: getenv("BILLING_CONFIG_DIR", "/etc/quotepay"),
	}

	return cfg
}

// IsProduction reports whether the service runs in production.
func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
