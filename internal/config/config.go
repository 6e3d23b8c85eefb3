package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	LogLevel  string
	LogFormat string

	OtelEnabled       bool
	OTLPEndpoint      string
	OTLPProtocol      string
	OtelSamplingRatio float64

	// DatabaseURL, when set, replaces the discrete postgres connection fields.
	DatabaseURL       string
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
	DBSlowQueryMillis int

	// PlansConfigPath points at a plans.yml overriding the built-in allowances.
	PlansConfigPath string

	APIKeyCacheTTLSeconds int
	// BootstrapUserID receives a first API key at startup outside production.
	BootstrapUserID string

	RateLimit    RateLimitConfig
	UsageMetrics UsageMetricsConfig
}

type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	APIWindowSeconds int
	APIMax           int

	UsageWindowSeconds int
	UsageMax           int
}

type UsageMetricsConfig struct {
	Enabled         bool
	Exporter        string
	Endpoint        string
	AuthToken       string
	IntervalSeconds int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:               getenv("APP_SERVICE", "creditline"),
		AppVersion:            getenv("APP_VERSION", "0.1.0"),
		Environment:           getenv("ENVIRONMENT", "development"),
		HTTPAddr:              getenv("HTTP_ADDR", ":8080"),
		LogLevel:              strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
		LogFormat:             strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
		OtelEnabled:           getenvBool("OTEL_ENABLED", false),
		OTLPEndpoint:          strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")),
		OTLPProtocol:          strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
		OtelSamplingRatio:     getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		DatabaseURL:           strings.TrimSpace(getenv("DATABASE_URL", "")),
		DBType:                getenv("DATABASE_TYPE", "postgres"),
		DBHost:                getenv("DATABASE_HOST", "localhost"),
		DBPort:                getenv("DATABASE_PORT", "5432"),
		DBName:                getenv("DATABASE_NAME", "postgres"),
		DBUser:                getenv("DATABASE_USER", "postgres"),
		DBPassword:            getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:             getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:         getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:         getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime:     getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime:     getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		DBSlowQueryMillis:     getenvInt("DATABASE_SLOW_QUERY_MS", 200),
		PlansConfigPath:       strings.TrimSpace(getenv("PLANS_CONFIG_PATH", "")),
		APIKeyCacheTTLSeconds: getenvInt("API_KEY_CACHE_TTL_SECONDS", 30),
		BootstrapUserID:       strings.TrimSpace(getenv("BOOTSTRAP_USER_ID", "")),
		RateLimit: RateLimitConfig{
			Enabled:            getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:          strings.TrimSpace(getenv("RATE_LIMIT_REDIS_ADDR", "")),
			RedisPassword:      getenv("RATE_LIMIT_REDIS_PASSWORD", ""),
			RedisDB:            getenvInt("RATE_LIMIT_REDIS_DB", 0),
			APIWindowSeconds:   getenvInt("RATE_LIMIT_API_WINDOW_SECONDS", 60),
			APIMax:             getenvInt("RATE_LIMIT_API_MAX", 30),
			UsageWindowSeconds: getenvInt("RATE_LIMIT_USAGE_WINDOW_SECONDS", 60),
			UsageMax:           getenvInt("RATE_LIMIT_USAGE_MAX", 10),
		},
		UsageMetrics: UsageMetricsConfig{
			Enabled:         getenvBool("USAGE_METRICS_ENABLED", false),
			Exporter:        strings.TrimSpace(getenv("USAGE_METRICS_EXPORTER", "")),
			Endpoint:        strings.TrimSpace(getenv("USAGE_METRICS_ENDPOINT", "")),
			AuthToken:       getenv("USAGE_METRICS_AUTH_TOKEN", ""),
			IntervalSeconds: getenvInt("USAGE_METRICS_INTERVAL_SECONDS", 60),
		},
	}

	return cfg
}

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
