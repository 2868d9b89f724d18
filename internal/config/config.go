package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

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

	SeedDemoData bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Scheduler SchedulerConfig
	Analytics AnalyticsConfig
	RateLimit RateLimitConfig
}

type SchedulerConfig struct {
	Enabled     bool
	RunInterval time.Duration
	LockTTL     time.Duration
}

// RateLimitConfig bounds grading ingest per client and across the service.
// Rates are tokens per second; limiting requires redis.
type RateLimitConfig struct {
	Enabled            bool
	GradingClientRate  float64
	GradingClientBurst int
	GradingGlobalRate  float64
	GradingGlobalBurst int
}

type AnalyticsConfig struct {
	QueueCapacity      int
	DeadLetterCapacity int
	BreakerFailures    uint32
	BreakerTimeout     time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "scholara"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "scholara"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		SeedDemoData:      getenvBool("SEED_DEMO_DATA", false),
		RedisAddr:         strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword:     getenv("REDIS_PASSWORD", ""),
		RedisDB:           getenvInt("REDIS_DB", 0),
		Scheduler: SchedulerConfig{
			Enabled:     getenvBool("SCHEDULER_ENABLED", true),
			RunInterval: getenvDuration("ARCHIVE_RUN_INTERVAL", 24*time.Hour),
			LockTTL:     getenvDuration("ARCHIVE_LOCK_TTL", 2*time.Hour),
		},
		Analytics: AnalyticsConfig{
			QueueCapacity:      getenvInt("ANALYTICS_QUEUE_CAPACITY", 1024),
			DeadLetterCapacity: getenvInt("ANALYTICS_DEAD_LETTER_CAPACITY", 500),
			BreakerFailures:    uint32(getenvInt("ANALYTICS_BREAKER_FAILURES", 5)),
			BreakerTimeout:     getenvDuration("ANALYTICS_BREAKER_TIMEOUT", 30*time.Second),
		},
		RateLimit: RateLimitConfig{
			Enabled:            getenvBool("RATE_LIMIT_ENABLED", false),
			GradingClientRate:  getenvFloat("RATE_LIMIT_GRADING_CLIENT_RATE", 5),
			GradingClientBurst: getenvInt("RATE_LIMIT_GRADING_CLIENT_BURST", 20),
			GradingGlobalRate:  getenvFloat("RATE_LIMIT_GRADING_GLOBAL_RATE", 200),
			GradingGlobalBurst: getenvInt("RATE_LIMIT_GRADING_GLOBAL_BURST", 400),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func (c Config) RedisEnabled() bool {
	return strings.TrimSpace(c.RedisAddr) != ""
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
