package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DatabasePath string
	RedisURL     string // consumed by the external dashboard/notification side
	Environment  string // development or production
	LogLevel     string
	Port         int

	// EncryptionKey decrypts stored exchange private keys. Required; the
	// process refuses to start without it.
	EncryptionKey string

	// Exchange endpoints
	KalshiBaseURL string
	KalshiWSURL   string

	// Weather providers
	NWSUserAgent       string
	NWSRateLimitPerSec float64
	OpenMeteoRateLimit float64

	// Trading defaults; per-user settings may override
	DefaultMaxTradeSizeCents     int64
	DefaultDailyLossLimitCents   int64
	DefaultMaxDailyExposureCents int64
	DefaultMinEVThreshold        float64
	DefaultCooldownMinutes       int
	DefaultConsecutiveLossLimit  int
	KellyCap                     float64
	MLEnsembleWeight             float64
	FreshnessCapMinutes          int
	ApprovalWindowMinutes        int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		DatabasePath: getEnv("DATABASE_URL", "./data/trader.db"),
		RedisURL:     getEnv("REDIS_URL", ""),
		Environment:  getEnv("ENVIRONMENT", "development"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		Port:         getEnvAsInt("PORT", 8080),

		EncryptionKey: getEnv("ENCRYPTION_KEY", ""),

		KalshiBaseURL: getEnv("KALSHI_BASE_URL", "https://api.elections.kalshi.com/trade-api/v2"),
		KalshiWSURL:   getEnv("KALSHI_WS_URL", "wss://api.elections.kalshi.com/trade-api/ws/v2"),

		NWSUserAgent:       getEnv("NWS_USER_AGENT", "boz-weather-trader (ops@bozweather.example)"),
		NWSRateLimitPerSec: getEnvAsFloat("NWS_RATE_LIMIT_PER_SECOND", 1.0),
		OpenMeteoRateLimit: getEnvAsFloat("OPEN_METEO_RATE_LIMIT_PER_SECOND", 5.0),

		DefaultMaxTradeSizeCents:     getEnvAsInt64("DEFAULT_MAX_TRADE_SIZE_CENTS", 10000),
		DefaultDailyLossLimitCents:   getEnvAsInt64("DEFAULT_DAILY_LOSS_LIMIT_CENTS", 5000),
		DefaultMaxDailyExposureCents: getEnvAsInt64("DEFAULT_MAX_DAILY_EXPOSURE_CENTS", 50000),
		DefaultMinEVThreshold:        getEnvAsFloat("DEFAULT_MIN_EV_THRESHOLD", 0.05),
		DefaultCooldownMinutes:       getEnvAsInt("DEFAULT_COOLDOWN_MINUTES", 60),
		DefaultConsecutiveLossLimit:  getEnvAsInt("DEFAULT_CONSECUTIVE_LOSS_LIMIT", 3),
		KellyCap:                     getEnvAsFloat("KELLY_CAP", 0.25),
		MLEnsembleWeight:             getEnvAsFloat("ML_ENSEMBLE_WEIGHT", 0.0),
		FreshnessCapMinutes:          getEnvAsInt("FRESHNESS_CAP_MINUTES", 120),
		ApprovalWindowMinutes:        getEnvAsInt("APPROVAL_WINDOW_MINUTES", 30),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if c.Environment != "development" && c.Environment != "production" {
		return fmt.Errorf("ENVIRONMENT must be development or production, got %q", c.Environment)
	}
	if c.KellyCap <= 0 || c.KellyCap > 1 {
		return fmt.Errorf("KELLY_CAP must be in (0, 1], got %v", c.KellyCap)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
