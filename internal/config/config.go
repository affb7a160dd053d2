package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseURL  string
	RedisURL     string
	KafkaBrokers string
	NatsURL      string

	GatewayBaseURL    string
	GatewayMerchantID string
	GatewaySaltKey    string
	GatewaySaltIndex  int

	// Gateway calls are spaced at least this far apart, service-wide.
	GatewayRateInterval time.Duration

	VerifyMaxAttempts int
	VerifyBaseDelay   time.Duration

	MaxGapsToCheck   int
	BulkSyncCap      int
	DailyCheckBudget int
	DailyScanDays    int

	JaegerEndpoint string
	Port           string
}

func Load() *Config {
	return &Config{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		RedisURL:     getEnv("REDIS_URL", "localhost:6379"),
		KafkaBrokers: os.Getenv("KAFKA_BROKERS"),
		NatsURL:      os.Getenv("NATS_URL"),

		GatewayBaseURL:    getEnv("GATEWAY_BASE_URL", "https://api.phonepe.com/apis/hermes"),
		GatewayMerchantID: os.Getenv("GATEWAY_MERCHANT_ID"),
		GatewaySaltKey:    os.Getenv("GATEWAY_SALT_KEY"),
		GatewaySaltIndex:  getEnvInt("GATEWAY_SALT_INDEX", 1),

		GatewayRateInterval: getEnvDuration("GATEWAY_RATE_INTERVAL", time.Second),

		VerifyMaxAttempts: getEnvInt("VERIFY_MAX_ATTEMPTS", 3),
		VerifyBaseDelay:   getEnvDuration("VERIFY_BASE_DELAY", 2*time.Second),

		MaxGapsToCheck:   getEnvInt("MAX_GAPS_TO_CHECK", 50),
		BulkSyncCap:      getEnvInt("BULK_SYNC_CAP", 10),
		DailyCheckBudget: getEnvInt("DAILY_CHECK_BUDGET", 10),
		DailyScanDays:    getEnvInt("DAILY_SCAN_DAYS", 2),

		JaegerEndpoint: os.Getenv("JAEGER_ENDPOINT"),
		Port:           getEnv("PORT", "8085"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
