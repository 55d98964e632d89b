package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RetryAttempts       int
	NoShowLimit         int
	ReconcileInterval   time.Duration
	NotifyChannelPrefix string

	RateLimitPerMinute    int
	RateLimitBurst        int
	OrgRateLimitPerMinute int
	OrgRateLimitBurst     int
}

func Load() Config {
	_ = godotenv.Load()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	return Config{
		Port:        port,
		DatabaseURL: os.Getenv("DB_DSN"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       readInt("REDIS_DB", 0),

		RetryAttempts:       readInt("RETRY_ATTEMPTS", 3),
		NoShowLimit:         readInt("NO_SHOW_LIMIT", 3),
		ReconcileInterval:   readDurationSeconds("RECONCILE_INTERVAL_SECONDS", 60),
		NotifyChannelPrefix: os.Getenv("NOTIFY_CHANNEL_PREFIX"),

		RateLimitPerMinute:    readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:        readInt("RATE_LIMIT_BURST", 30),
		OrgRateLimitPerMinute: readInt("ORG_RATE_LIMIT_PER_MIN", 600),
		OrgRateLimitBurst:     readInt("ORG_RATE_LIMIT_BURST", 120),
	}
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
