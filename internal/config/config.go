// Package config provides application configuration through environment
// variables.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/allisson/go-env"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// LogLevel is the logging level ("debug", "info", "warn", "error").
	LogLevel string

	// QueueBackend selects the event queue implementation ("memory" or
	// "redis").
	QueueBackend string
	// QueueCapacity bounds the queue; producers block at the bound.
	QueueCapacity int
	// QueueKey is the Redis list key when the redis backend is used.
	QueueKey string

	// StateBackend selects the state store implementation ("memory" or
	// "redis").
	StateBackend string
	// StatePrefix is the Redis key prefix for conversation records.
	StatePrefix string
	// StateTTL expires abandoned conversations server-side (0 = never).
	StateTTL time.Duration

	// RedisAddr is the host:port of the Redis server.
	RedisAddr string
	// RedisPassword is the Redis password ("" = none).
	RedisPassword string
	// RedisDB is the Redis database number.
	RedisDB int

	// PollTimeout bounds each long-poll dequeue.
	PollTimeout time.Duration
	// BreakerThreshold is the consecutive storage errors that open the
	// circuit.
	BreakerThreshold int
	// BreakerCoolDown is how long the circuit stays open.
	BreakerCoolDown time.Duration

	// MaxConcurrent caps simultaneously processing events.
	MaxConcurrent int
	// RetryCount is the retries after the initial processing attempt.
	RetryCount int
	// BackoffBase is the delay before the first retry; doubles each time.
	BackoffBase time.Duration

	// OpsHost and OpsPort locate the health/metrics HTTP server.
	OpsHost string
	OpsPort int
	// MetricsNamespace prefixes all metric names.
	MetricsNamespace string

	// TelegramToken and TelegramAdminChatID configure the operator
	// notifier. Empty token disables alerting.
	TelegramToken       string
	TelegramAdminChatID string
}

// Load loads configuration from environment variables and .env file.
func Load() *Config {
	// Try to load .env file recursively
	loadDotEnv()

	return &Config{
		LogLevel: env.GetString("LOG_LEVEL", "info"),

		QueueBackend:  env.GetString("QUEUE_BACKEND", "memory"),
		QueueCapacity: env.GetInt("QUEUE_CAPACITY", 1024),
		QueueKey:      env.GetString("QUEUE_KEY", "botcore:events"),

		StateBackend: env.GetString("STATE_BACKEND", "memory"),
		StatePrefix:  env.GetString("STATE_PREFIX", "botcore:conv:"),
		StateTTL:     env.GetDuration("STATE_TTL_SECONDS", 0, time.Second),

		RedisAddr:     env.GetString("REDIS_ADDR", "localhost:6379"),
		RedisPassword: env.GetString("REDIS_PASSWORD", ""),
		RedisDB:       env.GetInt("REDIS_DB", 0),

		PollTimeout:      env.GetDuration("POLL_TIMEOUT_SECONDS", 5, time.Second),
		BreakerThreshold: env.GetInt("BREAKER_THRESHOLD", 3),
		BreakerCoolDown:  env.GetDuration("BREAKER_COOLDOWN_SECONDS", 60, time.Second),

		MaxConcurrent: env.GetInt("MAX_CONCURRENT", 10),
		RetryCount:    env.GetInt("RETRY_COUNT", 3),
		BackoffBase:   env.GetDuration("BACKOFF_BASE_SECONDS", 2, time.Second),

		OpsHost:          env.GetString("OPS_HOST", "0.0.0.0"),
		OpsPort:          env.GetInt("OPS_PORT", 8081),
		MetricsNamespace: env.GetString("METRICS_NAMESPACE", "botcore"),

		TelegramToken:       env.GetString("TELEGRAM_BOT_TOKEN", ""),
		TelegramAdminChatID: env.GetString("TELEGRAM_ADMIN_CHAT_ID", ""),
	}
}

// loadDotEnv walks up from the working directory looking for a .env file,
// so commands work from subdirectories during development.
func loadDotEnv() {
	dir, err := os.Getwd()
	if err != nil {
		return
	}

	for {
		candidate := filepath.Join(dir, ".env")
		if _, err := os.Stat(candidate); err == nil {
			_ = godotenv.Load(candidate)
			return
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}
