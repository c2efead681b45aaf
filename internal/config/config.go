package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Queue backends.
const (
	QueueBackendSQLite = "sqlite"
	QueueBackendRedis  = "redis"
)

// Permanent failure policies for queued tickets.
const (
	PolicyBlock      = "block"
	PolicyDeadLetter = "dead_letter"
)

// Config aggregates runtime configuration for the intake agent.
type Config struct {
	App     AppConfig
	Remote  RemoteConfig
	Queue   QueueConfig
	Redis   RedisConfig
	Sync    SyncConfig
	Logger  LoggerConfig
	Metrics MetricsConfig
}

// AppConfig controls the local presentation API.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// RemoteConfig describes the ticket and AI classification service.
type RemoteConfig struct {
	BaseURL       string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	AITimeout     time.Duration
	ReadAttempts  int
	ProbeInterval time.Duration
}

// QueueConfig selects the durable local queue backend.
type QueueConfig struct {
	Backend    string
	SQLitePath string
	RedisKey   string
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// SyncConfig tunes the queue synchronizer.
type SyncConfig struct {
	Interval               time.Duration
	PermanentFailurePolicy string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// MetricsConfig toggles the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "ticket-intake-agent"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "127.0.0.1"),
			Port:                  getEnv("APP_PORT", "8787"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Remote: RemoteConfig{
			BaseURL:       strings.TrimRight(getEnv("REMOTE_BASE_URL", "http://127.0.0.1:8000"), "/"),
			ReadTimeout:   getEnvAsDuration("REMOTE_READ_TIMEOUT", 8*time.Second),
			WriteTimeout:  getEnvAsDuration("REMOTE_WRITE_TIMEOUT", 10*time.Second),
			AITimeout:     getEnvAsDuration("REMOTE_AI_TIMEOUT", 4*time.Second),
			ReadAttempts:  getEnvAsInt("REMOTE_READ_ATTEMPTS", 3),
			ProbeInterval: getEnvAsDuration("REMOTE_PROBE_INTERVAL", 10*time.Second),
		},
		Queue: QueueConfig{
			Backend:    strings.ToLower(getEnv("QUEUE_BACKEND", QueueBackendSQLite)),
			SQLitePath: getEnv("QUEUE_SQLITE_PATH", "data/intake-queue.db"),
			RedisKey:   getEnv("QUEUE_REDIS_KEY", "intake:queue"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Sync: SyncConfig{
			Interval:               getEnvAsDuration("SYNC_INTERVAL", 12*time.Second),
			PermanentFailurePolicy: strings.ToLower(getEnv("SYNC_PERMANENT_FAILURE_POLICY", PolicyDeadLetter)),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the agent cannot run with.
func (c *Config) Validate() error {
	switch c.Queue.Backend {
	case QueueBackendSQLite, QueueBackendRedis:
	default:
		return fmt.Errorf("invalid QUEUE_BACKEND %q", c.Queue.Backend)
	}
	switch c.Sync.PermanentFailurePolicy {
	case PolicyBlock, PolicyDeadLetter:
	default:
		return fmt.Errorf("invalid SYNC_PERMANENT_FAILURE_POLICY %q", c.Sync.PermanentFailurePolicy)
	}
	if c.Remote.BaseURL == "" {
		return fmt.Errorf("REMOTE_BASE_URL required")
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("SYNC_INTERVAL must be positive")
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

// getEnvAsDuration accepts Go durations ("750ms") or plain seconds ("12").
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	if parsed, err := time.ParseDuration(val); err == nil && parsed > 0 {
		return parsed
	}
	if secs, err := strconv.ParseFloat(val, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	return fallback
}
