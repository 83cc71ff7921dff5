package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: 環境変数の読み取りはこのパッケージだけ
type Config struct {
	// Server (artifact API)
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// External APIs
	JQuants JQuantsConfig
	Kabutan KabutanConfig

	// Notification
	Notify NotifyConfig

	// Pipeline
	OutputDir    string // artifact output directory
	StrategyPath string // strategy YAML path

	// Scheduler
	Scheduler SchedulerConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	URL      string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// JQuantsConfig holds J-Quants API configuration
type JQuantsConfig struct {
	RefreshToken string
	BaseURL      string
	RatePerSec   int // request pacing toward the vendor
}

// KabutanConfig holds the earnings-calendar scraper configuration
type KabutanConfig struct {
	BaseURL string
	Enabled bool
}

// NotifyConfig holds webhook notification configuration
type NotifyConfig struct {
	WebhookURL string
	Timeout    time.Duration
}

// SchedulerConfig holds the daily-run scheduler configuration
type SchedulerConfig struct {
	Enabled  bool
	CronSpec string // with seconds field, JST
}

// Load reads configuration from environment variables
// ⭐ SSOT: os.Getenv() を呼ぶのはこの関数だけ
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port: getEnv("PORT", "8091"),
		Env:  getEnv("ENV", "development"),

		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			Name:            getEnv("DB_NAME", "kabuto"),
			User:            getEnv("DB_USER", "kabuto"),
			Password:        getEnv("DB_PASSWORD", ""),
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		JQuants: JQuantsConfig{
			RefreshToken: getEnv("JQUANTS_REFRESH_TOKEN", ""),
			BaseURL:      getEnv("JQUANTS_BASE_URL", "https://api.jquants.com/v1"),
			RatePerSec:   getEnvAsInt("JQUANTS_RATE_PER_SEC", 5),
		},

		Kabutan: KabutanConfig{
			BaseURL: getEnv("KABUTAN_BASE_URL", "https://kabutan.jp"),
			Enabled: getEnvAsBool("KABUTAN_ENABLED", false),
		},

		Notify: NotifyConfig{
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
			Timeout:    getEnvAsDuration("NOTIFY_TIMEOUT", "10s"),
		},

		OutputDir:    getEnv("OUTPUT_DIR", "out"),
		StrategyPath: getEnv("STRATEGY_CONFIG", "config/strategy.yaml"),

		Scheduler: SchedulerConfig{
			Enabled: getEnvAsBool("SCHEDULER_ENABLED", false),
			// 18:30 JST on weekdays, after the daily quotes settle
			CronSpec: getEnv("SCHEDULER_CRON", "0 30 18 * * 1-5"),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are coherent.
// DATABASE_URL is deliberately not required here: demo runs and file-only
// commands work without a store, and pkg/database fails fast when it is
// actually needed.
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Notify.WebhookURL != "" &&
		!strings.HasPrefix(c.Notify.WebhookURL, "http://") &&
		!strings.HasPrefix(c.Notify.WebhookURL, "https://") {
		return fmt.Errorf("NOTIFY_WEBHOOK_URL must be an http(s) URL")
	}

	if c.JQuants.RatePerSec <= 0 {
		return fmt.Errorf("JQUANTS_RATE_PER_SEC must be positive")
	}

	if c.OutputDir == "" {
		return fmt.Errorf("OUTPUT_DIR must not be empty")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env", // Current directory
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
			filepath.Join(exeDir, "..", "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		// Fallback to default
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
