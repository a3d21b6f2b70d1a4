package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DatabaseConfig holds the document-store database configuration
type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	DBName       string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

// DSN renders the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// Config holds the consistency-layer configuration
type Config struct {
	Database DatabaseConfig

	RedisAddr string
	NATSURL   string

	RetryAttempts  int
	RetryBaseDelay time.Duration

	ViewDedupWindow    time.Duration
	ViewRetentionDays  int
	NotificationWindow time.Duration

	RepairCron    string
	RepairEnabled bool
	MetricsAddr   string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "postgres"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", "postgres"),
			DBName:       getEnv("DB_NAME", "consistency_db"),
			SSLMode:      getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			MaxLifetime:  getEnvAsDuration("DB_MAX_LIFETIME", 5*time.Minute),
		},
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		NATSURL:            getEnv("NATS_URL", "nats://nats:4222"),
		RetryAttempts:      getEnvAsInt("CAS_RETRY_ATTEMPTS", 5),
		RetryBaseDelay:     getEnvAsDuration("CAS_RETRY_BASE_DELAY", 10*time.Millisecond),
		ViewDedupWindow:    getEnvAsDuration("VIEW_DEDUP_WINDOW", 24*time.Hour),
		ViewRetentionDays:  getEnvAsInt("VIEW_RETENTION_DAYS", 30),
		NotificationWindow: getEnvAsDuration("NOTIFICATION_DEDUP_WINDOW", 5*time.Minute),
		RepairCron:         getEnv("REPAIR_CRON", "0 3 * * *"),
		RepairEnabled:      getEnvAsBool("REPAIR_ENABLED", false),
		MetricsAddr:        getEnv("METRICS_ADDR", ":9109"),
	}

	var err error
	cfg.Database.Port, err = strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid database port: %w", err)
	}

	if cfg.Database.DBName == "" {
		return nil, fmt.Errorf("database name is required (set DB_NAME)")
	}

	return cfg, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt gets an environment variable as int or returns a default value
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

// getEnvAsDuration gets an environment variable as duration or returns a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as bool or returns a default value
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
