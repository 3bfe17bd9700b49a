package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	AppEnv   string
	Debug    bool
	Version  string
	BotToken string

	// OperatorID is the single Telegram user allowed to drive the bot.
	OperatorID int64

	SentryDSN       string
	MongoDBURI      string
	MongoDBDatabase string

	// DefaultLanguage is the locale used for operator-facing messages.
	DefaultLanguage string

	// Timezone anchors the half-hour publish slot grid.
	Timezone *time.Location

	// SessionTTL bounds how long an unfinished wizard stays resumable.
	SessionTTL time.Duration

	// RetentionDays controls how long posted/failed posts are kept before
	// the daily cleanup removes them.
	RetentionDays int

	// PublishRetryEnabled switches the worker from mark-failed-on-first-error
	// to exponential-backoff retries.
	PublishRetryEnabled  bool
	PublishRetryAttempts int
	PublishRetryBase     time.Duration
}

// LoadConfig loads configuration from environment variables. It attempts to
// load a .env file if present but prioritizes actual environment variables
// set in the system (e.g., by Docker).
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	debug, _ := strconv.ParseBool(getEnv("DEBUG", "false"))

	operatorIDStr := getEnv("OPERATOR_ID", "")
	operatorID, err := strconv.ParseInt(operatorIDStr, 10, 64)
	if err != nil && operatorIDStr != "" {
		return nil, fmt.Errorf("invalid OPERATOR_ID: %w", err)
	}

	tzName := getEnv("TIMEZONE", "UTC")
	location, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", tzName, err)
	}

	retentionDays, err := strconv.Atoi(getEnv("RETENTION_DAYS", "30"))
	if err != nil || retentionDays < 1 {
		return nil, fmt.Errorf("invalid RETENTION_DAYS: %q", getEnv("RETENTION_DAYS", "30"))
	}

	retryEnabled, _ := strconv.ParseBool(getEnv("PUBLISH_RETRY_ENABLED", "false"))
	retryAttempts, err := strconv.Atoi(getEnv("PUBLISH_RETRY_ATTEMPTS", "3"))
	if err != nil || retryAttempts < 1 {
		return nil, fmt.Errorf("invalid PUBLISH_RETRY_ATTEMPTS: %q", getEnv("PUBLISH_RETRY_ATTEMPTS", "3"))
	}
	retryBase, err := time.ParseDuration(getEnv("PUBLISH_RETRY_BASE_DELAY", "2s"))
	if err != nil {
		return nil, fmt.Errorf("invalid PUBLISH_RETRY_BASE_DELAY: %w", err)
	}

	cfg := &Config{
		AppEnv:               getEnv("APP_ENV", "development"),
		Debug:                debug,
		Version:              getEnv("VERSION", "dev"),
		BotToken:             getEnv("TELEGRAM_BOT_TOKEN", ""),
		OperatorID:           operatorID,
		SentryDSN:            getEnv("SENTRY_DSN", ""),
		MongoDBURI:           getEnv("MONGODB_URI", ""),
		MongoDBDatabase:      getEnv("MONGODB_DATABASE", ""),
		DefaultLanguage:      getEnv("DEFAULT_LANGUAGE", "en"),
		Timezone:             location,
		SessionTTL:           24 * time.Hour,
		RetentionDays:        retentionDays,
		PublishRetryEnabled:  retryEnabled,
		PublishRetryAttempts: retryAttempts,
		PublishRetryBase:     retryBase,
	}

	if cfg.BotToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if cfg.OperatorID == 0 {
		return nil, fmt.Errorf("OPERATOR_ID is required")
	}
	if cfg.MongoDBURI == "" {
		return nil, fmt.Errorf("MONGODB_URI is required")
	}
	if cfg.MongoDBDatabase == "" {
		return nil, fmt.Errorf("MONGODB_DATABASE is required")
	}
	if cfg.SentryDSN == "" {
		log.Println("Warning: SENTRY_DSN is not set. Error tracking disabled.")
	}

	return cfg, nil
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
