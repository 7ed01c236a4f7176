// Package app wires the catalog components for the Lambda entrypoints.
package app

import (
	"errors"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrMissingSecret is returned when no cursor secret is configured.
var ErrMissingSecret = errors.New("spool: CURSOR_SECRET is required")

// Config is the process configuration read from the environment.
type Config struct {
	TableName     string
	DatatypeIndex string
	CursorSecret  string
	CursorTTL     time.Duration
	QueueURL      string
	EventBusName  string
	EventSource   string
	PageLimit     int
	Concurrency   int
	MaxAttempts   int
	LogLevel      slog.Level
}

// LoadConfig reads the configuration from environment variables.
func LoadConfig() (Config, error) {
	cfg := Config{
		TableName:     getEnv("TABLE_NAME", "spool_catalog"),
		DatatypeIndex: getEnv("DATATYPE_INDEX", "datatype-index"),
		CursorSecret:  os.Getenv("CURSOR_SECRET"),
		CursorTTL:     getEnvDuration("CURSOR_TTL", 24*time.Hour),
		QueueURL:      os.Getenv("RETRY_QUEUE_URL"),
		EventBusName:  getEnv("EVENT_BUS_NAME", "default"),
		EventSource:   getEnv("EVENT_SOURCE", "spool.catalog"),
		PageLimit:     getEnvInt("PAGE_LIMIT", 50),
		Concurrency:   getEnvInt("CASCADE_CONCURRENCY", 10),
		MaxAttempts:   getEnvInt("RETRY_MAX_ATTEMPTS", 5),
		LogLevel:      parseLevel(os.Getenv("LOG_LEVEL")),
	}
	if cfg.CursorSecret == "" {
		return cfg, ErrMissingSecret
	}
	return cfg, nil
}

// NewLogger returns a JSON logger writing to stdout at the configured level.
func NewLogger(cfg Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration gets a duration environment variable with a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
