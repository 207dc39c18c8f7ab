package main

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	BaseURL   string        // Auth server base URL (default: http://localhost:8080)
	StoreFile string        // SQLite session file (default: <user config dir>/authctl/session.db)
	Timeout   time.Duration // Per-request timeout (default: 10s)
	Env       string        // Environment (dev, staging, prod) (default: prod)
	LogLevel  string        // Log level (debug, info, warn, error) (default: warn)
	LogFormat string        // Log format (json, text) (default: text)
}

// LoadConfig reads defaults from the environment; flags override them.
func LoadConfig() Config {
	return Config{
		BaseURL:   getEnvOrDefault("AUTHCTL_BASE_URL", "http://localhost:8080"),
		StoreFile: getEnvOrDefault("AUTHCTL_STORE_FILE", defaultStoreFile()),
		Timeout:   getEnvDurationOrDefault("AUTHCTL_TIMEOUT", 10*time.Second),
		Env:       getEnvOrDefault("ENV", "prod"),
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "warn"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "text"),
	}
}

func defaultStoreFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "authctl-session.db"
	}
	return filepath.Join(dir, "authctl", "session.db")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
