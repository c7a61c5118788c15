// Package config loads the application configuration from the
// environment, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config represents the full application configuration surface.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Retention RetentionConfig
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port string
}

// DatabaseConfig holds settings for the SQLite store.
type DatabaseConfig struct {
	Path string
}

// RetentionConfig holds settings for the retention cleanup scheduler.
// Days of zero or less disables the scheduler.
type RetentionConfig struct {
	Days         int
	CronSchedule string
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// Ignore the returned error here; missing .env files are acceptable when
		// configuration comes from the environment directly.
		_ = godotenv.Load()
	}

	retentionDays, err := getenvInt("RETENTION_DAYS", 0)
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: ServerConfig{
			Port: getenvWithDefault("APP_PORT", "8080"),
		},
		Database: DatabaseConfig{
			Path: getenvWithDefault("TRACE_DB_PATH", "./data/trace.db"),
		},
		Retention: RetentionConfig{
			Days:         retentionDays,
			CronSchedule: getenvWithDefault("CLEANUP_CRON_SCHEDULE", "0 3 * * *"),
		},
	}, nil
}

func getenvWithDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, v, err)
	}
	return n, nil
}
