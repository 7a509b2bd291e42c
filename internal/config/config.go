// Package config handles application configuration and environment loading.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds the configuration for one crosscopy invocation.
type Config struct {
	// S3 fields are optional — nil when not configured. When the key pair is
	// absent, s3:// locators are rejected at parse time.
	S3KeyID    *string
	S3Secret   *string
	S3Region   string // default "us-east-1"
	S3Endpoint string // custom endpoint for S3-compatible services (optional)

	TempDir    string // local staging directory (default: system temp dir)
	MaxStreams int    // concurrently in-flight partition writes (default 4)
	LogLevel   string // log level: debug, info, warn, error (default "warn")
}

// LoadFromEnv reads configuration from the environment.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		S3Region:   envOr("AWS_REGION", "us-east-1"),
		S3Endpoint: os.Getenv("CROSSCOPY_S3_ENDPOINT"),
		TempDir:    envOr("CROSSCOPY_TEMP_DIR", os.TempDir()),
		MaxStreams: 4,
		LogLevel:   envOr("CROSSCOPY_LOG_LEVEL", "warn"),
	}

	keyID := os.Getenv("AWS_ACCESS_KEY_ID")
	secret := os.Getenv("AWS_SECRET_ACCESS_KEY")
	if keyID != "" && secret != "" {
		cfg.S3KeyID = &keyID
		cfg.S3Secret = &secret
	} else if keyID != "" || secret != "" {
		return nil, fmt.Errorf("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set together")
	}

	if v := os.Getenv("CROSSCOPY_MAX_STREAMS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("CROSSCOPY_MAX_STREAMS must be a positive integer, got %q", v)
		}
		cfg.MaxStreams = n
	}

	return cfg, nil
}

// S3Configured reports whether object-storage credentials are available.
func (c *Config) S3Configured() bool {
	return c.S3KeyID != nil && c.S3Secret != nil
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
