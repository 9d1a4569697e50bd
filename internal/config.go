package internal

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds process-wide application configuration. Credentials are
// optional; their absence restricts strategies to anonymous-capable paths.
type Config struct {
	AccountUsername string
	AccountPassword string
	StorageRoot     string
	DatabaseDSN     string

	ProxyURL       string
	YtdlpPath      string
	SignaturesPath string

	PageLoadTimeout time.Duration
	RequestTimeout  time.Duration
	DownloadTimeout time.Duration
	RateLimit       int64 // bytes per second, 0 = unlimited

	// Logging configuration
	LogLevel    string
	EnableDebug bool
	QuietMode   bool
	LogFile     string
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		StorageRoot:     "./downloads",
		YtdlpPath:       "yt-dlp",
		PageLoadTimeout: 60 * time.Second,
		RequestTimeout:  15 * time.Second,
		DownloadTimeout: 30 * time.Second,

		LogLevel:    "info",
		EnableDebug: false,
		QuietMode:   false,
		LogFile:     "", // Empty means stderr
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() {
	if v := os.Getenv("INSTAFETCH_USERNAME"); v != "" {
		c.AccountUsername = v
	}
	if v := os.Getenv("INSTAFETCH_PASSWORD"); v != "" {
		c.AccountPassword = v
	}
	if v := os.Getenv("INSTAFETCH_STORAGE_ROOT"); v != "" {
		c.StorageRoot = v
	}
	if v := os.Getenv("INSTAFETCH_DATABASE_DSN"); v != "" {
		c.DatabaseDSN = v
	}
	if v := os.Getenv("INSTAFETCH_PROXY"); v != "" {
		c.ProxyURL = v
	}
	if v := os.Getenv("INSTAFETCH_YTDLP"); v != "" {
		c.YtdlpPath = v
	}
	if v := os.Getenv("INSTAFETCH_SIGNATURES"); v != "" {
		c.SignaturesPath = v
	}

	if v := os.Getenv("INSTAFETCH_TIMEOUT"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			c.RequestTimeout = time.Duration(secs) * time.Second
		}
	}

	if v := os.Getenv("INSTAFETCH_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("INSTAFETCH_DEBUG"); v != "" {
		c.EnableDebug = v == "true" || v == "1"
	}
	if v := os.Getenv("INSTAFETCH_QUIET"); v != "" {
		c.QuietMode = v == "true" || v == "1"
	}
	if v := os.Getenv("INSTAFETCH_LOG_FILE"); v != "" {
		c.LogFile = v
	}
}

// HasCredentials reports whether authenticated strategies may attempt a login.
func (c *Config) HasCredentials() bool {
	return c.AccountUsername != "" && c.AccountPassword != ""
}

// ValidateConfig validates the configuration values
func (c *Config) ValidateConfig() error {
	if c.StorageRoot == "" {
		return fmt.Errorf("storage root cannot be empty")
	}

	if c.AccountUsername == "" && c.AccountPassword != "" {
		return fmt.Errorf("password configured without a username")
	}

	if c.PageLoadTimeout <= 0 || c.RequestTimeout <= 0 || c.DownloadTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}

	if c.RateLimit < 0 {
		return fmt.Errorf("invalid rate limit: %d (must be >= 0)", c.RateLimit)
	}

	return nil
}

// GetEnvWithDefault returns environment variable value or default
func GetEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
