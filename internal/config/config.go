// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all client configuration.
type Config struct {
	// Remote API
	APIBaseURL  string
	HTTPTimeout time.Duration

	// Logging
	LogLevel  string
	LogFormat string

	// Local state (credential + preferences file)
	StatePath string

	// Listing
	ListPageSize int

	// Mutations. UploadSettleDelay is the pause between a successful
	// upload and the follow-up listing resync; the backend is eventually
	// consistent and a fresh write may not be visible immediately. The
	// value is empirical and tunable, not a consistency guarantee.
	UploadSettleDelay time.Duration

	// Metrics endpoint, empty disables it.
	MetricsAddr string
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		APIBaseURL:        envOr("CLOUDPILOT_API_URL", "http://localhost:8091"),
		HTTPTimeout:       envDuration("CLOUDPILOT_HTTP_TIMEOUT", 30*time.Second),
		LogLevel:          envOr("CLOUDPILOT_LOG_LEVEL", "info"),
		LogFormat:         envOr("CLOUDPILOT_LOG_FORMAT", "console"),
		StatePath:         envOr("CLOUDPILOT_STATE_FILE", defaultStatePath()),
		ListPageSize:      envInt("CLOUDPILOT_LIST_PAGE_SIZE", 20),
		UploadSettleDelay: envDuration("CLOUDPILOT_UPLOAD_SETTLE_DELAY", 1500*time.Millisecond),
		MetricsAddr:       envOr("CLOUDPILOT_METRICS_ADDR", ""),
	}

	if cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("CLOUDPILOT_API_URL is required")
	}
	if cfg.ListPageSize <= 0 {
		cfg.ListPageSize = 20
	}

	return cfg, nil
}

func defaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "state.json"
	}
	return filepath.Join(home, ".config", "cloudpilot", "state.json")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
