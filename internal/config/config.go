// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ListenAddr     string
	DBPath         string
	PreviewLength  int
	DecryptTimeout time.Duration
	DecryptURL     string
	DecryptToken   string
	DecryptRate    float64
	DeviceLogDepth int
	LogLevel       slog.Level
}

// Persistent reports whether captures and script loads are journaled to
// SQLite. An empty OPCONSOLE_DB_PATH keeps the session in memory only.
func (c *Config) Persistent() bool {
	return c.DBPath != ""
}

// UsesKeyService reports whether decryption is delegated to a remote key
// service rather than done locally with AES-GCM.
func (c *Config) UsesKeyService() bool {
	return c.DecryptURL != ""
}

// Load reads configuration from environment variables and returns a validated Config.
// All variables are optional: OPCONSOLE_LISTEN_ADDR (127.0.0.1:8080),
// OPCONSOLE_DB_PATH (opconsole.db), OPCONSOLE_PREVIEW_LENGTH (16),
// OPCONSOLE_DECRYPT_TIMEOUT (30s), OPCONSOLE_DECRYPT_URL (unset: local AES-GCM),
// OPCONSOLE_DECRYPT_TOKEN, OPCONSOLE_DECRYPT_RATE (0: no cap), OPCONSOLE_DEVICE_LOG_DEPTH (100), OPCONSOLE_LOG_LEVEL (info).
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:     "127.0.0.1:8080",
		DBPath:         "opconsole.db",
		PreviewLength:  16,
		DecryptTimeout: 30 * time.Second,
		DeviceLogDepth: 100,
		LogLevel:       slog.LevelInfo,
	}

	if v, ok := os.LookupEnv("OPCONSOLE_LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}

	if v, ok := os.LookupEnv("OPCONSOLE_DB_PATH"); ok {
		cfg.DBPath = v
	}

	if v, ok := os.LookupEnv("OPCONSOLE_PREVIEW_LENGTH"); ok {
		n, err := parsePositiveInt("OPCONSOLE_PREVIEW_LENGTH", v)
		if err != nil {
			return nil, err
		}
		cfg.PreviewLength = n
	}

	if v, ok := os.LookupEnv("OPCONSOLE_DECRYPT_TIMEOUT"); ok {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("OPCONSOLE_DECRYPT_TIMEOUT has invalid duration %q: %w", v, err)
		}
		if parsed < 0 {
			return nil, fmt.Errorf("OPCONSOLE_DECRYPT_TIMEOUT must not be negative, got %s", parsed)
		}
		cfg.DecryptTimeout = parsed
	}

	if v, ok := os.LookupEnv("OPCONSOLE_DECRYPT_URL"); ok && v != "" {
		u, err := url.Parse(v)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("OPCONSOLE_DECRYPT_URL must be an absolute http(s) URL, got %q", v)
		}
		cfg.DecryptURL = v
	}

	cfg.DecryptToken = os.Getenv("OPCONSOLE_DECRYPT_TOKEN")

	if v, ok := os.LookupEnv("OPCONSOLE_DECRYPT_RATE"); ok && v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("OPCONSOLE_DECRYPT_RATE has invalid number %q: %w", v, err)
		}
		if r < 0 || math.IsNaN(r) || math.IsInf(r, 0) {
			return nil, fmt.Errorf("OPCONSOLE_DECRYPT_RATE must be a finite non-negative rate, got %q", v)
		}
		cfg.DecryptRate = r
	}

	if v, ok := os.LookupEnv("OPCONSOLE_DEVICE_LOG_DEPTH"); ok {
		n, err := parsePositiveInt("OPCONSOLE_DEVICE_LOG_DEPTH", v)
		if err != nil {
			return nil, err
		}
		cfg.DeviceLogDepth = n
	}

	if v, ok := os.LookupEnv("OPCONSOLE_LOG_LEVEL"); ok && v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("OPCONSOLE_LOG_LEVEL has invalid level %q: %w", v, err)
		}
	}

	return cfg, nil
}

func parsePositiveInt(key, v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid integer %q: %w", key, v, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", key, n)
	}
	return n, nil
}
