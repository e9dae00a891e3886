package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ncmcp/ncclient/internal/httpclient"
	"github.com/ncmcp/ncclient/nextcloud"
)

type Config struct {
	ListenAddr string
	LogLevel   slog.Level

	Nextcloud struct {
		Host     string
		Username string
		Password string
	}

	Retry             httpclient.RetryPolicy
	RequestsPerSecond float64
	Burst             int
}

func Load() (*Config, error) {
	cfg := &Config{}

	cfg.ListenAddr = getenvDefault("APP_LISTEN_ADDR", ":8080")
	level, err := parseLevel(getenvDefault("APP_LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level

	cfg.Nextcloud.Host = strings.TrimSuffix(os.Getenv("NEXTCLOUD_HOST"), "/")
	cfg.Nextcloud.Username = os.Getenv("NEXTCLOUD_USERNAME")
	cfg.Nextcloud.Password = os.Getenv("NEXTCLOUD_PASSWORD")

	cfg.Retry = httpclient.DefaultRetryPolicy
	if cfg.Retry.MaxAttempts, err = getenvInt("NEXTCLOUD_MAX_RETRIES", cfg.Retry.MaxAttempts); err != nil {
		return nil, err
	}
	if cfg.Retry.BaseDelay, err = getenvDuration("NEXTCLOUD_RETRY_BASE", cfg.Retry.BaseDelay); err != nil {
		return nil, err
	}
	if cfg.RequestsPerSecond, err = getenvFloat("NEXTCLOUD_REQUESTS_PER_SECOND", 0); err != nil {
		return nil, err
	}
	if cfg.Burst, err = getenvInt("NEXTCLOUD_BURST", 1); err != nil {
		return nil, err
	}

	var missing []string
	if cfg.Nextcloud.Host == "" {
		missing = append(missing, "NEXTCLOUD_HOST")
	}
	if cfg.Nextcloud.Username == "" {
		missing = append(missing, "NEXTCLOUD_USERNAME")
	}
	if cfg.Nextcloud.Password == "" {
		missing = append(missing, "NEXTCLOUD_PASSWORD")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if cfg.Retry.MaxAttempts < 1 {
		return nil, errors.New("NEXTCLOUD_MAX_RETRIES must be at least 1")
	}

	return cfg, nil
}

// Client returns the facade configuration for these settings.
func (c *Config) Client(logger *slog.Logger) nextcloud.Config {
	return nextcloud.Config{
		BaseURL:           c.Nextcloud.Host,
		Username:          c.Nextcloud.Username,
		Password:          c.Nextcloud.Password,
		Logger:            logger,
		Retry:             c.Retry,
		RequestsPerSecond: c.RequestsPerSecond,
		Burst:             c.Burst,
	}
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func getenvFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("invalid %s %q", key, v)
	}
	return f, nil
}

// getenvDuration accepts a Go duration ("750ms") or plain seconds ("2").
func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func parseLevel(v string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		return 0, fmt.Errorf("invalid APP_LOG_LEVEL %q: %w", v, err)
	}
	return level, nil
}
