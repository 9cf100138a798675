// Package config defines the top-level configuration for marketsync and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by MARKETSYNC_* environment variables.
type Config struct {
	Kalshi     KalshiConfig     `toml:"kalshi"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Redis      RedisConfig      `toml:"redis"`
	Sync       SyncConfig       `toml:"sync"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// KalshiConfig holds Kalshi API endpoints and credentials. PrivateKey is read
// from PrivateKeyPath by Load unless it was set directly.
type KalshiConfig struct {
	Enabled        bool   `toml:"enabled"`
	BaseURL        string `toml:"base_url"`
	DemoURL        string `toml:"demo_url"`
	Environment    string `toml:"environment"`
	ApiKeyID       string `toml:"api_key_id"`
	PrivateKeyPath string `toml:"private_key_path"`
	PrivateKey     string `toml:"private_key"`
}

// PolymarketConfig holds Polymarket Gamma API endpoints.
type PolymarketConfig struct {
	Enabled     bool   `toml:"enabled"`
	GammaHost   string `toml:"gamma_host"`
	DemoHost    string `toml:"demo_host"`
	Environment string `toml:"environment"`
	ApiKey      string `toml:"api_key"`
	ApiSecret   string `toml:"api_secret"`
}

// RedisConfig holds Redis connection parameters. Redis is optional; when
// disabled the synchronizer runs without shared rate limits, locks or events.
type RedisConfig struct {
	Enabled       bool     `toml:"enabled"`
	Addr          string   `toml:"addr"`
	Password      string   `toml:"password"`
	DB            int      `toml:"db"`
	PoolSize      int      `toml:"pool_size"`
	MaxRetries    int      `toml:"max_retries"`
	TLSEnabled    bool     `toml:"tls_enabled"`
	KeyPrefix     string   `toml:"key_prefix"`
	RateLimit     int      `toml:"rate_limit"`
	LockTTL       duration `toml:"lock_ttl"`
	PublishEvents bool     `toml:"publish_events"`
}

// SyncConfig controls discovery and refresh runs.
type SyncConfig struct {
	PageSize       int      `toml:"page_size"`
	MaxPages       int      `toml:"max_pages"`
	Status         string   `toml:"status"`
	Tickers        []string `toml:"tickers"`
	ConditionIDs   []string `toml:"condition_ids"`
	Interval       duration `toml:"interval"`
	Cron           string   `toml:"cron"`
	MaxConcurrency int      `toml:"max_concurrency"`
	HTTPTimeout    duration `toml:"http_timeout"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds the status server parameters. The server exposes health,
// tracked markets, a manual sync trigger and Prometheus metrics. An empty
// APIKey disables authentication.
type ServerConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
	APIKey  string `toml:"api_key"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Kalshi: KalshiConfig{
			Enabled:     true,
			BaseURL:     "https://api.elections.kalshi.com/trade-api/v2",
			DemoURL:     "https://demo-api.kalshi.co/trade-api/v2",
			Environment: "prod",
		},
		Polymarket: PolymarketConfig{
			Enabled:     true,
			GammaHost:   "https://gamma-api.polymarket.com",
			DemoHost:    "https://gamma-api.polymarket.com",
			Environment: "prod",
		},
		Redis: RedisConfig{
			Enabled:       false,
			Addr:          "localhost:6379",
			DB:            0,
			PoolSize:      20,
			MaxRetries:    3,
			TLSEnabled:    false,
			KeyPrefix:     "marketsync",
			RateLimit:     10,
			LockTTL:       duration{30 * time.Second},
			PublishEvents: true,
		},
		Sync: SyncConfig{
			PageSize:       100,
			MaxPages:       10,
			Status:         "open",
			Interval:       duration{time.Minute},
			MaxConcurrency: 4,
			HTTPTimeout:    duration{30 * time.Second},
		},
		Server: ServerConfig{
			Enabled: false,
			Addr:    ":9090",
		},
		Notify: NotifyConfig{
			Events: []string{"sync_failed"},
		},
		Mode:     "once",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"once":  true,
	"watch": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validEnvironments enumerates the accepted venue environments.
var validEnvironments = map[string]bool{
	"prod": true,
	"demo": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: once, watch)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if !c.Kalshi.Enabled && !c.Polymarket.Enabled {
		errs = append(errs, "at least one of kalshi or polymarket must be enabled")
	}

	// Kalshi
	if c.Kalshi.Enabled {
		if c.Kalshi.BaseURL == "" {
			errs = append(errs, "kalshi: base_url must not be empty")
		}
		if c.Kalshi.Environment == "demo" && c.Kalshi.DemoURL == "" {
			errs = append(errs, "kalshi: demo_url must not be empty for environment demo")
		}
		if !validEnvironments[c.Kalshi.Environment] {
			errs = append(errs, fmt.Sprintf("kalshi: unknown environment %q (valid: prod, demo)", c.Kalshi.Environment))
		}
		if c.Kalshi.PrivateKeyPath != "" && c.Kalshi.ApiKeyID == "" {
			errs = append(errs, "kalshi: api_key_id is required when private_key_path is set")
		}
	}

	// Polymarket
	if c.Polymarket.Enabled {
		if c.Polymarket.GammaHost == "" {
			errs = append(errs, "polymarket: gamma_host must not be empty")
		}
		if !validEnvironments[c.Polymarket.Environment] {
			errs = append(errs, fmt.Sprintf("polymarket: unknown environment %q (valid: prod, demo)", c.Polymarket.Environment))
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.RateLimit < 0 {
			errs = append(errs, "redis: rate_limit must be >= 0")
		}
	}

	// Sync
	if c.Sync.PageSize < 0 {
		errs = append(errs, "sync: page_size must be >= 0")
	}
	if c.Sync.MaxPages < 0 {
		errs = append(errs, "sync: max_pages must be >= 0")
	}
	if c.Sync.MaxConcurrency < 0 {
		errs = append(errs, "sync: max_concurrency must be >= 0")
	}
	if c.Sync.HTTPTimeout.Duration <= 0 {
		errs = append(errs, "sync: http_timeout must be > 0")
	}
	if strings.ToLower(c.Mode) == "watch" {
		if c.Sync.Cron != "" {
			if _, err := cron.ParseStandard(c.Sync.Cron); err != nil {
				errs = append(errs, fmt.Sprintf("sync: invalid cron %q: %v", c.Sync.Cron, err))
			}
		} else if c.Sync.Interval.Duration <= 0 {
			errs = append(errs, "sync: interval must be > 0 in watch mode when cron is empty")
		}
	}

	// Server
	if c.Server.Enabled && c.Server.Addr == "" {
		errs = append(errs, "server: addr must not be empty when enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
