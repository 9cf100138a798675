package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies MARKETSYNC_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	if cfg.Kalshi.PrivateKey == "" && cfg.Kalshi.PrivateKeyPath != "" {
		pem, err := os.ReadFile(cfg.Kalshi.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("config: read kalshi private key: %w", err)
		}
		cfg.Kalshi.PrivateKey = string(pem)
	}

	return &cfg, nil
}

// applyEnvOverrides reads well-known MARKETSYNC_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Kalshi ──
	setBool(&cfg.Kalshi.Enabled, "MARKETSYNC_KALSHI_ENABLED")
	setStr(&cfg.Kalshi.BaseURL, "MARKETSYNC_KALSHI_BASE_URL")
	setStr(&cfg.Kalshi.DemoURL, "MARKETSYNC_KALSHI_DEMO_URL")
	setStr(&cfg.Kalshi.Environment, "MARKETSYNC_KALSHI_ENVIRONMENT")
	setStr(&cfg.Kalshi.ApiKeyID, "MARKETSYNC_KALSHI_API_KEY_ID")
	setStr(&cfg.Kalshi.PrivateKeyPath, "MARKETSYNC_KALSHI_PRIVATE_KEY_PATH")
	setStr(&cfg.Kalshi.PrivateKey, "MARKETSYNC_KALSHI_PRIVATE_KEY")

	// ── Polymarket ──
	setBool(&cfg.Polymarket.Enabled, "MARKETSYNC_POLYMARKET_ENABLED")
	setStr(&cfg.Polymarket.GammaHost, "MARKETSYNC_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.DemoHost, "MARKETSYNC_POLYMARKET_DEMO_HOST")
	setStr(&cfg.Polymarket.Environment, "MARKETSYNC_POLYMARKET_ENVIRONMENT")
	setStr(&cfg.Polymarket.ApiKey, "MARKETSYNC_POLYMARKET_API_KEY")
	setStr(&cfg.Polymarket.ApiSecret, "MARKETSYNC_POLYMARKET_API_SECRET")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "MARKETSYNC_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "MARKETSYNC_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MARKETSYNC_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MARKETSYNC_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "MARKETSYNC_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "MARKETSYNC_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "MARKETSYNC_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "MARKETSYNC_REDIS_KEY_PREFIX")
	setInt(&cfg.Redis.RateLimit, "MARKETSYNC_REDIS_RATE_LIMIT")
	setDuration(&cfg.Redis.LockTTL, "MARKETSYNC_REDIS_LOCK_TTL")
	setBool(&cfg.Redis.PublishEvents, "MARKETSYNC_REDIS_PUBLISH_EVENTS")

	// ── Sync ──
	setInt(&cfg.Sync.PageSize, "MARKETSYNC_SYNC_PAGE_SIZE")
	setInt(&cfg.Sync.MaxPages, "MARKETSYNC_SYNC_MAX_PAGES")
	setStr(&cfg.Sync.Status, "MARKETSYNC_SYNC_STATUS")
	setStringSlice(&cfg.Sync.Tickers, "MARKETSYNC_SYNC_TICKERS")
	setStringSlice(&cfg.Sync.ConditionIDs, "MARKETSYNC_SYNC_CONDITION_IDS")
	setDuration(&cfg.Sync.Interval, "MARKETSYNC_SYNC_INTERVAL")
	setStr(&cfg.Sync.Cron, "MARKETSYNC_SYNC_CRON")
	setInt(&cfg.Sync.MaxConcurrency, "MARKETSYNC_SYNC_MAX_CONCURRENCY")
	setDuration(&cfg.Sync.HTTPTimeout, "MARKETSYNC_SYNC_HTTP_TIMEOUT")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "MARKETSYNC_SERVER_ENABLED")
	setStr(&cfg.Server.Addr, "MARKETSYNC_SERVER_ADDR")
	setStr(&cfg.Server.APIKey, "MARKETSYNC_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "MARKETSYNC_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "MARKETSYNC_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "MARKETSYNC_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "MARKETSYNC_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "MARKETSYNC_MODE")
	setStr(&cfg.LogLevel, "MARKETSYNC_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
