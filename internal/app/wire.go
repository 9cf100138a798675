package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/marketsync/internal/cache/redis"
	"github.com/alanyoungcy/marketsync/internal/config"
	"github.com/alanyoungcy/marketsync/internal/domain"
	"github.com/alanyoungcy/marketsync/internal/notify"
	"github.com/alanyoungcy/marketsync/internal/platform/kalshi"
	"github.com/alanyoungcy/marketsync/internal/platform/polymarket"
	"github.com/alanyoungcy/marketsync/internal/platform/venue"
)

// Dependencies bundles the venue clients and the optional shared
// infrastructure. It is constructed by Wire and torn down by the returned
// cleanup function. Redis-backed fields stay nil when Redis is disabled.
type Dependencies struct {
	HTTPClient *http.Client
	Kalshi     *kalshi.Client
	Gamma      *polymarket.GammaClient

	Redis       *redis.Client
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	EventBus    domain.EventBus

	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		HTTPClient: venue.NewHTTPClient(cfg.Sync.HTTPTimeout.Duration),
	}

	// --- Venue clients ---
	if cfg.Kalshi.Enabled {
		deps.Kalshi = kalshi.NewClient(domain.ParseEnvironment(cfg.Kalshi.Environment),
			kalshi.WithEndpoints(domain.Endpoints{
				Production: cfg.Kalshi.BaseURL,
				Demo:       cfg.Kalshi.DemoURL,
			}),
			kalshi.WithCredentials(domain.Credentials{
				KeyID:      cfg.Kalshi.ApiKeyID,
				PrivateKey: cfg.Kalshi.PrivateKey,
			}),
			kalshi.WithHTTPClient(deps.HTTPClient),
			kalshi.WithLogger(logger.With(slog.String("venue", "kalshi"))),
		)
	}
	if cfg.Polymarket.Enabled {
		deps.Gamma = polymarket.NewGammaClient(domain.ParseEnvironment(cfg.Polymarket.Environment),
			polymarket.WithEndpoints(domain.Endpoints{
				Production: cfg.Polymarket.GammaHost,
				Demo:       cfg.Polymarket.DemoHost,
			}),
			polymarket.WithCredentials(domain.Credentials{
				KeyID:      cfg.Polymarket.ApiKey,
				PrivateKey: cfg.Polymarket.ApiSecret,
			}),
			polymarket.WithHTTPClient(deps.HTTPClient),
			polymarket.WithLogger(logger.With(slog.String("venue", "polymarket"))),
		)
	}

	// --- Redis (optional) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			Prefix:     cfg.Redis.KeyPrefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Redis = redisClient
		deps.LockManager = redis.NewLockManager(redisClient)
		if cfg.Redis.RateLimit > 0 {
			deps.RateLimiter = redis.NewRateLimiter(redisClient, cfg.Redis.RateLimit, time.Second)
		}
		if cfg.Redis.PublishEvents {
			deps.EventBus = redis.NewEventBus(redisClient)
		}
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
