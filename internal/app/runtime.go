package app

import (
	"log/slog"

	"github.com/alanyoungcy/marketsync/internal/domain"
	"github.com/alanyoungcy/marketsync/internal/pipeline"
	"github.com/alanyoungcy/marketsync/internal/platform/venue"
	"github.com/alanyoungcy/marketsync/internal/service"
	"github.com/alanyoungcy/marketsync/internal/syncer"
)

// runtime is the synchronisation graph built on top of Dependencies.
type runtime struct {
	markets      *service.MarketService
	orchestrator *pipeline.Orchestrator
}

// build assembles the synchronizer, the tracked-market service and the
// scheduler. Configured tickers and condition ids seed the tracked set; venues
// without any configured ids are discovered through their listing instead.
func (a *App) build(deps *Dependencies) *runtime {
	var (
		venues  []venue.Venue
		listers []pipeline.MarketLister
		seeds   []*domain.Market
	)

	if deps.Kalshi != nil {
		venues = append(venues, deps.Kalshi)
		env := deps.Kalshi.Environment()
		for _, t := range a.cfg.Sync.Tickers {
			seeds = append(seeds, domain.NewMarket(domain.VenueKalshi, env, t))
		}
		if len(a.cfg.Sync.Tickers) == 0 {
			listers = append(listers, pipeline.KalshiLister{Client: deps.Kalshi})
		}
	}
	if deps.Gamma != nil {
		venues = append(venues, deps.Gamma)
		env := deps.Gamma.Environment()
		for _, id := range a.cfg.Sync.ConditionIDs {
			seeds = append(seeds, domain.NewMarket(domain.VenuePolymarket, env, id))
		}
		if len(a.cfg.Sync.ConditionIDs) == 0 {
			listers = append(listers, pipeline.GammaLister{Client: deps.Gamma})
		}
	}

	opts := []syncer.Option{
		syncer.WithMaxConcurrency(a.cfg.Sync.MaxConcurrency),
		syncer.WithLogger(a.root),
	}
	if deps.RateLimiter != nil {
		opts = append(opts, syncer.WithLimiter(deps.RateLimiter))
	}
	if deps.LockManager != nil {
		opts = append(opts, syncer.WithLocker(deps.LockManager, a.cfg.Redis.LockTTL.Duration))
	}
	sync := syncer.New(deps.HTTPClient, venues, opts...)

	markets := service.NewMarketService(sync, deps.EventBus, deps.Notifier, a.root)
	markets.Track(seeds...)

	var scraper *pipeline.MarketScraper
	if len(listers) > 0 {
		scraper = pipeline.NewMarketScraper(listers, markets,
			a.cfg.Sync.PageSize, a.cfg.Sync.MaxPages, a.cfg.Sync.Status, a.root)
	}

	a.logger.Info("runtime built",
		slog.Int("venues", len(venues)),
		slog.Int("seeded_markets", len(seeds)),
		slog.Int("discovering_venues", len(listers)),
	)

	orch := pipeline.NewOrchestrator(scraper, markets,
		a.cfg.Sync.Interval.Duration, a.cfg.Sync.Cron, a.root)

	return &runtime{
		markets:      markets,
		orchestrator: orch,
	}
}
