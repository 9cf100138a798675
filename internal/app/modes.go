package app

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/marketsync/internal/server"
	"github.com/alanyoungcy/marketsync/internal/server/handler"
)

// OnceMode runs discovery and one refresh of the tracked set, then returns.
// The error joins every partition failure of the run.
func (a *App) OnceMode(ctx context.Context, rt *runtime) error {
	a.logger.InfoContext(ctx, "starting once mode")

	res, err := rt.orchestrator.RunOnce(ctx)
	if res != nil {
		a.logger.InfoContext(ctx, "once mode finished",
			slog.Int("tracked", len(rt.markets.Tracked())),
			slog.Int("updated", len(res.Updated)),
			slog.Int("failed_partitions", res.Failed()),
		)
	}
	return err
}

// WatchMode keeps refreshing on the configured schedule and, when enabled,
// serves the status server alongside.
func (a *App) WatchMode(ctx context.Context, rt *runtime, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting watch mode")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return rt.orchestrator.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		srv := a.newServer(rt, deps)
		g.Go(func() error {
			return srv.Run(ctx)
		})
	}

	return g.Wait()
}

func (a *App) newServer(rt *runtime, deps *Dependencies) *server.Server {
	var pinger handler.Pinger
	if deps.Redis != nil {
		pinger = deps.Redis
	}

	return server.NewServer(
		server.Config{Addr: a.cfg.Server.Addr, APIKey: a.cfg.Server.APIKey},
		server.Handlers{
			Health:  handler.NewHealthHandler(pinger, a.root),
			Status:  handler.NewStatusHandler(a.cfg.Mode, rt.markets),
			Markets: handler.NewMarketHandler(rt.markets, a.root),
			Sync:    handler.NewSyncHandler(rt.orchestrator, a.root),
		},
		deps.RateLimiter,
		a.root,
	)
}
