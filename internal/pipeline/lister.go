package pipeline

import (
	"context"

	"github.com/alanyoungcy/marketsync/internal/domain"
	"github.com/alanyoungcy/marketsync/internal/platform/kalshi"
	"github.com/alanyoungcy/marketsync/internal/platform/polymarket"
)

// MarketLister pages through a venue's market listing.
type MarketLister interface {
	Name() domain.Venue
	ListPage(ctx context.Context, limit int, cursor, status string) ([]*domain.Market, string, error)
}

// KalshiLister adapts a Kalshi client to MarketLister.
type KalshiLister struct{ Client *kalshi.Client }

func (l KalshiLister) Name() domain.Venue { return domain.VenueKalshi }

func (l KalshiLister) ListPage(ctx context.Context, limit int, cursor, status string) ([]*domain.Market, string, error) {
	return l.Client.ListMarkets(ctx, kalshi.ListOptions{Limit: limit, Cursor: cursor, Status: status})
}

// GammaLister adapts a Polymarket Gamma client to MarketLister.
type GammaLister struct{ Client *polymarket.GammaClient }

func (l GammaLister) Name() domain.Venue { return domain.VenuePolymarket }

func (l GammaLister) ListPage(ctx context.Context, limit int, cursor, status string) ([]*domain.Market, string, error) {
	return l.Client.ListMarkets(ctx, polymarket.ListOptions{Limit: limit, Cursor: cursor, Status: status})
}
