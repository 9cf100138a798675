package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/marketsync/internal/domain"
)

// MarketTracker receives discovered markets.
type MarketTracker interface {
	Track(markets ...*domain.Market) int
}

// MarketScraper discovers markets from venue listings and hands them to the
// tracker, which refreshes them in batches afterwards.
type MarketScraper struct {
	listers  []MarketLister
	tracker  MarketTracker
	pageSize int
	maxPages int
	status   string
	logger   *slog.Logger
}

// NewMarketScraper creates a new MarketScraper. maxPages <= 0 pages until the
// venue reports no further cursor.
func NewMarketScraper(
	listers []MarketLister,
	tracker MarketTracker,
	pageSize, maxPages int,
	status string,
	logger *slog.Logger,
) *MarketScraper {
	return &MarketScraper{
		listers:  listers,
		tracker:  tracker,
		pageSize: pageSize,
		maxPages: maxPages,
		status:   status,
		logger:   logger.With(slog.String("component", "market_scraper")),
	}
}

// Run pages through every lister once. A failing venue does not stop the
// others; the returned error joins every venue failure. Pages with
// undecodable records still count and paging continues past them. The count is the
// number of newly tracked markets.
func (s *MarketScraper) Run(ctx context.Context) (int, error) {
	var (
		added int
		errs  []error
	)
	for _, l := range s.listers {
		n, err := s.scrape(ctx, l)
		added += n
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", l.Name(), err))
		}
	}
	return added, errors.Join(errs...)
}

func (s *MarketScraper) scrape(ctx context.Context, l MarketLister) (int, error) {
	var (
		cursor  string
		added   int
		seen    int
		skipped []error
	)
	for page := 0; s.maxPages <= 0 || page < s.maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return added, fmt.Errorf("market scraper context cancelled: %w", err)
		}

		markets, next, err := l.ListPage(ctx, s.pageSize, cursor, s.status)
		var decodeErr *domain.DecodeError
		if err != nil && !errors.As(err, &decodeErr) {
			return added, errors.Join(append(skipped, fmt.Errorf("list markets page %d: %w", page, err))...)
		}
		if err != nil {
			s.logger.WarnContext(ctx, "skipped undecodable markets",
				slog.String("venue", string(l.Name())),
				slog.Int("page", page),
				slog.String("error", err.Error()),
			)
			skipped = append(skipped, fmt.Errorf("list markets page %d: %w", page, err))
		}
		seen += len(markets)
		added += s.tracker.Track(markets...)

		s.logger.DebugContext(ctx, "listed market page",
			slog.String("venue", string(l.Name())),
			slog.Int("page", page),
			slog.Int("count", len(markets)),
		)

		if next == "" || (len(markets) == 0 && err == nil) {
			break
		}
		cursor = next
	}

	s.logger.InfoContext(ctx, "market scrape complete",
		slog.String("venue", string(l.Name())),
		slog.Int("listed", seen),
		slog.Int("tracked", added),
		slog.Int("failed_pages", len(skipped)),
	)
	return added, errors.Join(skipped...)
}
