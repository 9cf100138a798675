package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/marketsync/internal/domain"
	"github.com/alanyoungcy/marketsync/internal/metrics"
	"github.com/alanyoungcy/marketsync/internal/notify"
	"github.com/alanyoungcy/marketsync/internal/platform/venue"
	"github.com/alanyoungcy/marketsync/internal/syncer"
)

// Syncer is the batch refresher the service drives.
type Syncer interface {
	RefreshMany(ctx context.Context, markets []*domain.Market) (*syncer.Result, error)
	Venue(name domain.Venue) (venue.Venue, bool)
}

// MarketService owns the set of tracked markets and refreshes them in
// size-bounded batches.
type MarketService struct {
	refresher Syncer
	bus       domain.EventBus
	notifier  *notify.Notifier
	logger    *slog.Logger

	mu      sync.RWMutex
	tracked map[marketKey]*domain.Market
	order   []marketKey

	// refreshMu is held for writing while markets are decoded in place.
	refreshMu sync.RWMutex

	failing atomic.Bool
	lastRun atomic.Pointer[domain.RunSummary]
}

type marketKey struct {
	partition domain.PartitionKey
	id        string
}

// NewMarketService creates a MarketService. bus and notifier may be nil.
func NewMarketService(
	s Syncer,
	bus domain.EventBus,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		refresher: s,
		bus:       bus,
		notifier:  notifier,
		logger:    logger.With(slog.String("component", "market_service")),
		tracked:   make(map[marketKey]*domain.Market),
	}
}

// Track adds markets to the tracked set and returns how many were new. A
// market already tracked under the same venue, environment and id keeps its
// existing object.
func (s *MarketService) Track(markets ...*domain.Market) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, m := range markets {
		if m == nil || m.ID == "" {
			continue
		}
		k := marketKey{partition: m.Key(), id: m.ID}
		if _, ok := s.tracked[k]; ok {
			continue
		}
		s.tracked[k] = m
		s.order = append(s.order, k)
		added++
	}
	metrics.TrackedMarkets.Set(float64(len(s.order)))
	return added
}

// Get returns a tracked market.
func (s *MarketService) Get(v domain.Venue, env domain.Environment, id string) (*domain.Market, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.tracked[marketKey{partition: domain.PartitionKey{Venue: v, Environment: env}, id: id}]
	return m, ok
}

// Tracked returns the tracked markets in the order they were added.
func (s *MarketService) Tracked() []*domain.Market {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Market, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.tracked[k])
	}
	return out
}

// Snapshot returns copies of the tracked markets, waiting for a running
// refresh to finish first.
func (s *MarketService) Snapshot() []domain.Market {
	s.refreshMu.RLock()
	defer s.refreshMu.RUnlock()
	tracked := s.Tracked()
	out := make([]domain.Market, 0, len(tracked))
	for _, m := range tracked {
		out = append(out, *m)
	}
	return out
}

// Lookup returns a copy of one tracked market.
func (s *MarketService) Lookup(v domain.Venue, env domain.Environment, id string) (domain.Market, bool) {
	s.refreshMu.RLock()
	defer s.refreshMu.RUnlock()
	m, ok := s.Get(v, env, id)
	if !ok {
		return domain.Market{}, false
	}
	return *m, true
}

// RefreshAll refreshes every tracked market.
func (s *MarketService) RefreshAll(ctx context.Context) (*syncer.Result, error) {
	return s.Refresh(ctx, s.Tracked())
}

// Refresh refreshes markets, splitting each partition into chunks whose batch
// request fits the venue limit. Chunk i of every partition goes out in the
// same round, so a run needs as many rounds as its largest partition has
// chunks. Errors from every round are kept; the returned error joins them.
func (s *MarketService) Refresh(ctx context.Context, markets []*domain.Market) (*syncer.Result, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	runID := uuid.NewString()
	started := time.Now().UTC()
	logger := s.logger.With(slog.String("run_id", runID))
	result := &syncer.Result{}

	rounds, failed := s.plan(ctx, markets)
	result.Partitions = append(result.Partitions, failed...)

	for i, round := range rounds {
		res, _ := s.refresher.RefreshMany(ctx, round)
		result.Merge(res)
		logger.DebugContext(ctx, "market_service: round done",
			slog.Int("round", i+1),
			slog.Int("markets", len(round)),
		)
	}

	s.publish(ctx, runID, result)
	s.alert(ctx, runID, result)
	metrics.LastRunTimestamp.SetToCurrentTime()

	err := result.Err()
	summary := &domain.RunSummary{
		RunID:      runID,
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
		Requested:  len(markets),
		Updated:    len(result.Updated),
		Failed:     result.Failed(),
	}
	if err != nil {
		summary.Error = err.Error()
	}
	s.lastRun.Store(summary)

	logger.InfoContext(ctx, "market_service: refresh finished",
		slog.Int("markets", len(markets)),
		slog.Int("rounds", len(rounds)),
		slog.Int("updated", len(result.Updated)),
		slog.Int("failed_partitions", result.Failed()),
	)
	return result, err
}

// LastRun returns the summary of the most recent refresh, or false before the
// first one finishes.
func (s *MarketService) LastRun() (domain.RunSummary, bool) {
	if r := s.lastRun.Load(); r != nil {
		return *r, true
	}
	return domain.RunSummary{}, false
}

// plan groups markets by partition and splits each into venue-sized chunks.
// Partitions that cannot be chunked are returned as failed results.
func (s *MarketService) plan(ctx context.Context, markets []*domain.Market) ([][]*domain.Market, []syncer.PartitionResult) {
	var keys []domain.PartitionKey
	byID := make(map[domain.PartitionKey]map[string][]*domain.Market)
	ids := make(map[domain.PartitionKey][]string)
	for _, m := range markets {
		k := m.Key()
		if _, ok := byID[k]; !ok {
			keys = append(keys, k)
			byID[k] = make(map[string][]*domain.Market)
		}
		if _, seen := byID[k][m.ID]; !seen {
			ids[k] = append(ids[k], m.ID)
		}
		byID[k][m.ID] = append(byID[k][m.ID], m)
	}

	var (
		rounds [][]*domain.Market
		failed []syncer.PartitionResult
	)
	for _, k := range keys {
		v, ok := s.refresher.Venue(k.Venue)
		if !ok {
			// Let the synchronizer report the unknown venue.
			rounds = addToRound(rounds, 0, collect(byID[k], ids[k]))
			continue
		}
		chunks, err := venue.Chunk(ctx, v, k.Environment, ids[k])
		if err != nil {
			failed = append(failed, syncer.PartitionResult{Key: k, Requested: len(ids[k]), Err: err})
			continue
		}
		for i, chunk := range chunks {
			rounds = addToRound(rounds, i, collect(byID[k], chunk))
		}
	}
	return rounds, failed
}

func addToRound(rounds [][]*domain.Market, i int, markets []*domain.Market) [][]*domain.Market {
	for len(rounds) <= i {
		rounds = append(rounds, nil)
	}
	rounds[i] = append(rounds[i], markets...)
	return rounds
}

func collect(byID map[string][]*domain.Market, ids []string) []*domain.Market {
	var out []*domain.Market
	for _, id := range ids {
		out = append(out, byID[id]...)
	}
	return out
}

// publish sends one refresh event per partition result. Publishing is best
// effort and never fails the run.
func (s *MarketService) publish(ctx context.Context, runID string, result *syncer.Result) {
	if s.bus == nil {
		return
	}
	now := time.Now().UTC()
	for _, p := range result.Partitions {
		ev := domain.RefreshEvent{
			RunID:      runID,
			Venue:      p.Key.Venue,
			Env:        p.Key.Environment,
			Updated:    make([]string, 0, len(p.Updated)),
			Failed:     p.Failures(),
			FinishedAt: now,
		}
		for _, m := range p.Updated {
			ev.Updated = append(ev.Updated, m.ID)
		}
		if p.Err != nil {
			ev.Error = p.Err.Error()
		}
		if err := s.bus.PublishRefresh(ctx, ev); err != nil {
			s.logger.WarnContext(ctx, "market_service: publish refresh event failed",
				slog.String("partition", p.Key.String()),
				slog.String("error", err.Error()),
			)
		}
	}
}

// alert notifies on failed runs and on the first clean run after one.
func (s *MarketService) alert(ctx context.Context, runID string, result *syncer.Result) {
	if !s.notifier.Enabled() {
		return
	}
	var err error
	switch failed := result.Failed(); {
	case failed > 0:
		s.failing.Store(true)
		err = s.notifier.SyncFailed(ctx, runID, failed, len(result.Partitions), result.Err())
	case s.failing.Swap(false):
		err = s.notifier.SyncRecovered(ctx, runID, len(result.Updated))
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.WarnContext(ctx, "market_service: notify failed",
			slog.String("error", err.Error()),
		)
	}
}
