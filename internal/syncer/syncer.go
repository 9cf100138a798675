// Package syncer refreshes many markets with as few venue round-trips as
// possible: one GET per (venue, environment) partition, reconciled back onto
// the local market objects by identifier.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/marketsync/internal/domain"
	"github.com/alanyoungcy/marketsync/internal/metrics"
	"github.com/alanyoungcy/marketsync/internal/platform/venue"
)

// ErrUnknownVenue is returned for a partition whose venue has no adapter.
var ErrUnknownVenue = errors.New("syncer: no adapter for venue")

// ErrNoIdentifier is returned for a market that was never given an id.
var ErrNoIdentifier = errors.New("syncer: market has no identifier")

const defaultLockTTL = 30 * time.Second

// Synchronizer batches market refreshes per partition.
type Synchronizer struct {
	doer           venue.Doer
	venues         map[domain.Venue]venue.Venue
	limiter        domain.RateLimiter
	locker         domain.LockManager
	lockTTL        time.Duration
	maxConcurrency int
	logger         *slog.Logger
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithLimiter waits on l, keyed by venue name, before every batch GET.
func WithLimiter(l domain.RateLimiter) Option {
	return func(s *Synchronizer) { s.limiter = l }
}

// WithLocker holds a per-partition lock for the duration of each batch.
func WithLocker(l domain.LockManager, ttl time.Duration) Option {
	return func(s *Synchronizer) {
		s.locker = l
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// WithMaxConcurrency bounds how many partitions run at once. n <= 0 means
// no bound.
func WithMaxConcurrency(n int) Option {
	return func(s *Synchronizer) { s.maxConcurrency = n }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Synchronizer) { s.logger = logger }
}

// New creates a Synchronizer that sends requests through doer and resolves
// partitions to the given venue adapters.
func New(doer venue.Doer, venues []venue.Venue, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		doer:    doer,
		venues:  make(map[domain.Venue]venue.Venue, len(venues)),
		lockTTL: defaultLockTTL,
		logger:  slog.Default(),
	}
	for _, v := range venues {
		s.venues[v.Name()] = v
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("component", "syncer"))
	return s
}

// Venue returns the adapter registered for name.
func (s *Synchronizer) Venue(name domain.Venue) (venue.Venue, bool) {
	v, ok := s.venues[name]
	return v, ok
}

// RefreshMany refreshes every market in one GET per (venue, environment)
// partition. Partitions run concurrently and a failing partition never stops
// its siblings. The returned Result is never nil; the error is Result.Err().
//
// Within a partition a request that would exceed the venue size limit fails
// with *domain.RequestTooLargeError before any network call, and a non-2xx
// response fails with *domain.APIRequestError without applying anything.
// Otherwise every returned record is decoded onto the markets that share its
// identifier; records that fail to decode are reported as
// *domain.DecodeError, and identifiers nobody asked for are reported together
// as one *domain.ReconciliationError after all matching records were applied.
func (s *Synchronizer) RefreshMany(ctx context.Context, markets []*domain.Market) (*Result, error) {
	keys, groups := partition(markets)
	results := make([]PartitionResult, len(keys))

	var g errgroup.Group
	if s.maxConcurrency > 0 {
		g.SetLimit(s.maxConcurrency)
	}
	for i, key := range keys {
		g.Go(func() error {
			results[i] = s.refreshPartition(ctx, key, groups[key])
			return nil
		})
	}
	_ = g.Wait()

	res := &Result{Partitions: results}
	for _, p := range results {
		res.Updated = append(res.Updated, p.Updated...)
	}
	return res, res.Err()
}

// partition groups markets by (venue, environment), keeping first-seen order.
func partition(markets []*domain.Market) ([]domain.PartitionKey, map[domain.PartitionKey][]*domain.Market) {
	var keys []domain.PartitionKey
	groups := make(map[domain.PartitionKey][]*domain.Market)
	for _, m := range markets {
		if m == nil {
			continue
		}
		k := m.Key()
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], m)
	}
	return keys, groups
}

func (s *Synchronizer) refreshPartition(ctx context.Context, key domain.PartitionKey, markets []*domain.Market) (pr PartitionResult) {
	pr.Key = key
	logger := s.logger.With(slog.String("partition", key.String()))

	var errs []error
	defer func() {
		pr.Err = errors.Join(errs...)
		metrics.ObserveUpdated(key, len(pr.Updated))
		for _, err := range errs {
			metrics.ObserveError(key, err)
		}
	}()

	v, ok := s.venues[key.Venue]
	if !ok {
		errs = append(errs, fmt.Errorf("%w %q", ErrUnknownVenue, key.Venue))
		return pr
	}

	// Several local objects may share one identifier; all of them are owners.
	owners := make(map[string][]*domain.Market, len(markets))
	var ids []string
	for _, m := range markets {
		if m.ID == "" {
			errs = append(errs, fmt.Errorf("%s: %w", key, ErrNoIdentifier))
			continue
		}
		if _, seen := owners[m.ID]; !seen {
			ids = append(ids, m.ID)
		}
		owners[m.ID] = append(owners[m.ID], m)
	}
	if len(ids) == 0 {
		return pr
	}
	pr.Requested = len(ids)

	req, err := v.BatchRequest(ctx, key.Environment, ids)
	if err != nil {
		errs = append(errs, fmt.Errorf("syncer: %s: %w", key, err))
		return pr
	}
	pr.URL = req.URL.String()
	if size := v.RequestSize(req); size > v.SizeLimit() {
		errs = append(errs, &domain.RequestTooLargeError{
			Partition: key,
			Markets:   len(ids),
			Size:      size,
			Limit:     v.SizeLimit(),
		})
		return pr
	}

	if s.locker != nil {
		unlock, err := s.locker.Acquire(ctx, "sync:"+key.String(), s.lockTTL)
		if err != nil {
			errs = append(errs, fmt.Errorf("syncer: %s: %w", key, err))
			return pr
		}
		defer unlock()
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, string(key.Venue)); err != nil {
			errs = append(errs, fmt.Errorf("syncer: %s: rate limit: %w", key, err))
			return pr
		}
	}

	start := time.Now()
	body, err := venue.Do(s.doer, req)
	metrics.ObserveRequest(key, time.Since(start), err)
	if err != nil {
		errs = append(errs, fmt.Errorf("syncer: %s: %w", key, err))
		return pr
	}

	records, err := v.Records(body)
	if err != nil {
		errs = append(errs, fmt.Errorf("syncer: %s: %w", key, err))
		return pr
	}

	var unknown []string
	foreign := make(map[string]bool)
	answered := make(map[string]bool, len(records))
	applied := make(map[*domain.Market]bool, len(markets))
	for _, rec := range records {
		if rec.ID == "" {
			errs = append(errs, &domain.DecodeError{Venue: key.Venue, Field: "id"})
			continue
		}
		ms, ok := owners[rec.ID]
		if !ok {
			if !foreign[rec.ID] {
				foreign[rec.ID] = true
				unknown = append(unknown, rec.ID)
			}
			continue
		}
		answered[rec.ID] = true
		for _, m := range ms {
			if err := v.Decode(m, rec.Raw); err != nil {
				errs = append(errs, err)
				continue
			}
			if !applied[m] {
				applied[m] = true
				pr.Updated = append(pr.Updated, m)
			}
		}
	}

	for _, id := range ids {
		if !answered[id] {
			pr.Missing = append(pr.Missing, id)
		}
	}
	if len(pr.Missing) > 0 {
		logger.WarnContext(ctx, "syncer: requested markets absent from response",
			slog.Int("count", len(pr.Missing)),
			slog.Any("ids", pr.Missing),
		)
	}
	if len(unknown) > 0 {
		errs = append(errs, &domain.ReconciliationError{Partition: key, IDs: unknown})
	}

	logger.InfoContext(ctx, "syncer: partition refreshed",
		slog.Int("requested", pr.Requested),
		slog.Int("updated", len(pr.Updated)),
		slog.Int("errors", len(errs)),
	)
	return pr
}
