package syncer

import (
	"errors"

	"github.com/alanyoungcy/marketsync/internal/domain"
)

// PartitionResult is the outcome of one (venue, environment) batch. URL is
// empty when no request was built. Missing lists requested identifiers the
// venue did not return. Err joins every error of the partition.
type PartitionResult struct {
	Key       domain.PartitionKey
	URL       string
	Requested int
	Updated   []*domain.Market
	Missing   []string
	Err       error
}

// Failures counts requested identifiers that were not applied. Updated may
// hold several markets sharing one identifier, so identifiers are counted
// once.
func (p PartitionResult) Failures() int {
	applied := make(map[string]bool, len(p.Updated))
	for _, m := range p.Updated {
		applied[m.ID] = true
	}
	if n := p.Requested - len(applied); n > 0 {
		return n
	}
	return 0
}

// Result carries everything a RefreshMany call managed to apply, so callers
// can accept partial success.
type Result struct {
	Updated    []*domain.Market
	Partitions []PartitionResult
}

// Err joins every partition error. It is nil when all partitions succeeded.
func (r *Result) Err() error {
	if r == nil {
		return nil
	}
	var errs []error
	for _, p := range r.Partitions {
		if p.Err != nil {
			errs = append(errs, p.Err)
		}
	}
	return errors.Join(errs...)
}

// Failed counts partitions that returned an error.
func (r *Result) Failed() int {
	n := 0
	for _, p := range r.Partitions {
		if p.Err != nil {
			n++
		}
	}
	return n
}

// Merge appends other's partitions and updates onto r.
func (r *Result) Merge(other *Result) {
	if other == nil {
		return
	}
	r.Updated = append(r.Updated, other.Updated...)
	r.Partitions = append(r.Partitions, other.Partitions...)
}
