package venue

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/marketsync/internal/domain"
)

// Chunk splits ids into consecutive groups whose batch request fits under the
// venue's size limit. Order is preserved. An id too long to fit even alone is
// reported as *domain.RequestTooLargeError.
//
// The synchronizer never splits on its own; callers that hold more markets
// than one request can carry use Chunk first.
func Chunk(ctx context.Context, v Venue, env domain.Environment, ids []string) ([][]string, error) {
	var (
		chunks  [][]string
		current []string
	)
	for _, id := range ids {
		candidate := append(append([]string(nil), current...), id)
		size, err := measure(ctx, v, env, candidate)
		if err != nil {
			return nil, err
		}
		if size <= v.SizeLimit() {
			current = candidate
			continue
		}
		if len(current) > 0 {
			chunks = append(chunks, current)
			if size, err = measure(ctx, v, env, []string{id}); err != nil {
				return nil, err
			}
		}
		if size > v.SizeLimit() {
			return nil, &domain.RequestTooLargeError{
				Partition: domain.PartitionKey{Venue: v.Name(), Environment: env},
				Markets:   1,
				Size:      size,
				Limit:     v.SizeLimit(),
			}
		}
		current = []string{id}
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks, nil
}

func measure(ctx context.Context, v Venue, env domain.Environment, ids []string) (int, error) {
	req, err := v.BatchRequest(ctx, env, ids)
	if err != nil {
		return 0, fmt.Errorf("venue: build batch request: %w", err)
	}
	return v.RequestSize(req), nil
}
