package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/alanyoungcy/marketsync/internal/domain"
	"github.com/alanyoungcy/marketsync/internal/platform/venue"
)

// maxURLLength is the longest request URL Gamma accepts.
const maxURLLength = 8192

// Name implements venue.Venue.
func (g *GammaClient) Name() domain.Venue { return domain.VenuePolymarket }

// BaseURL implements venue.Venue.
func (g *GammaClient) BaseURL(env domain.Environment) string {
	return g.endpoints.BaseURL(env)
}

// BatchRequest builds GET /markets with one condition_ids parameter per id.
func (g *GammaClient) BatchRequest(ctx context.Context, env domain.Environment, ids []string) (*http.Request, error) {
	params := url.Values{}
	for _, id := range ids {
		params.Add("condition_ids", id)
	}
	params.Set("limit", strconv.Itoa(len(ids)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		g.endpoints.BaseURL(env)+"/markets?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: create batch request: %w", err)
	}
	return req, nil
}

// RequestSize is the length of the full request URL.
func (g *GammaClient) RequestSize(req *http.Request) int {
	return len(req.URL.String())
}

// SizeLimit implements venue.Venue.
func (g *GammaClient) SizeLimit() int { return maxURLLength }

// Records splits a Gamma market array into records keyed by condition id.
func (g *GammaClient) Records(body []byte) ([]venue.Record, error) {
	var page []json.RawMessage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("polymarket/gamma: decode markets: %w", err)
	}

	records := make([]venue.Record, 0, len(page))
	for _, raw := range page {
		var c conditionOnly
		_ = json.Unmarshal(raw, &c)
		records = append(records, venue.Record{ID: c.ConditionID, Raw: raw})
	}
	return records, nil
}

var _ venue.Venue = (*GammaClient)(nil)
