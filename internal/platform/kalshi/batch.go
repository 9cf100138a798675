package kalshi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/alanyoungcy/marketsync/internal/domain"
	"github.com/alanyoungcy/marketsync/internal/platform/venue"
)

// maxQueryLength is the longest query string Kalshi accepts on GET /markets.
const maxQueryLength = 2000

// maxPageSize is the largest limit GET /markets honours.
const maxPageSize = 1000

// Name implements venue.Venue.
func (c *Client) Name() domain.Venue { return domain.VenueKalshi }

// BaseURL implements venue.Venue.
func (c *Client) BaseURL(env domain.Environment) string {
	return c.endpoints.BaseURL(env)
}

// BatchRequest builds GET /markets?tickers=a,b,c. The limit is raised to the
// number of tickers so the whole batch arrives on one page.
func (c *Client) BatchRequest(ctx context.Context, env domain.Environment, tickers []string) (*http.Request, error) {
	params := url.Values{}
	params.Set("tickers", strings.Join(tickers, ","))
	limit := len(tickers)
	if limit > maxPageSize {
		limit = maxPageSize
	}
	params.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.endpoints.BaseURL(env)+"/markets?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("kalshi: create batch request: %w", err)
	}
	return req, nil
}

// RequestSize is the length of the encoded query string.
func (c *Client) RequestSize(req *http.Request) int {
	return len(req.URL.RawQuery)
}

// SizeLimit implements venue.Venue.
func (c *Client) SizeLimit() int { return maxQueryLength }

// Records splits a GET /markets body into per-market records keyed by ticker.
func (c *Client) Records(body []byte) ([]venue.Record, error) {
	var resp marketsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("kalshi: decode markets: %w", err)
	}

	records := make([]venue.Record, 0, len(resp.Markets))
	for _, raw := range resp.Markets {
		var t tickerOnly
		// A record whose ticker cannot be read keeps an empty ID and is
		// reported by the caller.
		_ = json.Unmarshal(raw, &t)
		records = append(records, venue.Record{ID: t.Ticker, Raw: raw})
	}
	return records, nil
}

var _ venue.Venue = (*Client)(nil)
