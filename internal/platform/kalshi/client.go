package kalshi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/marketsync/internal/domain"
	"github.com/alanyoungcy/marketsync/internal/platform/venue"
	"github.com/shopspring/decimal"
)

// DefaultEndpoints are the public Kalshi trade API roots.
var DefaultEndpoints = domain.Endpoints{
	Production: "https://api.elections.kalshi.com/trade-api/v2",
	Demo:       "https://demo-api.kalshi.co/trade-api/v2",
}

// Client is the REST client for the Kalshi exchange API.
type Client struct {
	endpoints  domain.Endpoints
	env        domain.Environment
	creds      domain.Credentials
	httpClient venue.Doer
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoints overrides the production/demo API roots.
func WithEndpoints(e domain.Endpoints) Option {
	return func(c *Client) { c.endpoints = e }
}

// WithCredentials stores API credentials on the client. They are not
// validated and no request is made.
func WithCredentials(creds domain.Credentials) Option {
	return func(c *Client) { c.creds = creds }
}

// WithHTTPClient sets the transport used for every request.
func WithHTTPClient(d venue.Doer) Option {
	return func(c *Client) { c.httpClient = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithClock replaces time.Now for refresh timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates a Kalshi client bound to env.
func NewClient(env domain.Environment, opts ...Option) *Client {
	c := &Client{
		endpoints:  DefaultEndpoints,
		env:        env,
		httpClient: venue.NewHTTPClient(venue.DefaultTimeout),
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LoggedIn reports whether both halves of the credentials are present.
func (c *Client) LoggedIn() bool {
	return c.creds.Present()
}

// Environment returns the deployment the client lists and fetches from.
func (c *Client) Environment() domain.Environment {
	return c.env
}

// ListOptions selects one page of GET /markets.
type ListOptions struct {
	Limit  int    // 0 leaves the venue default
	Cursor string // "" starts from the first page
	Status string // e.g. "open"; "" means no filter
}

// ListMarkets returns one page of markets, already decoded, and the cursor of
// the next page. An empty cursor means there are no more pages. The page may
// hold fewer than Limit markets. Records that fail to decode are skipped; the
// rest of the page and the cursor are still returned along with the joined
// *domain.DecodeError values.
func (c *Client) ListMarkets(ctx context.Context, opts ListOptions) ([]*domain.Market, string, error) {
	params := url.Values{}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Cursor != "" {
		params.Set("cursor", opts.Cursor)
	}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}

	body, err := c.get(ctx, c.env, "/markets", params)
	if err != nil {
		return nil, "", fmt.Errorf("kalshi: get markets: %w", err)
	}

	var resp marketsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, "", fmt.Errorf("kalshi: decode markets: %w", err)
	}

	var errs []error
	markets := make([]*domain.Market, 0, len(resp.Markets))
	for _, raw := range resp.Markets {
		m := domain.NewMarket(domain.VenueKalshi, c.env, "")
		if err := c.Decode(m, raw); err != nil {
			errs = append(errs, err)
			continue
		}
		markets = append(markets, m)
	}

	c.logger.DebugContext(ctx, "kalshi: listed markets",
		slog.Int("count", len(markets)),
		slog.Int("skipped", len(errs)),
		slog.String("cursor", resp.Cursor),
	)
	if len(errs) > 0 {
		return markets, resp.Cursor, fmt.Errorf("kalshi: list markets: %w", errors.Join(errs...))
	}
	return markets, resp.Cursor, nil
}

// GetMarket fetches and decodes a single market by its ticker.
func (c *Client) GetMarket(ctx context.Context, ticker string) (*domain.Market, error) {
	m := domain.NewMarket(domain.VenueKalshi, c.env, ticker)
	if err := c.RefreshMarket(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// RefreshMarket reloads m from GET /markets/{ticker} in m's environment.
func (c *Client) RefreshMarket(ctx context.Context, m *domain.Market) error {
	path := "/markets/" + url.PathEscape(m.ID)

	body, err := c.get(ctx, m.Environment, path, nil)
	if err != nil {
		return fmt.Errorf("kalshi: get market %s: %w", m.ID, err)
	}

	var resp marketResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("kalshi: decode market %s: %w", m.ID, err)
	}
	if len(resp.Market) == 0 {
		return fmt.Errorf("kalshi: get market %s: %w", m.ID, domain.ErrNotFound)
	}
	return c.Decode(m, resp.Market)
}

// RefreshBook reloads m's orderbook. Market data is not touched.
func (c *Client) RefreshBook(ctx context.Context, m *domain.Market) error {
	path := fmt.Sprintf("/markets/%s/orderbook", url.PathEscape(m.ID))

	body, err := c.get(ctx, m.Environment, path, nil)
	if err != nil {
		return fmt.Errorf("kalshi: get orderbook %s: %w", m.ID, err)
	}

	var resp orderbookResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("kalshi: decode orderbook %s: %w", m.ID, err)
	}

	if m.Book == nil {
		m.Book = &domain.OrderBook{}
	}
	m.Book.UpdateBook(toLevels(resp.Orderbook.Yes), toLevels(resp.Orderbook.No))
	now := c.now()
	m.LastRefreshedBook = &now
	return nil
}

// toLevels converts cent-denominated levels to dollar prices.
func toLevels(in []priceLevel) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(in))
	for _, l := range in {
		out = append(out, domain.PriceLevel{
			Price:    decimal.New(l.Price, -2),
			Quantity: decimal.NewFromInt(l.Quantity),
		})
	}
	return out
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func (c *Client) get(ctx context.Context, env domain.Environment, path string, params url.Values) ([]byte, error) {
	fullURL := c.endpoints.BaseURL(env) + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return venue.Do(c.httpClient, req)
}
