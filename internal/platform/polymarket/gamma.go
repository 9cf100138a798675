package polymarket

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
)

// DefaultEndpoints are the Gamma API roots. Gamma has no sandbox, so the
// demo environment reads production unless configured otherwise.
var DefaultEndpoints = domain.Endpoints{
	Production: "https://gamma-api.polymarket.com",
	Demo:       "https://gamma-api.polymarket.com",
}

// GammaClient is the REST client for the Polymarket Gamma API, which
// provides market discovery and metadata.
type GammaClient struct {
	endpoints  domain.Endpoints
	env        domain.Environment
	creds      domain.Credentials
	httpClient venue.Doer
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a GammaClient.
type Option func(*GammaClient)

// WithEndpoints overrides the production/demo API roots.
func WithEndpoints(e domain.Endpoints) Option {
	return func(g *GammaClient) { g.endpoints = e }
}

// WithCredentials stores API credentials on the client. Gamma itself is
// read-only and never sends them.
func WithCredentials(creds domain.Credentials) Option {
	return func(g *GammaClient) { g.creds = creds }
}

// WithHTTPClient sets the transport used for every request.
func WithHTTPClient(d venue.Doer) Option {
	return func(g *GammaClient) { g.httpClient = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *GammaClient) { g.logger = logger }
}

// WithClock replaces time.Now for refresh timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *GammaClient) { g.now = now }
}

// NewGammaClient creates a Gamma API client bound to env.
func NewGammaClient(env domain.Environment, opts ...Option) *GammaClient {
	g := &GammaClient{
		endpoints:  DefaultEndpoints,
		env:        env,
		httpClient: venue.NewHTTPClient(venue.DefaultTimeout),
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// LoggedIn reports whether both halves of the credentials are present.
func (g *GammaClient) LoggedIn() bool {
	return g.creds.Present()
}

// Environment returns the deployment the client lists and fetches from.
func (g *GammaClient) Environment() domain.Environment {
	return g.env
}

// ListOptions selects one page of GET /markets.
type ListOptions struct {
	Limit  int    // 0 leaves the venue default
	Cursor string // offset as returned by a previous call; "" starts at 0
	Status string // "active"/"open", "closed" or ""
}

// ListMarkets returns one page of markets, already decoded, and the cursor of
// the next page. Gamma pages by offset; the cursor is that offset in decimal
// and comes back empty once a short or empty page is seen. Records that fail
// to decode are skipped and reported as joined *domain.DecodeError values
// next to the decoded markets and the cursor.
func (g *GammaClient) ListMarkets(ctx context.Context, opts ListOptions) ([]*domain.Market, string, error) {
	offset := 0
	if opts.Cursor != "" {
		n, err := strconv.Atoi(opts.Cursor)
		if err != nil || n < 0 {
			return nil, "", fmt.Errorf("polymarket/gamma: invalid cursor %q", opts.Cursor)
		}
		offset = n
	}

	params := url.Values{}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	if offset > 0 {
		params.Set("offset", strconv.Itoa(offset))
	}
	switch opts.Status {
	case "":
	case "active", "open":
		params.Set("active", "true")
		params.Set("closed", "false")
	case "closed":
		params.Set("closed", "true")
	default:
		return nil, "", fmt.Errorf("polymarket/gamma: unsupported status filter %q", opts.Status)
	}

	body, err := g.get(ctx, g.env, "/markets", params)
	if err != nil {
		return nil, "", fmt.Errorf("polymarket/gamma: get markets: %w", err)
	}

	var page []json.RawMessage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, "", fmt.Errorf("polymarket/gamma: decode markets: %w", err)
	}

	var errs []error
	markets := make([]*domain.Market, 0, len(page))
	for _, raw := range page {
		m := domain.NewMarket(domain.VenuePolymarket, g.env, "")
		if err := g.Decode(m, raw); err != nil {
			errs = append(errs, err)
			continue
		}
		markets = append(markets, m)
	}

	next := ""
	if len(page) > 0 && (opts.Limit == 0 || len(page) >= opts.Limit) {
		next = strconv.Itoa(offset + len(page))
	}

	g.logger.DebugContext(ctx, "polymarket/gamma: listed markets",
		slog.Int("count", len(markets)),
		slog.Int("skipped", len(errs)),
		slog.String("cursor", next),
	)
	if len(errs) > 0 {
		return markets, next, fmt.Errorf("polymarket/gamma: list markets: %w", errors.Join(errs...))
	}
	return markets, next, nil
}

// GetMarket fetches and decodes a single market by its condition id.
func (g *GammaClient) GetMarket(ctx context.Context, conditionID string) (*domain.Market, error) {
	m := domain.NewMarket(domain.VenuePolymarket, g.env, conditionID)
	if err := g.RefreshMarket(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// RefreshMarket reloads m from GET /markets?condition_ids={id} in m's
// environment. An empty result wraps domain.ErrNotFound.
func (g *GammaClient) RefreshMarket(ctx context.Context, m *domain.Market) error {
	params := url.Values{}
	params.Set("condition_ids", m.ID)

	body, err := g.get(ctx, m.Environment, "/markets", params)
	if err != nil {
		return fmt.Errorf("polymarket/gamma: get market %s: %w", m.ID, err)
	}

	var page []json.RawMessage
	if err := json.Unmarshal(body, &page); err != nil {
		return fmt.Errorf("polymarket/gamma: decode market %s: %w", m.ID, err)
	}
	if len(page) == 0 {
		return fmt.Errorf("polymarket/gamma: %w: condition_id=%s", domain.ErrNotFound, m.ID)
	}
	return g.Decode(m, page[0])
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// get sends an unauthenticated GET request to the Gamma API.
func (g *GammaClient) get(ctx context.Context, env domain.Environment, path string, params url.Values) ([]byte, error) {
	fullURL := g.endpoints.BaseURL(env) + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return venue.Do(g.httpClient, req)
}
