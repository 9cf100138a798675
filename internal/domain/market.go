package domain

import "time"

// Venue names an external prediction-market platform.
type Venue string

const (
	VenueKalshi     Venue = "kalshi"
	VenuePolymarket Venue = "polymarket"
)

// Environment is the venue deployment a market or client talks to.
type Environment string

const (
	EnvProduction Environment = "prod"
	EnvDemo       Environment = "demo"
)

// ParseEnvironment maps a config string onto an Environment. Anything other
// than "demo" (case-sensitive after trimming by the caller) is production.
func ParseEnvironment(s string) Environment {
	if s == string(EnvDemo) {
		return EnvDemo
	}
	return EnvProduction
}

// Endpoints maps each environment to a venue base URL.
type Endpoints struct {
	Production string
	Demo       string
}

// BaseURL resolves env to a base URL. It never fails: any environment other
// than EnvDemo resolves to production.
func (e Endpoints) BaseURL(env Environment) string {
	if env == EnvDemo {
		return e.Demo
	}
	return e.Production
}

// Market is a single prediction market on one venue.
//
// Markets are mutated in place by venue decoders. LastRefreshedData stays nil
// until the first successful decode.
type Market struct {
	Venue       Venue
	Environment Environment
	ID          string // Kalshi ticker or Polymarket condition id

	Title     string
	Rules     string
	Open      bool
	OpenTime  time.Time
	CloseTime time.Time

	// TokenIDs maps "yes"/"no" to CLOB token ids. Polymarket only.
	TokenIDs map[string]string

	Book *OrderBook

	LastRefreshedData *time.Time
	LastRefreshedBook *time.Time
}

// NewMarket returns a market known only by its identifier. No data is loaded.
func NewMarket(venue Venue, env Environment, id string) *Market {
	return &Market{
		Venue:       venue,
		Environment: env,
		ID:          id,
		Book:        &OrderBook{},
	}
}

// Loaded reports whether the market has been populated by at least one decode.
func (m *Market) Loaded() bool {
	return m.LastRefreshedData != nil
}

// MarketFields is the normalized subset of a venue record a decoder produces.
type MarketFields struct {
	ID        string
	Title     string
	Rules     string
	Open      bool
	OpenTime  time.Time
	CloseTime time.Time
	TokenIDs  map[string]string
}

// Apply commits decoded fields onto m and stamps LastRefreshedData with now.
// An empty fields.ID leaves m.ID unchanged.
func (m *Market) Apply(f MarketFields, now time.Time) {
	if f.ID != "" {
		m.ID = f.ID
	}
	m.Title = f.Title
	m.Rules = f.Rules
	m.Open = f.Open
	m.OpenTime = f.OpenTime
	m.CloseTime = f.CloseTime
	if f.TokenIDs != nil {
		m.TokenIDs = f.TokenIDs
	}
	if m.Book == nil {
		m.Book = &OrderBook{}
	}
	t := now
	m.LastRefreshedData = &t
}

// PartitionKey groups markets that can share one batch request.
type PartitionKey struct {
	Venue       Venue
	Environment Environment
}

func (k PartitionKey) String() string {
	return string(k.Venue) + "/" + string(k.Environment)
}

// Key returns the partition the market belongs to.
func (m *Market) Key() PartitionKey {
	return PartitionKey{Venue: m.Venue, Environment: m.Environment}
}
