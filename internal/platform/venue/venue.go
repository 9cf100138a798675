// Package venue defines the contract every prediction-market venue adapter
// implements for batched synchronisation, plus the HTTP and parsing helpers
// the adapters share.
package venue

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/alanyoungcy/marketsync/internal/domain"
)

// Record is one market entry of a batch response, still venue-native.
type Record struct {
	ID  string // empty when the record carries no identifier
	Raw json.RawMessage
}

// Venue is a venue adapter as seen by the batch synchronizer.
type Venue interface {
	Name() domain.Venue

	// BaseURL resolves the API root for env.
	BaseURL(env domain.Environment) string

	// BatchRequest builds the single GET that fetches every id in env.
	BatchRequest(ctx context.Context, env domain.Environment, ids []string) (*http.Request, error)

	// RequestSize measures req the way the venue's transport limit is
	// expressed (query string for Kalshi, full URL for Polymarket).
	RequestSize(req *http.Request) int
	SizeLimit() int

	// Records unwraps a batch response body into per-market records.
	Records(body []byte) ([]Record, error)

	// Decode loads one record into m in place. It returns *domain.DecodeError
	// and leaves m unchanged when a required field is missing or malformed.
	Decode(m *domain.Market, raw json.RawMessage) error
}
