package kalshi

import (
	"encoding/json"
	"errors"

	"github.com/alanyoungcy/marketsync/internal/domain"
	"github.com/alanyoungcy/marketsync/internal/platform/venue"
)

// statusActive is the status value Kalshi reports for a tradeable market.
const statusActive = "active"

// Decode loads a Kalshi market record into m. A record for a market that has
// no identifier yet must carry "ticker". On error m is left untouched.
func (c *Client) Decode(m *domain.Market, raw json.RawMessage) error {
	f, err := decodeFields(m.ID, raw)
	if err != nil {
		return err
	}
	m.Apply(f, c.now())
	return nil
}

func decodeFields(id string, raw json.RawMessage) (domain.MarketFields, error) {
	fail := func(field string, err error) (domain.MarketFields, error) {
		return domain.MarketFields{}, &domain.DecodeError{Venue: domain.VenueKalshi, ID: id, Field: field, Err: err}
	}

	var rec apiMarket
	if err := json.Unmarshal(raw, &rec); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return fail(typeErr.Field, err)
		}
		return fail("", err)
	}

	var f domain.MarketFields
	if rec.Ticker != nil {
		f.ID = *rec.Ticker
		if id == "" {
			id = f.ID
		}
	}
	if id == "" {
		return fail("ticker", nil)
	}

	required := []struct {
		name string
		val  *string
	}{
		{"title", rec.Title},
		{"rules_primary", rec.RulesPrimary},
		{"status", rec.Status},
		{"open_time", rec.OpenTime},
		{"close_time", rec.CloseTime},
	}
	for _, r := range required {
		if r.val == nil {
			return fail(r.name, nil)
		}
	}

	var err error
	if f.OpenTime, err = venue.ParseTimestamp(*rec.OpenTime); err != nil {
		return fail("open_time", err)
	}
	if f.CloseTime, err = venue.ParseTimestamp(*rec.CloseTime); err != nil {
		return fail("close_time", err)
	}
	f.Title = *rec.Title
	f.Rules = *rec.RulesPrimary
	f.Open = *rec.Status == statusActive
	return f, nil
}
