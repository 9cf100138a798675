package polymarket

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/alanyoungcy/marketsync/internal/domain"
	"github.com/alanyoungcy/marketsync/internal/platform/venue"
)

// Decode loads a Gamma market record into m. A record for a market that has no
// identifier yet must carry "conditionId". On error m is left untouched.
func (g *GammaClient) Decode(m *domain.Market, raw json.RawMessage) error {
	f, err := decodeFields(m.ID, raw)
	if err != nil {
		return err
	}
	m.Apply(f, g.now())
	return nil
}

func decodeFields(id string, raw json.RawMessage) (domain.MarketFields, error) {
	fail := func(field string, err error) (domain.MarketFields, error) {
		return domain.MarketFields{}, &domain.DecodeError{Venue: domain.VenuePolymarket, ID: id, Field: field, Err: err}
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
	if rec.ConditionID != nil {
		f.ID = *rec.ConditionID
		if id == "" {
			id = f.ID
		}
	}
	if id == "" {
		return fail("conditionId", nil)
	}

	switch {
	case rec.Question == nil:
		return fail("question", nil)
	case rec.Description == nil:
		return fail("description", nil)
	case rec.Active == nil:
		return fail("active", nil)
	case rec.EndDate == nil:
		return fail("endDate", nil)
	}

	openField, openValue := "startDate", rec.StartDate
	if openValue == nil {
		openField, openValue = "createdAt", rec.CreatedAt
	}
	if openValue == nil {
		return fail("startDate", nil)
	}

	var err error
	if f.OpenTime, err = venue.ParseTimestamp(*openValue); err != nil {
		return fail(openField, err)
	}
	if f.CloseTime, err = venue.ParseTimestamp(*rec.EndDate); err != nil {
		return fail("endDate", err)
	}
	if f.TokenIDs, err = tokenIDs(rec.Outcomes, rec.ClobTokenIDs); err != nil {
		return fail("clobTokenIds", err)
	}

	f.Title = *rec.Question
	f.Rules = *rec.Description
	f.Open = bool(*rec.Active) && !bool(rec.Closed)
	return f, nil
}

// tokenIDs maps lower-cased outcome names to CLOB token ids. Gamma ships both
// lists as JSON strings. Without outcomes a two-token list is read as
// [yes, no]. Absent token ids yield a nil map.
func tokenIDs(outcomesJSON, tokensJSON string) (map[string]string, error) {
	if tokensJSON == "" {
		return nil, nil
	}
	var tokens []string
	if err := json.Unmarshal([]byte(tokensJSON), &tokens); err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, nil
	}

	var outcomes []string
	if outcomesJSON != "" {
		if err := json.Unmarshal([]byte(outcomesJSON), &outcomes); err != nil {
			return nil, fmt.Errorf("outcomes: %w", err)
		}
	}
	if len(outcomes) == 0 && len(tokens) == 2 {
		outcomes = []string{"Yes", "No"}
	}
	if len(outcomes) != len(tokens) {
		return nil, fmt.Errorf("%d token ids for %d outcomes", len(tokens), len(outcomes))
	}

	ids := make(map[string]string, len(tokens))
	for i, tok := range tokens {
		ids[strings.ToLower(outcomes[i])] = tok
	}
	return ids, nil
}
