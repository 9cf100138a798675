package polymarket

import (
	"encoding/json"
	"strings"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether "active" is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// apiMarket is the subset of a Gamma market record the decoder reads.
// Pointer fields distinguish absent keys from zero values.
type apiMarket struct {
	ConditionID  *string   `json:"conditionId"`
	Question     *string   `json:"question"`
	Description  *string   `json:"description"`
	Active       *flexBool `json:"active"`
	Closed       flexBool  `json:"closed"`
	StartDate    *string   `json:"startDate"`
	CreatedAt    *string   `json:"createdAt"`
	EndDate      *string   `json:"endDate"`
	Outcomes     string    `json:"outcomes"`     // JSON-encoded: e.g. "[\"Yes\",\"No\"]"
	ClobTokenIDs string    `json:"clobTokenIds"` // JSON-encoded: e.g. "[\"123\",\"456\"]"
}

// conditionOnly pulls the identifier out of a record without decoding the rest.
type conditionOnly struct {
	ConditionID string `json:"conditionId"`
}
