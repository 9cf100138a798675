package kalshi

import (
	"encoding/json"
	"fmt"
)

// --------------------------------------------------------------------------
// Kalshi API DTOs
// --------------------------------------------------------------------------

// apiMarket is the subset of a Kalshi market record the decoder reads.
// Pointer fields distinguish absent keys from zero values.
type apiMarket struct {
	Ticker       *string `json:"ticker"`
	Title        *string `json:"title"`
	RulesPrimary *string `json:"rules_primary"`
	Status       *string `json:"status"` // "active", "closed", "settled", ...
	OpenTime     *string `json:"open_time"`
	CloseTime    *string `json:"close_time"`
}

// marketsResponse is the envelope of GET /markets.
type marketsResponse struct {
	Markets []json.RawMessage `json:"markets"`
	Cursor  string            `json:"cursor"`
}

// marketResponse is the envelope of GET /markets/{ticker}.
type marketResponse struct {
	Market json.RawMessage `json:"market"`
}

// tickerOnly pulls the identifier out of a record without decoding the rest.
type tickerOnly struct {
	Ticker string `json:"ticker"`
}

// orderbookResponse is the envelope of GET /markets/{ticker}/orderbook.
type orderbookResponse struct {
	Orderbook struct {
		Yes []priceLevel `json:"yes"`
		No  []priceLevel `json:"no"`
	} `json:"orderbook"`
}

// priceLevel is one orderbook level: price in cents (1-99) and contract count.
// Kalshi sends levels as [price, count] pairs; the object form
// {"price":..,"quantity":..} is accepted as well.
type priceLevel struct {
	Price    int64 `json:"price"`
	Quantity int64 `json:"quantity"`
}

func (p *priceLevel) UnmarshalJSON(data []byte) error {
	var pair []int64
	if err := json.Unmarshal(data, &pair); err == nil {
		if len(pair) != 2 {
			return fmt.Errorf("price level: want 2 elements, got %d", len(pair))
		}
		p.Price, p.Quantity = pair[0], pair[1]
		return nil
	}
	type plain priceLevel
	var obj plain
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*p = priceLevel(obj)
	return nil
}
