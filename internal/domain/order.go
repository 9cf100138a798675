package domain

import "github.com/shopspring/decimal"

// Side is the contract side of an order.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Action indicates whether this is a buy or sell.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// Credentials are venue API credentials. They are stored as given and never
// validated locally.
type Credentials struct {
	KeyID      string
	PrivateKey string
}

// Present reports whether both halves of the credential pair are set.
func (c Credentials) Present() bool {
	return c.KeyID != "" && c.PrivateKey != ""
}

// Order records an order a client placed on a market. It is a plain value.
type Order struct {
	Client      string // client identifier, usually the key id
	Market      *Market
	PlacedPrice decimal.Decimal
	Quantity    decimal.Decimal
	Side        Side
	Action      Action
}

// Notional returns price * quantity.
func (o Order) Notional() decimal.Decimal {
	return o.PlacedPrice.Mul(o.Quantity)
}
