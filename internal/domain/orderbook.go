package domain

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// PriceLevel is a single price+quantity entry in an orderbook.
type PriceLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// OrderBook holds the resting yes/no levels of one market. It is owned by its
// Market and is never refreshed together with market data.
type OrderBook struct {
	mu        sync.RWMutex
	yes       []PriceLevel
	no        []PriceLevel
	updatedAt time.Time
}

// UpdateBook replaces both sides of the book.
func (b *OrderBook) UpdateBook(yes, no []PriceLevel) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.yes = append([]PriceLevel(nil), yes...)
	b.no = append([]PriceLevel(nil), no...)
	b.updatedAt = time.Now()
}

// Yes returns a copy of the yes side.
func (b *OrderBook) Yes() []PriceLevel {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]PriceLevel(nil), b.yes...)
}

// No returns a copy of the no side.
func (b *OrderBook) No() []PriceLevel {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]PriceLevel(nil), b.no...)
}

// BestYes returns the highest yes price, or false for an empty side.
func (b *OrderBook) BestYes() (decimal.Decimal, bool) {
	return best(b.Yes())
}

// BestNo returns the highest no price, or false for an empty side.
func (b *OrderBook) BestNo() (decimal.Decimal, bool) {
	return best(b.No())
}

// UpdatedAt is the time of the last UpdateBook call.
func (b *OrderBook) UpdatedAt() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.updatedAt
}

func best(levels []PriceLevel) (decimal.Decimal, bool) {
	if len(levels) == 0 {
		return decimal.Zero, false
	}
	top := levels[0].Price
	for _, l := range levels[1:] {
		if l.Price.GreaterThan(top) {
			top = l.Price
		}
	}
	return top, true
}
