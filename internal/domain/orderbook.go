package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AmountPlaces is the number of fractional digits kept on every derived amount.
const AmountPlaces int32 = 8

// Truncate drops everything past AmountPlaces. It never rounds up, so the
// result can always be spent.
func Truncate(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(AmountPlaces)
}

// TruncDiv returns a/b truncated to AmountPlaces. b must not be zero.
func TruncDiv(a, b decimal.Decimal) decimal.Decimal {
	q, _ := a.QuoRem(b, AmountPlaces)
	return q
}

// PriceLevel is a single price+size entry in an orderbook.
type PriceLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// OrderBook holds one exchange's book for a canonical pair. Bids are sorted
// best (highest) first, asks best (lowest) first. Only the top of book is
// used for pricing; deeper levels are kept for reference.
type OrderBook struct {
	Exchange  ExchangeID   `json:"exchange"`
	Pair      Pair         `json:"pair"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp time.Time    `json:"timestamp"`
}

// BestBid returns the highest bid. ok is false for an empty side or a
// non-positive price.
func (b OrderBook) BestBid() (PriceLevel, bool) {
	if len(b.Bids) == 0 || !b.Bids[0].Price.IsPositive() {
		return PriceLevel{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the lowest ask.
func (b OrderBook) BestAsk() (PriceLevel, bool) {
	if len(b.Asks) == 0 || !b.Asks[0].Price.IsPositive() {
		return PriceLevel{}, false
	}
	return b.Asks[0], true
}

// Liquid reports whether both sides of the book have a usable top level.
func (b OrderBook) Liquid() bool {
	_, bid := b.BestBid()
	_, ask := b.BestAsk()
	return bid && ask
}
