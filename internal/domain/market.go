package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Balance is a spendable amount of one currency on one exchange.
type Balance struct {
	Exchange ExchangeID      `json:"exchange"`
	Currency Currency        `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
}

// Product is the exchange's metadata for a tradable pair. Fee percentages are
// only set when the exchange reports a tier for the pair.
type Product struct {
	Exchange    ExchangeID          `json:"exchange"`
	Pair        Pair                `json:"pair"`
	TakerFeePct decimal.NullDecimal `json:"taker_fee_pct"`
	MakerFeePct decimal.NullDecimal `json:"maker_fee_pct"`
	MinSize     decimal.Decimal     `json:"min_size"`
}

// ExchangeSnapshot is everything one exchange reported during a scan pass.
type ExchangeSnapshot struct {
	Exchange ExchangeID         `json:"exchange"`
	Balances []Balance          `json:"balances"`
	Books    map[Pair]OrderBook `json:"books"`
	Products map[Pair]Product   `json:"products"`
}

// Book returns the book for the pair holding both currencies, whichever way
// round the exchange quotes it.
func (s *ExchangeSnapshot) Book(a, b Currency) (OrderBook, bool) {
	if ob, ok := s.Books[NewPair(a, b)]; ok {
		return ob, true
	}
	ob, ok := s.Books[NewPair(b, a)]
	return ob, ok
}

// MarketSnapshot is the joined result of one aggregation pass. It is not
// modified after BuildSnapshot returns.
type MarketSnapshot struct {
	Exchanges map[ExchangeID]*ExchangeSnapshot `json:"exchanges"`
	TakenAt   time.Time                        `json:"taken_at"`
}

// ExchangeIDs returns the exchanges in the snapshot in sorted order.
func (m *MarketSnapshot) ExchangeIDs() []ExchangeID {
	ids := make([]ExchangeID, 0, len(m.Exchanges))
	for id := range m.Exchanges {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
