package symbol

import "github.com/alanyoungcy/cyclebot/internal/domain"

// Exchange ids with built-in tables.
const (
	Gdax   domain.ExchangeID = "gdax"
	Kraken domain.ExchangeID = "kraken"
)

// DefaultTable returns the gdax/kraken mapping. Kraken prefixes crypto assets
// with X and fiat with Z; gdax uses the canonical names.
func DefaultTable() Table {
	return Table{
		Currencies: map[domain.Currency]map[domain.ExchangeID]string{
			"BTC": {Gdax: "BTC", Kraken: "XXBT"},
			"ETH": {Gdax: "ETH", Kraken: "XETH"},
			"LTC": {Gdax: "LTC", Kraken: "XLTC"},
			"USD": {Gdax: "USD", Kraken: "ZUSD"},
		},
		Pairs: map[string]map[domain.ExchangeID]string{
			"LTC-BTC": {Gdax: "LTC-BTC", Kraken: "XLTCXXBT"},
			"ETH-BTC": {Gdax: "ETH-BTC", Kraken: "XETHXXBT"},
			"LTC-USD": {Gdax: "LTC-USD", Kraken: "XLTCZUSD"},
			"BTC-USD": {Gdax: "BTC-USD", Kraken: "XXBTZUSD"},
			"ETH-USD": {Gdax: "ETH-USD", Kraken: "XETHZUSD"},
		},
	}
}

// Identity adds ex to t with every canonical name mapped to itself. Paper
// exchanges use it.
func (t Table) Identity(ex domain.ExchangeID) Table {
	for c, byEx := range t.Currencies {
		byEx[ex] = string(c)
	}
	for p, byEx := range t.Pairs {
		byEx[ex] = p
	}
	return t
}

// Merge overlays extra on top of t, replacing individual exchange tokens.
func (t Table) Merge(extra Table) Table {
	if t.Currencies == nil {
		t.Currencies = make(map[domain.Currency]map[domain.ExchangeID]string)
	}
	if t.Pairs == nil {
		t.Pairs = make(map[string]map[domain.ExchangeID]string)
	}
	for c, byEx := range extra.Currencies {
		if t.Currencies[c] == nil {
			t.Currencies[c] = make(map[domain.ExchangeID]string)
		}
		for ex, token := range byEx {
			t.Currencies[c][ex] = token
		}
	}
	for p, byEx := range extra.Pairs {
		if t.Pairs[p] == nil {
			t.Pairs[p] = make(map[domain.ExchangeID]string)
		}
		for ex, token := range byEx {
			t.Pairs[p][ex] = token
		}
	}
	return t
}
