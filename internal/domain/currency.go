package domain

import (
	"fmt"
	"strings"
)

// Currency is an exchange-agnostic currency symbol such as "BTC".
type Currency string

// ExchangeID identifies an exchange ("gdax", "kraken", ...). It is only ever
// used as a lookup key.
type ExchangeID string

// Pair is a canonical trading pair. Base is quoted in Quote, so "LTC-BTC" is
// the price of one LTC in BTC.
type Pair struct {
	Base  Currency
	Quote Currency
}

// NewPair builds a pair from two currencies.
func NewPair(base, quote Currency) Pair {
	return Pair{Base: base, Quote: quote}
}

// ParsePair parses the canonical "BASE-QUOTE" form.
func ParsePair(s string) (Pair, error) {
	base, quote, ok := strings.Cut(s, "-")
	if !ok || base == "" || quote == "" || strings.Contains(quote, "-") {
		return Pair{}, fmt.Errorf("%w: malformed pair %q", ErrUnknownSymbol, s)
	}
	return Pair{Base: Currency(base), Quote: Currency(quote)}, nil
}

func (p Pair) String() string {
	return string(p.Base) + "-" + string(p.Quote)
}

// Has reports whether c is one side of the pair.
func (p Pair) Has(c Currency) bool {
	return p.Base == c || p.Quote == c
}

// Other returns the side of the pair that is not c.
func (p Pair) Other(c Currency) Currency {
	if p.Base == c {
		return p.Quote
	}
	return p.Base
}

// SideFor returns the order side that spends held on this pair.
func (p Pair) SideFor(held Currency) Side {
	if p.Base == held {
		return SideSell
	}
	return SideBuy
}

// MarshalText lets Pair be used as a JSON map key.
func (p Pair) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Pair) UnmarshalText(b []byte) error {
	parsed, err := ParsePair(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
