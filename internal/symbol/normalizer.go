// Package symbol translates between canonical currency and pair names and the
// tokens each exchange uses for them.
package symbol

import (
	"fmt"
	"sort"

	"github.com/alanyoungcy/cyclebot/internal/domain"
)

// Table is the static mapping the Normalizer is built from. Currencies maps a
// canonical currency to its token per exchange; Pairs does the same for
// canonical "BASE-QUOTE" pairs.
type Table struct {
	Currencies map[domain.Currency]map[domain.ExchangeID]string
	Pairs      map[string]map[domain.ExchangeID]string
}

type exchangeTable struct {
	currencyOut map[domain.Currency]string
	currencyIn  map[string]domain.Currency
	pairOut     map[domain.Pair]string
	pairIn      map[string]domain.Pair
}

// Normalizer is an immutable lookup service. It is safe for concurrent use.
type Normalizer struct {
	exchanges map[domain.ExchangeID]*exchangeTable
	pairs     []domain.Pair
}

// New validates t and builds forward and reverse indexes. A token that two
// canonical names map to on the same exchange is rejected so that both
// directions stay exact inverses.
func New(t Table) (*Normalizer, error) {
	n := &Normalizer{exchanges: make(map[domain.ExchangeID]*exchangeTable)}

	ex := func(id domain.ExchangeID) *exchangeTable {
		et, ok := n.exchanges[id]
		if !ok {
			et = &exchangeTable{
				currencyOut: make(map[domain.Currency]string),
				currencyIn:  make(map[string]domain.Currency),
				pairOut:     make(map[domain.Pair]string),
				pairIn:      make(map[string]domain.Pair),
			}
			n.exchanges[id] = et
		}
		return et
	}

	for cur, byEx := range t.Currencies {
		for id, token := range byEx {
			if token == "" {
				return nil, fmt.Errorf("symbol: %s on %s: empty token", cur, id)
			}
			et := ex(id)
			if prev, dup := et.currencyIn[token]; dup && prev != cur {
				return nil, fmt.Errorf("symbol: %s token %q maps to both %s and %s", id, token, prev, cur)
			}
			et.currencyOut[cur] = token
			et.currencyIn[token] = cur
		}
	}

	seen := make(map[domain.Pair]bool)
	for name, byEx := range t.Pairs {
		pair, err := domain.ParsePair(name)
		if err != nil {
			return nil, fmt.Errorf("symbol: %w", err)
		}
		for id, token := range byEx {
			if token == "" {
				return nil, fmt.Errorf("symbol: %s on %s: empty token", pair, id)
			}
			et := ex(id)
			if _, ok := et.currencyOut[pair.Base]; !ok {
				return nil, fmt.Errorf("symbol: pair %s on %s: %w: currency %s", pair, id, domain.ErrUnknownSymbol, pair.Base)
			}
			if _, ok := et.currencyOut[pair.Quote]; !ok {
				return nil, fmt.Errorf("symbol: pair %s on %s: %w: currency %s", pair, id, domain.ErrUnknownSymbol, pair.Quote)
			}
			if prev, dup := et.pairIn[token]; dup && prev != pair {
				return nil, fmt.Errorf("symbol: %s token %q maps to both %s and %s", id, token, prev, pair)
			}
			et.pairOut[pair] = token
			et.pairIn[token] = pair
		}
		if !seen[pair] {
			seen[pair] = true
			n.pairs = append(n.pairs, pair)
		}
	}
	sortPairs(n.pairs)

	return n, nil
}

func (n *Normalizer) table(ex domain.ExchangeID) (*exchangeTable, error) {
	et, ok := n.exchanges[ex]
	if !ok {
		return nil, fmt.Errorf("symbol: %w: %q", domain.ErrUnknownExchange, ex)
	}
	return et, nil
}

// ToExchangeCurrency returns ex's token for c.
func (n *Normalizer) ToExchangeCurrency(c domain.Currency, ex domain.ExchangeID) (string, error) {
	et, err := n.table(ex)
	if err != nil {
		return "", err
	}
	token, ok := et.currencyOut[c]
	if !ok {
		return "", fmt.Errorf("symbol: %w: currency %s on %s", domain.ErrUnknownSymbol, c, ex)
	}
	return token, nil
}

// ToCanonicalCurrency is the inverse of ToExchangeCurrency.
func (n *Normalizer) ToCanonicalCurrency(token string, ex domain.ExchangeID) (domain.Currency, error) {
	et, err := n.table(ex)
	if err != nil {
		return "", err
	}
	c, ok := et.currencyIn[token]
	if !ok {
		return "", fmt.Errorf("symbol: %w: token %q on %s", domain.ErrUnknownSymbol, token, ex)
	}
	return c, nil
}

// ToExchangePair returns ex's token for p.
func (n *Normalizer) ToExchangePair(p domain.Pair, ex domain.ExchangeID) (string, error) {
	et, err := n.table(ex)
	if err != nil {
		return "", err
	}
	token, ok := et.pairOut[p]
	if !ok {
		return "", fmt.Errorf("symbol: %w: pair %s on %s", domain.ErrUnknownSymbol, p, ex)
	}
	return token, nil
}

// ToCanonicalPair is the inverse of ToExchangePair.
func (n *Normalizer) ToCanonicalPair(token string, ex domain.ExchangeID) (domain.Pair, error) {
	et, err := n.table(ex)
	if err != nil {
		return domain.Pair{}, err
	}
	p, ok := et.pairIn[token]
	if !ok {
		return domain.Pair{}, fmt.Errorf("symbol: %w: pair token %q on %s", domain.ErrUnknownSymbol, token, ex)
	}
	return p, nil
}

// PairFor returns the canonical pair that trades a against b, in whichever
// orientation the table defines it.
func (n *Normalizer) PairFor(a, b domain.Currency) (domain.Pair, error) {
	for _, p := range n.pairs {
		if p.Has(a) && p.Has(b) && a != b {
			return p, nil
		}
	}
	return domain.Pair{}, fmt.Errorf("symbol: %w: no pair for %s and %s", domain.ErrUnknownSymbol, a, b)
}

// Pairs returns the canonical pairs mapped for ex, sorted.
func (n *Normalizer) Pairs(ex domain.ExchangeID) ([]domain.Pair, error) {
	et, err := n.table(ex)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Pair, 0, len(et.pairOut))
	for p := range et.pairOut {
		out = append(out, p)
	}
	sortPairs(out)
	return out, nil
}

// Currencies returns the canonical currencies mapped for ex, sorted.
func (n *Normalizer) Currencies(ex domain.ExchangeID) ([]domain.Currency, error) {
	et, err := n.table(ex)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Currency, 0, len(et.currencyOut))
	for c := range et.currencyOut {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Exchanges lists every exchange in the table, sorted.
func (n *Normalizer) Exchanges() []domain.ExchangeID {
	out := make([]domain.ExchangeID, 0, len(n.exchanges))
	for id := range n.exchanges {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Knows reports whether ex appears in the table.
func (n *Normalizer) Knows(ex domain.ExchangeID) bool {
	_, ok := n.exchanges[ex]
	return ok
}

func sortPairs(ps []domain.Pair) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].String() < ps[j].String() })
}
