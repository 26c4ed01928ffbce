package settlement

import (
	"fmt"
	"slices"

	"github.com/alanyoungcy/cyclebot/internal/domain"
	"github.com/alanyoungcy/cyclebot/internal/symbol"
)

// TokenSet holds the raw exchange statuses that end a settlement. An empty
// Failure list means only Success ends the wait.
type TokenSet struct {
	Success string   `toml:"success"`
	Failure []string `toml:"failure"`
}

func (s TokenSet) classify(raw string) domain.SettlementStatus {
	switch {
	case raw == s.Success:
		return domain.SettlementSucceeded
	case slices.Contains(s.Failure, raw):
		return domain.SettlementFailed
	default:
		return domain.SettlementPending
	}
}

// Tokens maps (exchange, kind) to its terminal statuses.
type Tokens map[domain.ExchangeID]map[domain.SettlementKind]TokenSet

// DefaultTokens returns the statuses kraken and gdax report.
func DefaultTokens() Tokens {
	return Tokens{
		symbol.Kraken: {
			domain.SettlementSend:    {Success: "Success", Failure: []string{"Failure"}},
			domain.SettlementReceive: {Success: "Success", Failure: []string{"Failure"}},
			domain.SettlementOrder:   {Success: "closed", Failure: []string{"canceled", "expired"}},
		},
		symbol.Gdax: {
			domain.SettlementSend:    {Success: "completed", Failure: []string{"canceled"}},
			domain.SettlementReceive: {Success: "completed", Failure: []string{"canceled"}},
			domain.SettlementOrder:   {Success: "done", Failure: []string{"rejected", "canceled"}},
		},
	}
}

// With returns a copy of t with ex's sets replaced.
func (t Tokens) With(ex domain.ExchangeID, sets map[domain.SettlementKind]TokenSet) Tokens {
	out := make(Tokens, len(t)+1)
	for id, s := range t {
		out[id] = s
	}
	out[ex] = sets
	return out
}

// Lookup returns the set for (ex, kind).
func (t Tokens) Lookup(ex domain.ExchangeID, kind domain.SettlementKind) (TokenSet, error) {
	byKind, ok := t[ex]
	if !ok {
		return TokenSet{}, fmt.Errorf("settlement: %w: %s", domain.ErrUnknownExchange, ex)
	}
	set, ok := byKind[kind]
	if !ok || set.Success == "" {
		return TokenSet{}, fmt.Errorf("settlement: no %s token for %s", kind, ex)
	}
	return set, nil
}

// Validate checks that every exchange in ids has a success token for every kind.
func (t Tokens) Validate(ids []domain.ExchangeID) error {
	for _, id := range ids {
		for _, kind := range []domain.SettlementKind{domain.SettlementSend, domain.SettlementReceive, domain.SettlementOrder} {
			if _, err := t.Lookup(id, kind); err != nil {
				return err
			}
		}
	}
	return nil
}
