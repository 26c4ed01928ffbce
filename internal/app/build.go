package app

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/cyclebot/internal/arbitrage"
	"github.com/alanyoungcy/cyclebot/internal/config"
	"github.com/alanyoungcy/cyclebot/internal/domain"
	"github.com/alanyoungcy/cyclebot/internal/platform/paper"
	"github.com/alanyoungcy/cyclebot/internal/settlement"
	"github.com/alanyoungcy/cyclebot/internal/symbol"
)

var bps = decimal.NewFromInt(10_000)

// paperTable adds every paper exchange to t with canonical names as tokens,
// including currencies and pairs that only the paper config mentions.
func paperTable(t symbol.Table, pc config.PaperConfig) symbol.Table {
	extra := symbol.Table{
		Currencies: make(map[domain.Currency]map[domain.ExchangeID]string),
		Pairs:      make(map[string]map[domain.ExchangeID]string),
	}
	addCurrency := func(c domain.Currency, id domain.ExchangeID) {
		if extra.Currencies[c] == nil {
			extra.Currencies[c] = make(map[domain.ExchangeID]string)
		}
		extra.Currencies[c][id] = string(c)
	}
	for name, ex := range pc.Exchanges {
		id := domain.ExchangeID(name)
		for c := range ex.Balances {
			addCurrency(domain.Currency(c), id)
		}
		for p := range ex.Books {
			pair, err := domain.ParsePair(p)
			if err != nil {
				continue
			}
			addCurrency(pair.Base, id)
			addCurrency(pair.Quote, id)
			if extra.Pairs[pair.String()] == nil {
				extra.Pairs[pair.String()] = make(map[domain.ExchangeID]string)
			}
			extra.Pairs[pair.String()][id] = pair.String()
		}
	}

	t = t.Merge(extra)
	for name := range pc.Exchanges {
		t = t.Identity(domain.ExchangeID(name))
	}
	return t
}

func symbolOverrides(sc config.SymbolsConfig) symbol.Table {
	t := symbol.Table{
		Currencies: make(map[domain.Currency]map[domain.ExchangeID]string, len(sc.Currencies)),
		Pairs:      make(map[string]map[domain.ExchangeID]string, len(sc.Pairs)),
	}
	for c, byEx := range sc.Currencies {
		m := make(map[domain.ExchangeID]string, len(byEx))
		for ex, token := range byEx {
			m[domain.ExchangeID(ex)] = token
		}
		t.Currencies[domain.Currency(c)] = m
	}
	for p, byEx := range sc.Pairs {
		m := make(map[domain.ExchangeID]string, len(byEx))
		for ex, token := range byEx {
			m[domain.ExchangeID(ex)] = token
		}
		t.Pairs[p] = m
	}
	return t
}

// buildPaper seeds one paper exchange per config entry, in name order.
func buildPaper(pc config.PaperConfig) (*paper.Network, []domain.ExchangeGateway, error) {
	names := make([]string, 0, len(pc.Exchanges))
	for name := range pc.Exchanges {
		names = append(names, name)
	}
	sort.Strings(names)

	network := paper.NewNetwork()
	gws := make([]domain.ExchangeGateway, 0, len(names))
	for _, name := range names {
		p := pc.Exchanges[name]
		ex := network.Add(domain.ExchangeID(name), paper.Options{
			TakerFee:     p.TakerFeeBps.Div(bps),
			WithdrawFees: currencyDecimals(p.WithdrawFees),
			PendingPolls: p.PendingPolls,
		})
		for c, amt := range p.Balances {
			ex.SetBalance(domain.Currency(c), amt)
		}
		for pairName, book := range p.Books {
			pair, err := domain.ParsePair(pairName)
			if err != nil {
				return nil, nil, fmt.Errorf("wire: paper %s: %w", ex.ID(), err)
			}
			ex.SetBook(pair, book.Bid, book.Ask)
		}
		gws = append(gws, ex)
	}
	return network, gws, nil
}

// paperFees mirrors what the paper exchanges charge so projected and
// realised amounts agree.
func paperFees(pc config.PaperConfig) *arbitrage.FeeSchedule {
	out := make(map[domain.ExchangeID]arbitrage.ExchangeFees, len(pc.Exchanges))
	for name, p := range pc.Exchanges {
		out[domain.ExchangeID(name)] = arbitrage.FeesFromBps(p.TakerFeeBps, p.TakerFeeBps, false, currencyDecimals(p.WithdrawFees))
	}
	return arbitrage.NewFeeSchedule(out)
}

func paperTokens(pc config.PaperConfig) settlement.Tokens {
	transfer := settlement.TokenSet{Success: paper.StatusCompleted}
	sets := map[domain.SettlementKind]settlement.TokenSet{
		domain.SettlementSend:    transfer,
		domain.SettlementReceive: transfer,
		domain.SettlementOrder:   {Success: paper.StatusDone},
	}
	out := make(settlement.Tokens, len(pc.Exchanges))
	for name := range pc.Exchanges {
		out[domain.ExchangeID(name)] = sets
	}
	return out
}

// applyTokenOverrides replaces individual (exchange, kind) sets, keeping the
// rest of that exchange's sets.
func applyTokenOverrides(t settlement.Tokens, overrides map[string]map[string]config.TokenConfig) settlement.Tokens {
	for name, kinds := range overrides {
		id := domain.ExchangeID(name)
		merged := make(map[domain.SettlementKind]settlement.TokenSet, len(t[id])+len(kinds))
		for k, s := range t[id] {
			merged[k] = s
		}
		for k, s := range kinds {
			merged[domain.SettlementKind(k)] = settlement.TokenSet{Success: s.Success, Failure: s.Failure}
		}
		t = t.With(id, merged)
	}
	return t
}

func exchangeFees(fc map[string]config.FeeConfig) map[domain.ExchangeID]arbitrage.ExchangeFees {
	out := make(map[domain.ExchangeID]arbitrage.ExchangeFees, len(fc))
	for name, f := range fc {
		out[domain.ExchangeID(name)] = arbitrage.FeesFromBps(f.TakerBps, f.MakerBps, f.UseProductTier, currencyDecimals(f.Send))
	}
	return out
}

func withdrawKeys(in map[string]map[string]string) map[domain.ExchangeID]map[domain.Currency]string {
	if in == nil {
		return nil
	}
	out := make(map[domain.ExchangeID]map[domain.Currency]string, len(in))
	for ex, byCur := range in {
		out[domain.ExchangeID(ex)] = currencyStrings(byCur)
	}
	return out
}

func currencyStrings(in map[string]string) map[domain.Currency]string {
	if in == nil {
		return nil
	}
	out := make(map[domain.Currency]string, len(in))
	for c, v := range in {
		out[domain.Currency(c)] = v
	}
	return out
}

func currencyDecimals(in map[string]decimal.Decimal) map[domain.Currency]decimal.Decimal {
	out := make(map[domain.Currency]decimal.Decimal, len(in))
	for c, v := range in {
		out[domain.Currency(c)] = v
	}
	return out
}
