// Package arbitrage searches a market snapshot for the most profitable
// two-exchange cycle net of trading and withdrawal fees.
package arbitrage

import (
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/cyclebot/internal/domain"
)

// Engine enumerates cycles over every (cold exchange, holding, hot exchange,
// bridge) combination in a snapshot. It holds no per-pass state.
type Engine struct {
	fees     *FeeSchedule
	fiat     domain.Currency
	maker    bool
	maxStart map[domain.Currency]decimal.Decimal
	logger   *slog.Logger
}

// EngineConfig holds the search parameters.
type EngineConfig struct {
	Fees *FeeSchedule
	// Fiat is the currency cycles are valued in.
	Fiat domain.Currency
	// Maker prices both legs at maker rates.
	Maker bool
	// MaxStart caps how much of a holding a single cycle may move.
	MaxStart map[domain.Currency]decimal.Decimal
}

// NewEngine creates an Engine from cfg.
func NewEngine(cfg EngineConfig, logger *slog.Logger) *Engine {
	return &Engine{
		fees:     cfg.Fees,
		fiat:     cfg.Fiat,
		maker:    cfg.Maker,
		maxStart: cfg.MaxStart,
		logger:   logger.With(slog.String("component", "cycle_search")),
	}
}

// BestCycle returns the candidate with the strictly greatest fiat value. ok
// is false when no candidate nets a positive amount.
func (e *Engine) BestCycle(snap *domain.MarketSnapshot) (domain.Cycle, bool) {
	return e.BestCycleWhere(snap, nil)
}

// BestCycleWhere is BestCycle restricted to candidates keep accepts. A nil
// keep accepts every candidate.
func (e *Engine) BestCycleWhere(snap *domain.MarketSnapshot, keep func(domain.Cycle) bool) (domain.Cycle, bool) {
	var (
		best  domain.Cycle
		found bool
	)
	for _, c := range e.Candidates(snap) {
		if keep != nil && !keep(c) {
			continue
		}
		if !found || c.ProjectedNetFiatValue.GreaterThan(best.ProjectedNetFiatValue) {
			best = c
			found = true
		}
	}
	if found {
		best.ID = uuid.New().String()
	}
	return best, found
}

// Candidates returns every cycle with a positive projected net amount, in a
// deterministic order.
func (e *Engine) Candidates(snap *domain.MarketSnapshot) []domain.Cycle {
	if snap == nil {
		return nil
	}
	var out []domain.Cycle
	ids := snap.ExchangeIDs()

	for _, coldID := range ids {
		cold := snap.Exchanges[coldID]
		balances := append([]domain.Balance(nil), cold.Balances...)
		sort.Slice(balances, func(i, j int) bool { return balances[i].Currency < balances[j].Currency })

		for _, bal := range balances {
			if bal.Currency == e.fiat || !bal.Amount.IsPositive() {
				continue
			}
			for _, hotID := range ids {
				if hotID == coldID {
					continue
				}
				hot := snap.Exchanges[hotID]
				for _, hotPair := range sortedPairs(hot.Books) {
					if !hotPair.Has(bal.Currency) || hotPair.Has(e.fiat) {
						continue
					}
					c, ok := e.evaluate(cold, hot, bal, hotPair)
					if !ok {
						continue
					}
					out = append(out, c)
				}
			}
		}
	}
	return out
}

func (e *Engine) evaluate(cold, hot *domain.ExchangeSnapshot, bal domain.Balance, hotPair domain.Pair) (domain.Cycle, bool) {
	holding := bal.Currency
	bridge := hotPair.Other(holding)
	log := e.logger.With(
		slog.String("cold", string(cold.Exchange)),
		slog.String("hot", string(hot.Exchange)),
		slog.String("holding", string(holding)),
		slog.String("bridge", string(bridge)),
	)

	coldBook, ok := cold.Book(holding, bridge)
	if !ok {
		return domain.Cycle{}, false
	}

	coldSendFee, err := e.fees.SendFee(cold.Exchange, holding)
	if err != nil {
		log.Debug("skip: no fee table", slog.String("error", err.Error()))
		return domain.Cycle{}, false
	}
	hotSendFee, err := e.fees.SendFee(hot.Exchange, bridge)
	if err != nil {
		log.Debug("skip: no fee table", slog.String("error", err.Error()))
		return domain.Cycle{}, false
	}

	start := domain.Truncate(bal.Amount)
	if limit, ok := e.maxStart[holding]; ok && limit.IsPositive() && start.GreaterThan(limit) {
		start = domain.Truncate(limit)
	}

	arrivingHot := domain.Truncate(start.Sub(coldSendFee))
	if !arrivingHot.IsPositive() {
		return domain.Cycle{}, false
	}
	hotLeg, ok := e.leg(hot, hot.Books[hotPair], holding, arrivingHot)
	if !ok {
		log.Debug("skip: hot leg unpriceable")
		return domain.Cycle{}, false
	}

	arrivingCold := domain.Truncate(hotLeg.ExpectedOutput.Sub(hotSendFee))
	if !arrivingCold.IsPositive() {
		return domain.Cycle{}, false
	}
	coldLeg, ok := e.leg(cold, coldBook, bridge, arrivingCold)
	if !ok {
		log.Debug("skip: cold leg unpriceable")
		return domain.Cycle{}, false
	}

	net := domain.Truncate(coldLeg.ExpectedOutput.Sub(start))
	if !net.IsPositive() {
		return domain.Cycle{}, false
	}

	fiatValue, rate, ok := e.fiatValue(cold, holding, net)
	if !ok {
		log.Debug("skip: no fiat market for holding")
		return domain.Cycle{}, false
	}

	return domain.Cycle{
		Holding:               holding,
		Bridge:                bridge,
		Cold:                  cold.Exchange,
		Hot:                   hot.Exchange,
		StartingAmount:        start,
		HotLeg:                hotLeg,
		ColdLeg:               coldLeg,
		ColdSendFee:           coldSendFee,
		HotSendFee:            hotSendFee,
		ProjectedNetAmount:    net,
		ProjectedNetFiatValue: fiatValue,
		FiatRate:              rate,
	}, true
}

// leg prices converting amount of held on one exchange at the top of book.
// Selling takes the best bid, buying takes the best ask. The fee is charged
// on the gross output.
func (e *Engine) leg(es *domain.ExchangeSnapshot, ob domain.OrderBook, held domain.Currency, amount decimal.Decimal) (domain.TradeLeg, bool) {
	side := ob.Pair.SideFor(held)

	var price, gross, baseVolume decimal.Decimal
	switch side {
	case domain.SideSell:
		bid, ok := ob.BestBid()
		if !ok {
			return domain.TradeLeg{}, false
		}
		price = bid.Price
		gross = domain.Truncate(amount.Mul(price))
		baseVolume = amount
	default:
		ask, ok := ob.BestAsk()
		if !ok {
			return domain.TradeLeg{}, false
		}
		price = ask.Price
		gross = domain.TruncDiv(amount, price)
		baseVolume = gross
	}

	var product *domain.Product
	if p, ok := es.Products[ob.Pair]; ok {
		product = &p
		if p.MinSize.IsPositive() && baseVolume.LessThan(p.MinSize) {
			return domain.TradeLeg{}, false
		}
	}
	rate, err := e.fees.TradingRate(es.Exchange, product, e.maker)
	if err != nil {
		return domain.TradeLeg{}, false
	}

	out := domain.Truncate(gross.Sub(gross.Mul(rate)))
	if !out.IsPositive() {
		return domain.TradeLeg{}, false
	}
	return domain.TradeLeg{
		Exchange:       es.Exchange,
		Pair:           ob.Pair,
		Side:           side,
		Input:          held,
		Output:         ob.Pair.Other(held),
		InputAmount:    amount,
		Price:          price,
		Fee:            gross.Sub(out),
		ExpectedOutput: out,
	}, true
}

// fiatValue converts amount of c to fiat on es: multiply by the best bid of
// C-FIAT, or divide by the best ask of FIAT-C. rate is the fiat value of one
// unit of c.
func (e *Engine) fiatValue(es *domain.ExchangeSnapshot, c domain.Currency, amount decimal.Decimal) (value, rate decimal.Decimal, ok bool) {
	ob, found := es.Book(c, e.fiat)
	if !found {
		return decimal.Zero, decimal.Zero, false
	}
	if ob.Pair.Base == c {
		bid, ok := ob.BestBid()
		if !ok {
			return decimal.Zero, decimal.Zero, false
		}
		return domain.Truncate(amount.Mul(bid.Price)), bid.Price, true
	}
	ask, ok := ob.BestAsk()
	if !ok {
		return decimal.Zero, decimal.Zero, false
	}
	return domain.TruncDiv(amount, ask.Price), domain.TruncDiv(decimal.NewFromInt(1), ask.Price), true
}

func sortedPairs(books map[domain.Pair]domain.OrderBook) []domain.Pair {
	out := make([]domain.Pair, 0, len(books))
	for p := range books {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
