package arbitrage

import (
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/cyclebot/internal/domain"
)

var (
	ltcBTC = domain.NewPair("LTC", "BTC")
	ltcUSD = domain.NewPair("LTC", "USD")
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func book(pair domain.Pair, bid, ask string) domain.OrderBook {
	ob := domain.OrderBook{Pair: pair}
	if bid != "" {
		ob.Bids = []domain.PriceLevel{{Price: d(bid), Size: d("1000")}}
	}
	if ask != "" {
		ob.Asks = []domain.PriceLevel{{Price: d(ask), Size: d("1000")}}
	}
	return ob
}

type exchangeFixture struct {
	balances map[domain.Currency]string
	books    []domain.OrderBook
}

func snapshot(specs map[domain.ExchangeID]exchangeFixture) *domain.MarketSnapshot {
	snap := &domain.MarketSnapshot{Exchanges: make(map[domain.ExchangeID]*domain.ExchangeSnapshot)}
	for id, spec := range specs {
		es := &domain.ExchangeSnapshot{
			Exchange: id,
			Books:    make(map[domain.Pair]domain.OrderBook),
			Products: make(map[domain.Pair]domain.Product),
		}
		for c, amt := range spec.balances {
			es.Balances = append(es.Balances, domain.Balance{Exchange: id, Currency: c, Amount: d(amt)})
		}
		for _, ob := range spec.books {
			ob.Exchange = id
			es.Books[ob.Pair] = ob
			es.Products[ob.Pair] = domain.Product{Exchange: id, Pair: ob.Pair}
		}
		snap.Exchanges[id] = es
	}
	return snap
}

func flatFees(ids ...domain.ExchangeID) *FeeSchedule {
	m := make(map[domain.ExchangeID]ExchangeFees)
	for _, id := range ids {
		m[id] = ExchangeFees{}
	}
	return NewFeeSchedule(m)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func profitableSnapshot() *domain.MarketSnapshot {
	return snapshot(map[domain.ExchangeID]exchangeFixture{
		"e1": {
			balances: map[domain.Currency]string{"LTC": "1.0"},
			books: []domain.OrderBook{
				book(ltcBTC, "0.0099", "0.01"),
				book(ltcUSD, "100", "101"),
			},
		},
		"e2": {
			balances: map[domain.Currency]string{"LTC": "0"},
			books: []domain.OrderBook{
				book(ltcBTC, "0.0105", "0.0106"),
				book(ltcUSD, "100", "101"),
			},
		},
	})
}

func TestBestCycleWithFees(t *testing.T) {
	fees := NewFeeSchedule(map[domain.ExchangeID]ExchangeFees{
		"e1": {TakerRate: d("0.001"), SendFees: map[domain.Currency]decimal.Decimal{"LTC": d("0.001")}},
		"e2": {TakerRate: d("0.001"), SendFees: map[domain.Currency]decimal.Decimal{"BTC": d("0.00001")}},
	})
	eng := NewEngine(EngineConfig{Fees: fees, Fiat: "USD"}, quietLogger())

	c, ok := eng.BestCycle(profitableSnapshot())
	if !ok {
		t.Fatal("expected a cycle")
	}
	if c.Holding != "LTC" || c.Bridge != "BTC" {
		t.Fatalf("cycle %s->%s, want LTC->BTC", c.Holding, c.Bridge)
	}
	if c.Cold != "e1" || c.Hot != "e2" {
		t.Fatalf("cold=%s hot=%s", c.Cold, c.Hot)
	}
	if c.ID == "" {
		t.Fatal("selected cycle must carry an id")
	}

	// 1 LTC - 0.001 send = 0.999 sold at 0.0105 less 0.1% = 0.01047901 BTC,
	// less 0.00001 send = 0.01046901 BTC bought back at 0.01 less 0.1%.
	checks := []struct {
		name      string
		got, want decimal.Decimal
	}{
		{"hot input", c.HotLeg.InputAmount, d("0.999")},
		{"hot output", c.HotLeg.ExpectedOutput, d("0.01047901")},
		{"cold input", c.ColdLeg.InputAmount, d("0.01046901")},
		{"cold output", c.ColdLeg.ExpectedOutput, d("1.04585409")},
		{"net", c.ProjectedNetAmount, d("0.04585409")},
		{"fiat", c.ProjectedNetFiatValue, d("4.585409")},
	}
	for _, ck := range checks {
		if !ck.got.Equal(ck.want) {
			t.Errorf("%s got=%s want=%s", ck.name, ck.got, ck.want)
		}
	}
	if c.HotLeg.Side != domain.SideSell || c.ColdLeg.Side != domain.SideBuy {
		t.Errorf("sides hot=%s cold=%s", c.HotLeg.Side, c.ColdLeg.Side)
	}
}

func TestBestCycleNoOpportunity(t *testing.T) {
	snap := snapshot(map[domain.ExchangeID]exchangeFixture{
		"e1": {
			balances: map[domain.Currency]string{"LTC": "1.0"},
			books:    []domain.OrderBook{book(ltcBTC, "0.0100", "0.0101"), book(ltcUSD, "100", "101")},
		},
		"e2": {
			books: []domain.OrderBook{book(ltcBTC, "0.0100", "0.0101"), book(ltcUSD, "100", "101")},
		},
	})
	eng := NewEngine(EngineConfig{Fees: flatFees("e1", "e2"), Fiat: "USD"}, quietLogger())
	if c, ok := eng.BestCycle(snap); ok {
		t.Fatalf("expected no cycle, got net=%s", c.ProjectedNetAmount)
	}
}

func TestHotFeeMonotonicity(t *testing.T) {
	base := flatFees("e1", "e2")
	var prev decimal.Decimal
	var first decimal.Decimal
	for i, rate := range []string{"0", "0.0005", "0.001", "0.002", "0.004"} {
		fees := base.WithExchange("e2", ExchangeFees{TakerRate: d(rate)})
		c, ok := NewEngine(EngineConfig{Fees: fees, Fiat: "USD"}, quietLogger()).BestCycle(profitableSnapshot())
		if !ok {
			t.Fatalf("rate %s: no cycle", rate)
		}
		v := c.ProjectedNetFiatValue
		if i == 0 {
			first = v
		} else if v.GreaterThan(prev) {
			t.Fatalf("rate %s: fiat value rose from %s to %s", rate, prev, v)
		}
		prev = v
	}
	if !prev.LessThan(first) {
		t.Fatalf("highest fee %s should be below zero-fee value %s", prev, first)
	}
}

func TestLegTruncatesNotRounds(t *testing.T) {
	eng := NewEngine(EngineConfig{Fees: flatFees("e1"), Fiat: "USD"}, quietLogger())
	es := &domain.ExchangeSnapshot{Exchange: "e1", Products: map[domain.Pair]domain.Product{}}

	leg, ok := eng.leg(es, book(ltcBTC, "1.123456789", ""), "LTC", d("1"))
	if !ok {
		t.Fatal("leg unpriceable")
	}
	if !leg.ExpectedOutput.Equal(d("1.12345678")) {
		t.Fatalf("sell output got=%s want=1.12345678", leg.ExpectedOutput)
	}

	// 1 / 3 = 0.333333333... must truncate to 0.33333333.
	leg, ok = eng.leg(es, book(ltcBTC, "", "3"), "BTC", d("1"))
	if !ok {
		t.Fatal("leg unpriceable")
	}
	if !leg.ExpectedOutput.Equal(d("0.33333333")) {
		t.Fatalf("buy output got=%s want=0.33333333", leg.ExpectedOutput)
	}

	// 2 / 3 = 0.666666666... rounds up to ...67, truncation keeps ...66.
	leg, _ = eng.leg(es, book(ltcBTC, "", "3"), "BTC", d("2"))
	if !leg.ExpectedOutput.Equal(d("0.66666666")) {
		t.Fatalf("buy output got=%s want=0.66666666", leg.ExpectedOutput)
	}
}

func TestMissingBestPriceIsSkipped(t *testing.T) {
	snap := profitableSnapshot()
	// e2 lost its bids: the hot sell cannot be priced.
	snap.Exchanges["e2"].Books[ltcBTC] = book(ltcBTC, "", "0.0106")

	eng := NewEngine(EngineConfig{Fees: flatFees("e1", "e2"), Fiat: "USD"}, quietLogger())
	if _, ok := eng.BestCycle(snap); ok {
		t.Fatal("a cycle through a book without bids must be skipped")
	}
}

func TestMissingFiatMarketIsSkipped(t *testing.T) {
	snap := profitableSnapshot()
	delete(snap.Exchanges["e1"].Books, ltcUSD)

	eng := NewEngine(EngineConfig{Fees: flatFees("e1", "e2"), Fiat: "USD"}, quietLogger())
	if _, ok := eng.BestCycle(snap); ok {
		t.Fatal("a cycle that cannot be valued in fiat must be skipped")
	}
}

func TestPicksBestHotExchangeAmongMany(t *testing.T) {
	snap := profitableSnapshot()
	snap.Exchanges["e3"] = &domain.ExchangeSnapshot{
		Exchange: "e3",
		Books:    map[domain.Pair]domain.OrderBook{ltcBTC: book(ltcBTC, "0.0110", "0.0111")},
		Products: map[domain.Pair]domain.Product{},
	}

	eng := NewEngine(EngineConfig{Fees: flatFees("e1", "e2", "e3"), Fiat: "USD"}, quietLogger())
	if n := len(eng.Candidates(snap)); n != 2 {
		t.Fatalf("candidates=%d want 2", n)
	}
	c, ok := eng.BestCycle(snap)
	if !ok || c.Hot != "e3" {
		t.Fatalf("best hot=%s ok=%v, want e3", c.Hot, ok)
	}
}

func TestMaxStartCapsAmount(t *testing.T) {
	snap := profitableSnapshot()
	snap.Exchanges["e1"].Balances[0].Amount = d("50")

	eng := NewEngine(EngineConfig{
		Fees:     flatFees("e1", "e2"),
		Fiat:     "USD",
		MaxStart: map[domain.Currency]decimal.Decimal{"LTC": d("2")},
	}, quietLogger())
	c, ok := eng.BestCycle(snap)
	if !ok {
		t.Fatal("expected a cycle")
	}
	if !c.StartingAmount.Equal(d("2")) {
		t.Fatalf("starting=%s want 2", c.StartingAmount)
	}
}

func TestMinSizeSkipsCandidate(t *testing.T) {
	snap := profitableSnapshot()
	snap.Exchanges["e2"].Products[ltcBTC] = domain.Product{Exchange: "e2", Pair: ltcBTC, MinSize: d("5")}

	eng := NewEngine(EngineConfig{Fees: flatFees("e1", "e2"), Fiat: "USD"}, quietLogger())
	if _, ok := eng.BestCycle(snap); ok {
		t.Fatal("1 LTC is below the 5 LTC minimum and must be skipped")
	}
}
