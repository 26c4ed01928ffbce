package paper

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/cyclebot/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var ltcBTC = domain.NewPair("LTC", "BTC")

func TestSendSettlesAfterPolls(t *testing.T) {
	ctx := context.Background()
	net := NewNetwork()
	src := net.Add("e1", Options{
		WithdrawFees: map[domain.Currency]decimal.Decimal{"LTC": d("0.001")},
		PendingPolls: 1,
	})
	dst := net.Add("e2", Options{PendingPolls: 1})
	src.SetBalance("LTC", d("1"))

	addr, err := dst.Address(ctx, "LTC")
	if err != nil {
		t.Fatal(err)
	}
	h, err := src.Send(ctx, "LTC", d("1"), addr)
	if err != nil {
		t.Fatal(err)
	}
	if !src.Balance("LTC").IsZero() {
		t.Fatalf("source LTC=%s", src.Balance("LTC"))
	}

	rep, err := src.SendStatus(ctx, "LTC", h.ID)
	if err != nil || rep.Status != StatusPending {
		t.Fatalf("first poll=%+v err=%v", rep, err)
	}
	rep, err = src.SendStatus(ctx, "LTC", h.ID)
	if err != nil || rep.Status != StatusCompleted || rep.Reference == "" {
		t.Fatalf("second poll=%+v err=%v", rep, err)
	}

	in, err := dst.ReceiveStatus(ctx, "LTC", rep.Reference)
	if err != nil || in.Status != StatusPending {
		t.Fatalf("deposit first poll=%+v err=%v", in, err)
	}
	if !dst.Balance("LTC").IsZero() {
		t.Fatal("deposit credited before it completed")
	}
	in, err = dst.ReceiveStatus(ctx, "LTC", rep.Reference)
	if err != nil || in.Status != StatusCompleted {
		t.Fatalf("deposit second poll=%+v err=%v", in, err)
	}
	if got := dst.Balance("LTC"); !got.Equal(d("0.999")) {
		t.Fatalf("destination LTC=%s", got)
	}
}

func TestSendRejectsBadRequests(t *testing.T) {
	ctx := context.Background()
	net := NewNetwork()
	src := net.Add("e1", Options{})
	dst := net.Add("e2", Options{})
	src.SetBalance("LTC", d("1"))
	addr, _ := dst.Address(ctx, "LTC")

	cases := map[string]struct {
		amount decimal.Decimal
		to     domain.Address
	}{
		"zero amount":      {d("0"), addr},
		"insufficient":     {d("2"), addr},
		"unknown exchange": {d("1"), domain.Address{Exchange: "e9", Currency: "LTC"}},
		"wrong currency":   {d("1"), domain.Address{Exchange: "e2", Currency: "BTC"}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := src.Send(ctx, "LTC", tc.amount, tc.to)
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("err=%v", err)
			}
		})
	}
	if !src.Balance("LTC").Equal(d("1")) {
		t.Fatalf("balance moved: %s", src.Balance("LTC"))
	}
}

func TestPlaceOrderFillsAtTopOfBook(t *testing.T) {
	ctx := context.Background()
	ex := NewNetwork().Add("e1", Options{TakerFee: d("0.003")})
	ex.SetBalance("LTC", d("1"))
	ex.SetBook(ltcBTC, d("0.0105"), d("0.0106"))

	h, err := ex.PlaceOrder(ctx, domain.OrderRequest{Pair: ltcBTC, Side: domain.SideSell, Amount: d("1")})
	if err != nil {
		t.Fatal(err)
	}
	if !ex.Balance("BTC").IsZero() {
		t.Fatal("proceeds credited before the order reported done")
	}
	rep, err := ex.OrderStatus(ctx, h.OrderID)
	if err != nil || rep.Status != StatusDone {
		t.Fatalf("status=%+v err=%v", rep, err)
	}
	// 0.0105 less 0.3%.
	if got := ex.Balance("BTC"); !got.Equal(d("0.0104685")) {
		t.Fatalf("BTC=%s", got)
	}
	if !ex.Balance("LTC").IsZero() {
		t.Fatalf("LTC=%s", ex.Balance("LTC"))
	}
}

func TestPlaceOrderBuySpendsQuote(t *testing.T) {
	ctx := context.Background()
	ex := NewNetwork().Add("e1", Options{})
	ex.SetBalance("BTC", d("0.02"))
	ex.SetBook(ltcBTC, d("0.0099"), d("0.01"))

	h, err := ex.PlaceOrder(ctx, domain.OrderRequest{Pair: ltcBTC, Side: domain.SideBuy, Amount: d("0.02")})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ex.OrderStatus(ctx, h.OrderID); err != nil {
		t.Fatal(err)
	}
	if got := ex.Balance("LTC"); !got.Equal(d("2")) {
		t.Fatalf("LTC=%s", got)
	}
}

func TestPlaceOrderRejects(t *testing.T) {
	ctx := context.Background()
	ex := NewNetwork().Add("e1", Options{})
	ex.SetBalance("LTC", d("1"))
	ex.SetBook(ltcBTC, decimal.Zero, d("0.01"))

	cases := map[string]domain.OrderRequest{
		"no market":    {Pair: domain.NewPair("ETH", "BTC"), Side: domain.SideSell, Amount: d("1")},
		"no bids":      {Pair: ltcBTC, Side: domain.SideSell, Amount: d("1")},
		"insufficient": {Pair: ltcBTC, Side: domain.SideBuy, Amount: d("1")},
		"zero amount":  {Pair: ltcBTC, Side: domain.SideSell, Amount: d("0")},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ex.PlaceOrder(ctx, req); !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("err=%v", err)
			}
		})
	}
}

func TestInjectedFailures(t *testing.T) {
	ctx := context.Background()
	ex := NewNetwork().Add("e1", Options{})
	ex.SetBalance("LTC", d("1"))
	ex.SetBook(ltcBTC, d("0.01"), d("0.011"))

	ex.FailSubmissions(errors.New("maintenance"))
	_, err := ex.PlaceOrder(ctx, domain.OrderRequest{Pair: ltcBTC, Side: domain.SideSell, Amount: d("1")})
	if !errors.Is(err, domain.ErrGatewayUnavailable) {
		t.Fatalf("err=%v", err)
	}
	ex.FailSubmissions(nil)

	h, err := ex.PlaceOrder(ctx, domain.OrderRequest{Pair: ltcBTC, Side: domain.SideSell, Amount: d("1")})
	if err != nil {
		t.Fatal(err)
	}
	ex.FailStatusQueries(1)
	if _, err := ex.OrderStatus(ctx, h.OrderID); !domain.IsRetriable(err) {
		t.Fatalf("err=%v", err)
	}
	rep, err := ex.OrderStatus(ctx, h.OrderID)
	if err != nil || rep.Status != StatusDone {
		t.Fatalf("status=%+v err=%v", rep, err)
	}
}

func TestStatusOfUnknownIDIsNotFound(t *testing.T) {
	ctx := context.Background()
	ex := NewNetwork().Add("e1", Options{})
	for name, query := range map[string]func() (domain.StatusReport, error){
		"send":    func() (domain.StatusReport, error) { return ex.SendStatus(ctx, "LTC", "nope") },
		"receive": func() (domain.StatusReport, error) { return ex.ReceiveStatus(ctx, "LTC", "nope") },
		"order":   func() (domain.StatusReport, error) { return ex.OrderStatus(ctx, "nope") },
	} {
		rep, err := query()
		if err != nil || rep.Found {
			t.Fatalf("%s: report=%+v err=%v", name, rep, err)
		}
	}
}

func TestOrderBookAndProducts(t *testing.T) {
	ctx := context.Background()
	ex := NewNetwork().Add("e1", Options{})
	ex.SetBook(ltcBTC, d("0.01"), d("0.011"))
	ex.SetBook(domain.NewPair("BTC", "USD"), d("100"), d("101"))

	ob, err := ex.OrderBook(ctx, ltcBTC, 1)
	if err != nil {
		t.Fatal(err)
	}
	if bid, ok := ob.BestBid(); !ok || !bid.Price.Equal(d("0.01")) {
		t.Fatalf("bid=%+v", bid)
	}

	empty, err := ex.OrderBook(ctx, domain.NewPair("ETH", "BTC"), 1)
	if err != nil || len(empty.Bids) != 0 || len(empty.Asks) != 0 {
		t.Fatalf("book=%+v err=%v", empty, err)
	}

	products, err := ex.Products(ctx)
	if err != nil || len(products) != 2 {
		t.Fatalf("products=%v err=%v", products, err)
	}
	if products[0].Pair.String() != "BTC-USD" {
		t.Fatalf("first product=%s", products[0].Pair)
	}
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ex := NewNetwork().Add("e1", Options{})
	if _, err := ex.Balances(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
}
