package gdax

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/cyclebot/internal/crypto"
	"github.com/alanyoungcy/cyclebot/internal/domain"
	"github.com/alanyoungcy/cyclebot/internal/symbol"
)

var testCreds = crypto.Credentials{Key: "cb-key", Secret: "Y29pbmJhc2Utc2VjcmV0", Passphrase: "pp"}

type route struct {
	status int
	body   string
}

// fakeCoinbase answers by "METHOD /request-uri" and verifies signatures.
type fakeCoinbase struct {
	t      *testing.T
	mu     sync.Mutex
	routes map[string]route
	bodies map[string][]byte
}

func (f *fakeCoinbase) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := r.Method + " " + r.URL.RequestURI()
	body, _ := io.ReadAll(r.Body)
	f.bodies[key] = body

	want, _ := testCreds.CoinbaseHeadersAt(r.Method, r.URL.RequestURI(), string(body), 1700000000)
	for h, v := range want {
		if r.Header.Get(h) != v {
			f.t.Errorf("%s: header %s=%q want %q", key, h, r.Header.Get(h), v)
		}
	}

	rt, ok := f.routes[key]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"message":"NotFound"}`)
		return
	}
	if rt.status != 0 {
		w.WriteHeader(rt.status)
	}
	io.WriteString(w, rt.body)
}

func (f *fakeCoinbase) body(key string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[key]
}

func newTestGateway(t *testing.T, routes map[string]route) (*Gateway, *fakeCoinbase) {
	t.Helper()
	fake := &fakeCoinbase{t: t, routes: routes, bodies: map[string][]byte{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	norm, err := symbol.New(symbol.DefaultTable())
	if err != nil {
		t.Fatal(err)
	}
	client := NewClient(srv.URL, testCreds, 5*time.Second)
	client.now = func() time.Time { return time.Unix(1700000000, 0) }
	return NewGateway(symbol.Gdax, client, norm, slog.New(slog.NewTextHandler(io.Discard, nil))), fake
}

var ltcbtc = domain.NewPair("LTC", "BTC")

func TestProducts(t *testing.T) {
	gw, _ := newTestGateway(t, map[string]route{
		"GET /products": {body: `[
			{"id":"LTC-BTC","base_currency":"LTC","quote_currency":"BTC","base_min_size":"0.1","status":"online"},
			{"id":"ETH-BTC","base_currency":"ETH","quote_currency":"BTC","base_min_size":"0.01","status":"online","trading_disabled":true},
			{"id":"DOGE-USD","base_currency":"DOGE","quote_currency":"USD","base_min_size":"1","status":"online"}
		]`},
	})
	products, err := gw.Products(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(products) != 1 || products[0].Pair != ltcbtc || products[0].TakerFeePct.Valid {
		t.Fatalf("products=%+v", products)
	}
}

func TestBalancesUseAvailable(t *testing.T) {
	gw, _ := newTestGateway(t, map[string]route{
		"GET /accounts": {body: `[
			{"id":"a1","currency":"LTC","balance":"2.0","available":"1.5","hold":"0.5"},
			{"id":"a2","currency":"XRP","balance":"5","available":"5","hold":"0"}
		]`},
	})
	bals, err := gw.Balances(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(bals) != 1 || bals[0].Currency != "LTC" || !bals[0].Amount.Equal(decimal.RequireFromString("1.5")) {
		t.Fatalf("balances=%+v", bals)
	}
}

func TestOrderBookTopOfBook(t *testing.T) {
	gw, _ := newTestGateway(t, map[string]route{
		"GET /products/LTC-BTC/book?level=1": {body: `{"sequence":1,"bids":[["0.0105","3.1",2]],"asks":[["0.0106","1.2",1]]}`},
	})
	ob, err := gw.OrderBook(context.Background(), ltcbtc, 1)
	if err != nil {
		t.Fatal(err)
	}
	bid, _ := ob.BestBid()
	ask, _ := ob.BestAsk()
	if !bid.Price.Equal(decimal.RequireFromString("0.0105")) || !ask.Size.Equal(decimal.RequireFromString("1.2")) {
		t.Fatalf("book=%+v", ob)
	}
}

func TestOrderBookDepthIsCut(t *testing.T) {
	gw, _ := newTestGateway(t, map[string]route{
		"GET /products/LTC-BTC/book?level=2": {body: `{"bids":[["3","1",1],["2","1",1],["1","1",1]],"asks":[["4","1",1]]}`},
	})
	ob, err := gw.OrderBook(context.Background(), ltcbtc, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(ob.Bids) != 2 {
		t.Fatalf("bids=%v", ob.Bids)
	}
}

func TestAddress(t *testing.T) {
	gw, _ := newTestGateway(t, map[string]route{
		"GET /coinbase-accounts":                  {body: `[{"id":"w-btc","currency":"BTC"},{"id":"w-ltc","currency":"LTC"}]`},
		"POST /coinbase-accounts/w-ltc/addresses": {body: `{"address":"MLtcAddr"}`},
	})
	addr, err := gw.Address(context.Background(), "LTC")
	if err != nil {
		t.Fatal(err)
	}
	if addr.Value != "MLtcAddr" || addr.Exchange != symbol.Gdax {
		t.Fatalf("addr=%+v", addr)
	}
}

func TestSend(t *testing.T) {
	gw, fake := newTestGateway(t, map[string]route{
		"POST /withdrawals/crypto": {body: `{"id":"wd-1","amount":"0.01046901","currency":"BTC"}`},
	})
	to := domain.Address{Exchange: symbol.Kraken, Currency: "BTC", Value: "3Kaddr"}
	h, err := gw.Send(context.Background(), "BTC", decimal.RequireFromString("0.010469019"), to)
	if err != nil {
		t.Fatal(err)
	}
	if h.ID != "wd-1" {
		t.Fatalf("handle=%+v", h)
	}
	var req WithdrawRequest
	if err := json.Unmarshal(fake.body("POST /withdrawals/crypto"), &req); err != nil {
		t.Fatal(err)
	}
	if req.Amount != "0.01046901" || req.Currency != "BTC" || req.CryptoAddress != "3Kaddr" {
		t.Fatalf("request=%+v", req)
	}
}

func TestSendStatus(t *testing.T) {
	gw, _ := newTestGateway(t, map[string]route{
		"GET /transfers/wd-done":    {body: `{"id":"wd-done","amount":"1","completed_at":"2024-01-01T00:00:00Z","details":{"crypto_transaction_hash":"0xabc"}}`},
		"GET /transfers/wd-pending": {body: `{"id":"wd-pending","amount":"1","completed_at":null,"details":{}}`},
		"GET /transfers/wd-cancel":  {body: `{"id":"wd-cancel","amount":"1","canceled_at":"2024-01-01T00:00:00Z","details":{}}`},
	})
	ctx := context.Background()

	tests := []struct {
		id     string
		found  bool
		status string
		ref    string
	}{
		{"wd-done", true, TransferCompleted, "0xabc"},
		{"wd-pending", true, TransferPending, ""},
		{"wd-cancel", true, TransferCanceled, ""},
		{"wd-missing", false, "", ""},
	}
	for _, tt := range tests {
		rep, err := gw.SendStatus(ctx, "BTC", tt.id)
		if err != nil {
			t.Fatalf("%s: %v", tt.id, err)
		}
		if rep.Found != tt.found || rep.Status != tt.status || rep.Reference != tt.ref {
			t.Errorf("%s: report=%+v", tt.id, rep)
		}
	}
}

func TestReceiveStatusMatchesHash(t *testing.T) {
	gw, _ := newTestGateway(t, map[string]route{
		"GET /transfers?type=deposit": {body: `[
			{"id":"d1","type":"deposit","amount":"5","completed_at":"2024-01-01T00:00:00Z","details":{"crypto_transaction_hash":"0xother"}},
			{"id":"d2","type":"deposit","amount":"0.998","completed_at":"2024-01-01T00:00:00Z","details":{"crypto_transaction_hash":"0xhash"}}
		]`},
	})
	rep, err := gw.ReceiveStatus(context.Background(), "LTC", "0xhash")
	if err != nil {
		t.Fatal(err)
	}
	if !rep.Found || rep.Status != TransferCompleted || !rep.Amount.Equal(decimal.RequireFromString("0.998")) {
		t.Fatalf("report=%+v", rep)
	}
}

func TestPlaceOrderBuyUsesFunds(t *testing.T) {
	gw, fake := newTestGateway(t, map[string]route{
		"POST /orders": {body: `{"id":"ord-1","status":"pending"}`},
	})
	corr := uuid.NewString()
	h, err := gw.PlaceOrder(context.Background(), domain.OrderRequest{
		Pair:          ltcbtc,
		Side:          domain.SideBuy,
		Type:          domain.OrderTypeMarket,
		Amount:        decimal.RequireFromString("0.01046901"),
		CorrelationID: corr,
	})
	if err != nil {
		t.Fatal(err)
	}
	if h.OrderID != "ord-1" {
		t.Fatalf("handle=%+v", h)
	}
	var req OrderRequest
	if err := json.Unmarshal(fake.body("POST /orders"), &req); err != nil {
		t.Fatal(err)
	}
	if req.Funds != "0.01046901" || req.Size != "" || req.Side != "buy" || req.ProductID != "LTC-BTC" || req.ClientOID != corr {
		t.Fatalf("request=%+v", req)
	}
}

func TestPlaceOrderSellUsesSize(t *testing.T) {
	gw, fake := newTestGateway(t, map[string]route{
		"POST /orders": {body: `{"id":"ord-2"}`},
	})
	_, err := gw.PlaceOrder(context.Background(), domain.OrderRequest{
		Pair:          ltcbtc,
		Side:          domain.SideSell,
		Amount:        decimal.RequireFromString("0.999"),
		CorrelationID: "not-a-uuid",
	})
	if err != nil {
		t.Fatal(err)
	}
	var req OrderRequest
	if err := json.Unmarshal(fake.body("POST /orders"), &req); err != nil {
		t.Fatal(err)
	}
	if req.Size != "0.999" || req.Funds != "" {
		t.Fatalf("request=%+v", req)
	}
	if _, err := uuid.Parse(req.ClientOID); err != nil {
		t.Fatalf("client_oid=%q", req.ClientOID)
	}
}

func TestOrderStatus(t *testing.T) {
	gw, _ := newTestGateway(t, map[string]route{
		"GET /orders/sell":     {body: `{"id":"sell","side":"sell","status":"done","done_reason":"filled","filled_size":"0.999","executed_value":"0.0104895","fill_fees":"0.00003146"}`},
		"GET /orders/buy":      {body: `{"id":"buy","side":"buy","status":"done","done_reason":"filled","filled_size":"0.98","executed_value":"0.0104","fill_fees":"0.00003"}`},
		"GET /orders/canceled": {body: `{"id":"canceled","side":"buy","status":"done","done_reason":"canceled","filled_size":"0"}`},
		"GET /orders/open":     {body: `{"id":"open","side":"buy","status":"open","filled_size":"0"}`},
	})
	ctx := context.Background()

	tests := []struct {
		id     string
		found  bool
		status string
		amount string
	}{
		{"sell", true, "done", "0.01045804"},
		{"buy", true, "done", "0.98"},
		{"canceled", true, "canceled", "0"},
		{"open", true, "open", "0"},
		{"gone", false, "", "0"},
	}
	for _, tt := range tests {
		rep, err := gw.OrderStatus(ctx, tt.id)
		if err != nil {
			t.Fatalf("%s: %v", tt.id, err)
		}
		if rep.Found != tt.found || rep.Status != tt.status || !rep.Amount.Equal(decimal.RequireFromString(tt.amount)) {
			t.Errorf("%s: report=%+v", tt.id, rep)
		}
	}
}

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		status int
		kind   error
	}{
		{http.StatusBadRequest, domain.ErrValidation},
		{http.StatusUnauthorized, domain.ErrAuthentication},
		{http.StatusTooManyRequests, domain.ErrGatewayUnavailable},
		{http.StatusInternalServerError, domain.ErrGatewayUnavailable},
	}
	for _, tt := range tests {
		gw, _ := newTestGateway(t, map[string]route{
			"GET /accounts": {status: tt.status, body: `{"message":"nope"}`},
		})
		_, err := gw.Balances(context.Background())
		if !errors.Is(err, tt.kind) {
			t.Errorf("status %d: err=%v", tt.status, err)
		}
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Message != "nope" {
			t.Errorf("status %d: err=%#v", tt.status, err)
		}
	}
}

func TestCancelledContextIsNotWrapped(t *testing.T) {
	gw, _ := newTestGateway(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := gw.Balances(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
	var gwErr *domain.GatewayError
	if errors.As(err, &gwErr) {
		t.Fatalf("cancellation should not become a gateway error: %v", err)
	}
}
