package kraken

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/cyclebot/internal/domain"
	"github.com/alanyoungcy/cyclebot/internal/symbol"
)

// Options configure a Gateway beyond its client.
type Options struct {
	// WithdrawKeys names the pre-registered withdrawal destination per
	// receiving exchange and canonical currency.
	WithdrawKeys map[domain.ExchangeID]map[domain.Currency]string
	// DepositMethods names the deposit method per canonical currency, e.g.
	// LTC -> "Litecoin".
	DepositMethods map[domain.Currency]string
}

// DefaultDepositMethods are Kraken's method names for the built-in
// currencies.
func DefaultDepositMethods() map[domain.Currency]string {
	return map[domain.Currency]string{
		"BTC": "Bitcoin",
		"LTC": "Litecoin",
		"ETH": "Ether (Hex)",
	}
}

// Gateway adapts Kraken to domain.ExchangeGateway.
type Gateway struct {
	id     domain.ExchangeID
	client *Client
	norm   *symbol.Normalizer
	opts   Options
	logger *slog.Logger
}

// NewGateway builds a gateway registered under id (normally symbol.Kraken).
func NewGateway(id domain.ExchangeID, client *Client, norm *symbol.Normalizer, opts Options, logger *slog.Logger) *Gateway {
	if opts.DepositMethods == nil {
		opts.DepositMethods = DefaultDepositMethods()
	}
	return &Gateway{
		id:     id,
		client: client,
		norm:   norm,
		opts:   opts,
		logger: logger.With(slog.String("component", "kraken"), slog.String("exchange", string(id))),
	}
}

func (g *Gateway) ID() domain.ExchangeID { return g.id }

// fail wraps err as a GatewayError, keeping the kind the client classified.
func (g *Gateway) fail(op string, err error) error {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return domain.NewGatewayError(g.id, op, apiErr.Kind, err)
	case errors.Is(err, domain.ErrUnknownSymbol):
		return domain.NewGatewayError(g.id, op, domain.ErrValidation, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return domain.NewGatewayError(g.id, op, domain.ErrGatewayUnavailable, err)
	}
}

func (g *Gateway) asset(c domain.Currency) (string, error) {
	return g.norm.ToExchangeCurrency(c, g.id)
}

// Products lists the asset pairs the symbol table knows. Pairs Kraken
// lists but the table does not are skipped.
func (g *Gateway) Products(ctx context.Context) ([]domain.Product, error) {
	var pairs map[string]AssetPair
	if err := g.client.Public(ctx, "AssetPairs", nil, &pairs); err != nil {
		return nil, g.fail("Products", err)
	}

	out := make([]domain.Product, 0, len(pairs))
	for name, ap := range pairs {
		pair, err := g.norm.ToCanonicalPair(name, g.id)
		if err != nil {
			continue
		}
		p := domain.Product{Exchange: g.id, Pair: pair, MinSize: ap.OrderMin}
		if pct, ok := firstTier(ap.Fees); ok {
			p.TakerFeePct = decimal.NewNullDecimal(pct)
		}
		if pct, ok := firstTier(ap.FeesMaker); ok {
			p.MakerFeePct = decimal.NewNullDecimal(pct)
		}
		out = append(out, p)
	}
	return out, nil
}

func firstTier(tiers [][]decimal.Decimal) (decimal.Decimal, bool) {
	if len(tiers) == 0 || len(tiers[0]) < 2 {
		return decimal.Zero, false
	}
	return tiers[0][1], true
}

// Balances returns every known asset balance. Unknown asset codes (staking
// variants and the like) are ignored.
func (g *Gateway) Balances(ctx context.Context) ([]domain.Balance, error) {
	var raw map[string]decimal.Decimal
	if err := g.client.Private(ctx, "Balance", nil, &raw); err != nil {
		return nil, g.fail("Balances", err)
	}
	out := make([]domain.Balance, 0, len(raw))
	for token, amount := range raw {
		c, err := g.norm.ToCanonicalCurrency(token, g.id)
		if err != nil {
			continue
		}
		out = append(out, domain.Balance{Exchange: g.id, Currency: c, Amount: amount})
	}
	return out, nil
}

func (g *Gateway) OrderBook(ctx context.Context, pair domain.Pair, depth int) (domain.OrderBook, error) {
	token, err := g.norm.ToExchangePair(pair, g.id)
	if err != nil {
		return domain.OrderBook{}, g.fail("OrderBook", err)
	}
	params := url.Values{"pair": {token}}
	if depth > 0 {
		params.Set("count", strconv.Itoa(depth))
	}

	var books map[string]Depth
	if err := g.client.Public(ctx, "Depth", params, &books); err != nil {
		return domain.OrderBook{}, g.fail("OrderBook", err)
	}
	// Kraken keys the result by its own pair name, which may be the altname.
	var d Depth
	found := false
	for _, b := range books {
		d, found = b, true
		break
	}
	if !found {
		return domain.OrderBook{}, domain.NewGatewayError(g.id, "OrderBook", domain.ErrNotFound, fmt.Errorf("no book for %s", token))
	}

	bids, err := parseLevels(d.Bids)
	if err != nil {
		return domain.OrderBook{}, g.fail("OrderBook", err)
	}
	asks, err := parseLevels(d.Asks)
	if err != nil {
		return domain.OrderBook{}, g.fail("OrderBook", err)
	}
	return domain.OrderBook{
		Exchange:  g.id,
		Pair:      pair,
		Bids:      bids,
		Asks:      asks,
		Timestamp: time.Now(),
	}, nil
}

func parseLevels(raw [][]json.RawMessage) ([]domain.PriceLevel, error) {
	out := make([]domain.PriceLevel, 0, len(raw))
	for _, lvl := range raw {
		if len(lvl) < 2 {
			return nil, fmt.Errorf("malformed book level")
		}
		var pl domain.PriceLevel
		if err := json.Unmarshal(lvl[0], &pl.Price); err != nil {
			return nil, fmt.Errorf("book price: %w", err)
		}
		if err := json.Unmarshal(lvl[1], &pl.Size); err != nil {
			return nil, fmt.Errorf("book size: %w", err)
		}
		out = append(out, pl)
	}
	return out, nil
}

func (g *Gateway) depositMethod(c domain.Currency) (string, error) {
	m, ok := g.opts.DepositMethods[c]
	if !ok {
		return "", fmt.Errorf("no deposit method configured for %s", c)
	}
	return m, nil
}

func (g *Gateway) Address(ctx context.Context, c domain.Currency) (domain.Address, error) {
	asset, err := g.asset(c)
	if err != nil {
		return domain.Address{}, g.fail("Address", err)
	}
	method, err := g.depositMethod(c)
	if err != nil {
		return domain.Address{}, domain.NewGatewayError(g.id, "Address", domain.ErrValidation, err)
	}

	var addrs []DepositAddress
	params := url.Values{"asset": {asset}, "method": {method}}
	if err := g.client.Private(ctx, "DepositAddresses", params, &addrs); err != nil {
		return domain.Address{}, g.fail("Address", err)
	}
	if len(addrs) == 0 {
		return domain.Address{}, domain.NewGatewayError(g.id, "Address", domain.ErrNotFound, fmt.Errorf("no %s deposit address", c))
	}
	return domain.Address{Exchange: g.id, Currency: c, Value: addrs[0].Address, Tag: addrs[0].Tag}, nil
}

// Send withdraws to a pre-registered key. Kraken cannot withdraw to a raw
// address, so the key is chosen by the address's exchange.
func (g *Gateway) Send(ctx context.Context, c domain.Currency, amount decimal.Decimal, to domain.Address) (domain.TransferHandle, error) {
	asset, err := g.asset(c)
	if err != nil {
		return domain.TransferHandle{}, g.fail("Send", err)
	}
	key, ok := g.opts.WithdrawKeys[to.Exchange][c]
	if !ok {
		return domain.TransferHandle{}, domain.NewGatewayError(g.id, "Send", domain.ErrValidation,
			fmt.Errorf("no withdraw key for %s to %s", c, to.Exchange))
	}

	amount = domain.Truncate(amount)
	var res WithdrawResult
	params := url.Values{"asset": {asset}, "key": {key}, "amount": {amount.String()}}
	if err := g.client.Private(ctx, "Withdraw", params, &res); err != nil {
		return domain.TransferHandle{}, g.fail("Send", err)
	}

	g.logger.InfoContext(ctx, "withdrawal submitted",
		slog.String("currency", string(c)),
		slog.String("amount", amount.String()),
		slog.String("to", string(to.Exchange)),
		slog.String("refid", res.RefID),
	)
	return domain.TransferHandle{Exchange: g.id, Currency: c, ID: res.RefID, SubmittedAt: time.Now()}, nil
}

// SendStatus finds the withdrawal by refid (or txid) in recent history.
func (g *Gateway) SendStatus(ctx context.Context, c domain.Currency, transferID string) (domain.StatusReport, error) {
	asset, err := g.asset(c)
	if err != nil {
		return domain.StatusReport{}, g.fail("SendStatus", err)
	}
	var moves []Movement
	if err := g.client.Private(ctx, "WithdrawStatus", url.Values{"asset": {asset}}, &moves); err != nil {
		return domain.StatusReport{}, g.fail("SendStatus", err)
	}
	for _, m := range moves {
		if m.RefID == transferID || (m.TxID != "" && m.TxID == transferID) {
			return domain.StatusReport{Found: true, Status: m.Status, Amount: m.Amount, Reference: m.TxID}, nil
		}
	}
	return domain.StatusReport{}, nil
}

// ReceiveStatus finds the deposit carrying the sender's transaction hash.
func (g *Gateway) ReceiveStatus(ctx context.Context, c domain.Currency, reference string) (domain.StatusReport, error) {
	asset, err := g.asset(c)
	if err != nil {
		return domain.StatusReport{}, g.fail("ReceiveStatus", err)
	}
	method, err := g.depositMethod(c)
	if err != nil {
		return domain.StatusReport{}, domain.NewGatewayError(g.id, "ReceiveStatus", domain.ErrValidation, err)
	}

	var moves []Movement
	params := url.Values{"asset": {asset}, "method": {method}}
	if err := g.client.Private(ctx, "DepositStatus", params, &moves); err != nil {
		return domain.StatusReport{}, g.fail("ReceiveStatus", err)
	}
	for _, m := range moves {
		if m.TxID == reference {
			return domain.StatusReport{Found: true, Status: m.Status, Amount: m.Amount, Reference: m.TxID}, nil
		}
	}
	return domain.StatusReport{}, nil
}

// PlaceOrder submits a market order. Kraken sizes every order in base
// volume, so a buy converts its quote funds at the best ask, truncated, and
// asks for the fee in base currency so the quote funds cover the fill.
func (g *Gateway) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderHandle, error) {
	token, err := g.norm.ToExchangePair(req.Pair, g.id)
	if err != nil {
		return domain.OrderHandle{}, g.fail("PlaceOrder", err)
	}
	if req.Type != "" && req.Type != domain.OrderTypeMarket {
		return domain.OrderHandle{}, domain.NewGatewayError(g.id, "PlaceOrder", domain.ErrValidation,
			fmt.Errorf("unsupported order type %q", req.Type))
	}

	volume := domain.Truncate(req.Amount)
	if req.Side == domain.SideBuy {
		ob, err := g.OrderBook(ctx, req.Pair, 1)
		if err != nil {
			return domain.OrderHandle{}, err
		}
		ask, ok := ob.BestAsk()
		if !ok {
			return domain.OrderHandle{}, domain.NewGatewayError(g.id, "PlaceOrder", domain.ErrGatewayUnavailable,
				fmt.Errorf("no ask on %s", req.Pair))
		}
		volume = domain.TruncDiv(req.Amount, ask.Price)
	}
	if !volume.IsPositive() {
		return domain.OrderHandle{}, domain.NewGatewayError(g.id, "PlaceOrder", domain.ErrValidation,
			fmt.Errorf("order volume %s is not positive", volume))
	}

	params := url.Values{
		"pair":      {token},
		"type":      {string(req.Side)},
		"ordertype": {"market"},
		"volume":    {volume.String()},
	}
	if req.Side == domain.SideBuy {
		params.Set("oflags", "fcib")
	}
	var res AddOrderResult
	if err := g.client.Private(ctx, "AddOrder", params, &res); err != nil {
		return domain.OrderHandle{}, g.fail("PlaceOrder", err)
	}
	if len(res.TxID) == 0 {
		return domain.OrderHandle{}, domain.NewGatewayError(g.id, "PlaceOrder", domain.ErrGatewayUnavailable,
			errors.New("no txid returned"))
	}

	g.logger.InfoContext(ctx, "order submitted",
		slog.String("pair", req.Pair.String()),
		slog.String("side", string(req.Side)),
		slog.String("volume", volume.String()),
		slog.String("txid", res.TxID[0]),
		slog.String("correlation_id", req.CorrelationID),
	)
	return domain.OrderHandle{Exchange: g.id, OrderID: res.TxID[0], SubmittedAt: time.Now()}, nil
}

// OrderStatus reports the order's output amount net of fees: base volume for
// a buy, quote proceeds for a sell. Kraken quotes the fee in quote currency,
// so a buy's fee is converted to base at the order's average price.
func (g *Gateway) OrderStatus(ctx context.Context, orderID string) (domain.StatusReport, error) {
	var orders map[string]OrderInfo
	if err := g.client.Private(ctx, "QueryOrders", url.Values{"txid": {orderID}}, &orders); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && errors.Is(apiErr.Kind, domain.ErrNotFound) {
			return domain.StatusReport{}, nil
		}
		return domain.StatusReport{}, g.fail("OrderStatus", err)
	}
	o, ok := orders[orderID]
	if !ok {
		return domain.StatusReport{}, nil
	}
	amount := o.VolExec
	switch {
	case o.Descr.Type == string(domain.SideSell):
		amount = o.Cost.Sub(o.Fee)
	case o.Cost.IsPositive():
		amount = domain.TruncDiv(o.VolExec.Mul(o.Cost.Sub(o.Fee)), o.Cost)
	}
	return domain.StatusReport{Found: true, Status: o.Status, Amount: amount, Reference: orderID}, nil
}

var _ domain.ExchangeGateway = (*Gateway)(nil)
