package gdax

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/cyclebot/internal/domain"
	"github.com/alanyoungcy/cyclebot/internal/symbol"
)

// Transfer statuses derived from the transfer timestamps; the API has no
// status field.
const (
	TransferPending   = "pending"
	TransferCompleted = "completed"
	TransferCanceled  = "canceled"
)

// Gateway adapts Coinbase Exchange to domain.ExchangeGateway.
type Gateway struct {
	id     domain.ExchangeID
	client *Client
	norm   *symbol.Normalizer
	logger *slog.Logger
}

// NewGateway builds a gateway registered under id (normally symbol.Gdax).
func NewGateway(id domain.ExchangeID, client *Client, norm *symbol.Normalizer, logger *slog.Logger) *Gateway {
	return &Gateway{
		id:     id,
		client: client,
		norm:   norm,
		logger: logger.With(slog.String("component", "gdax"), slog.String("exchange", string(id))),
	}
}

func (g *Gateway) ID() domain.ExchangeID { return g.id }

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

// isNotFound reports a 404, which status queries treat as "no record yet".
func isNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && errors.Is(apiErr.Kind, domain.ErrNotFound)
}

// Products lists tradable products the symbol table knows. Coinbase does not
// report fee tiers per product, so fee percentages stay unset.
func (g *Gateway) Products(ctx context.Context) ([]domain.Product, error) {
	var raw []Product
	if err := g.client.Get(ctx, "/products", &raw); err != nil {
		return nil, g.fail("Products", err)
	}
	out := make([]domain.Product, 0, len(raw))
	for _, p := range raw {
		if p.TradingDisabled || (p.Status != "" && p.Status != "online") {
			continue
		}
		pair, err := g.norm.ToCanonicalPair(p.ID, g.id)
		if err != nil {
			continue
		}
		out = append(out, domain.Product{Exchange: g.id, Pair: pair, MinSize: p.BaseMinSize})
	}
	return out, nil
}

// Balances reports the available (not held) amount of every known currency.
func (g *Gateway) Balances(ctx context.Context) ([]domain.Balance, error) {
	var accounts []Account
	if err := g.client.Get(ctx, "/accounts", &accounts); err != nil {
		return nil, g.fail("Balances", err)
	}
	out := make([]domain.Balance, 0, len(accounts))
	for _, a := range accounts {
		c, err := g.norm.ToCanonicalCurrency(a.Currency, g.id)
		if err != nil {
			continue
		}
		out = append(out, domain.Balance{Exchange: g.id, Currency: c, Amount: a.Available})
	}
	return out, nil
}

func (g *Gateway) OrderBook(ctx context.Context, pair domain.Pair, depth int) (domain.OrderBook, error) {
	productID, err := g.norm.ToExchangePair(pair, g.id)
	if err != nil {
		return domain.OrderBook{}, g.fail("OrderBook", err)
	}
	level := 2
	if depth == 1 {
		level = 1
	}

	var book Book
	path := "/products/" + url.PathEscape(productID) + "/book?level=" + strconv.Itoa(level)
	if err := g.client.Get(ctx, path, &book); err != nil {
		return domain.OrderBook{}, g.fail("OrderBook", err)
	}
	bids, err := parseLevels(book.Bids, depth)
	if err != nil {
		return domain.OrderBook{}, g.fail("OrderBook", err)
	}
	asks, err := parseLevels(book.Asks, depth)
	if err != nil {
		return domain.OrderBook{}, g.fail("OrderBook", err)
	}
	return domain.OrderBook{Exchange: g.id, Pair: pair, Bids: bids, Asks: asks, Timestamp: time.Now()}, nil
}

func parseLevels(raw [][]json.RawMessage, depth int) ([]domain.PriceLevel, error) {
	if depth > 0 && len(raw) > depth {
		raw = raw[:depth]
	}
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

// Address generates a deposit address on the Coinbase wallet for c.
func (g *Gateway) Address(ctx context.Context, c domain.Currency) (domain.Address, error) {
	token, err := g.norm.ToExchangeCurrency(c, g.id)
	if err != nil {
		return domain.Address{}, g.fail("Address", err)
	}

	var wallets []CoinbaseAccount
	if err := g.client.Get(ctx, "/coinbase-accounts", &wallets); err != nil {
		return domain.Address{}, g.fail("Address", err)
	}
	walletID := ""
	for _, w := range wallets {
		if w.Currency == token {
			walletID = w.ID
			break
		}
	}
	if walletID == "" {
		return domain.Address{}, domain.NewGatewayError(g.id, "Address", domain.ErrNotFound, fmt.Errorf("no %s wallet", token))
	}

	var resp AddressResponse
	if err := g.client.Post(ctx, "/coinbase-accounts/"+url.PathEscape(walletID)+"/addresses", struct{}{}, &resp); err != nil {
		return domain.Address{}, g.fail("Address", err)
	}
	return domain.Address{Exchange: g.id, Currency: c, Value: resp.Address, Tag: resp.DestinationTag}, nil
}

func (g *Gateway) Send(ctx context.Context, c domain.Currency, amount decimal.Decimal, to domain.Address) (domain.TransferHandle, error) {
	token, err := g.norm.ToExchangeCurrency(c, g.id)
	if err != nil {
		return domain.TransferHandle{}, g.fail("Send", err)
	}
	if to.Value == "" {
		return domain.TransferHandle{}, domain.NewGatewayError(g.id, "Send", domain.ErrValidation, errors.New("empty destination address"))
	}

	amount = domain.Truncate(amount)
	var resp WithdrawResponse
	req := WithdrawRequest{
		Amount:         amount.String(),
		Currency:       token,
		CryptoAddress:  to.Value,
		DestinationTag: to.Tag,
	}
	if err := g.client.Post(ctx, "/withdrawals/crypto", req, &resp); err != nil {
		return domain.TransferHandle{}, g.fail("Send", err)
	}

	g.logger.InfoContext(ctx, "withdrawal submitted",
		slog.String("currency", string(c)),
		slog.String("amount", amount.String()),
		slog.String("to", string(to.Exchange)),
		slog.String("transfer_id", resp.ID),
	)
	return domain.TransferHandle{Exchange: g.id, Currency: c, ID: resp.ID, SubmittedAt: time.Now()}, nil
}

func transferStatus(t Transfer) string {
	switch {
	case t.CanceledAt != nil && *t.CanceledAt != "":
		return TransferCanceled
	case t.CompletedAt != nil && *t.CompletedAt != "":
		return TransferCompleted
	default:
		return TransferPending
	}
}

func transferReport(t Transfer) domain.StatusReport {
	return domain.StatusReport{
		Found:     true,
		Status:    transferStatus(t),
		Amount:    t.Amount,
		Reference: t.Details.CryptoTransactionHash,
	}
}

func (g *Gateway) SendStatus(ctx context.Context, _ domain.Currency, transferID string) (domain.StatusReport, error) {
	var t Transfer
	if err := g.client.Get(ctx, "/transfers/"+url.PathEscape(transferID), &t); err != nil {
		if isNotFound(err) {
			return domain.StatusReport{}, nil
		}
		return domain.StatusReport{}, g.fail("SendStatus", err)
	}
	return transferReport(t), nil
}

// ReceiveStatus scans recent deposits for the sender's transaction hash.
func (g *Gateway) ReceiveStatus(ctx context.Context, _ domain.Currency, reference string) (domain.StatusReport, error) {
	var transfers []Transfer
	if err := g.client.Get(ctx, "/transfers?type=deposit", &transfers); err != nil {
		return domain.StatusReport{}, g.fail("ReceiveStatus", err)
	}
	for _, t := range transfers {
		if t.Details.CryptoTransactionHash == reference {
			return transferReport(t), nil
		}
	}
	return domain.StatusReport{}, nil
}

// PlaceOrder submits a market order: a buy spends quote funds, a sell
// spends base size.
func (g *Gateway) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderHandle, error) {
	productID, err := g.norm.ToExchangePair(req.Pair, g.id)
	if err != nil {
		return domain.OrderHandle{}, g.fail("PlaceOrder", err)
	}
	if req.Type != "" && req.Type != domain.OrderTypeMarket {
		return domain.OrderHandle{}, domain.NewGatewayError(g.id, "PlaceOrder", domain.ErrValidation,
			fmt.Errorf("unsupported order type %q", req.Type))
	}

	amount := domain.Truncate(req.Amount)
	body := OrderRequest{
		Type:      "market",
		Side:      string(req.Side),
		ProductID: productID,
		ClientOID: clientOID(req.CorrelationID),
	}
	if req.Side == domain.SideBuy {
		body.Funds = amount.String()
	} else {
		body.Size = amount.String()
	}

	var o Order
	if err := g.client.Post(ctx, "/orders", body, &o); err != nil {
		return domain.OrderHandle{}, g.fail("PlaceOrder", err)
	}

	g.logger.InfoContext(ctx, "order submitted",
		slog.String("product", productID),
		slog.String("side", body.Side),
		slog.String("amount", amount.String()),
		slog.String("order_id", o.ID),
		slog.String("correlation_id", req.CorrelationID),
	)
	return domain.OrderHandle{Exchange: g.id, OrderID: o.ID, SubmittedAt: time.Now()}, nil
}

// clientOID passes the correlation id through when it is already a UUID,
// which is all Coinbase accepts.
func clientOID(correlationID string) string {
	if _, err := uuid.Parse(correlationID); err == nil {
		return correlationID
	}
	return uuid.NewString()
}

// OrderStatus reports the order's output amount: filled base size for a
// buy, executed quote value net of fees for a sell.
func (g *Gateway) OrderStatus(ctx context.Context, orderID string) (domain.StatusReport, error) {
	var o Order
	if err := g.client.Get(ctx, "/orders/"+url.PathEscape(orderID), &o); err != nil {
		if isNotFound(err) {
			return domain.StatusReport{}, nil
		}
		return domain.StatusReport{}, g.fail("OrderStatus", err)
	}

	status := o.Status
	if status == "done" && o.DoneReason == "canceled" {
		status = "canceled"
	}
	amount := o.FilledSize
	if o.Side == string(domain.SideSell) {
		amount = o.ExecutedValue.Sub(o.FillFees)
	}
	return domain.StatusReport{Found: true, Status: status, Amount: amount, Reference: o.ID}, nil
}

var _ domain.ExchangeGateway = (*Gateway)(nil)
