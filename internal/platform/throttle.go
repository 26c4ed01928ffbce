// Package platform holds what the exchange adapters share.
package platform

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/cyclebot/internal/domain"
)

// Throttled waits on a rate limiter before every call to the wrapped
// gateway. The limiter key is the exchange id, so all processes sharing the
// limiter share one budget per exchange.
type Throttled struct {
	gw      domain.ExchangeGateway
	limiter domain.RateLimiter
	key     string
}

// Throttle wraps gw. A nil limiter returns gw unchanged.
func Throttle(gw domain.ExchangeGateway, limiter domain.RateLimiter) domain.ExchangeGateway {
	if limiter == nil {
		return gw
	}
	return &Throttled{gw: gw, limiter: limiter, key: string(gw.ID())}
}

func (t *Throttled) wait(ctx context.Context, op string) error {
	if err := t.limiter.Wait(ctx, t.key); err != nil {
		return domain.NewGatewayError(t.gw.ID(), op, domain.ErrGatewayUnavailable, err)
	}
	return nil
}

func (t *Throttled) ID() domain.ExchangeID { return t.gw.ID() }

func (t *Throttled) Products(ctx context.Context) ([]domain.Product, error) {
	if err := t.wait(ctx, "Products"); err != nil {
		return nil, err
	}
	return t.gw.Products(ctx)
}

func (t *Throttled) Balances(ctx context.Context) ([]domain.Balance, error) {
	if err := t.wait(ctx, "Balances"); err != nil {
		return nil, err
	}
	return t.gw.Balances(ctx)
}

func (t *Throttled) OrderBook(ctx context.Context, pair domain.Pair, depth int) (domain.OrderBook, error) {
	if err := t.wait(ctx, "OrderBook"); err != nil {
		return domain.OrderBook{}, err
	}
	return t.gw.OrderBook(ctx, pair, depth)
}

func (t *Throttled) Address(ctx context.Context, c domain.Currency) (domain.Address, error) {
	if err := t.wait(ctx, "Address"); err != nil {
		return domain.Address{}, err
	}
	return t.gw.Address(ctx, c)
}

func (t *Throttled) Send(ctx context.Context, c domain.Currency, amount decimal.Decimal, to domain.Address) (domain.TransferHandle, error) {
	if err := t.wait(ctx, "Send"); err != nil {
		return domain.TransferHandle{}, err
	}
	return t.gw.Send(ctx, c, amount, to)
}

func (t *Throttled) SendStatus(ctx context.Context, c domain.Currency, transferID string) (domain.StatusReport, error) {
	if err := t.wait(ctx, "SendStatus"); err != nil {
		return domain.StatusReport{}, err
	}
	return t.gw.SendStatus(ctx, c, transferID)
}

func (t *Throttled) ReceiveStatus(ctx context.Context, c domain.Currency, reference string) (domain.StatusReport, error) {
	if err := t.wait(ctx, "ReceiveStatus"); err != nil {
		return domain.StatusReport{}, err
	}
	return t.gw.ReceiveStatus(ctx, c, reference)
}

func (t *Throttled) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderHandle, error) {
	if err := t.wait(ctx, "PlaceOrder"); err != nil {
		return domain.OrderHandle{}, err
	}
	return t.gw.PlaceOrder(ctx, req)
}

func (t *Throttled) OrderStatus(ctx context.Context, orderID string) (domain.StatusReport, error) {
	if err := t.wait(ctx, "OrderStatus"); err != nil {
		return domain.StatusReport{}, err
	}
	return t.gw.OrderStatus(ctx, orderID)
}

var _ domain.ExchangeGateway = (*Throttled)(nil)
