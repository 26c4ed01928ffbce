package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// ExchangeGateway is implemented once per exchange. Every value it returns is
// already in canonical form; callers never branch on the exchange id.
//
// Errors wrap ErrGatewayUnavailable, ErrAuthentication, ErrValidation or
// ErrNotFound (see GatewayError).
type ExchangeGateway interface {
	ID() ExchangeID

	Products(ctx context.Context) ([]Product, error)
	Balances(ctx context.Context) ([]Balance, error)
	OrderBook(ctx context.Context, pair Pair, depth int) (OrderBook, error)

	// Address returns a deposit address for currency on this exchange.
	Address(ctx context.Context, currency Currency) (Address, error)
	Send(ctx context.Context, currency Currency, amount decimal.Decimal, to Address) (TransferHandle, error)
	// SendStatus reports on a withdrawal by the id Send returned.
	SendStatus(ctx context.Context, currency Currency, transferID string) (StatusReport, error)
	// ReceiveStatus reports on a deposit by the reference the sender's
	// status carried (normally the transaction hash).
	ReceiveStatus(ctx context.Context, currency Currency, reference string) (StatusReport, error)

	PlaceOrder(ctx context.Context, req OrderRequest) (OrderHandle, error)
	OrderStatus(ctx context.Context, orderID string) (StatusReport, error)
}
