package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side indicates whether this is a buy or sell of the pair's base currency.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderType is the execution style sent to the exchange.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderRequest asks an exchange to convert Amount of the currency held into
// the other side of Pair. For a sell Amount is base volume; for a buy it is
// quote funds to spend.
type OrderRequest struct {
	Pair          Pair
	Side          Side
	Type          OrderType
	Amount        decimal.Decimal
	CorrelationID string
}

// Spends returns the currency the order consumes.
func (r OrderRequest) Spends() Currency {
	if r.Side == SideSell {
		return r.Pair.Base
	}
	return r.Pair.Quote
}

// Receives returns the currency the order produces.
func (r OrderRequest) Receives() Currency {
	return r.Pair.Other(r.Spends())
}

// OrderHandle is the exchange's acknowledgement of a submitted order.
type OrderHandle struct {
	Exchange    ExchangeID
	OrderID     string
	SubmittedAt time.Time
}

// Address is where an exchange accepts deposits of one currency. Some
// exchanges only withdraw to pre-registered destinations, so the destination
// exchange travels with the raw address.
type Address struct {
	Exchange ExchangeID
	Currency Currency
	Value    string
	Tag      string
}

// TransferHandle is the sending exchange's acknowledgement of a withdrawal.
type TransferHandle struct {
	Exchange    ExchangeID
	Currency    Currency
	ID          string
	SubmittedAt time.Time
}
