package domain

import "github.com/shopspring/decimal"

// SettlementKind selects which terminal token applies to a status report.
type SettlementKind string

const (
	SettlementSend    SettlementKind = "send"
	SettlementReceive SettlementKind = "receive"
	SettlementOrder   SettlementKind = "order"
)

// SettlementStatus is the classified state of a settlement.
type SettlementStatus string

const (
	SettlementPending   SettlementStatus = "pending"
	SettlementSucceeded SettlementStatus = "succeeded"
	SettlementFailed    SettlementStatus = "failed"
)

// SettlementRequest describes what is being waited on.
type SettlementRequest struct {
	Kind          SettlementKind
	Exchange      ExchangeID
	Currency      Currency
	// Reference is what the status query is keyed on: a withdrawal id, a
	// transaction hash or an order id.
	Reference     string
	CorrelationID string
}

// SettlementOutcome is what the poller returns once a terminal status is seen.
type SettlementOutcome struct {
	Status            SettlementStatus
	TerminalAmount    decimal.Decimal
	ExternalReference string
	RawStatus         string
	Attempts          int
}

// StatusReport is an exchange's raw answer to a status query. Found is false
// when the exchange has no record yet, which is treated as pending.
type StatusReport struct {
	Found  bool
	Status string
	// Amount is what the record settled for: credited amount for a receive,
	// sent amount for a send, output currency amount for an order.
	Amount decimal.Decimal
	// Reference links records across exchanges, usually a transaction hash.
	Reference string
}
