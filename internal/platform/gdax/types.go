package gdax

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// --------------------------------------------------------------------------
// Coinbase Exchange API DTOs
// --------------------------------------------------------------------------

// Product is an entry of GET /products.
type Product struct {
	ID              string          `json:"id"`
	BaseCurrency    string          `json:"base_currency"`
	QuoteCurrency   string          `json:"quote_currency"`
	BaseMinSize     decimal.Decimal `json:"base_min_size"`
	Status          string          `json:"status"`
	TradingDisabled bool            `json:"trading_disabled"`
}

// Account is an entry of GET /accounts.
type Account struct {
	ID        string          `json:"id"`
	Currency  string          `json:"currency"`
	Balance   decimal.Decimal `json:"balance"`
	Available decimal.Decimal `json:"available"`
	Hold      decimal.Decimal `json:"hold"`
}

// CoinbaseAccount is an entry of GET /coinbase-accounts. Deposit addresses
// are generated on these wallets.
type CoinbaseAccount struct {
	ID       string `json:"id"`
	Currency string `json:"currency"`
	Active   bool   `json:"active"`
}

// Book is GET /products/{id}/book?level=2. Levels are [price, size, orders].
type Book struct {
	Sequence int64               `json:"sequence"`
	Bids     [][]json.RawMessage `json:"bids"`
	Asks     [][]json.RawMessage `json:"asks"`
}

// AddressResponse is returned when generating a deposit address.
type AddressResponse struct {
	Address        string `json:"address"`
	DestinationTag string `json:"destination_tag,omitempty"`
}

// WithdrawRequest is the body of POST /withdrawals/crypto.
type WithdrawRequest struct {
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
	CryptoAddress  string `json:"crypto_address"`
	DestinationTag string `json:"destination_tag,omitempty"`
}

// WithdrawResponse is returned by POST /withdrawals/crypto.
type WithdrawResponse struct {
	ID       string          `json:"id"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// Transfer is a deposit or withdrawal record.
type Transfer struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	CreatedAt   string          `json:"created_at"`
	CompletedAt *string         `json:"completed_at"`
	CanceledAt  *string         `json:"canceled_at"`
	Details     struct {
		CryptoTransactionHash string `json:"crypto_transaction_hash"`
		CryptoAddress         string `json:"crypto_address"`
	} `json:"details"`
}

// OrderRequest is the body of POST /orders. Market buys set Funds; market
// sells set Size.
type OrderRequest struct {
	Type      string `json:"type"`
	Side      string `json:"side"`
	ProductID string `json:"product_id"`
	Size      string `json:"size,omitempty"`
	Funds     string `json:"funds,omitempty"`
	ClientOID string `json:"client_oid,omitempty"`
}

// Order is returned by POST /orders and GET /orders/{id}.
type Order struct {
	ID            string          `json:"id"`
	ProductID     string          `json:"product_id"`
	Side          string          `json:"side"`
	Status        string          `json:"status"`
	DoneReason    string          `json:"done_reason"`
	FilledSize    decimal.Decimal `json:"filled_size"`
	ExecutedValue decimal.Decimal `json:"executed_value"`
	FillFees      decimal.Decimal `json:"fill_fees"`
}

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Message string `json:"message"`
}
