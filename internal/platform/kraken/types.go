package kraken

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// --------------------------------------------------------------------------
// Kraken API DTOs
// --------------------------------------------------------------------------

// envelope wraps every Kraken REST response.
type envelope struct {
	Error  []string        `json:"error"`
	Result json.RawMessage `json:"result"`
}

// AssetPair is one entry of the public AssetPairs call. Fee tiers are
// [volume, percent] pairs, lowest volume first.
type AssetPair struct {
	Altname   string              `json:"altname"`
	Base      string              `json:"base"`
	Quote     string              `json:"quote"`
	Fees      [][]decimal.Decimal `json:"fees"`
	FeesMaker [][]decimal.Decimal `json:"fees_maker"`
	OrderMin  decimal.Decimal     `json:"ordermin"`
}

// Depth is one pair's book. Each level is [price, volume, timestamp].
type Depth struct {
	Asks [][]json.RawMessage `json:"asks"`
	Bids [][]json.RawMessage `json:"bids"`
}

// DepositMethod is an entry of the private DepositMethods call.
type DepositMethod struct {
	Method string `json:"method"`
}

// DepositAddress is an entry of the private DepositAddresses call.
type DepositAddress struct {
	Address string `json:"address"`
	Tag     string `json:"tag,omitempty"`
}

// WithdrawResult is returned by the private Withdraw call.
type WithdrawResult struct {
	RefID string `json:"refid"`
}

// Movement is an entry of WithdrawStatus or DepositStatus.
type Movement struct {
	Method string          `json:"method"`
	Asset  string          `json:"asset"`
	RefID  string          `json:"refid"`
	TxID   string          `json:"txid"`
	Amount decimal.Decimal `json:"amount"`
	Fee    decimal.Decimal `json:"fee"`
	Status string          `json:"status"`
}

// AddOrderResult is returned by the private AddOrder call.
type AddOrderResult struct {
	TxID []string `json:"txid"`
}

// OrderInfo is a value of the private QueryOrders result map.
type OrderInfo struct {
	Status  string          `json:"status"`
	VolExec decimal.Decimal `json:"vol_exec"`
	Cost    decimal.Decimal `json:"cost"`
	Fee     decimal.Decimal `json:"fee"`
	Descr   struct {
		Pair string `json:"pair"`
		Type string `json:"type"`
	} `json:"descr"`
}
