package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// TradeLeg is one conversion inside a cycle as priced from the snapshot.
type TradeLeg struct {
	Exchange       ExchangeID      `json:"exchange"`
	Pair           Pair            `json:"pair"`
	Side           Side            `json:"side"`
	Input          Currency        `json:"input"`
	Output         Currency        `json:"output"`
	InputAmount    decimal.Decimal `json:"input_amount"`
	Price          decimal.Decimal `json:"price"`
	Fee            decimal.Decimal `json:"fee"`
	ExpectedOutput decimal.Decimal `json:"expected_output"`
}

// Cycle is a candidate round trip: Holding leaves Cold, is converted to Bridge
// on Hot, comes back to Cold and is converted back to Holding.
type Cycle struct {
	ID                    string          `json:"id"`
	Holding               Currency        `json:"holding"`
	Bridge                Currency        `json:"bridge"`
	Cold                  ExchangeID      `json:"cold"`
	Hot                   ExchangeID      `json:"hot"`
	StartingAmount        decimal.Decimal `json:"starting_amount"`
	HotLeg                TradeLeg        `json:"hot_leg"`
	ColdLeg               TradeLeg        `json:"cold_leg"`
	ColdSendFee           decimal.Decimal `json:"cold_send_fee"`
	HotSendFee            decimal.Decimal `json:"hot_send_fee"`
	ProjectedNetAmount    decimal.Decimal `json:"projected_net_amount"`
	ProjectedNetFiatValue decimal.Decimal `json:"projected_net_fiat_value"`
	// FiatRate is the fiat value of one unit of Holding on Cold when the
	// cycle was priced.
	FiatRate decimal.Decimal `json:"fiat_rate"`
}

// Route identifies the cycle's path independent of amounts and prices.
func (c Cycle) Route() string {
	return fmt.Sprintf("%s:%s>%s:%s", c.Cold, c.Holding, c.Hot, c.Bridge)
}

// CycleSummary is the realised result of an executed cycle.
type CycleSummary struct {
	CycleID        string          `json:"cycle_id"`
	Currency       Currency        `json:"currency"`
	BridgeCurrency Currency        `json:"bridge_currency"`
	StartAmount    decimal.Decimal `json:"start_amount"`
	EndAmount      decimal.Decimal `json:"end_amount"`
	ProfitOrLoss   decimal.Decimal `json:"profit_or_loss"`
}
