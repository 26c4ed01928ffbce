package arbitrage

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/cyclebot/internal/domain"
)

var (
	bpsDivisor = decimal.NewFromInt(10_000)
	pctDivisor = decimal.NewFromInt(100)
)

// ExchangeFees is one exchange's static fee table. Rates are fractions
// (0.003 for 30 bps).
type ExchangeFees struct {
	TakerRate decimal.Decimal
	MakerRate decimal.Decimal
	// UseProductTier prefers the fee tier the exchange reports per product
	// over the flat rates above.
	UseProductTier bool
	// SendFees is the flat withdrawal fee per currency, charged in that
	// currency.
	SendFees map[domain.Currency]decimal.Decimal
}

// FeesFromBps builds ExchangeFees from basis points.
func FeesFromBps(takerBps, makerBps decimal.Decimal, useProductTier bool, send map[domain.Currency]decimal.Decimal) ExchangeFees {
	return ExchangeFees{
		TakerRate:      takerBps.Div(bpsDivisor),
		MakerRate:      makerBps.Div(bpsDivisor),
		UseProductTier: useProductTier,
		SendFees:       send,
	}
}

// FeeSchedule answers trading and send fee lookups per exchange.
type FeeSchedule struct {
	exchanges map[domain.ExchangeID]ExchangeFees
}

// NewFeeSchedule creates a FeeSchedule from per-exchange tables.
func NewFeeSchedule(exchanges map[domain.ExchangeID]ExchangeFees) *FeeSchedule {
	cp := make(map[domain.ExchangeID]ExchangeFees, len(exchanges))
	for id, f := range exchanges {
		cp[id] = f
	}
	return &FeeSchedule{exchanges: cp}
}

// WithExchange returns a copy of the schedule with ex's table replaced.
func (f *FeeSchedule) WithExchange(ex domain.ExchangeID, fees ExchangeFees) *FeeSchedule {
	out := NewFeeSchedule(f.exchanges)
	out.exchanges[ex] = fees
	return out
}

func (f *FeeSchedule) lookup(ex domain.ExchangeID) (ExchangeFees, error) {
	fees, ok := f.exchanges[ex]
	if !ok {
		return ExchangeFees{}, fmt.Errorf("fees: %w: %s", domain.ErrUnknownExchange, ex)
	}
	return fees, nil
}

// TradingRate returns the fee fraction charged on ex for product.
func (f *FeeSchedule) TradingRate(ex domain.ExchangeID, product *domain.Product, maker bool) (decimal.Decimal, error) {
	fees, err := f.lookup(ex)
	if err != nil {
		return decimal.Zero, err
	}
	if fees.UseProductTier && product != nil {
		tier := product.TakerFeePct
		if maker {
			tier = product.MakerFeePct
		}
		if tier.Valid {
			return tier.Decimal.Div(pctDivisor), nil
		}
	}
	if maker {
		return fees.MakerRate, nil
	}
	return fees.TakerRate, nil
}

// SendFee returns the flat fee for withdrawing c from ex. Currencies missing
// from the table cost nothing.
func (f *FeeSchedule) SendFee(ex domain.ExchangeID, c domain.Currency) (decimal.Decimal, error) {
	fees, err := f.lookup(ex)
	if err != nil {
		return decimal.Zero, err
	}
	return fees.SendFees[c], nil
}
