package executor

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/cyclebot/internal/domain"
)

// NextThreshold returns the minimum fiat value the next cycle must beat. A
// loss (or break-even) raises it by the loss valued at the rate the cycle was
// priced with; a profit leaves it as is.
func NextThreshold(current decimal.Decimal, summary domain.CycleSummary, c domain.Cycle) decimal.Decimal {
	if summary.ProfitOrLoss.IsPositive() {
		return current
	}
	loss := summary.ProfitOrLoss.Abs().Mul(c.FiatRate)
	return domain.Truncate(current.Add(loss))
}
