package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/cyclebot/internal/domain"
)

// Phase names in execution order.
const (
	PhaseTransferHot  = "transfer_hot"
	PhaseHotOrder     = "hot_order"
	PhaseTransferCold = "transfer_cold"
	PhaseColdOrder    = "cold_order"
)

// PhaseError stops a cycle. Phase is 1-based.
type PhaseError struct {
	Phase int
	Name  string
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("executor: phase %d (%s): %v", e.Phase, e.Name, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

var errNoReference = errors.New("send settled without a transaction reference")

// transfer moves amount of c from src to dst and returns what dst credited.
func (o *Orchestrator) transfer(ctx context.Context, cycleID string, src, dst domain.ExchangeGateway, c domain.Currency, amount decimal.Decimal) (decimal.Decimal, error) {
	addr, err := dst.Address(ctx, c)
	if err != nil {
		return decimal.Zero, fmt.Errorf("address on %s: %w", dst.ID(), err)
	}
	handle, err := src.Send(ctx, c, amount, addr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("send from %s: %w", src.ID(), err)
	}
	o.logger.InfoContext(ctx, "transfer submitted",
		slog.String("cycle_id", cycleID),
		slog.String("from", string(src.ID())),
		slog.String("to", string(dst.ID())),
		slog.String("currency", string(c)),
		slog.String("amount", amount.String()),
		slog.String("transfer_id", handle.ID),
	)

	sent, err := o.poller.Await(ctx, domain.SettlementRequest{
		Kind:          domain.SettlementSend,
		Exchange:      src.ID(),
		Currency:      c,
		Reference:     handle.ID,
		CorrelationID: cycleID,
	}, func(ctx context.Context) (domain.StatusReport, error) {
		return src.SendStatus(ctx, c, handle.ID)
	})
	if err != nil {
		return decimal.Zero, err
	}
	if sent.ExternalReference == "" {
		return decimal.Zero, fmt.Errorf("%s: %w", src.ID(), errNoReference)
	}

	received, err := o.poller.Await(ctx, domain.SettlementRequest{
		Kind:          domain.SettlementReceive,
		Exchange:      dst.ID(),
		Currency:      c,
		Reference:     sent.ExternalReference,
		CorrelationID: cycleID,
	}, func(ctx context.Context) (domain.StatusReport, error) {
		return dst.ReceiveStatus(ctx, c, sent.ExternalReference)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return domain.Truncate(received.TerminalAmount), nil
}

// trade converts amount of held on gw through pair at market and returns
// the settled output.
func (o *Orchestrator) trade(ctx context.Context, cycleID string, gw domain.ExchangeGateway, pair domain.Pair, held domain.Currency, amount decimal.Decimal) (decimal.Decimal, error) {
	req := domain.OrderRequest{
		Pair:          pair,
		Side:          pair.SideFor(held),
		Type:          domain.OrderTypeMarket,
		Amount:        amount,
		CorrelationID: cycleID,
	}
	handle, err := gw.PlaceOrder(ctx, req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("order on %s: %w", gw.ID(), err)
	}
	o.logger.InfoContext(ctx, "order submitted",
		slog.String("cycle_id", cycleID),
		slog.String("exchange", string(gw.ID())),
		slog.String("pair", pair.String()),
		slog.String("side", string(req.Side)),
		slog.String("amount", amount.String()),
		slog.String("order_id", handle.OrderID),
	)

	filled, err := o.poller.Await(ctx, domain.SettlementRequest{
		Kind:          domain.SettlementOrder,
		Exchange:      gw.ID(),
		Currency:      req.Receives(),
		Reference:     handle.OrderID,
		CorrelationID: cycleID,
	}, func(ctx context.Context) (domain.StatusReport, error) {
		return gw.OrderStatus(ctx, handle.OrderID)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return domain.Truncate(filled.TerminalAmount), nil
}
