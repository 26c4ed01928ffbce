// Package executor runs a selected cycle through its four phases and drives
// the scan loop that selects cycles.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/cyclebot/internal/domain"
	"github.com/alanyoungcy/cyclebot/internal/settlement"
)

// ErrCycleInFlight is returned when Execute is called while a cycle runs.
var ErrCycleInFlight = errors.New("executor: cycle already in flight")

const lockKey = "cyclebot:lock:cycle"

// Orchestrator executes one cycle at a time: transfer to the hot exchange,
// trade there, transfer back, trade back. There is no compensation; a failed
// phase leaves funds where they are and the error says where that is.
type Orchestrator struct {
	gateways  map[domain.ExchangeID]domain.ExchangeGateway
	poller    *settlement.Poller
	reporters []Reporter
	locks     domain.LockManager
	lockTTL   time.Duration
	inFlight  atomic.Bool
	logger    *slog.Logger
}

// OrchestratorConfig holds the optional collaborators of an Orchestrator.
type OrchestratorConfig struct {
	Reporters []Reporter
	// Locks serialises cycles across processes when set.
	Locks domain.LockManager
	// LockTTL defaults to six hours.
	LockTTL time.Duration
}

// NewOrchestrator creates an Orchestrator over gateways.
func NewOrchestrator(gateways []domain.ExchangeGateway, poller *settlement.Poller, cfg OrchestratorConfig, logger *slog.Logger) *Orchestrator {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 6 * time.Hour
	}
	o := &Orchestrator{
		gateways:  make(map[domain.ExchangeID]domain.ExchangeGateway, len(gateways)),
		poller:    poller,
		reporters: cfg.Reporters,
		locks:     cfg.Locks,
		lockTTL:   cfg.LockTTL,
		logger:    logger.With(slog.String("component", "orchestrator")),
	}
	for _, gw := range gateways {
		o.gateways[gw.ID()] = gw
	}
	if poller != nil && len(o.reporters) > 0 {
		poller.SetObserver(o.onSettlement)
	}
	return o
}

// onSettlement forwards poller transitions as settlement events.
func (o *Orchestrator) onSettlement(ctx context.Context, t settlement.Transition) {
	o.report(ctx, domain.CycleEvent{
		Kind:     domain.EventSettlement,
		CycleID:  t.Request.CorrelationID,
		Exchange: t.Request.Exchange,
		Currency: t.Request.Currency,
		Settlement: &domain.SettlementStep{
			Kind:      t.Request.Kind,
			Reference: t.Request.Reference,
			From:      string(t.From),
			To:        string(t.To),
			Attempt:   t.Attempt,
			RawStatus: t.RawStatus,
		},
		At: t.At.UTC(),
	})
}

// InFlight reports whether a cycle is executing.
func (o *Orchestrator) InFlight() bool { return o.inFlight.Load() }

// Execute runs c to completion and returns the realised summary. Any phase
// failure is returned as a *PhaseError.
func (o *Orchestrator) Execute(ctx context.Context, c domain.Cycle) (domain.CycleSummary, error) {
	if !o.inFlight.CompareAndSwap(false, true) {
		return domain.CycleSummary{}, ErrCycleInFlight
	}
	defer o.inFlight.Store(false)

	if o.locks != nil {
		unlock, err := o.locks.Acquire(ctx, lockKey, o.lockTTL)
		if err != nil {
			return domain.CycleSummary{}, fmt.Errorf("executor: acquire cycle lock: %w", err)
		}
		defer unlock()
	}

	cold, ok := o.gateways[c.Cold]
	if !ok {
		return domain.CycleSummary{}, fmt.Errorf("executor: %w: %s", domain.ErrUnknownExchange, c.Cold)
	}
	hot, ok := o.gateways[c.Hot]
	if !ok {
		return domain.CycleSummary{}, fmt.Errorf("executor: %w: %s", domain.ErrUnknownExchange, c.Hot)
	}

	log := o.logger.With(
		slog.String("cycle_id", c.ID),
		slog.String("route", c.Route()),
	)
	log.InfoContext(ctx, "executing cycle",
		slog.String("start", c.StartingAmount.String()),
		slog.String("projected_net", c.ProjectedNetAmount.String()),
		slog.String("projected_fiat", c.ProjectedNetFiatValue.String()),
	)
	cycle := c
	o.report(ctx, domain.CycleEvent{Kind: domain.EventCycleFound, CycleID: c.ID, Cycle: &cycle, Currency: c.Holding, Amount: c.StartingAmount})

	phases := []struct {
		name string
		gw   domain.ExchangeGateway
		held domain.Currency
		run  func(amount decimal.Decimal) (decimal.Decimal, error)
	}{
		{PhaseTransferHot, cold, c.Holding, func(a decimal.Decimal) (decimal.Decimal, error) {
			return o.transfer(ctx, c.ID, cold, hot, c.Holding, a)
		}},
		{PhaseHotOrder, hot, c.Holding, func(a decimal.Decimal) (decimal.Decimal, error) {
			return o.trade(ctx, c.ID, hot, c.HotLeg.Pair, c.Holding, a)
		}},
		{PhaseTransferCold, hot, c.Bridge, func(a decimal.Decimal) (decimal.Decimal, error) {
			return o.transfer(ctx, c.ID, hot, cold, c.Bridge, a)
		}},
		{PhaseColdOrder, cold, c.Bridge, func(a decimal.Decimal) (decimal.Decimal, error) {
			return o.trade(ctx, c.ID, cold, c.ColdLeg.Pair, c.Bridge, a)
		}},
	}

	amount := domain.Truncate(c.StartingAmount)
	for i, ph := range phases {
		n := i + 1
		o.report(ctx, domain.CycleEvent{
			Kind: domain.EventPhaseStarted, CycleID: c.ID, Phase: n, PhaseName: ph.name,
			Exchange: ph.gw.ID(), Currency: ph.held, Amount: amount,
		})
		out, err := ph.run(amount)
		if err != nil {
			perr := &PhaseError{Phase: n, Name: ph.name, Err: err}
			log.ErrorContext(ctx, "cycle failed",
				slog.Int("phase", n),
				slog.String("phase_name", ph.name),
				slog.String("held", string(ph.held)),
				slog.String("amount", amount.String()),
				slog.String("error", err.Error()),
			)
			o.report(ctx, domain.CycleEvent{
				Kind: domain.EventCycleFailed, CycleID: c.ID, Phase: n, PhaseName: ph.name,
				Exchange: ph.gw.ID(), Currency: ph.held, Amount: amount, Error: perr.Error(),
			})
			return domain.CycleSummary{}, perr
		}
		log.InfoContext(ctx, "phase completed",
			slog.Int("phase", n),
			slog.String("phase_name", ph.name),
			slog.String("in", amount.String()),
			slog.String("out", out.String()),
		)
		o.report(ctx, domain.CycleEvent{
			Kind: domain.EventPhaseCompleted, CycleID: c.ID, Phase: n, PhaseName: ph.name,
			Exchange: ph.gw.ID(), Amount: out,
		})
		amount = out
	}

	summary := domain.CycleSummary{
		CycleID:        c.ID,
		Currency:       c.Holding,
		BridgeCurrency: c.Bridge,
		StartAmount:    c.StartingAmount,
		EndAmount:      amount,
		ProfitOrLoss:   amount.Sub(c.StartingAmount),
	}
	log.InfoContext(ctx, "cycle completed",
		slog.String("end", summary.EndAmount.String()),
		slog.String("profit_or_loss", summary.ProfitOrLoss.String()),
	)
	o.report(ctx, domain.CycleEvent{
		Kind: domain.EventCycleCompleted, CycleID: c.ID, Currency: c.Holding,
		Amount: summary.ProfitOrLoss, Summary: &summary,
	})
	return summary, nil
}

func (o *Orchestrator) report(ctx context.Context, ev domain.CycleEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	for _, r := range o.reporters {
		r.Report(ctx, ev)
	}
}
