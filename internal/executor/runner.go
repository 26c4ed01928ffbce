package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/cyclebot/internal/domain"
)

// Snapshotter builds one market snapshot per pass.
type Snapshotter interface {
	BuildSnapshot(ctx context.Context, gateways []domain.ExchangeGateway, depth int) (*domain.MarketSnapshot, error)
}

// Searcher picks the best cycle in a snapshot among those keep accepts.
type Searcher interface {
	BestCycleWhere(snap *domain.MarketSnapshot, keep func(domain.Cycle) bool) (domain.Cycle, bool)
}

// CycleExecutor runs a cycle to completion.
type CycleExecutor interface {
	Execute(ctx context.Context, c domain.Cycle) (domain.CycleSummary, error)
}

// RunnerConfig tunes the scan loop.
type RunnerConfig struct {
	ScanInterval time.Duration
	BookDepth    int
	// AutoExecute executes cycles that beat the threshold. When false the
	// loop only reports what it found.
	AutoExecute bool
	// ContinueAfterFailure keeps scanning after a failed cycle instead of
	// stopping for an operator.
	ContinueAfterFailure bool
	// FailureCooldown keeps a failed route out of execution for a while when
	// ContinueAfterFailure is set.
	FailureCooldown time.Duration
	MinThreshold    decimal.Decimal
}

// Status is a read-only view of the loop for the status endpoint.
type Status struct {
	Threshold   decimal.Decimal      `json:"threshold"`
	Passes      int                  `json:"passes"`
	LastPassAt  time.Time            `json:"last_pass_at"`
	LastCycle   *domain.Cycle        `json:"last_cycle,omitempty"`
	LastSummary *domain.CycleSummary `json:"last_summary,omitempty"`
	LastError   string               `json:"last_error,omitempty"`
	Executing   bool                 `json:"executing"`
	Halted      bool                 `json:"halted"`
}

// Runner is the single worker loop: snapshot, search, maybe execute, sleep.
type Runner struct {
	gateways  []domain.ExchangeGateway
	snapshots Snapshotter
	search    Searcher
	exec      CycleExecutor
	reporters []Reporter
	cooldown  *Cooldown
	cfg       RunnerConfig
	logger    *slog.Logger

	mu     sync.RWMutex
	status Status
}

// NewRunner creates a Runner.
func NewRunner(
	gateways []domain.ExchangeGateway,
	snapshots Snapshotter,
	search Searcher,
	exec CycleExecutor,
	cfg RunnerConfig,
	logger *slog.Logger,
	reporters ...Reporter,
) *Runner {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = 10 * time.Second
	}
	if cfg.BookDepth <= 0 {
		cfg.BookDepth = 1
	}
	return &Runner{
		gateways:  gateways,
		snapshots: snapshots,
		search:    search,
		exec:      exec,
		reporters: reporters,
		cooldown:  NewCooldown(cfg.FailureCooldown),
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "runner")),
		status:    Status{Threshold: cfg.MinThreshold},
	}
}

// Status returns a copy of the loop's latest state.
func (r *Runner) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

func (r *Runner) update(fn func(*Status)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.status)
}

// RunOnce performs one pass with the given threshold and returns the
// threshold for the next pass. A returned error wrapping
// domain.ErrSnapshotUnavailable means nothing was attempted; any other error
// came from executing a cycle.
func (r *Runner) RunOnce(ctx context.Context, threshold decimal.Decimal) (decimal.Decimal, error) {
	defer r.update(func(s *Status) {
		s.Passes++
		s.LastPassAt = time.Now().UTC()
	})

	snap, err := r.snapshots.BuildSnapshot(ctx, r.gateways, r.cfg.BookDepth)
	if err != nil {
		r.update(func(s *Status) { s.LastError = err.Error() })
		return threshold, err
	}

	// Routes cooling down after a failure give way to the next best one.
	c, ok := r.search.BestCycleWhere(snap, func(c domain.Cycle) bool {
		return !r.cooldown.Blocked(c.Route())
	})
	if !ok {
		r.logger.DebugContext(ctx, "no profitable cycle")
		return threshold, nil
	}

	log := r.logger.With(
		slog.String("cycle_id", c.ID),
		slog.String("route", c.Route()),
		slog.String("projected_fiat", c.ProjectedNetFiatValue.String()),
		slog.String("threshold", threshold.String()),
	)
	if !c.ProjectedNetFiatValue.GreaterThan(threshold) {
		log.InfoContext(ctx, "best cycle below threshold")
		return threshold, nil
	}
	if !r.cfg.AutoExecute {
		log.InfoContext(ctx, "cycle found, execution disabled")
		r.update(func(s *Status) { s.LastCycle = &c })
		return threshold, nil
	}
	r.update(func(s *Status) {
		s.LastCycle = &c
		s.Executing = true
	})
	summary, err := r.exec.Execute(ctx, c)
	r.update(func(s *Status) { s.Executing = false })
	if err != nil {
		r.cooldown.Block(c.Route())
		r.update(func(s *Status) { s.LastError = err.Error() })
		return threshold, err
	}

	next := NextThreshold(threshold, summary, c)
	r.update(func(s *Status) {
		s.LastSummary = &summary
		s.Threshold = next
	})
	if !next.Equal(threshold) {
		log.WarnContext(ctx, "cycle lost money, raising threshold",
			slog.String("profit_or_loss", summary.ProfitOrLoss.String()),
			slog.String("next_threshold", next.String()),
		)
		ev := domain.CycleEvent{
			Kind: domain.EventThresholdRaised, CycleID: c.ID, Currency: c.Holding,
			Amount: summary.ProfitOrLoss, Threshold: &next, At: time.Now().UTC(),
		}
		for _, rep := range r.reporters {
			rep.Report(ctx, ev)
		}
	}
	return next, nil
}

// Run loops until ctx is cancelled or a cycle fails without
// ContinueAfterFailure. The threshold lives in this loop only.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "runner started",
		slog.Duration("scan_interval", r.cfg.ScanInterval),
		slog.Bool("auto_execute", r.cfg.AutoExecute),
		slog.String("min_threshold", r.cfg.MinThreshold.String()),
	)
	defer r.logger.Info("runner stopped")

	threshold := r.cfg.MinThreshold
	for {
		next, err := r.RunOnce(ctx, threshold)
		threshold = next
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, domain.ErrSnapshotUnavailable):
			r.logger.WarnContext(ctx, "snapshot failed, retrying next pass", slog.String("error", err.Error()))
		case errors.Is(err, ErrCycleInFlight), errors.Is(err, domain.ErrLockHeld):
			r.logger.InfoContext(ctx, "another cycle holds the lock", slog.String("error", err.Error()))
		case r.cfg.ContinueAfterFailure:
			r.logger.ErrorContext(ctx, "cycle failed, continuing", slog.String("error", err.Error()))
		default:
			r.update(func(s *Status) { s.Halted = true })
			return fmt.Errorf("runner: halted: %w", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.cfg.ScanInterval):
		}
	}
}
