// Package settlement waits for a submitted transfer or order to reach a
// terminal status by polling the exchange.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/cyclebot/internal/domain"
)

// State is a step of the settlement state machine.
type State string

const (
	StateSubmitted State = "submitted"
	StatePolling   State = "polling"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Transition is reported to the Observer each time a poll moves the machine,
// including Polling to Polling. Query errors and missing records are not
// transitions.
type Transition struct {
	Request   domain.SettlementRequest
	From      State
	To        State
	Attempt   int
	RawStatus string
	At        time.Time
}

// Observer receives transitions. It runs on the polling goroutine.
type Observer func(ctx context.Context, t Transition)

// StatusFunc queries the exchange once.
type StatusFunc func(ctx context.Context) (domain.StatusReport, error)

// Config tunes the polling cadence.
type Config struct {
	Interval time.Duration
	// Backoff multiplies the interval after each non-terminal poll when > 1.
	Backoff     float64
	MaxInterval time.Duration
}

const DefaultInterval = 5 * time.Second

// Poller runs the settlement state machine. It is safe for sequential reuse;
// each Await call is independent.
type Poller struct {
	cfg      Config
	tokens   Tokens
	observer Observer
	logger   *slog.Logger
}

// NewPoller creates a Poller. A zero Interval uses DefaultInterval.
func NewPoller(cfg Config, tokens Tokens, logger *slog.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxInterval <= 0 && cfg.Backoff > 1 {
		cfg.MaxInterval = time.Minute
	}
	if cfg.MaxInterval < cfg.Interval {
		cfg.MaxInterval = cfg.Interval
	}
	return &Poller{
		cfg:    cfg,
		tokens: tokens,
		logger: logger.With(slog.String("component", "settlement")),
	}
}

// SetObserver installs fn. Must be called before Await.
func (p *Poller) SetObserver(fn Observer) {
	p.observer = fn
}

// Await polls query until it reports a terminal status for req. The
// submission must already have been accepted; Await never resubmits.
//
// The first query is issued immediately. Query errors and missing records
// are retried on the next tick without changing state. An
// authentication error stops the wait. A failure token returns the outcome
// together with an error wrapping domain.ErrSettlementFailed.
func (p *Poller) Await(ctx context.Context, req domain.SettlementRequest, query StatusFunc) (domain.SettlementOutcome, error) {
	tokens, err := p.tokens.Lookup(req.Exchange, req.Kind)
	if err != nil {
		return domain.SettlementOutcome{}, err
	}
	log := p.logger.With(
		slog.String("kind", string(req.Kind)),
		slog.String("exchange", string(req.Exchange)),
		slog.String("reference", req.Reference),
		slog.String("correlation_id", req.CorrelationID),
	)

	state := StateSubmitted
	attempts := 0
	p.emit(ctx, Transition{Request: req, To: StateSubmitted, At: time.Now()})

	interval := p.cfg.Interval
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.InfoContext(ctx, "settlement wait cancelled", slog.Int("attempts", attempts))
			return domain.SettlementOutcome{}, ctx.Err()
		case <-timer.C:
		}
		if err := ctx.Err(); err != nil {
			return domain.SettlementOutcome{}, err
		}

		attempts++
		report, err := query(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			return domain.SettlementOutcome{}, ctx.Err()
		case err != nil && errors.Is(err, domain.ErrAuthentication):
			p.emit(ctx, Transition{Request: req, From: state, To: StateFailed, Attempt: attempts, At: time.Now()})
			log.ErrorContext(ctx, "settlement query rejected", slog.String("error", err.Error()))
			return domain.SettlementOutcome{Status: domain.SettlementFailed, Attempts: attempts},
				fmt.Errorf("settlement: %s on %s: %w", req.Kind, req.Exchange, err)
		case err != nil:
			log.WarnContext(ctx, "settlement query failed, retrying",
				slog.Int("attempt", attempts),
				slog.String("error", err.Error()),
			)
			interval = p.next(interval)
			timer.Reset(interval)
			continue
		}

		if !report.Found {
			log.DebugContext(ctx, "settlement record not found yet", slog.Int("attempt", attempts))
			interval = p.next(interval)
			timer.Reset(interval)
			continue
		}

		switch tokens.classify(report.Status) {
		case domain.SettlementSucceeded:
			p.emit(ctx, Transition{Request: req, From: state, To: StateSucceeded, Attempt: attempts, RawStatus: report.Status, At: time.Now()})
			log.InfoContext(ctx, "settlement succeeded",
				slog.Int("attempts", attempts),
				slog.String("amount", report.Amount.String()),
			)
			return domain.SettlementOutcome{
				Status:            domain.SettlementSucceeded,
				TerminalAmount:    report.Amount,
				ExternalReference: report.Reference,
				RawStatus:         report.Status,
				Attempts:          attempts,
			}, nil

		case domain.SettlementFailed:
			p.emit(ctx, Transition{Request: req, From: state, To: StateFailed, Attempt: attempts, RawStatus: report.Status, At: time.Now()})
			log.ErrorContext(ctx, "settlement failed", slog.String("status", report.Status))
			out := domain.SettlementOutcome{
				Status:            domain.SettlementFailed,
				TerminalAmount:    report.Amount,
				ExternalReference: report.Reference,
				RawStatus:         report.Status,
				Attempts:          attempts,
			}
			return out, fmt.Errorf("settlement: %s on %s reported %q: %w",
				req.Kind, req.Exchange, report.Status, domain.ErrSettlementFailed)
		}

		p.emit(ctx, Transition{Request: req, From: state, To: StatePolling, Attempt: attempts, RawStatus: report.Status, At: time.Now()})
		state = StatePolling
		log.DebugContext(ctx, "settlement pending",
			slog.Int("attempt", attempts),
			slog.String("status", report.Status),
		)
		interval = p.next(interval)
		timer.Reset(interval)
	}
}

func (p *Poller) next(cur time.Duration) time.Duration {
	if p.cfg.Backoff <= 1 {
		return cur
	}
	n := time.Duration(float64(cur) * p.cfg.Backoff)
	if n > p.cfg.MaxInterval {
		n = p.cfg.MaxInterval
	}
	return n
}

func (p *Poller) emit(ctx context.Context, t Transition) {
	if p.observer != nil {
		p.observer(ctx, t)
	}
}
