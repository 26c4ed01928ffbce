package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/cyclebot/internal/arbitrage"
	"github.com/alanyoungcy/cyclebot/internal/domain"
	"github.com/alanyoungcy/cyclebot/internal/executor"
	"github.com/alanyoungcy/cyclebot/internal/market"
	"github.com/alanyoungcy/cyclebot/internal/server"
	"github.com/alanyoungcy/cyclebot/internal/server/handler"
	"github.com/alanyoungcy/cyclebot/internal/server/ws"
	"github.com/alanyoungcy/cyclebot/internal/settlement"
)

// ScanMode searches and reports cycles but never executes them.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scan mode")
	return a.runEngine(ctx, deps, false)
}

// TradeMode executes cycles that beat the threshold on the live exchanges.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode",
		slog.Bool("auto_execute", a.cfg.Engine.AutoExecute),
	)
	return a.runEngine(ctx, deps, a.cfg.Engine.AutoExecute)
}

// PaperMode trades against the in-memory exchanges seeded from config.
func (a *App) PaperMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting paper mode",
		slog.Int("exchanges", len(deps.Gateways)),
	)
	return a.runEngine(ctx, deps, a.cfg.Engine.AutoExecute)
}

// engine is the scan loop and what it reports to.
type engine struct {
	runner *executor.Runner
	hub    *ws.Hub
}

// buildEngine assembles the search, settlement and execution pipeline.
func (a *App) buildEngine(deps *Dependencies, autoExecute bool) *engine {
	ec := a.cfg.Engine
	fiat := domain.Currency(ec.FiatCurrency)

	search := arbitrage.NewEngine(arbitrage.EngineConfig{
		Fees:     deps.Fees,
		Fiat:     fiat,
		Maker:    ec.Maker,
		MaxStart: currencyDecimals(ec.MaxStartAmount),
	}, a.logger)
	snapshots := market.NewAggregator(deps.Symbols, fiat, a.logger)
	poller := settlement.NewPoller(settlement.Config{
		Interval:    a.cfg.Settlement.Interval.Duration,
		Backoff:     a.cfg.Settlement.Backoff,
		MaxInterval: a.cfg.Settlement.MaxInterval.Duration,
	}, deps.Tokens, a.logger)

	// With a bus the hub follows events through Redis, so it must not also
	// get them in-process.
	var (
		hub    *ws.Hub
		runner *executor.Runner
	)
	reporters := []executor.Reporter{executor.NewNotifyReporter(deps.Notifier, a.logger)}
	if deps.SignalBus != nil {
		reporters = append(reporters, executor.NewBusReporter(deps.SignalBus, a.logger))
	}
	if a.cfg.Server.Enabled {
		hub = ws.NewHub(deps.SignalBus, ws.Config{
			AllowedOrigins: a.cfg.Server.CORSOrigins,
			Status:         func() any { return runner.Status() },
		}, a.logger)
		if deps.SignalBus == nil {
			reporters = append(reporters, hub)
		}
	}

	orch := executor.NewOrchestrator(deps.Gateways, poller, executor.OrchestratorConfig{
		Reporters: reporters,
		Locks:     deps.LockManager,
		LockTTL:   ec.LockTTL.Duration,
	}, a.logger)

	runner = executor.NewRunner(deps.Gateways, snapshots, search, orch, executor.RunnerConfig{
		ScanInterval:         ec.ScanInterval.Duration,
		BookDepth:            ec.BookDepth,
		AutoExecute:          autoExecute,
		ContinueAfterFailure: ec.ContinueAfterFailure,
		FailureCooldown:      ec.FailureCooldown.Duration,
		MinThreshold:         ec.MinThreshold,
	}, a.logger, reporters...)

	return &engine{runner: runner, hub: hub}
}

func (a *App) runEngine(ctx context.Context, deps *Dependencies, autoExecute bool) error {
	eng := a.buildEngine(deps, autoExecute)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eng.runner.Run(gctx)
	})
	if a.cfg.Server.Enabled {
		a.startHTTPServer(gctx, g, deps, eng)
	}
	return g.Wait()
}

// startHTTPServer adds the status API and WebSocket hub to g. The server is
// shut down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, eng *engine) {
	pingers := map[string]handler.Pinger{}
	var cycles *handler.CycleHandler
	if deps.Redis != nil {
		pingers["redis"] = deps.Redis
		cycles = handler.NewCycleHandler(deps.SignalBus, a.logger)
	}

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(pingers, a.logger),
		Status: handler.NewStatusHandler(a.cfg.Mode, a.cfg.ExchangeIDs(), eng.runner),
		Cycles: cycles,
	}
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
	}, handlers, eng.hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		err := eng.hub.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
