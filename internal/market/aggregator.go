// Package market builds the per-pass market snapshot that cycle search reads.
package market

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/cyclebot/internal/domain"
	"github.com/alanyoungcy/cyclebot/internal/symbol"
)

// Aggregator pulls products, balances and order books from every gateway
// concurrently and joins them into one MarketSnapshot.
type Aggregator struct {
	symbols *symbol.Normalizer
	fiat    domain.Currency
	logger  *slog.Logger
	now     func() time.Time
}

// NewAggregator creates an Aggregator. Balances in fiat are dropped from the
// snapshot since fiat never starts a cycle.
func NewAggregator(symbols *symbol.Normalizer, fiat domain.Currency, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		symbols: symbols,
		fiat:    fiat,
		logger:  logger.With(slog.String("component", "aggregator")),
		now:     time.Now,
	}
}

// BuildSnapshot fetches everything in parallel and waits for all of it. The
// first failing call cancels the rest and the pass fails as a whole with an
// error wrapping domain.ErrSnapshotUnavailable. Gateways are checked against
// the symbol table before any call is made.
func (a *Aggregator) BuildSnapshot(ctx context.Context, gateways []domain.ExchangeGateway, depth int) (*domain.MarketSnapshot, error) {
	start := a.now()
	snap := &domain.MarketSnapshot{
		Exchanges: make(map[domain.ExchangeID]*domain.ExchangeSnapshot, len(gateways)),
	}

	pairs := make([][]domain.Pair, len(gateways))
	for i, gw := range gateways {
		id := gw.ID()
		if _, dup := snap.Exchanges[id]; dup {
			return nil, fmt.Errorf("market: %w: duplicate gateway %s", domain.ErrSnapshotUnavailable, id)
		}
		ps, err := a.symbols.Pairs(id)
		if err != nil {
			return nil, fmt.Errorf("market: %w", err)
		}
		pairs[i] = ps
		snap.Exchanges[id] = &domain.ExchangeSnapshot{
			Exchange: id,
			Books:    make(map[domain.Pair]domain.OrderBook, len(ps)),
			Products: make(map[domain.Pair]domain.Product),
		}
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for i, gw := range gateways {
		id := gw.ID()
		es := snap.Exchanges[id]

		g.Go(func() error {
			products, err := gw.Products(gctx)
			if err != nil {
				return fmt.Errorf("%s products: %w", id, err)
			}
			mu.Lock()
			defer mu.Unlock()
			for _, p := range products {
				es.Products[p.Pair] = p
			}
			return nil
		})

		g.Go(func() error {
			balances, err := gw.Balances(gctx)
			if err != nil {
				return fmt.Errorf("%s balances: %w", id, err)
			}
			kept := a.filterBalances(id, balances)
			mu.Lock()
			es.Balances = kept
			mu.Unlock()
			return nil
		})

		for _, pair := range pairs[i] {
			g.Go(func() error {
				ob, err := gw.OrderBook(gctx, pair, depth)
				if err != nil {
					return fmt.Errorf("%s order book %s: %w", id, pair, err)
				}
				ob.Exchange = id
				ob.Pair = pair
				mu.Lock()
				es.Books[pair] = ob
				mu.Unlock()
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		a.logger.WarnContext(ctx, "snapshot build failed",
			slog.String("error", err.Error()),
			slog.Duration("elapsed", time.Since(start)),
		)
		return nil, fmt.Errorf("market: %w: %w", domain.ErrSnapshotUnavailable, err)
	}

	snap.TakenAt = a.now()
	a.logger.DebugContext(ctx, "snapshot built",
		slog.Int("exchanges", len(snap.Exchanges)),
		slog.Duration("elapsed", snap.TakenAt.Sub(start)),
	)
	return snap, nil
}

// filterBalances drops empty and fiat balances, and those in a currency the
// exchange has no mapping for.
func (a *Aggregator) filterBalances(ex domain.ExchangeID, in []domain.Balance) []domain.Balance {
	out := make([]domain.Balance, 0, len(in))
	for _, b := range in {
		if !b.Amount.IsPositive() || b.Currency == a.fiat {
			continue
		}
		if _, err := a.symbols.ToExchangeCurrency(b.Currency, ex); err != nil {
			continue
		}
		b.Exchange = ex
		out = append(out, b)
	}
	return out
}
