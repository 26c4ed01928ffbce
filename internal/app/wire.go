package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/cyclebot/internal/arbitrage"
	"github.com/alanyoungcy/cyclebot/internal/cache/redis"
	"github.com/alanyoungcy/cyclebot/internal/config"
	"github.com/alanyoungcy/cyclebot/internal/crypto"
	"github.com/alanyoungcy/cyclebot/internal/domain"
	"github.com/alanyoungcy/cyclebot/internal/notify"
	"github.com/alanyoungcy/cyclebot/internal/platform"
	"github.com/alanyoungcy/cyclebot/internal/platform/gdax"
	"github.com/alanyoungcy/cyclebot/internal/platform/kraken"
	"github.com/alanyoungcy/cyclebot/internal/platform/paper"
	"github.com/alanyoungcy/cyclebot/internal/settlement"
	"github.com/alanyoungcy/cyclebot/internal/symbol"
)

// Dependencies bundles everything the modes need. It is constructed by Wire
// and torn down by the returned cleanup function.
type Dependencies struct {
	Symbols  *symbol.Normalizer
	Gateways []domain.ExchangeGateway
	Fees     *arbitrage.FeeSchedule
	Tokens   settlement.Tokens
	// Paper is set in paper mode only.
	Paper *paper.Network

	// Redis-backed; nil when Redis is disabled.
	Redis       *redis.Client
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}
	paperMode := strings.EqualFold(cfg.Mode, "paper")

	// --- Symbols ---
	table := symbol.DefaultTable()
	if paperMode {
		table = paperTable(table, cfg.Paper)
	}
	table = table.Merge(symbolOverrides(cfg.Symbols))
	norm, err := symbol.New(table)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: symbols: %w", err)
	}
	for _, id := range cfg.ExchangeIDs() {
		if !norm.Knows(domain.ExchangeID(id)) {
			return nil, nil, fmt.Errorf("wire: symbols: %w: %s", domain.ErrUnknownExchange, id)
		}
	}
	deps.Symbols = norm

	// --- Redis (optional) ---
	if cfg.Redis.Enabled {
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			Namespace:  cfg.Redis.Namespace,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = rc.Close() })

		limiter := redis.NewRateLimiter(rc, redis.Limit{})
		setExchangeLimit(limiter, "kraken", cfg.Kraken.RateLimit)
		setExchangeLimit(limiter, "gdax", cfg.Gdax.RateLimit)

		deps.Redis = rc
		deps.RateLimiter = limiter
		deps.LockManager = redis.NewLockManager(rc, logger)
		deps.SignalBus = redis.NewSignalBus(rc, cfg.Redis.StreamMaxLen)
	}

	// --- Exchanges ---
	if paperMode {
		network, gws, err := buildPaper(cfg.Paper)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		deps.Paper, deps.Gateways = network, gws
		deps.Fees = paperFees(cfg.Paper)
		deps.Tokens = paperTokens(cfg.Paper)
	} else {
		gws, err := buildLive(cfg, norm, deps.RateLimiter, logger)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		deps.Gateways = gws
		deps.Fees = arbitrage.NewFeeSchedule(exchangeFees(cfg.Fees))
		deps.Tokens = settlement.DefaultTokens()
	}
	deps.Tokens = applyTokenOverrides(deps.Tokens, cfg.Settlement.Tokens)

	ids := make([]domain.ExchangeID, len(deps.Gateways))
	for i, gw := range deps.Gateways {
		ids[i] = gw.ID()
	}
	if err := deps.Tokens.Validate(ids); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %w", err)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

func setExchangeLimit(rl *redis.RateLimiter, id string, rc config.RateLimitConfig) {
	if rc.Requests > 0 && rc.Window.Duration > 0 {
		rl.SetLimit(id, redis.Limit{Requests: rc.Requests, Window: rc.Window.Duration})
	}
}

// buildLive creates the REST gateways for every enabled exchange, throttled
// through limiter when Redis is on.
func buildLive(cfg *config.Config, norm *symbol.Normalizer, limiter domain.RateLimiter, logger *slog.Logger) ([]domain.ExchangeGateway, error) {
	var out []domain.ExchangeGateway

	if cfg.Gdax.Enabled {
		secret, err := crypto.LoadSecret(crypto.SecretSource{
			Raw:      cfg.Gdax.APISecret,
			File:     cfg.Gdax.SecretFile,
			Password: cfg.Gdax.SecretPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("wire: gdax secret: %w", err)
		}
		client := gdax.NewClient(cfg.Gdax.BaseURL, crypto.Credentials{
			Key:        cfg.Gdax.APIKey,
			Secret:     secret,
			Passphrase: cfg.Gdax.Passphrase,
		}, cfg.Gdax.Timeout.Duration)
		out = append(out, platform.Throttle(gdax.NewGateway(symbol.Gdax, client, norm, logger), limiter))
	}

	if cfg.Kraken.Enabled {
		secret, err := crypto.LoadSecret(crypto.SecretSource{
			Raw:      cfg.Kraken.APISecret,
			File:     cfg.Kraken.SecretFile,
			Password: cfg.Kraken.SecretPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("wire: kraken secret: %w", err)
		}
		client := kraken.NewClient(cfg.Kraken.BaseURL, crypto.Credentials{
			Key:    cfg.Kraken.APIKey,
			Secret: secret,
		}, cfg.Kraken.Timeout.Duration)
		opts := kraken.Options{
			WithdrawKeys:   withdrawKeys(cfg.Kraken.WithdrawKeys),
			DepositMethods: currencyStrings(cfg.Kraken.DepositMethods),
		}
		out = append(out, platform.Throttle(kraken.NewGateway(symbol.Kraken, client, norm, opts, logger), limiter))
	}

	return out, nil
}
