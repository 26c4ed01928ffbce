// Package config defines the top-level configuration for the cycle bot and
// provides validation helpers.
package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by CYCLEBOT_* environment variables.
type Config struct {
	Engine     EngineConfig         `toml:"engine"`
	Settlement SettlementConfig     `toml:"settlement"`
	Fees       map[string]FeeConfig `toml:"fees"`
	Symbols    SymbolsConfig        `toml:"symbols"`
	Kraken     KrakenConfig         `toml:"kraken"`
	Gdax       GdaxConfig           `toml:"gdax"`
	Paper      PaperConfig          `toml:"paper"`
	Redis      RedisConfig          `toml:"redis"`
	Notify     NotifyConfig         `toml:"notify"`
	Server     ServerConfig         `toml:"server"`
	Log        LogConfig            `toml:"log"`
	Mode       string               `toml:"mode"`
	LogLevel   string               `toml:"log_level"`
}

// EngineConfig holds the search and scan loop parameters.
type EngineConfig struct {
	// FiatCurrency values every cycle; it must be quoted against each
	// holding on the cold exchange.
	FiatCurrency string          `toml:"fiat_currency"`
	MinThreshold decimal.Decimal `toml:"min_threshold"`
	ScanInterval duration        `toml:"scan_interval"`
	BookDepth    int             `toml:"book_depth"`
	AutoExecute  bool            `toml:"auto_execute"`
	// ContinueAfterFailure keeps scanning after a failed cycle.
	ContinueAfterFailure bool     `toml:"continue_after_failure"`
	FailureCooldown      duration `toml:"failure_cooldown"`
	// Maker prices legs at maker rates.
	Maker          bool                       `toml:"maker"`
	MaxStartAmount map[string]decimal.Decimal `toml:"max_start_amount"`
	LockTTL        duration                   `toml:"lock_ttl"`
}

// SettlementConfig holds the polling cadence and per-exchange terminal
// status overrides.
type SettlementConfig struct {
	Interval    duration `toml:"interval"`
	Backoff     float64  `toml:"backoff"`
	MaxInterval duration `toml:"max_interval"`
	// Tokens is keyed by exchange then by "send", "receive" or "order".
	Tokens map[string]map[string]TokenConfig `toml:"tokens"`
}

// TokenConfig lists the raw statuses that end a settlement.
type TokenConfig struct {
	Success string   `toml:"success"`
	Failure []string `toml:"failure"`
}

// FeeConfig is one exchange's fee table. Send fees are flat amounts of the
// currency sent.
type FeeConfig struct {
	TakerBps       decimal.Decimal            `toml:"taker_bps"`
	MakerBps       decimal.Decimal            `toml:"maker_bps"`
	UseProductTier bool                       `toml:"use_product_tier"`
	Send           map[string]decimal.Decimal `toml:"send"`
}

// SymbolsConfig overlays the built-in symbol table. Both maps are keyed by
// canonical name then exchange.
type SymbolsConfig struct {
	Currencies map[string]map[string]string `toml:"currencies"`
	Pairs      map[string]map[string]string `toml:"pairs"`
}

// RateLimitConfig is a shared request budget per window, enforced through
// Redis. Zero requests falls back to one request per second.
type RateLimitConfig struct {
	Requests int      `toml:"requests"`
	Window   duration `toml:"window"`
}

// KrakenConfig holds Kraken REST credentials and funding settings.
type KrakenConfig struct {
	Enabled   bool   `toml:"enabled"`
	BaseURL   string `toml:"base_url"`
	APIKey    string `toml:"api_key"`
	APISecret string `toml:"api_secret"`
	// SecretFile is a sealed secret produced by `cyclebot -seal-secret`.
	SecretFile     string   `toml:"secret_file"`
	SecretPassword string   `toml:"secret_password"`
	Timeout        duration `toml:"timeout"`
	// WithdrawKeys names the pre-registered withdrawal key per destination
	// exchange and currency.
	WithdrawKeys   map[string]map[string]string `toml:"withdraw_keys"`
	DepositMethods map[string]string            `toml:"deposit_methods"`
	RateLimit      RateLimitConfig              `toml:"rate_limit"`
}

// GdaxConfig holds Coinbase Exchange REST credentials.
type GdaxConfig struct {
	Enabled        bool            `toml:"enabled"`
	BaseURL        string          `toml:"base_url"`
	APIKey         string          `toml:"api_key"`
	APISecret      string          `toml:"api_secret"`
	Passphrase     string          `toml:"passphrase"`
	SecretFile     string          `toml:"secret_file"`
	SecretPassword string          `toml:"secret_password"`
	Timeout        duration        `toml:"timeout"`
	RateLimit      RateLimitConfig `toml:"rate_limit"`
}

// PaperConfig seeds in-memory exchanges for paper mode.
type PaperConfig struct {
	Exchanges map[string]PaperExchangeConfig `toml:"exchanges"`
}

// PaperExchangeConfig describes one paper exchange.
type PaperExchangeConfig struct {
	Balances     map[string]decimal.Decimal `toml:"balances"`
	Books        map[string]PaperBookConfig `toml:"books"`
	TakerFeeBps  decimal.Decimal            `toml:"taker_fee_bps"`
	WithdrawFees map[string]decimal.Decimal `toml:"withdraw_fees"`
	PendingPolls int                        `toml:"pending_polls"`
}

// PaperBookConfig is a one-level book.
type PaperBookConfig struct {
	Bid decimal.Decimal `toml:"bid"`
	Ask decimal.Decimal `toml:"ask"`
}

// RedisConfig holds Redis connection parameters. Without Redis the bot runs
// single-process: no shared lock, no event bus, no shared rate limits.
type RedisConfig struct {
	Enabled      bool   `toml:"enabled"`
	Addr         string `toml:"addr"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"pool_size"`
	MaxRetries   int    `toml:"max_retries"`
	TLSEnabled   bool   `toml:"tls_enabled"`
	Namespace    string `toml:"namespace"`
	StreamMaxLen int64  `toml:"stream_max_len"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	// RateLimit is requests per minute per client IP; 0 disables it.
	RateLimit int `toml:"rate_limit"`
}

// LogConfig controls the optional rotating log file. An empty File logs to
// stdout only.
type LogConfig struct {
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			FiatCurrency:         "USD",
			MinThreshold:         decimal.NewFromInt(10),
			ScanInterval:         duration{10 * time.Second},
			BookDepth:            1,
			AutoExecute:          true,
			ContinueAfterFailure: false,
			FailureCooldown:      duration{15 * time.Minute},
			MaxStartAmount:       map[string]decimal.Decimal{},
			LockTTL:              duration{time.Minute},
		},
		Settlement: SettlementConfig{
			Interval:    duration{5 * time.Second},
			Backoff:     1,
			MaxInterval: duration{time.Minute},
		},
		Fees: map[string]FeeConfig{
			"gdax": {
				TakerBps: decimal.NewFromInt(30),
				MakerBps: decimal.Zero,
				Send: map[string]decimal.Decimal{
					"LTC": dec("0.00023225"),
					"BTC": dec("0.00037251"),
					"ETH": dec("0.00045006"),
				},
			},
			"kraken": {
				TakerBps:       decimal.NewFromInt(26),
				MakerBps:       decimal.NewFromInt(16),
				UseProductTier: true,
				Send: map[string]decimal.Decimal{
					"LTC": dec("0.005"),
					"BTC": dec("0.005"),
					"ETH": dec("0.02"),
				},
			},
		},
		Kraken: KrakenConfig{
			Enabled: true,
			BaseURL: "https://api.kraken.com",
			Timeout: duration{15 * time.Second},
			DepositMethods: map[string]string{
				"BTC": "Bitcoin",
				"LTC": "Litecoin",
				"ETH": "Ether (Hex)",
			},
			RateLimit: RateLimitConfig{Requests: 15, Window: duration{45 * time.Second}},
		},
		Gdax: GdaxConfig{
			Enabled:   true,
			BaseURL:   "https://api.exchange.coinbase.com",
			Timeout:   duration{15 * time.Second},
			RateLimit: RateLimitConfig{Requests: 10, Window: duration{time.Second}},
		},
		Redis: RedisConfig{
			Enabled:      false,
			Addr:         "localhost:6379",
			PoolSize:     10,
			MaxRetries:   3,
			Namespace:    "cyclebot",
			StreamMaxLen: 10_000,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
			RateLimit:   120,
		},
		Notify: NotifyConfig{
			Events: []string{"cycle_completed", "cycle_failed", "threshold_raised"},
		},
		Log: LogConfig{
			File:       "logs/cyclebot.log",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Mode:     "scan",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"scan":  true,
	"trade": true,
	"paper": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validSettlementKinds = map[string]bool{
	"send":    true,
	"receive": true,
	"order":   true,
}

// ExchangeIDs returns the exchanges the configured mode trades on, sorted.
func (c *Config) ExchangeIDs() []string {
	var ids []string
	if strings.ToLower(c.Mode) == "paper" {
		for id := range c.Paper.Exchanges {
			ids = append(ids, id)
		}
	} else {
		if c.Gdax.Enabled {
			ids = append(ids, "gdax")
		}
		if c.Kraken.Enabled {
			ids = append(ids, "kraken")
		}
	}
	sort.Strings(ids)
	return ids
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: scan, trade, paper)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Engine
	if strings.TrimSpace(c.Engine.FiatCurrency) == "" {
		errs = append(errs, "engine: fiat_currency must not be empty")
	}
	if c.Engine.MinThreshold.IsNegative() {
		errs = append(errs, "engine: min_threshold must be >= 0")
	}
	if c.Engine.ScanInterval.Duration <= 0 {
		errs = append(errs, "engine: scan_interval must be > 0")
	}
	if c.Engine.BookDepth < 1 {
		errs = append(errs, "engine: book_depth must be >= 1")
	}
	if c.Engine.LockTTL.Duration <= 0 {
		errs = append(errs, "engine: lock_ttl must be > 0")
	}
	for cur, amt := range c.Engine.MaxStartAmount {
		if !amt.IsPositive() {
			errs = append(errs, fmt.Sprintf("engine: max_start_amount.%s must be > 0", cur))
		}
	}

	// Settlement
	if c.Settlement.Interval.Duration <= 0 {
		errs = append(errs, "settlement: interval must be > 0")
	}
	if c.Settlement.Backoff != 0 && c.Settlement.Backoff < 1 {
		errs = append(errs, "settlement: backoff must be 0 or >= 1")
	}
	if c.Settlement.MaxInterval.Duration > 0 && c.Settlement.MaxInterval.Duration < c.Settlement.Interval.Duration {
		errs = append(errs, "settlement: max_interval must not be shorter than interval")
	}
	for ex, kinds := range c.Settlement.Tokens {
		for kind, set := range kinds {
			if !validSettlementKinds[kind] {
				errs = append(errs, fmt.Sprintf("settlement: tokens.%s.%s: unknown kind (valid: send, receive, order)", ex, kind))
			}
			if set.Success == "" {
				errs = append(errs, fmt.Sprintf("settlement: tokens.%s.%s: success must not be empty", ex, kind))
			}
		}
	}

	// Fees
	for ex, f := range c.Fees {
		if f.TakerBps.IsNegative() || f.MakerBps.IsNegative() {
			errs = append(errs, fmt.Sprintf("fees: %s: bps must be >= 0", ex))
		}
		for cur, fee := range f.Send {
			if fee.IsNegative() {
				errs = append(errs, fmt.Sprintf("fees: %s: send.%s must be >= 0", ex, cur))
			}
		}
	}

	// Exchanges
	ids := c.ExchangeIDs()
	if len(ids) < 2 {
		errs = append(errs, fmt.Sprintf("at least two exchanges are required for mode %s, got %d", c.Mode, len(ids)))
	}
	// Paper exchanges carry their own fee tables.
	if mode != "paper" {
		for _, id := range ids {
			if _, ok := c.Fees[id]; !ok {
				errs = append(errs, fmt.Sprintf("fees: no fee table for exchange %s", id))
			}
		}
	}

	if mode == "scan" || mode == "trade" {
		if c.Kraken.Enabled {
			errs = append(errs, credentialErrors("kraken", c.Kraken.BaseURL, c.Kraken.APIKey, c.Kraken.APISecret, c.Kraken.SecretFile, c.Kraken.SecretPassword)...)
		}
		if c.Gdax.Enabled {
			errs = append(errs, credentialErrors("gdax", c.Gdax.BaseURL, c.Gdax.APIKey, c.Gdax.APISecret, c.Gdax.SecretFile, c.Gdax.SecretPassword)...)
			if c.Gdax.Passphrase == "" {
				errs = append(errs, "gdax: passphrase is required")
			}
		}
	}

	// Paper
	if mode == "paper" {
		for id, p := range c.Paper.Exchanges {
			if p.PendingPolls < 0 {
				errs = append(errs, fmt.Sprintf("paper: %s: pending_polls must be >= 0", id))
			}
			for pair, b := range p.Books {
				if b.Bid.IsNegative() || b.Ask.IsNegative() {
					errs = append(errs, fmt.Sprintf("paper: %s: books.%s: prices must be >= 0", id, pair))
				}
			}
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Notify: token and chat id go together.
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// credentialErrors checks one exchange's REST settings. The secret comes
// either inline or from a sealed file, which needs its password.
func credentialErrors(name, baseURL, key, secret, secretFile, password string) []string {
	var errs []string
	if baseURL == "" {
		errs = append(errs, name+": base_url must not be empty")
	}
	if key == "" {
		errs = append(errs, name+": api_key is required")
	}
	if secret == "" && secretFile == "" {
		errs = append(errs, name+": either api_secret or secret_file must be set")
	}
	if secretFile != "" && password == "" {
		errs = append(errs, name+": secret_password is required when secret_file is set")
	}
	return errs
}
