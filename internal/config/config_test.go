package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cyclebot.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

const paperTOML = `
mode = "paper"

[engine]
min_threshold = "2.5"
scan_interval = "3s"
max_start_amount = { BTC = "0.5" }

[settlement]
interval = "250ms"

[settlement.tokens.gdax.order]
success = "settled"
failure = ["rejected"]

[paper.exchanges.alpha]
balances = { BTC = "1", USD = "0" }
taker_fee_bps = "25"
pending_polls = 2

[paper.exchanges.alpha.books.LTC-BTC]
bid = "0.0105"
ask = "0.0106"

[paper.exchanges.beta]
balances = { LTC = "100" }

[paper.exchanges.beta.books.LTC-BTC]
bid = "0.0110"
ask = "0.0111"
`

func TestLoadMergesFileOverDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, paperTOML))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Mode != "paper" {
		t.Fatalf("mode=%s", cfg.Mode)
	}
	if !cfg.Engine.MinThreshold.Equal(decimal.RequireFromString("2.5")) {
		t.Fatalf("min_threshold=%s", cfg.Engine.MinThreshold)
	}
	if cfg.Engine.ScanInterval.Duration != 3*time.Second {
		t.Fatalf("scan_interval=%s", cfg.Engine.ScanInterval)
	}
	if !cfg.Engine.MaxStartAmount["BTC"].Equal(decimal.RequireFromString("0.5")) {
		t.Fatalf("max_start_amount=%v", cfg.Engine.MaxStartAmount)
	}
	if cfg.Settlement.Interval.Duration != 250*time.Millisecond {
		t.Fatalf("settlement interval=%s", cfg.Settlement.Interval)
	}
	if got := cfg.Settlement.Tokens["gdax"]["order"]; got.Success != "settled" || len(got.Failure) != 1 {
		t.Fatalf("tokens=%+v", got)
	}

	// Untouched sections keep their defaults.
	if cfg.Engine.FiatCurrency != "USD" || cfg.Engine.BookDepth != 1 {
		t.Fatalf("engine defaults lost: %+v", cfg.Engine)
	}
	if !cfg.Fees["kraken"].Send["ETH"].Equal(decimal.RequireFromString("0.02")) {
		t.Fatalf("fee defaults lost: %+v", cfg.Fees["kraken"])
	}

	alpha := cfg.Paper.Exchanges["alpha"]
	if alpha.PendingPolls != 2 || !alpha.Books["LTC-BTC"].Ask.Equal(decimal.RequireFromString("0.0106")) {
		t.Fatalf("alpha=%+v", alpha)
	}
	if ids := cfg.ExchangeIDs(); len(ids) != 2 || ids[0] != "alpha" || ids[1] != "beta" {
		t.Fatalf("ids=%v", ids)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expected error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CYCLEBOT_MODE", "trade")
	t.Setenv("CYCLEBOT_ENGINE_MIN_THRESHOLD", "7.25")
	t.Setenv("CYCLEBOT_ENGINE_SCAN_INTERVAL", "1m")
	t.Setenv("CYCLEBOT_KRAKEN_API_KEY", "kkey")
	t.Setenv("CYCLEBOT_KRAKEN_API_SECRET", "c2VjcmV0")
	t.Setenv("CYCLEBOT_GDAX_API_KEY", "gkey")
	t.Setenv("CYCLEBOT_GDAX_API_SECRET", "c2VjcmV0")
	t.Setenv("CYCLEBOT_GDAX_PASSPHRASE", "pass")
	t.Setenv("CYCLEBOT_NOTIFY_EVENTS", "cycle_failed, threshold_raised,")
	t.Setenv("CYCLEBOT_SERVER_PORT", "not-a-number")

	cfg, err := Load(writeConfig(t, `mode = "scan"`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Mode != "trade" {
		t.Fatalf("mode=%s", cfg.Mode)
	}
	if !cfg.Engine.MinThreshold.Equal(decimal.RequireFromString("7.25")) {
		t.Fatalf("min_threshold=%s", cfg.Engine.MinThreshold)
	}
	if cfg.Engine.ScanInterval.Duration != time.Minute {
		t.Fatalf("scan_interval=%s", cfg.Engine.ScanInterval)
	}
	if got := cfg.Notify.Events; len(got) != 2 || got[0] != "cycle_failed" || got[1] != "threshold_raised" {
		t.Fatalf("events=%v", got)
	}
	// Unparseable values leave the default alone.
	if cfg.Server.Port != 8000 {
		t.Fatalf("port=%d", cfg.Server.Port)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   []string
	}{
		{
			name:   "live exchanges need credentials",
			mutate: func(c *Config) {},
			want: []string{
				"kraken: api_key is required",
				"kraken: either api_secret or secret_file must be set",
				"gdax: passphrase is required",
			},
		},
		{
			name: "sealed secret needs a password",
			mutate: func(c *Config) {
				c.Kraken.APIKey = "k"
				c.Kraken.SecretFile = "/etc/cyclebot/kraken.sealed"
			},
			want: []string{"kraken: secret_password is required when secret_file is set"},
		},
		{
			name: "unknown mode and level",
			mutate: func(c *Config) {
				c.Mode = "backtest"
				c.LogLevel = "trace"
			},
			want: []string{`unknown mode "backtest"`, `unknown log_level "trace"`},
		},
		{
			name: "engine bounds",
			mutate: func(c *Config) {
				c.Engine.MinThreshold = decimal.NewFromInt(-1)
				c.Engine.BookDepth = 0
				c.Engine.MaxStartAmount = map[string]decimal.Decimal{"BTC": decimal.Zero}
			},
			want: []string{
				"engine: min_threshold must be >= 0",
				"engine: book_depth must be >= 1",
				"engine: max_start_amount.BTC must be > 0",
			},
		},
		{
			name: "one exchange is not enough",
			mutate: func(c *Config) {
				c.Gdax.Enabled = false
			},
			want: []string{"at least two exchanges are required for mode scan, got 1"},
		},
		{
			name: "settlement token kinds",
			mutate: func(c *Config) {
				c.Settlement.Tokens = map[string]map[string]TokenConfig{"gdax": {"deposit": {}}}
			},
			want: []string{
				"settlement: tokens.gdax.deposit: unknown kind",
				"settlement: tokens.gdax.deposit: success must not be empty",
			},
		},
		{
			name: "telegram needs both fields",
			mutate: func(c *Config) {
				c.Notify.TelegramToken = "t"
			},
			want: []string{"notify: telegram_token and telegram_chat_id must be set together"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			msg := err.Error()
			if !strings.HasPrefix(msg, "config validation failed:") {
				t.Fatalf("msg=%s", msg)
			}
			for _, w := range tt.want {
				if !strings.Contains(msg, w) {
					t.Errorf("missing %q in:\n%s", w, msg)
				}
			}
		})
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Kraken.APIKey = "kkey"
	cfg.Kraken.APISecret = "ksecret"
	cfg.Kraken.WithdrawKeys = map[string]map[string]string{"gdax": {"LTC": "my gdax ltc"}}
	cfg.Gdax.Passphrase = "pass"
	cfg.Server.APIKey = "api"

	out := RedactedConfig(&cfg)
	for name, got := range map[string]string{
		"kraken.api_key":    out.Kraken.APIKey,
		"kraken.api_secret": out.Kraken.APISecret,
		"gdax.passphrase":   out.Gdax.Passphrase,
		"server.api_key":    out.Server.APIKey,
		"withdraw key":      out.Kraken.WithdrawKeys["gdax"]["LTC"],
	} {
		if got != redacted {
			t.Errorf("%s=%q", name, got)
		}
	}
	if out.Gdax.APIKey != "" {
		t.Fatalf("empty field should stay empty, got %q", out.Gdax.APIKey)
	}
	if cfg.Kraken.APIKey != "kkey" || cfg.Kraken.WithdrawKeys["gdax"]["LTC"] != "my gdax ltc" {
		t.Fatal("original mutated")
	}

	out.Notify.Events[0] = "changed"
	if cfg.Notify.Events[0] == "changed" {
		t.Fatal("events slice shared with original")
	}
}
