package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies CYCLEBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known CYCLEBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject exchange secrets at deploy time without
// touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Engine ──
	setStr(&cfg.Engine.FiatCurrency, "CYCLEBOT_ENGINE_FIAT_CURRENCY")
	setDecimal(&cfg.Engine.MinThreshold, "CYCLEBOT_ENGINE_MIN_THRESHOLD")
	setDuration(&cfg.Engine.ScanInterval, "CYCLEBOT_ENGINE_SCAN_INTERVAL")
	setInt(&cfg.Engine.BookDepth, "CYCLEBOT_ENGINE_BOOK_DEPTH")
	setBool(&cfg.Engine.AutoExecute, "CYCLEBOT_ENGINE_AUTO_EXECUTE")
	setBool(&cfg.Engine.ContinueAfterFailure, "CYCLEBOT_ENGINE_CONTINUE_AFTER_FAILURE")
	setBool(&cfg.Engine.Maker, "CYCLEBOT_ENGINE_MAKER")

	// ── Settlement ──
	setDuration(&cfg.Settlement.Interval, "CYCLEBOT_SETTLEMENT_INTERVAL")
	setFloat64(&cfg.Settlement.Backoff, "CYCLEBOT_SETTLEMENT_BACKOFF")
	setDuration(&cfg.Settlement.MaxInterval, "CYCLEBOT_SETTLEMENT_MAX_INTERVAL")

	// ── Kraken ──
	setBool(&cfg.Kraken.Enabled, "CYCLEBOT_KRAKEN_ENABLED")
	setStr(&cfg.Kraken.BaseURL, "CYCLEBOT_KRAKEN_BASE_URL")
	setStr(&cfg.Kraken.APIKey, "CYCLEBOT_KRAKEN_API_KEY")
	setStr(&cfg.Kraken.APISecret, "CYCLEBOT_KRAKEN_API_SECRET")
	setStr(&cfg.Kraken.SecretFile, "CYCLEBOT_KRAKEN_SECRET_FILE")
	setStr(&cfg.Kraken.SecretPassword, "CYCLEBOT_KRAKEN_SECRET_PASSWORD")

	// ── Gdax ──
	setBool(&cfg.Gdax.Enabled, "CYCLEBOT_GDAX_ENABLED")
	setStr(&cfg.Gdax.BaseURL, "CYCLEBOT_GDAX_BASE_URL")
	setStr(&cfg.Gdax.APIKey, "CYCLEBOT_GDAX_API_KEY")
	setStr(&cfg.Gdax.APISecret, "CYCLEBOT_GDAX_API_SECRET")
	setStr(&cfg.Gdax.Passphrase, "CYCLEBOT_GDAX_PASSPHRASE")
	setStr(&cfg.Gdax.SecretFile, "CYCLEBOT_GDAX_SECRET_FILE")
	setStr(&cfg.Gdax.SecretPassword, "CYCLEBOT_GDAX_SECRET_PASSWORD")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "CYCLEBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "CYCLEBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CYCLEBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CYCLEBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CYCLEBOT_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "CYCLEBOT_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.Namespace, "CYCLEBOT_REDIS_NAMESPACE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "CYCLEBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "CYCLEBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "CYCLEBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "CYCLEBOT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "CYCLEBOT_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "CYCLEBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CYCLEBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CYCLEBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "CYCLEBOT_NOTIFY_EVENTS")

	// ── Log ──
	setStr(&cfg.Log.File, "CYCLEBOT_LOG_FILE")

	// ── Top-level ──
	setStr(&cfg.Mode, "CYCLEBOT_MODE")
	setStr(&cfg.LogLevel, "CYCLEBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setDecimal(dst *decimal.Decimal, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			*dst = d
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
