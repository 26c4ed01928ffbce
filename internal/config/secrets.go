package config

// RedactedConfig returns a copy of cfg with sensitive fields replaced by the
// redaction placeholder "***". Use this when logging or printing the active
// configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	// Kraken
	redact(&out.Kraken.APIKey)
	redact(&out.Kraken.APISecret)
	redact(&out.Kraken.SecretPassword)

	// Gdax
	redact(&out.Gdax.APIKey)
	redact(&out.Gdax.APISecret)
	redact(&out.Gdax.Passphrase)
	redact(&out.Gdax.SecretPassword)

	// Redis
	redact(&out.Redis.Password)

	// Notify
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Server
	redact(&out.Server.APIKey)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	out.Notify.Events = copyStrings(cfg.Notify.Events)
	out.Server.CORSOrigins = copyStrings(cfg.Server.CORSOrigins)

	// Withdrawal keys identify whitelisted destinations; keep the shape,
	// hide the names.
	if cfg.Kraken.WithdrawKeys != nil {
		out.Kraken.WithdrawKeys = make(map[string]map[string]string, len(cfg.Kraken.WithdrawKeys))
		for ex, byCur := range cfg.Kraken.WithdrawKeys {
			m := make(map[string]string, len(byCur))
			for cur, k := range byCur {
				redact(&k)
				m[cur] = k
			}
			out.Kraken.WithdrawKeys[ex] = m
		}
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}

func copyStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
