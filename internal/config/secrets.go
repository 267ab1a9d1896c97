package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	// Wallet
	out.Wallet = cfg.Wallet
	redact(&out.Wallet.PrivateKey)
	redact(&out.Wallet.KeyPassword)

	// Database
	out.Database = cfg.Database
	redact(&out.Database.DSN)
	redact(&out.Database.Password)

	// Redis
	out.Redis = cfg.Redis
	redact(&out.Redis.Password)

	// S3
	out.S3 = cfg.S3
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	// Notify
	out.Notify = cfg.Notify
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	if cfg.Notify.Events != nil {
		out.Notify.Events = make([]string, len(cfg.Notify.Events))
		copy(out.Notify.Events, cfg.Notify.Events)
	}
	if cfg.Server.CORSOrigins != nil {
		out.Server.CORSOrigins = make([]string, len(cfg.Server.CORSOrigins))
		copy(out.Server.CORSOrigins, cfg.Server.CORSOrigins)
	}

	// Copy maps so mutations to the redacted copy do not affect the original.
	// Market addresses and oracle identifiers are not secret but are copied
	// defensively for the same reason.
	if cfg.GMX.MarketAddresses != nil {
		out.GMX.MarketAddresses = make(map[string]string, len(cfg.GMX.MarketAddresses))
		for k, v := range cfg.GMX.MarketAddresses {
			out.GMX.MarketAddresses[k] = v
		}
	}
	if cfg.Oracle.Symbols != nil {
		out.Oracle.Symbols = make(map[string]string, len(cfg.Oracle.Symbols))
		for k, v := range cfg.Oracle.Symbols {
			out.Oracle.Symbols[k] = v
		}
	}
	if cfg.Oracle.PriceIDs != nil {
		out.Oracle.PriceIDs = make(map[string]string, len(cfg.Oracle.PriceIDs))
		for k, v := range cfg.Oracle.PriceIDs {
			out.Oracle.PriceIDs[k] = v
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
