package config

// RedactedConfig returns a copy of cfg with secrets replaced by "***", for
// logging the active configuration.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Server.APIKey)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Slices and maps are copied so the redacted value cannot alias cfg.
	out.Symbols = append([]SymbolConfig(nil), cfg.Symbols...)
	out.LiquidityProviders = append([]LiquidityProviderConfig(nil), cfg.LiquidityProviders...)
	out.Risk.Controls = append([]RiskControlConfig(nil), cfg.Risk.Controls...)
	out.Scenario.Orders = append([]ScenarioOrder(nil), cfg.Scenario.Orders...)
	out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	if cfg.Session.PositionLimits != nil {
		out.Session.PositionLimits = make(map[string]float64, len(cfg.Session.PositionLimits))
		for k, v := range cfg.Session.PositionLimits {
			out.Session.PositionLimits[k] = v
		}
	}
	return out
}

const redacted = "***"

func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
