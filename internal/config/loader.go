package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads the TOML file at path over Defaults, loads a .env file if one
// exists, and applies EXECSIM_* overrides. The result is not validated;
// call Config.Validate after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// A missing .env is normal.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// applyEnvOverrides overwrites fields whose EXECSIM_* variable is set and
// non-empty, so secrets can be injected at deploy time.
func applyEnvOverrides(cfg *Config) {
	// ── Simulation ──
	setInt64(&cfg.Simulation.Seed, "EXECSIM_SIMULATION_SEED")
	setStr(&cfg.Simulation.Venue, "EXECSIM_SIMULATION_VENUE")
	setBool(&cfg.Simulation.Realtime, "EXECSIM_SIMULATION_REALTIME")
	setDuration(&cfg.Simulation.RunFor, "EXECSIM_SIMULATION_RUN_FOR")
	setDuration(&cfg.Simulation.MarketInterval, "EXECSIM_SIMULATION_MARKET_INTERVAL")
	setDuration(&cfg.Simulation.RiskInterval, "EXECSIM_SIMULATION_RISK_INTERVAL")
	setDuration(&cfg.Simulation.OrderInterval, "EXECSIM_SIMULATION_ORDER_INTERVAL")
	setDuration(&cfg.Simulation.StepSize, "EXECSIM_SIMULATION_STEP_SIZE")

	// ── Session ──
	setStr(&cfg.Session.ID, "EXECSIM_SESSION_ID")
	setFloat64(&cfg.Session.InitialCash, "EXECSIM_SESSION_INITIAL_CASH")
	setFloat64(&cfg.Session.MaxLeverage, "EXECSIM_SESSION_MAX_LEVERAGE")
	setFloat64(&cfg.Session.DailyLossLimit, "EXECSIM_SESSION_DAILY_LOSS_LIMIT")

	// ── Latency ──
	setStr(&cfg.Latency.Distribution, "EXECSIM_LATENCY_DISTRIBUTION")
	setDuration(&cfg.Latency.Mean, "EXECSIM_LATENCY_MEAN")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "EXECSIM_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "EXECSIM_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "EXECSIM_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "EXECSIM_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "EXECSIM_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "EXECSIM_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "EXECSIM_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "EXECSIM_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "EXECSIM_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "EXECSIM_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "EXECSIM_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "EXECSIM_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "EXECSIM_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "EXECSIM_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "EXECSIM_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "EXECSIM_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "EXECSIM_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "EXECSIM_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.Namespace, "EXECSIM_REDIS_NAMESPACE")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "EXECSIM_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "EXECSIM_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "EXECSIM_S3_REGION")
	setStr(&cfg.S3.Bucket, "EXECSIM_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "EXECSIM_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "EXECSIM_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "EXECSIM_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "EXECSIM_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "EXECSIM_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setInt(&cfg.Server.Port, "EXECSIM_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "EXECSIM_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "EXECSIM_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "EXECSIM_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "EXECSIM_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "EXECSIM_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "EXECSIM_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "EXECSIM_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "EXECSIM_MODE")
	setStr(&cfg.LogLevel, "EXECSIM_LOG_LEVEL")
}

// Typed env helpers. Each leaves dst alone when the variable is unset or
// does not parse.

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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
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
