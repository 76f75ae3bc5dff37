// Package config defines the execution simulator configuration and its
// validation.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration. Fields come from a TOML file and may be
// overridden by EXECSIM_* environment variables.
type Config struct {
	Simulation         SimulationConfig          `toml:"simulation"`
	Symbols            []SymbolConfig            `toml:"symbols"`
	LiquidityProviders []LiquidityProviderConfig `toml:"liquidity_providers"`
	Impact             ImpactConfig              `toml:"impact"`
	Costs              CostsConfig               `toml:"costs"`
	Latency            LatencyConfig             `toml:"latency"`
	Algorithms         AlgorithmsConfig          `toml:"algorithms"`
	Session            SessionConfig             `toml:"session"`
	Risk               RiskConfig                `toml:"risk"`
	Scenario           ScenarioConfig            `toml:"scenario"`
	Postgres           PostgresConfig            `toml:"postgres"`
	Redis              RedisConfig               `toml:"redis"`
	S3                 S3Config                  `toml:"s3"`
	Server             ServerConfig              `toml:"server"`
	Notify             NotifyConfig              `toml:"notify"`
	Mode               string                    `toml:"mode"`
	LogLevel           string                    `toml:"log_level"`
}

// SimulationConfig controls the engine loops and the synthetic market.
type SimulationConfig struct {
	Seed             int64    `toml:"seed"`
	Venue            string   `toml:"venue"`
	Realtime         bool     `toml:"realtime"` // false runs on a virtual clock as fast as possible
	RunFor           duration `toml:"run_for"`  // simulated session length; 0 runs until interrupted
	MarketInterval   duration `toml:"market_interval"`
	RiskInterval     duration `toml:"risk_interval"`
	OrderInterval    duration `toml:"order_interval"`
	DayLength        duration `toml:"day_length"`
	TradeProbability float64  `toml:"trade_probability"`
	SizeJitter       float64  `toml:"size_jitter"`
	StepSize         duration `toml:"step_size"` // virtual clock advance per step
}

// SymbolConfig seeds one synthetic book.
type SymbolConfig struct {
	Symbol       string  `toml:"symbol"`
	InitialPrice float64 `toml:"initial_price"`
	Spread       float64 `toml:"spread"`
	TickSize     float64 `toml:"tick_size"`
	Volatility   float64 `toml:"volatility"`
	Depth        int     `toml:"depth"`
	LevelSize    float64 `toml:"level_size"`
}

// LiquidityProviderConfig configures a quoting market maker.
type LiquidityProviderConfig struct {
	Name             string  `toml:"name"`
	Symbol           string  `toml:"symbol"`
	HalfSpreadBps    float64 `toml:"half_spread_bps"`
	Size             float64 `toml:"size"`
	RequoteThreshold float64 `toml:"requote_threshold"`
}

// ImpactConfig selects the market impact model.
type ImpactConfig struct {
	Model            string  `toml:"model"`
	PermanentImpact  float64 `toml:"permanent_impact"`
	VolatilityFactor float64 `toml:"volatility_factor"`
	LiquidityFactor  float64 `toml:"liquidity_factor"`
}

// CostsConfig holds per-fill fees.
type CostsConfig struct {
	Commission     float64 `toml:"commission"`
	ExchangeFees   float64 `toml:"exchange_fees"`
	RegulatoryFees float64 `toml:"regulatory_fees"`
}

// LatencyConfig configures simulated fill latency.
type LatencyConfig struct {
	Distribution     string   `toml:"distribution"`
	Mean             duration `toml:"mean"`
	StdDev           duration `toml:"std_dev"`
	SpikeProbability float64  `toml:"spike_probability"`
	SpikeMultiplier  float64  `toml:"spike_multiplier"`
}

// AlgorithmsConfig holds defaults for orders that leave parameters unset.
type AlgorithmsConfig struct {
	TWAPDuration      duration `toml:"twap_duration"`
	TWAPSlices        int      `toml:"twap_slices"`
	VWAPChunks        int      `toml:"vwap_chunks"`
	VWAPMinDelay      duration `toml:"vwap_min_delay"`
	VWAPMaxDelay      duration `toml:"vwap_max_delay"`
	POVParticipation  float64  `toml:"pov_participation"`
	POVInterval       duration `toml:"pov_interval"`
	POVMaxObservedVol float64  `toml:"pov_max_observed_volume"`
}

// SessionConfig holds the trading session limits.
type SessionConfig struct {
	ID             string             `toml:"id"`
	InitialCash    float64            `toml:"initial_cash"`
	MaxLeverage    float64            `toml:"max_leverage"`
	DailyLossLimit float64            `toml:"daily_loss_limit"`
	PositionLimits map[string]float64 `toml:"position_limits"`
}

// RiskConfig lists the configured risk controls.
type RiskConfig struct {
	Controls []RiskControlConfig `toml:"controls"`
}

// RiskControlConfig is one [[risk.controls]] entry. Enabled defaults to
// true when omitted.
type RiskControlConfig struct {
	Name           string  `toml:"name"`
	Type           string  `toml:"type"`
	Symbol         string  `toml:"symbol"`
	Limit          float64 `toml:"limit"`
	Action         string  `toml:"action"`
	ReduceFraction float64 `toml:"reduce_fraction"`
	Enabled        *bool   `toml:"enabled"`
}

// ScenarioConfig lists orders submitted automatically in simulate mode.
type ScenarioConfig struct {
	Orders []ScenarioOrder `toml:"orders"`
}

// ScenarioOrder is one [[scenario.orders]] entry, submitted At after start.
type ScenarioOrder struct {
	At                duration `toml:"at"`
	ClientOrderID     string   `toml:"client_order_id"`
	Symbol            string   `toml:"symbol"`
	Side              string   `toml:"side"`
	Type              string   `toml:"type"`
	Quantity          float64  `toml:"quantity"`
	Price             float64  `toml:"price"`
	Algorithm         string   `toml:"algorithm"`
	TimeInForce       string   `toml:"time_in_force"`
	ExpireAfter       duration `toml:"expire_after"` // GTD, relative to submission
	Duration          duration `toml:"duration"`
	Slices            int      `toml:"slices"`
	Chunks            int      `toml:"chunks"`
	MinChunkDelay     duration `toml:"min_chunk_delay"`
	MaxChunkDelay     duration `toml:"max_chunk_delay"`
	ParticipationRate float64  `toml:"participation_rate"`
	Interval          duration `toml:"interval"`
	MaxSlippageBps    float64  `toml:"max_slippage_bps"`
	MaxDelay          duration `toml:"max_delay"`
	Hidden            bool     `toml:"hidden"`
	Iceberg           bool     `toml:"iceberg"`
	DisplayQuantity   float64  `toml:"display_quantity"`
	Tag               string   `toml:"tag"`
}

// PostgresConfig holds PostgreSQL connection parameters for the export sink.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters for the event bus and book
// cache.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	BookTTL    duration `toml:"book_ttl"`
	Namespace  string   `toml:"namespace"` // key prefix, "execsim" when empty
}

// S3Config holds object storage parameters for session archives.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters, used in server mode.
type ServerConfig struct {
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	APIKey          string   `toml:"api_key"`
	RateLimit       int      `toml:"rate_limit"` // requests per rate_window per client, 0 disables
	RateWindow      duration `toml:"rate_window"`
	ShutdownTimeout duration `toml:"shutdown_timeout"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Enabled reports whether any notification channel is configured.
func (n NotifyConfig) Enabled() bool {
	return (n.TelegramToken != "" && n.TelegramChatID != "") || n.DiscordWebhookURL != ""
}

// duration wraps time.Duration so TOML strings like "5m" decode.
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config with the values used when the file is silent.
// Symbols are not defaulted: a run needs at least one [[symbols]] entry.
func Defaults() Config {
	return Config{
		Simulation: SimulationConfig{
			Seed:             1,
			Venue:            "SIM",
			MarketInterval:   duration{time.Second},
			RiskInterval:     duration{5 * time.Second},
			OrderInterval:    duration{time.Second},
			DayLength:        duration{6*time.Hour + 30*time.Minute},
			TradeProbability: 0.3,
			SizeJitter:       0.2,
			StepSize:         duration{100 * time.Millisecond},
		},
		Impact: ImpactConfig{
			Model:            "square_root",
			PermanentImpact:  0.1,
			VolatilityFactor: 1.0,
			LiquidityFactor:  1.0,
		},
		Costs: CostsConfig{
			Commission: 1.0,
		},
		Latency: LatencyConfig{
			Distribution:    "normal",
			Mean:            duration{50 * time.Millisecond},
			StdDev:          duration{10 * time.Millisecond},
			SpikeMultiplier: 10,
		},
		Algorithms: AlgorithmsConfig{
			TWAPDuration:      duration{10 * time.Minute},
			TWAPSlices:        10,
			VWAPChunks:        10,
			VWAPMinDelay:      duration{time.Second},
			VWAPMaxDelay:      duration{10 * time.Second},
			POVParticipation:  0.1,
			POVInterval:       duration{5 * time.Second},
			POVMaxObservedVol: 1000,
		},
		Session: SessionConfig{
			InitialCash: 1_000_000,
			MaxLeverage: 1,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "execsim",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			BookTTL:    duration{time.Hour},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "execsim",
			Prefix:         "sessions",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateWindow:      duration{time.Minute},
			ShutdownTimeout: duration{10 * time.Second},
		},
		Notify: NotifyConfig{
			Events: []string{"risk.halt", "session.report"},
		},
		Mode:     "simulate",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"simulate": true,
	"server":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var (
	validImpactModels = map[string]bool{"linear": true, "square_root": true, "logarithmic": true}
	validLatency      = map[string]bool{"constant": true, "normal": true, "exponential": true, "spike": true}
	validControlTypes = map[string]bool{"position_limit": true, "loss_limit": true, "exposure_limit": true}
	validActions      = map[string]bool{"alert": true, "reduce_position": true, "close_position": true, "halt_trading": true}
)

// Validate checks Config for invalid or missing values and returns one error
// describing every problem found. Order-level checks happen at submission.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: simulate, server)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Simulation
	sim := c.Simulation
	if sim.MarketInterval.Duration < 0 || sim.RiskInterval.Duration < 0 || sim.OrderInterval.Duration < 0 {
		errs = append(errs, "simulation: intervals must not be negative")
	}
	if sim.RunFor.Duration < 0 {
		errs = append(errs, "simulation: run_for must not be negative")
	}
	if !sim.Realtime && sim.RunFor.Duration == 0 && c.Mode == "simulate" {
		errs = append(errs, "simulation: run_for is required for a virtual-clock simulate run")
	}
	if !sim.Realtime && sim.StepSize.Duration <= 0 {
		errs = append(errs, "simulation: step_size must be > 0 on a virtual clock")
	}
	if sim.TradeProbability < 0 || sim.TradeProbability > 1 {
		errs = append(errs, "simulation: trade_probability must be in [0, 1]")
	}

	// Symbols
	if len(c.Symbols) == 0 {
		errs = append(errs, "symbols: at least one [[symbols]] entry is required")
	}
	seen := make(map[string]bool, len(c.Symbols))
	for i, s := range c.Symbols {
		if s.Symbol == "" {
			errs = append(errs, fmt.Sprintf("symbols[%d]: symbol must not be empty", i))
			continue
		}
		if seen[s.Symbol] {
			errs = append(errs, fmt.Sprintf("symbols[%d]: duplicate symbol %q", i, s.Symbol))
		}
		seen[s.Symbol] = true
		if s.InitialPrice <= 0 {
			errs = append(errs, fmt.Sprintf("symbols[%d]: initial_price must be > 0", i))
		}
		if s.Spread < 0 || s.TickSize < 0 || s.Volatility < 0 {
			errs = append(errs, fmt.Sprintf("symbols[%d]: spread, tick_size and volatility must not be negative", i))
		}
	}
	for i, lp := range c.LiquidityProviders {
		if !seen[lp.Symbol] {
			errs = append(errs, fmt.Sprintf("liquidity_providers[%d]: unknown symbol %q", i, lp.Symbol))
		}
		if lp.Size <= 0 {
			errs = append(errs, fmt.Sprintf("liquidity_providers[%d]: size must be > 0", i))
		}
	}

	if !validImpactModels[c.Impact.Model] {
		errs = append(errs, fmt.Sprintf("impact: unknown model %q (valid: linear, square_root, logarithmic)", c.Impact.Model))
	}
	if c.Costs.Commission < 0 || c.Costs.ExchangeFees < 0 || c.Costs.RegulatoryFees < 0 {
		errs = append(errs, "costs: fees must not be negative")
	}
	if !validLatency[c.Latency.Distribution] {
		errs = append(errs, fmt.Sprintf("latency: unknown distribution %q (valid: constant, normal, exponential, spike)", c.Latency.Distribution))
	}
	if c.Latency.Mean.Duration < 0 || c.Latency.StdDev.Duration < 0 {
		errs = append(errs, "latency: mean and std_dev must not be negative")
	}

	// Algorithms
	a := c.Algorithms
	if a.TWAPDuration.Duration <= 0 || a.TWAPSlices <= 0 {
		errs = append(errs, "algorithms: twap_duration and twap_slices must be > 0")
	}
	if a.VWAPChunks <= 0 {
		errs = append(errs, "algorithms: vwap_chunks must be > 0")
	}
	if a.VWAPMaxDelay.Duration < a.VWAPMinDelay.Duration || a.VWAPMinDelay.Duration < 0 {
		errs = append(errs, "algorithms: vwap delays must satisfy 0 <= min <= max")
	}
	if a.POVParticipation <= 0 || a.POVParticipation > 1 {
		errs = append(errs, "algorithms: pov_participation must be in (0, 1]")
	}
	if a.POVInterval.Duration <= 0 {
		errs = append(errs, "algorithms: pov_interval must be > 0")
	}

	// Session
	if c.Session.InitialCash <= 0 {
		errs = append(errs, "session: initial_cash must be > 0")
	}
	if c.Session.MaxLeverage <= 0 {
		errs = append(errs, "session: max_leverage must be > 0")
	}
	if c.Session.DailyLossLimit < 0 {
		errs = append(errs, "session: daily_loss_limit must not be negative")
	}

	// Risk
	for i, rc := range c.Risk.Controls {
		if !validControlTypes[rc.Type] {
			errs = append(errs, fmt.Sprintf("risk.controls[%d]: unknown type %q", i, rc.Type))
		}
		if !validActions[rc.Action] {
			errs = append(errs, fmt.Sprintf("risk.controls[%d]: unknown action %q", i, rc.Action))
		}
		if rc.Limit < 0 {
			errs = append(errs, fmt.Sprintf("risk.controls[%d]: limit must not be negative", i))
		}
		if rc.ReduceFraction < 0 || rc.ReduceFraction > 1 {
			errs = append(errs, fmt.Sprintf("risk.controls[%d]: reduce_fraction must be in [0, 1]", i))
		}
	}

	// Scenario
	for i, o := range c.Scenario.Orders {
		if !seen[o.Symbol] {
			errs = append(errs, fmt.Sprintf("scenario.orders[%d]: unknown symbol %q", i, o.Symbol))
		}
		if o.At.Duration < 0 {
			errs = append(errs, fmt.Sprintf("scenario.orders[%d]: at must not be negative", i))
		}
	}

	// Sinks
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}
	if c.Mode == "server" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit > 0 && !c.Redis.Enabled {
			errs = append(errs, "server: rate_limit requires redis.enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
