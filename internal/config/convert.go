package config

import (
	"time"

	"github.com/alanyoungcy/execsim/internal/domain"
)

// Execution converts the file sections into the simulator's
// domain.ExecutionConfig.
func (c *Config) Execution() domain.ExecutionConfig {
	sim := c.Simulation
	out := domain.ExecutionConfig{
		Venue:          sim.Venue,
		Seed:           uint64(sim.Seed),
		MarketInterval: sim.MarketInterval.Duration,
		RiskInterval:   sim.RiskInterval.Duration,
		OrderInterval:  sim.OrderInterval.Duration,
		DayLength:      sim.DayLength.Duration,
		Market: domain.MarketParams{
			TradeProbability: sim.TradeProbability,
			SizeJitter:       sim.SizeJitter,
		},
		Impact: domain.ImpactParams{
			Model:            domain.ImpactModel(c.Impact.Model),
			PermanentImpact:  c.Impact.PermanentImpact,
			VolatilityFactor: c.Impact.VolatilityFactor,
			LiquidityFactor:  c.Impact.LiquidityFactor,
		},
		Costs: domain.CostParams{
			Commission:     c.Costs.Commission,
			ExchangeFees:   c.Costs.ExchangeFees,
			RegulatoryFees: c.Costs.RegulatoryFees,
		},
		Latency: domain.LatencyParams{
			Distribution:     domain.LatencyDistribution(c.Latency.Distribution),
			Mean:             c.Latency.Mean.Duration,
			StdDev:           c.Latency.StdDev.Duration,
			SpikeProbability: c.Latency.SpikeProbability,
			SpikeMultiplier:  c.Latency.SpikeMultiplier,
		},
		Algorithms: domain.AlgoDefaults{
			TWAPDuration:      c.Algorithms.TWAPDuration.Duration,
			TWAPSlices:        c.Algorithms.TWAPSlices,
			VWAPChunks:        c.Algorithms.VWAPChunks,
			VWAPMinDelay:      c.Algorithms.VWAPMinDelay.Duration,
			VWAPMaxDelay:      c.Algorithms.VWAPMaxDelay.Duration,
			POVParticipation:  c.Algorithms.POVParticipation,
			POVInterval:       c.Algorithms.POVInterval.Duration,
			POVMaxObservedVol: c.Algorithms.POVMaxObservedVol,
		},
	}

	for _, s := range c.Symbols {
		out.Market.Symbols = append(out.Market.Symbols, domain.SymbolSpec{
			Symbol:       s.Symbol,
			InitialPrice: s.InitialPrice,
			Spread:       s.Spread,
			TickSize:     s.TickSize,
			Volatility:   s.Volatility,
			Depth:        s.Depth,
			LevelSize:    s.LevelSize,
		})
	}
	for _, lp := range c.LiquidityProviders {
		out.Market.LiquidityProviders = append(out.Market.LiquidityProviders, domain.LiquidityProviderSpec{
			Name:             lp.Name,
			Symbol:           lp.Symbol,
			HalfSpreadBps:    lp.HalfSpreadBps,
			Size:             lp.Size,
			RequoteThreshold: lp.RequoteThreshold,
		})
	}
	for _, rc := range c.Risk.Controls {
		enabled := rc.Enabled == nil || *rc.Enabled
		out.RiskControls = append(out.RiskControls, domain.RiskControl{
			Name:           rc.Name,
			Type:           domain.RiskControlType(rc.Type),
			Symbol:         rc.Symbol,
			Limit:          rc.Limit,
			Action:         domain.RiskAction(rc.Action),
			ReduceFraction: rc.ReduceFraction,
			Enabled:        enabled,
		})
	}
	return out
}

// TradingSession converts the [session] section. Position limits are
// copied so the session never aliases the config.
func (c *Config) TradingSession() domain.TradingSession {
	limits := make(map[string]float64, len(c.Session.PositionLimits))
	for k, v := range c.Session.PositionLimits {
		limits[k] = v
	}
	return domain.TradingSession{
		ID:             c.Session.ID,
		InitialCash:    c.Session.InitialCash,
		MaxLeverage:    c.Session.MaxLeverage,
		PositionLimits: limits,
		DailyLossLimit: c.Session.DailyLossLimit,
	}
}

// ScheduledOrder is a scenario order and its offset from session start.
type ScheduledOrder struct {
	At    time.Duration
	Order domain.TradeOrder
}

// ScenarioOrders converts [[scenario.orders]]. GTD expiry is anchored to
// start.
func (c *Config) ScenarioOrders(start time.Time) []ScheduledOrder {
	out := make([]ScheduledOrder, 0, len(c.Scenario.Orders))
	for _, o := range c.Scenario.Orders {
		order := domain.TradeOrder{
			ClientOrderID: o.ClientOrderID,
			Symbol:        o.Symbol,
			Side:          domain.OrderSide(o.Side),
			Type:          domain.OrderType(o.Type),
			Quantity:      o.Quantity,
			Price:         o.Price,
			Algorithm:     domain.Algorithm(o.Algorithm),
			TimeInForce:   domain.TimeInForce(o.TimeInForce),
			Params: domain.AlgoParams{
				Duration:          o.Duration.Duration,
				Slices:            o.Slices,
				Chunks:            o.Chunks,
				MinChunkDelay:     o.MinChunkDelay.Duration,
				MaxChunkDelay:     o.MaxChunkDelay.Duration,
				ParticipationRate: o.ParticipationRate,
				Interval:          o.Interval.Duration,
			},
			MaxSlippageBps:  o.MaxSlippageBps,
			MaxDelay:        o.MaxDelay.Duration,
			Hidden:          o.Hidden,
			Iceberg:         o.Iceberg,
			DisplayQuantity: o.DisplayQuantity,
			Tag:             o.Tag,
		}
		if o.ExpireAfter.Duration > 0 {
			order.ExpireAt = start.Add(o.At.Duration + o.ExpireAfter.Duration)
		}
		out = append(out, ScheduledOrder{At: o.At.Duration, Order: order})
	}
	return out
}
