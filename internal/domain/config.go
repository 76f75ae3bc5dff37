package domain

import "time"

// ImpactModel selects the market-impact formula.
type ImpactModel string

const (
	ImpactLinear      ImpactModel = "linear"
	ImpactSquareRoot  ImpactModel = "square_root"
	ImpactLogarithmic ImpactModel = "logarithmic"
)

// LatencyDistribution selects how simulated fill latency is sampled.
type LatencyDistribution string

const (
	LatencyConstant    LatencyDistribution = "constant"
	LatencyNormal      LatencyDistribution = "normal"
	LatencyExponential LatencyDistribution = "exponential"
	LatencySpike       LatencyDistribution = "spike"
)

// SymbolSpec seeds one symbol's synthetic book.
type SymbolSpec struct {
	Symbol       string
	InitialPrice float64 // initial mid
	Spread       float64 // quoted spread in price units
	TickSize     float64
	Volatility   float64 // max relative mid move per tick
	Depth        int     // levels per side
	LevelSize    float64 // mean size per level
}

// LiquidityProviderSpec configures a quoting market maker on one symbol.
type LiquidityProviderSpec struct {
	Name             string
	Symbol           string
	HalfSpreadBps    float64
	Size             float64
	RequoteThreshold float64 // relative mid move before requoting
}

// MarketParams configures the synthetic market model.
type MarketParams struct {
	Symbols            []SymbolSpec
	LiquidityProviders []LiquidityProviderSpec
	TradeProbability   float64 // per symbol per tick
	SizeJitter         float64 // relative level size jitter
}

// ImpactParams configures the market-impact estimate.
type ImpactParams struct {
	Model            ImpactModel
	PermanentImpact  float64
	VolatilityFactor float64
	LiquidityFactor  float64
}

// CostParams holds per-fill explicit fees.
type CostParams struct {
	Commission     float64
	ExchangeFees   float64
	RegulatoryFees float64
}

// LatencyParams configures the fill latency distribution.
type LatencyParams struct {
	Distribution     LatencyDistribution
	Mean             time.Duration
	StdDev           time.Duration
	SpikeProbability float64
	SpikeMultiplier  float64
}

// AlgoDefaults supplies parameters an order leaves unset.
type AlgoDefaults struct {
	TWAPDuration      time.Duration
	TWAPSlices        int
	VWAPChunks        int
	VWAPMinDelay      time.Duration
	VWAPMaxDelay      time.Duration
	POVParticipation  float64
	POVInterval       time.Duration
	POVMaxObservedVol float64
}

// ExecutionConfig is everything the simulator needs besides the session.
type ExecutionConfig struct {
	Venue          string
	Seed           uint64
	MarketInterval time.Duration
	RiskInterval   time.Duration
	OrderInterval  time.Duration
	DayLength      time.Duration
	Market         MarketParams
	Impact         ImpactParams
	Costs          CostParams
	Latency        LatencyParams
	Algorithms     AlgoDefaults
	RiskControls   []RiskControl
}

// Symbol returns the spec for name.
func (c ExecutionConfig) Symbol(name string) (SymbolSpec, bool) {
	for _, s := range c.Market.Symbols {
		if s.Symbol == name {
			return s, true
		}
	}
	return SymbolSpec{}, false
}
