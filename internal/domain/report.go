package domain

import "time"

// AlgorithmStats aggregates fills per execution algorithm.
type AlgorithmStats struct {
	Algorithm      Algorithm `json:"algorithm"`
	Orders         int       `json:"orders"`
	Fills          int       `json:"fills"`
	Volume         float64   `json:"volume"`
	Notional       float64   `json:"notional"`
	AvgPrice       float64   `json:"avg_price"`
	AvgSlippageBps float64   `json:"avg_slippage_bps"`
	AvgImpactBps   float64   `json:"avg_impact_bps"`
	TotalCosts     float64   `json:"total_costs"`
	AvgCostBps     float64   `json:"avg_cost_bps"`
}

// VenueStats aggregates fills per venue.
type VenueStats struct {
	Venue          string        `json:"venue"`
	Fills          int           `json:"fills"`
	Volume         float64       `json:"volume"`
	Notional       float64       `json:"notional"`
	AvgSlippageBps float64       `json:"avg_slippage_bps"`
	AvgLatency     time.Duration `json:"avg_latency"`
}

// CostAnalysis sums transaction costs over the session.
type CostAnalysis struct {
	Commission       float64 `json:"commission"`
	ExchangeFees     float64 `json:"exchange_fees"`
	RegulatoryFees   float64 `json:"regulatory_fees"`
	TotalExplicit    float64 `json:"total_explicit"`
	SpreadCost       float64 `json:"spread_cost"`
	MarketImpactCost float64 `json:"market_impact_cost"`
	DelayCost        float64 `json:"delay_cost"`
	TotalImplicit    float64 `json:"total_implicit"`
	Total            float64 `json:"total"`
	AvgCostBps       float64 `json:"avg_cost_bps"`
}

// RiskAnalysis is a snapshot of exposure at report time.
type RiskAnalysis struct {
	Positions     map[string]float64 `json:"positions"`
	GrossExposure float64            `json:"gross_exposure"`
	NetExposure   float64            `json:"net_exposure"`
	LargestSymbol string             `json:"largest_symbol,omitempty"`
	LargestAbsQty float64            `json:"largest_abs_qty"`
	PnL           float64            `json:"pnl"`
	RiskEvents    int                `json:"risk_events"`
	Halted        bool               `json:"halted"`
}

// Placeholders holds fixed presentation values that downstream dashboards
// expect. They are constants, not measurements.
type Placeholders struct {
	ExecutionQuality float64 `json:"execution_quality"`
	UptimePct        float64 `json:"uptime_pct"`
}

// ExecutionReport summarises a finished session. Fill metrics are derived
// from the fill history only; order counts come from the order registry.
type ExecutionReport struct {
	SessionID string        `json:"session_id"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`

	TotalOrders     int `json:"total_orders"`
	FilledOrders    int `json:"filled_orders"`
	PartialOrders   int `json:"partial_orders"`
	CancelledOrders int `json:"cancelled_orders"`
	RejectedOrders  int `json:"rejected_orders"`
	ExpiredOrders   int `json:"expired_orders"`

	TotalFills         int           `json:"total_fills"`
	TotalVolume        float64       `json:"total_volume"`
	TotalNotional      float64       `json:"total_notional"`
	AvgFillSize        float64       `json:"avg_fill_size"`
	AvgSlippageBps     float64       `json:"avg_slippage_bps"`
	AvgMarketImpactBps float64       `json:"avg_market_impact_bps"`
	AvgLatency         time.Duration `json:"avg_latency"`

	ByAlgorithm map[Algorithm]AlgorithmStats `json:"by_algorithm"`
	ByVenue     map[string]VenueStats        `json:"by_venue"`
	Costs       CostAnalysis                 `json:"costs"`
	Risk        RiskAnalysis                 `json:"risk"`

	Placeholders Placeholders `json:"placeholders"`
}
