package domain

import "time"

// TransactionCosts breaks a fill's cost into explicit fees and implicit
// (estimated) costs. Bps figures are relative to the fill notional.
type TransactionCosts struct {
	Notional float64 `json:"notional"`

	Commission     float64 `json:"commission"`
	ExchangeFees   float64 `json:"exchange_fees"`
	RegulatoryFees float64 `json:"regulatory_fees"`
	TotalExplicit  float64 `json:"total_explicit"`

	SpreadCost       float64 `json:"spread_cost"`
	MarketImpactCost float64 `json:"market_impact_cost"`
	DelayCost        float64 `json:"delay_cost"`
	TotalImplicit    float64 `json:"total_implicit"`

	Total float64 `json:"total"`

	ExplicitBps float64 `json:"explicit_bps"`
	ImplicitBps float64 `json:"implicit_bps"`
	TotalBps    float64 `json:"total_bps"`
}

// ExecutionResult is an immutable record of a single fill.
type ExecutionResult struct {
	ID              string            `json:"id"`
	OrderID         string            `json:"order_id"`
	Symbol          string            `json:"symbol"`
	Side            OrderSide         `json:"side"`
	Algorithm       Algorithm         `json:"algorithm"`
	Venue           string            `json:"venue"`
	Timestamp       time.Time         `json:"timestamp"`
	Quantity        float64           `json:"executed_quantity"`
	Price           float64           `json:"execution_price"`
	MidPrice        float64           `json:"mid_price"`
	SlippageBps     float64           `json:"slippage_bps"`
	MarketImpactBps float64           `json:"market_impact_bps"`
	Latency         time.Duration     `json:"latency"`
	Costs           TransactionCosts  `json:"costs"`
	Book            OrderBookSnapshot `json:"book"`
}

// SignedQuantity returns the fill quantity signed by side.
func (e ExecutionResult) SignedQuantity() float64 {
	return e.Side.Sign() * e.Quantity
}

// Notional returns quantity times price.
func (e ExecutionResult) Notional() float64 {
	return e.Quantity * e.Price
}
