package domain

import "time"

// RiskControlType names the quantity a control measures.
type RiskControlType string

const (
	RiskPositionLimit RiskControlType = "position_limit"
	RiskLossLimit     RiskControlType = "loss_limit"
	RiskExposureLimit RiskControlType = "exposure_limit"
)

// RiskAction is what the monitor does when a control is breached.
type RiskAction string

const (
	RiskActionAlert          RiskAction = "alert"
	RiskActionReducePosition RiskAction = "reduce_position"
	RiskActionClosePosition  RiskAction = "close_position"
	RiskActionHaltTrading    RiskAction = "halt_trading"
)

// RiskControl is one configured limit. An empty Symbol applies the control
// to every symbol; a zero Limit falls back to the session limits.
type RiskControl struct {
	Name           string          `json:"name"`
	Type           RiskControlType `json:"type"`
	Symbol         string          `json:"symbol,omitempty"`
	Limit          float64         `json:"limit"`
	Action         RiskAction      `json:"action"`
	ReduceFraction float64         `json:"reduce_fraction,omitempty"`
	Enabled        bool            `json:"enabled"`
}

// RiskEventSlippageBreach is raised when a fill exceeds an order's
// slippage bound.
const RiskEventSlippageBreach = "slippage_breach"

// RiskEvent records a control breach and the action taken.
type RiskEvent struct {
	ID        string     `json:"id"`
	Type      string     `json:"type"`
	Control   string     `json:"control,omitempty"`
	Symbol    string     `json:"symbol,omitempty"`
	OrderID   string     `json:"order_id,omitempty"`
	Limit     float64    `json:"limit"`
	Actual    float64    `json:"actual"`
	Action    RiskAction `json:"action"`
	Message   string     `json:"message"`
	Timestamp time.Time  `json:"timestamp"`
}
