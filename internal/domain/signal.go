package domain

import "time"

// Bus channels and streams the simulator publishes on.
const (
	ChannelFills  = "execsim:fills"
	ChannelOrders = "execsim:orders"
	ChannelRisk   = "execsim:risk"
	ChannelBooks  = "execsim:books"

	StreamFills = "execsim:stream:fills"
)

// OrderEvent is published whenever an order changes status.
type OrderEvent struct {
	OrderID   string      `json:"order_id"`
	Symbol    string      `json:"symbol"`
	Side      OrderSide   `json:"side"`
	Algorithm Algorithm   `json:"algorithm"`
	Status    OrderStatus `json:"status"`
	Quantity  float64     `json:"quantity"`
	Remaining float64     `json:"remaining"`
	Reason    string      `json:"reason,omitempty"`
	Hidden    bool        `json:"-"`
	Timestamp time.Time   `json:"timestamp"`
}

// SimStatus is a summary of the simulator's operational state.
type SimStatus struct {
	SessionID    string    `json:"session_id"`
	Running      bool      `json:"running"`
	Halted       bool      `json:"halted"`
	StartedAt    time.Time `json:"started_at"`
	ActiveOrders int       `json:"active_orders"`
	Fills        int       `json:"fills"`
	Symbols      []string  `json:"symbols"`
}
