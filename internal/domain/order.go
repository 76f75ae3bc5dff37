package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Sign returns +1 for buys and -1 for sells.
func (s OrderSide) Sign() float64 {
	if s == OrderSideSell {
		return -1
	}
	return 1
}

// Opposite returns the other side of the book.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// Valid reports whether s is a known side.
func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

// OrderType is the pricing instruction of an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// TimeInForce governs how long an order remains eligible to execute.
type TimeInForce string

const (
	TimeInForceGTC TimeInForce = "GTC" // Good-Till-Cancelled
	TimeInForceIOC TimeInForce = "IOC" // Immediate-Or-Cancel
	TimeInForceFOK TimeInForce = "FOK" // Fill-Or-Kill
	TimeInForceDAY TimeInForce = "DAY" // expires at end of the simulated day
	TimeInForceGTD TimeInForce = "GTD" // Good-Till-Date, see ExpireAt
)

// Valid reports whether t is a known time-in-force. The empty value means GTC.
func (t TimeInForce) Valid() bool {
	switch t {
	case "", TimeInForceGTC, TimeInForceIOC, TimeInForceFOK, TimeInForceDAY, TimeInForceGTD:
		return true
	}
	return false
}

// Immediate reports whether the order must execute on arrival or not at all.
func (t TimeInForce) Immediate() bool {
	return t == TimeInForceIOC || t == TimeInForceFOK
}

// Algorithm names an execution algorithm.
type Algorithm string

const (
	AlgoMarket Algorithm = "market_order"
	AlgoLimit  Algorithm = "limit_order"
	AlgoTWAP   Algorithm = "twap"
	AlgoVWAP   Algorithm = "vwap"
	AlgoPOV    Algorithm = "pov"
)

// Algorithms lists every algorithm the router knows, in display order.
var Algorithms = []Algorithm{AlgoMarket, AlgoLimit, AlgoTWAP, AlgoVWAP, AlgoPOV}

// Valid reports whether a is a known algorithm.
func (a Algorithm) Valid() bool {
	for _, known := range Algorithms {
		if a == known {
			return true
		}
	}
	return false
}

// AlgoParams carries the per-algorithm parameters. Zero values fall back to
// the configured algorithm defaults.
type AlgoParams struct {
	Duration          time.Duration `json:"duration,omitempty"`           // twap
	Slices            int           `json:"slices,omitempty"`             // twap
	Chunks            int           `json:"chunks,omitempty"`             // vwap
	MinChunkDelay     time.Duration `json:"min_chunk_delay,omitempty"`    // vwap
	MaxChunkDelay     time.Duration `json:"max_chunk_delay,omitempty"`    // vwap
	ParticipationRate float64       `json:"participation_rate,omitempty"` // pov
	Interval          time.Duration `json:"interval,omitempty"`           // pov
}

// OrderStatus tracks the order lifecycle.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusRouting         OrderStatus = "routing"
	OrderStatusWorking         OrderStatus = "working"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusRejected        OrderStatus = "rejected"
	OrderStatusExpired         OrderStatus = "expired"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:         {OrderStatusRouting, OrderStatusCancelled, OrderStatusRejected},
	OrderStatusRouting:         {OrderStatusWorking, OrderStatusCancelled, OrderStatusRejected},
	OrderStatusWorking:         {OrderStatusPartiallyFilled, OrderStatusFilled, OrderStatusCancelled, OrderStatusExpired},
	OrderStatusPartiallyFilled: {OrderStatusWorking, OrderStatusPartiallyFilled, OrderStatusFilled, OrderStatusCancelled, OrderStatusExpired},
}

// Terminal reports whether no further transition is possible from s.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected, OrderStatusExpired:
		return true
	}
	return false
}

// CanTransition reports whether the lifecycle allows moving from s to next.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TradeOrder is an order working inside the simulator. Quantity is the
// original size; Remaining is decremented as fills land.
type TradeOrder struct {
	ID              string
	ClientOrderID   string
	Symbol          string
	Side            OrderSide
	Type            OrderType
	Quantity        float64
	Remaining       float64
	Price           float64 // limit price, zero for market orders
	StopPrice       float64
	Algorithm       Algorithm
	Params          AlgoParams
	TimeInForce     TimeInForce
	ExpireAt        time.Time // GTD only
	Hidden          bool
	Iceberg         bool
	DisplayQuantity float64 // iceberg peak size
	MaxSlippageBps  float64 // zero disables the bound
	MaxDelay        time.Duration
	Status          OrderStatus
	AvgFillPrice    float64
	ArrivalMid      float64
	Tag             string
	Internal        bool // generated by risk actions; skips pre-trade checks
	LastError       string
	SubmittedAt     time.Time
	UpdatedAt       time.Time
}

// Filled returns the executed quantity so far.
func (o TradeOrder) Filled() float64 {
	return o.Quantity - o.Remaining
}

// Marketable reports whether a limit order crosses the given touch prices.
// Market orders are always marketable.
func (o TradeOrder) Marketable(bestBid, bestAsk float64) bool {
	if o.Type != OrderTypeLimit {
		return true
	}
	if o.Side == OrderSideBuy {
		return o.Price >= bestAsk
	}
	return o.Price <= bestBid
}
