package domain

import "time"

// BookLevel is a single price level in a synthetic order book.
type BookLevel struct {
	Price  float64 `json:"price"`
	Size   float64 `json:"size"`
	Orders int     `json:"orders"`
}

// Print is a synthetic trade printed by the market model.
type Print struct {
	Price     float64   `json:"price"`
	Size      float64   `json:"size"`
	Timestamp time.Time `json:"timestamp"`
	Aggressor OrderSide `json:"aggressor"`
}

// OrderBookSnapshot is the full state of one symbol's book at a point in
// time. Snapshots are replaced on every market tick and never mutated after
// they are stored.
type OrderBookSnapshot struct {
	Symbol      string      `json:"symbol"`
	Sequence    uint64      `json:"sequence"`
	Timestamp   time.Time   `json:"timestamp"`
	TickSize    float64     `json:"tick_size"`
	BestBid     float64     `json:"best_bid"`
	BestAsk     float64     `json:"best_ask"`
	Spread      float64     `json:"spread"`
	MidPrice    float64     `json:"mid_price"`
	Bids        []BookLevel `json:"bids"`
	Asks        []BookLevel `json:"asks"`
	LastTrade   *Print      `json:"last_trade,omitempty"`
	BidVolume   float64     `json:"bid_volume"`
	AskVolume   float64     `json:"ask_volume"`
	TotalVolume float64     `json:"total_volume"`
	Imbalance   float64     `json:"imbalance"`
}

// TouchPrice returns the price an aggressive order on side would trade at.
func (s OrderBookSnapshot) TouchPrice(side OrderSide) float64 {
	if side == OrderSideSell {
		return s.BestBid
	}
	return s.BestAsk
}

// SpreadBps returns the quoted spread relative to mid in basis points.
func (s OrderBookSnapshot) SpreadBps() float64 {
	if s.MidPrice <= 0 {
		return 0
	}
	return s.Spread / s.MidPrice * 10_000
}

// Crossed reports whether the book violates bestBid < bestAsk.
func (s OrderBookSnapshot) Crossed() bool {
	return s.BestBid >= s.BestAsk
}
