// Package cost estimates market impact and transaction costs for simulated
// fills. Every function here is pure.
package cost

import (
	"math"

	"github.com/alanyoungcy/execsim/internal/domain"
)

// ImpactBps estimates the market impact of trading qty against snap, in
// basis points. The base model is scaled by the book's relative spread and
// by how thin the resting depth is.
func ImpactBps(p domain.ImpactParams, qty float64, snap domain.OrderBookSnapshot) float64 {
	if qty <= 0 || p.PermanentImpact == 0 {
		return 0
	}

	var base float64
	switch p.Model {
	case domain.ImpactSquareRoot:
		base = math.Sqrt(qty) * p.PermanentImpact
	case domain.ImpactLogarithmic:
		base = math.Log1p(qty/1000) * p.PermanentImpact
	default:
		base = qty * p.PermanentImpact
	}

	volAdj := 1.0
	if snap.BestBid > 0 {
		volAdj += (snap.Spread / snap.BestBid) * p.VolatilityFactor
	}
	liqAdj := 1.0
	if snap.TotalVolume > 0 {
		liqAdj += (1000 / snap.TotalVolume) * p.LiquidityFactor
	} else {
		liqAdj += p.LiquidityFactor
	}
	return base * volAdj * liqAdj
}

// SlippageBps returns |price-mid|/mid in basis points.
func SlippageBps(price, mid float64) float64 {
	if mid <= 0 {
		return 0
	}
	return math.Abs(price-mid) / mid * 10_000
}
