package cost

import (
	"math"

	"github.com/alanyoungcy/execsim/internal/domain"
)

// Fill describes one execution for cost purposes.
type Fill struct {
	Side       domain.OrderSide
	Quantity   float64
	Price      float64
	Book       domain.OrderBookSnapshot
	ImpactBps  float64
	ArrivalMid float64 // mid when the order was accepted
	Immediate  bool    // executed on arrival, no waiting
}

// Model turns fills into transaction costs.
type Model struct {
	fees domain.CostParams
}

// NewModel creates a Model charging the given fixed fees per fill.
func NewModel(fees domain.CostParams) Model {
	return Model{fees: fees}
}

// Compute returns the explicit and implicit costs of f.
//
// Explicit costs are the fixed per-fill fees. Implicit costs are the half
// spread paid relative to mid, the impact estimate damped by size, and the
// adverse mid move between arrival and execution for fills that waited.
func (m Model) Compute(f Fill) domain.TransactionCosts {
	notional := f.Quantity * f.Price
	c := domain.TransactionCosts{
		Notional:       notional,
		Commission:     m.fees.Commission,
		ExchangeFees:   m.fees.ExchangeFees,
		RegulatoryFees: m.fees.RegulatoryFees,
	}
	c.TotalExplicit = c.Commission + c.ExchangeFees + c.RegulatoryFees

	c.SpreadCost = (f.Book.SpreadBps() / 10_000) * notional
	c.MarketImpactCost = (f.ImpactBps / 10_000) * notional * math.Sqrt(f.Quantity/1e6)
	if !f.Immediate && f.ArrivalMid > 0 {
		adverse := f.Side.Sign() * (f.Book.MidPrice - f.ArrivalMid)
		if adverse > 0 {
			c.DelayCost = adverse * f.Quantity
		}
	}
	c.TotalImplicit = c.SpreadCost + c.MarketImpactCost + c.DelayCost
	c.Total = c.TotalExplicit + c.TotalImplicit

	if notional > 0 {
		c.ExplicitBps = c.TotalExplicit / notional * 10_000
		c.ImplicitBps = c.TotalImplicit / notional * 10_000
		c.TotalBps = c.Total / notional * 10_000
	}
	return c
}
