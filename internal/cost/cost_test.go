package cost

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/execsim/internal/domain"
)

func testBook() domain.OrderBookSnapshot {
	return domain.OrderBookSnapshot{
		Symbol:      "X",
		BestBid:     99.99,
		BestAsk:     100.01,
		Spread:      0.02,
		MidPrice:    100.00,
		TotalVolume: 2000,
	}
}

func TestImpactModels(t *testing.T) {
	book := testBook()
	tests := []struct {
		name   string
		params domain.ImpactParams
		qty    float64
		want   float64
	}{
		{"linear", domain.ImpactParams{Model: domain.ImpactLinear, PermanentImpact: 0.1}, 100, 10},
		{"square_root", domain.ImpactParams{Model: domain.ImpactSquareRoot, PermanentImpact: 0.1}, 100, 1},
		{"logarithmic", domain.ImpactParams{Model: domain.ImpactLogarithmic, PermanentImpact: 0.1}, 100, math.Log(1.1) * 0.1},
		{"unknown model is linear", domain.ImpactParams{Model: "other", PermanentImpact: 0.1}, 100, 10},
		{"disabled", domain.ImpactParams{Model: domain.ImpactLinear}, 100, 0},
		{"zero quantity", domain.ImpactParams{Model: domain.ImpactLinear, PermanentImpact: 0.1}, 0, 0},
		{
			"adjusted",
			domain.ImpactParams{Model: domain.ImpactLinear, PermanentImpact: 0.1, VolatilityFactor: 100, LiquidityFactor: 0.5},
			100,
			10 * (1 + 0.02/99.99*100) * 1.25,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ImpactBps(tt.params, tt.qty, book), 1e-9)
		})
	}
}

func TestSlippageBps(t *testing.T) {
	assert.InDelta(t, 1.0, SlippageBps(100.01, 100), 1e-9)
	assert.InDelta(t, 1.0, SlippageBps(99.99, 100), 1e-9)
	assert.Zero(t, SlippageBps(100, 0))
}

func TestComputeImmediateFill(t *testing.T) {
	m := NewModel(domain.CostParams{Commission: 1, ExchangeFees: 0.5, RegulatoryFees: 0.25})
	c := m.Compute(Fill{
		Side:       domain.OrderSideBuy,
		Quantity:   100,
		Price:      100.01,
		Book:       testBook(),
		ImpactBps:  10,
		ArrivalMid: 99,
		Immediate:  true,
	})

	assert.InDelta(t, 10001.0, c.Notional, 1e-9)
	assert.InDelta(t, 1.75, c.TotalExplicit, 1e-12)
	assert.InDelta(t, 2.0002, c.SpreadCost, 1e-9)
	assert.InDelta(t, 0.10001, c.MarketImpactCost, 1e-9)
	assert.Zero(t, c.DelayCost)
	assert.InDelta(t, c.SpreadCost+c.MarketImpactCost, c.TotalImplicit, 1e-12)
	assert.InDelta(t, c.TotalExplicit+c.TotalImplicit, c.Total, 1e-12)
	assert.InDelta(t, c.Total/c.Notional*10_000, c.TotalBps, 1e-9)
	assert.InDelta(t, c.ExplicitBps+c.ImplicitBps, c.TotalBps, 1e-9)
}

func TestComputeDelayCostOnlyWhenAdverse(t *testing.T) {
	m := NewModel(domain.CostParams{})
	book := testBook()

	buy := m.Compute(Fill{Side: domain.OrderSideBuy, Quantity: 10, Price: 100.01, Book: book, ArrivalMid: 99.5})
	assert.InDelta(t, 5.0, buy.DelayCost, 1e-9)

	sell := m.Compute(Fill{Side: domain.OrderSideSell, Quantity: 10, Price: 99.99, Book: book, ArrivalMid: 99.5})
	assert.Zero(t, sell.DelayCost)
}
