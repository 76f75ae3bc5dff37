package report

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/execsim/internal/domain"
)

func fill(order string, algo domain.Algorithm, side domain.OrderSide, qty, price, mid float64) domain.ExecutionResult {
	return domain.ExecutionResult{
		ID:              order + "-fill",
		OrderID:         order,
		Symbol:          "TEST",
		Side:            side,
		Algorithm:       algo,
		Venue:           "SIM",
		Quantity:        qty,
		Price:           price,
		MidPrice:        mid,
		SlippageBps:     1,
		MarketImpactBps: 2,
		Latency:         10 * time.Millisecond,
		Costs: domain.TransactionCosts{
			Commission:    1,
			TotalExplicit: 1,
			SpreadCost:    0.5,
			TotalImplicit: 0.5,
			Total:         1.5,
		},
	}
}

func TestGenerate(t *testing.T) {
	start := time.Date(2026, 1, 2, 9, 30, 0, 0, time.UTC)
	g := NewGenerator(slog.New(slog.NewTextHandler(io.Discard, nil)))

	orders := []domain.TradeOrder{
		{ID: "a", Algorithm: domain.AlgoMarket, Quantity: 100, Remaining: 0, Status: domain.OrderStatusFilled},
		{ID: "b", Algorithm: domain.AlgoTWAP, Quantity: 100, Remaining: 60, Status: domain.OrderStatusCancelled},
		{ID: "c", Algorithm: domain.AlgoLimit, Quantity: 10, Remaining: 10, Status: domain.OrderStatusExpired},
	}
	fills := []domain.ExecutionResult{
		fill("a", domain.AlgoMarket, domain.OrderSideBuy, 100, 101, 100.995),
		fill("b", domain.AlgoTWAP, domain.OrderSideSell, 20, 100, 100.005),
		fill("b", domain.AlgoTWAP, domain.OrderSideSell, 20, 102, 102.005),
	}

	r := g.Generate(Input{
		Session:    domain.TradingSession{ID: "s", StartTime: start},
		End:        start.Add(time.Hour),
		Orders:     orders,
		Fills:      fills,
		RiskEvents: []domain.RiskEvent{{ID: "e"}},
	})

	assert.Equal(t, "s", r.SessionID)
	assert.Equal(t, time.Hour, r.Duration)
	assert.Equal(t, 3, r.TotalOrders)
	assert.Equal(t, 1, r.FilledOrders)
	assert.Equal(t, 1, r.CancelledOrders)
	assert.Equal(t, 1, r.ExpiredOrders)
	assert.Equal(t, 1, r.PartialOrders)

	assert.Equal(t, 3, r.TotalFills)
	assert.Equal(t, 140.0, r.TotalVolume)
	assert.InDelta(t, 10100+2000+2040, r.TotalNotional, 1e-9)
	assert.InDelta(t, 140.0/3, r.AvgFillSize, 1e-9)
	assert.Equal(t, 1.0, r.AvgSlippageBps)
	assert.Equal(t, 2.0, r.AvgMarketImpactBps)
	assert.Equal(t, 10*time.Millisecond, r.AvgLatency)

	twap := r.ByAlgorithm[domain.AlgoTWAP]
	assert.Equal(t, 1, twap.Orders)
	assert.Equal(t, 2, twap.Fills)
	assert.Equal(t, 40.0, twap.Volume)
	assert.InDelta(t, 101.0, twap.AvgPrice, 1e-9)
	assert.InDelta(t, 3.0, twap.TotalCosts, 1e-9)

	limit := r.ByAlgorithm[domain.AlgoLimit]
	assert.Equal(t, 1, limit.Orders)
	assert.Zero(t, limit.Fills)

	venue := r.ByVenue["SIM"]
	assert.Equal(t, 3, venue.Fills)
	assert.Equal(t, 10*time.Millisecond, venue.AvgLatency)

	assert.InDelta(t, 3.0, r.Costs.Commission, 1e-9)
	assert.InDelta(t, 4.5, r.Costs.Total, 1e-9)
	assert.InDelta(t, 4.5/r.TotalNotional*10_000, r.Costs.AvgCostBps, 1e-9)

	require.Contains(t, r.Risk.Positions, "TEST")
	assert.Equal(t, 60.0, r.Risk.Positions["TEST"])
	assert.Equal(t, "TEST", r.Risk.LargestSymbol)
	assert.InDelta(t, 60*102.005, r.Risk.GrossExposure, 1e-9)
	// cash: -10100 + 2000 + 2040 - 3 fees; marked at the last mid.
	assert.InDelta(t, -6063+60*102.005, r.Risk.PnL, 1e-6)
	assert.Equal(t, 1, r.Risk.RiskEvents)

	assert.Equal(t, PlaceholderExecutionQuality, r.Placeholders.ExecutionQuality)
	assert.Equal(t, PlaceholderUptimePct, r.Placeholders.UptimePct)
}

func TestGenerateEmpty(t *testing.T) {
	g := NewGenerator(slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := g.Generate(Input{Session: domain.TradingSession{ID: "empty"}})

	assert.Zero(t, r.TotalFills)
	assert.Zero(t, r.AvgSlippageBps)
	assert.Zero(t, r.Costs.AvgCostBps)
	assert.Empty(t, r.ByVenue)
	assert.Empty(t, r.Risk.Positions)
	assert.Zero(t, r.Duration)
}
