package executor

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/execsim/internal/cost"
	"github.com/alanyoungcy/execsim/internal/domain"
	"github.com/alanyoungcy/execsim/internal/market"
	"github.com/alanyoungcy/execsim/internal/sched"
	"github.com/alanyoungcy/execsim/internal/service"
)

type harness struct {
	t        *testing.T
	ctx      context.Context
	clk      *clock.Mock
	sched    *sched.Scheduler
	books    *market.BookStore
	ledger   *service.Ledger
	orders   *service.OrderManager
	router   *Router
	fills    []domain.ExecutionResult
	breaches []domain.RiskEvent
}

func newHarness(t *testing.T, latency time.Duration) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &harness{
		t:      t,
		ctx:    context.Background(),
		clk:    clock.NewMock(),
		books:  market.NewBookStore(),
		ledger: service.NewLedger(),
	}
	h.sched = sched.New(h.clk, logger)
	h.setBook(100.99, 101.00, 500)

	session := domain.TradingSession{ID: "test", InitialCash: 1e9, MaxLeverage: 1, StartTime: h.clk.Now()}
	h.orders = service.NewOrderManager(h.books, h.ledger, session, 0, h.clk, logger)

	rng := market.NewRand(7)
	filler := NewFiller(h.sched, h.orders, h.books, h.ledger,
		cost.NewModel(domain.CostParams{Commission: 1}), domain.ImpactParams{},
		NewLatencyModel(domain.LatencyParams{Distribution: domain.LatencyConstant, Mean: latency}, rng),
		"SIM", logger)
	filler.SetListeners(
		func(res domain.ExecutionResult) { h.fills = append(h.fills, res) },
		func(ev domain.RiskEvent) { h.breaches = append(h.breaches, ev) },
	)

	h.router = NewRouter(&Env{
		Sched:  h.sched,
		Orders: h.orders,
		Books:  h.books,
		Filler: filler,
		Rand:   rng,
		Defaults: domain.AlgoDefaults{
			TWAPDuration:      10 * time.Minute,
			TWAPSlices:        5,
			VWAPChunks:        4,
			VWAPMinDelay:      time.Second,
			VWAPMaxDelay:      3 * time.Second,
			POVParticipation:  0.1,
			POVInterval:       time.Second,
			POVMaxObservedVol: 1000,
		},
		Logger: logger,
	})
	return h
}

func (h *harness) setBook(bid, ask, size float64) {
	h.t.Helper()
	require.NoError(h.t, h.books.Put(domain.OrderBookSnapshot{
		Symbol:      "TEST",
		TickSize:    0.01,
		BestBid:     bid,
		BestAsk:     ask,
		Spread:      ask - bid,
		MidPrice:    (bid + ask) / 2,
		Bids:        []domain.BookLevel{{Price: bid, Size: size, Orders: 1}},
		Asks:        []domain.BookLevel{{Price: ask, Size: size, Orders: 1}},
		BidVolume:   size,
		AskVolume:   size,
		TotalVolume: 2 * size,
	}))
}

func (h *harness) submit(o domain.TradeOrder) domain.TradeOrder {
	h.t.Helper()
	if o.Symbol == "" {
		o.Symbol = "TEST"
	}
	if o.Side == "" {
		o.Side = domain.OrderSideBuy
	}
	got, err := h.router.Submit(h.ctx, o)
	require.NoError(h.t, err)
	return got
}

func (h *harness) order(id string) domain.TradeOrder {
	h.t.Helper()
	o, ok := h.orders.Get(id)
	require.True(h.t, ok)
	return o
}

func (h *harness) quantities() []float64 {
	out := make([]float64, 0, len(h.fills))
	for _, f := range h.fills {
		out = append(out, f.Quantity)
	}
	return out
}

func TestMarketOrderFillsAtTouchAfterLatency(t *testing.T) {
	h := newHarness(t, 50*time.Millisecond)

	o := h.submit(domain.TradeOrder{Type: domain.OrderTypeMarket, Quantity: 100})
	assert.Equal(t, domain.AlgoMarket, o.Algorithm)
	assert.Equal(t, domain.OrderStatusWorking, o.Status)

	h.sched.Advance(h.ctx, 49*time.Millisecond)
	assert.Empty(t, h.fills)

	h.sched.Advance(h.ctx, time.Millisecond)
	require.Len(t, h.fills, 1)
	fill := h.fills[0]
	assert.Equal(t, 100.0, fill.Quantity)
	assert.Equal(t, 101.00, fill.Price)
	assert.Equal(t, "SIM", fill.Venue)
	assert.Equal(t, 50*time.Millisecond, fill.Latency)
	assert.Zero(t, fill.Costs.DelayCost)
	assert.Equal(t, 1.0, fill.Costs.Commission)
	assert.InDelta(t, 0.495, fill.SlippageBps, 0.01)

	assert.Equal(t, domain.OrderStatusFilled, h.order(o.ID).Status)
	assert.Equal(t, 100.0, h.ledger.Position("TEST"))
}

func TestTWAPSlicesEvenly(t *testing.T) {
	h := newHarness(t, 0)

	o := h.submit(domain.TradeOrder{
		Type:      domain.OrderTypeMarket,
		Quantity:  100,
		Algorithm: domain.AlgoTWAP,
		Params:    domain.AlgoParams{Duration: 10 * time.Minute, Slices: 5},
	})
	start := h.clk.Now()

	h.sched.Advance(h.ctx, 10*time.Minute)
	require.Len(t, h.fills, 5)
	assert.Equal(t, []float64{20, 20, 20, 20, 20}, h.quantities())
	for i, f := range h.fills {
		assert.Equal(t, start.Add(time.Duration(i)*2*time.Minute), f.Timestamp)
	}
	assert.Equal(t, domain.OrderStatusFilled, h.order(o.ID).Status)
	assert.Zero(t, h.sched.Len(), "no slices left behind")
}

func TestTWAPLastSliceAbsorbsRemainder(t *testing.T) {
	h := newHarness(t, 0)

	h.submit(domain.TradeOrder{
		Type:      domain.OrderTypeMarket,
		Quantity:  103,
		Algorithm: domain.AlgoTWAP,
		Params:    domain.AlgoParams{Duration: 5 * time.Minute, Slices: 5},
	})
	h.sched.Advance(h.ctx, 5*time.Minute)
	assert.Equal(t, []float64{20, 20, 20, 20, 23}, h.quantities())
}

func TestCancelStopsSlicing(t *testing.T) {
	cases := map[string]domain.TradeOrder{
		"twap": {Algorithm: domain.AlgoTWAP, Params: domain.AlgoParams{Duration: 5 * time.Minute, Slices: 5}},
		"vwap": {Algorithm: domain.AlgoVWAP, Params: domain.AlgoParams{Chunks: 5, MinChunkDelay: time.Minute, MaxChunkDelay: time.Minute}},
		"pov":  {Algorithm: domain.AlgoPOV, Params: domain.AlgoParams{ParticipationRate: 0.01, Interval: time.Minute}},
	}
	for name, order := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, 0)
			order.Type = domain.OrderTypeMarket
			order.Quantity = 100

			o := h.submit(order)
			h.sched.Advance(h.ctx, time.Minute+time.Second)
			require.Len(t, h.fills, 2, "slices at 0 and 1m")

			require.True(t, h.orders.Cancel(o.ID, "test"))
			h.sched.Advance(h.ctx, time.Hour)

			assert.Len(t, h.fills, 2)
			got := h.order(o.ID)
			assert.Equal(t, domain.OrderStatusCancelled, got.Status)
			assert.Less(t, got.Filled(), 100.0)
			assert.Zero(t, h.sched.Len())
		})
	}
}

func TestVWAPFillsAllChunks(t *testing.T) {
	h := newHarness(t, 0)

	o := h.submit(domain.TradeOrder{Type: domain.OrderTypeMarket, Quantity: 50, Algorithm: domain.AlgoVWAP})
	h.sched.Advance(h.ctx, 30*time.Second)

	require.Len(t, h.fills, 4)
	var total float64
	for i, f := range h.fills {
		total += f.Quantity
		if i > 0 {
			gap := f.Timestamp.Sub(h.fills[i-1].Timestamp)
			assert.GreaterOrEqual(t, gap, time.Second)
			assert.LessOrEqual(t, gap, 3*time.Second)
		}
	}
	assert.Equal(t, 50.0, total)
	assert.Equal(t, domain.OrderStatusFilled, h.order(o.ID).Status)
}

func TestPOVParticipatesUntilDone(t *testing.T) {
	h := newHarness(t, 0)

	o := h.submit(domain.TradeOrder{Type: domain.OrderTypeMarket, Quantity: 250, Algorithm: domain.AlgoPOV})
	h.sched.Advance(h.ctx, 10*time.Minute)

	require.Equal(t, domain.OrderStatusFilled, h.order(o.ID).Status)
	var total float64
	for _, f := range h.fills {
		assert.LessOrEqual(t, f.Quantity, 100.0, "at most rate times max observed volume")
		total += f.Quantity
	}
	assert.InDelta(t, 250.0, total, 1e-9)
	assert.Zero(t, h.sched.Len(), "pov stops rescheduling once filled")
}

func TestLimitOrderRestsUntilMarketable(t *testing.T) {
	h := newHarness(t, 0)

	o := h.submit(domain.TradeOrder{Type: domain.OrderTypeLimit, Price: 100.50, Quantity: 10})
	assert.Equal(t, domain.AlgoLimit, o.Algorithm)

	h.sched.Advance(h.ctx, time.Second)
	h.router.ProcessTick(h.ctx)
	h.sched.Advance(h.ctx, time.Second)
	assert.Empty(t, h.fills)
	assert.Equal(t, domain.OrderStatusWorking, h.order(o.ID).Status)

	h.setBook(100.49, 100.50, 500)
	h.router.ProcessTick(h.ctx)
	h.sched.Advance(h.ctx, 0)

	require.Len(t, h.fills, 1)
	assert.Equal(t, 100.50, h.fills[0].Price)
	assert.False(t, h.fills[0].Costs.DelayCost < 0)
	assert.Equal(t, domain.OrderStatusFilled, h.order(o.ID).Status)
}

func TestImmediateTimeInForce(t *testing.T) {
	t.Run("ioc not marketable", func(t *testing.T) {
		h := newHarness(t, 0)
		o := h.submit(domain.TradeOrder{Type: domain.OrderTypeLimit, Price: 100.50, Quantity: 10, TimeInForce: domain.TimeInForceIOC})
		assert.Equal(t, domain.OrderStatusExpired, o.Status)
	})

	t.Run("ioc partial", func(t *testing.T) {
		h := newHarness(t, 0)
		o := h.submit(domain.TradeOrder{Type: domain.OrderTypeLimit, Price: 101, Quantity: 800, TimeInForce: domain.TimeInForceIOC})
		h.sched.Advance(h.ctx, 0)

		assert.Equal(t, []float64{500}, h.quantities())
		got := h.order(o.ID)
		assert.Equal(t, domain.OrderStatusExpired, got.Status)
		assert.Equal(t, 300.0, got.Remaining)
	})

	t.Run("fok insufficient size", func(t *testing.T) {
		h := newHarness(t, 0)
		o := h.submit(domain.TradeOrder{Type: domain.OrderTypeLimit, Price: 101, Quantity: 800, TimeInForce: domain.TimeInForceFOK})
		h.sched.Advance(h.ctx, 0)
		assert.Empty(t, h.fills)
		assert.Equal(t, domain.OrderStatusExpired, o.Status)
	})

	t.Run("fok filled", func(t *testing.T) {
		h := newHarness(t, 0)
		o := h.submit(domain.TradeOrder{Type: domain.OrderTypeLimit, Price: 101, Quantity: 400, TimeInForce: domain.TimeInForceFOK})
		h.sched.Advance(h.ctx, 0)
		assert.Equal(t, []float64{400}, h.quantities())
		assert.Equal(t, domain.OrderStatusFilled, h.order(o.ID).Status)
	})
}

func TestMarketOrderRespectsTouchSize(t *testing.T) {
	t.Run("fok insufficient size", func(t *testing.T) {
		h := newHarness(t, 0)
		o := h.submit(domain.TradeOrder{Type: domain.OrderTypeMarket, Quantity: 800, TimeInForce: domain.TimeInForceFOK})
		h.sched.Advance(h.ctx, 0)
		assert.Empty(t, h.fills)
		assert.Equal(t, domain.OrderStatusExpired, h.order(o.ID).Status)
	})

	t.Run("fok covered", func(t *testing.T) {
		h := newHarness(t, 0)
		o := h.submit(domain.TradeOrder{Type: domain.OrderTypeMarket, Quantity: 400, TimeInForce: domain.TimeInForceFOK})
		h.sched.Advance(h.ctx, 0)
		assert.Equal(t, []float64{400}, h.quantities())
		assert.Equal(t, domain.OrderStatusFilled, h.order(o.ID).Status)
	})

	t.Run("ioc takes the touch", func(t *testing.T) {
		h := newHarness(t, 0)
		o := h.submit(domain.TradeOrder{Type: domain.OrderTypeMarket, Quantity: 800, TimeInForce: domain.TimeInForceIOC})
		h.sched.Advance(h.ctx, 0)
		assert.Equal(t, []float64{500}, h.quantities())
		got := h.order(o.ID)
		assert.Equal(t, domain.OrderStatusExpired, got.Status)
		assert.Equal(t, 300.0, got.Remaining)
	})
}

func TestIcebergShowsDisplayQuantity(t *testing.T) {
	h := newHarness(t, 0)

	o := h.submit(domain.TradeOrder{
		Type:            domain.OrderTypeLimit,
		Price:           101,
		Quantity:        100,
		Iceberg:         true,
		DisplayQuantity: 30,
	})
	h.sched.Advance(h.ctx, 0)
	for i := 0; i < 3; i++ {
		h.router.ProcessTick(h.ctx)
		h.sched.Advance(h.ctx, 0)
	}

	assert.Equal(t, []float64{30, 30, 30, 10}, h.quantities())
	assert.Equal(t, domain.OrderStatusFilled, h.order(o.ID).Status)
}

func TestSlippageBound(t *testing.T) {
	t.Run("market fills and reports breach", func(t *testing.T) {
		h := newHarness(t, 0)
		o := h.submit(domain.TradeOrder{Type: domain.OrderTypeMarket, Quantity: 10, MaxSlippageBps: 0.1})
		h.sched.Advance(h.ctx, 0)

		require.Len(t, h.fills, 1)
		require.Len(t, h.breaches, 1)
		assert.Equal(t, domain.RiskEventSlippageBreach, h.breaches[0].Type)
		assert.Equal(t, o.ID, h.breaches[0].OrderID)
	})

	t.Run("twap defers", func(t *testing.T) {
		h := newHarness(t, 0)
		o := h.submit(domain.TradeOrder{
			Type:           domain.OrderTypeMarket,
			Quantity:       10,
			Algorithm:      domain.AlgoTWAP,
			MaxSlippageBps: 0.1,
			Params:         domain.AlgoParams{Duration: time.Minute, Slices: 2},
		})
		h.sched.Advance(h.ctx, 5*time.Minute)
		assert.Empty(t, h.fills)
		assert.Empty(t, h.breaches)
		assert.Equal(t, domain.OrderStatusWorking, h.order(o.ID).Status)
		assert.Positive(t, h.sched.Len(), "final slice keeps retrying")
	})
}

func TestMissingBookIsolatesOrder(t *testing.T) {
	h := newHarness(t, 100*time.Millisecond)

	o := h.submit(domain.TradeOrder{Type: domain.OrderTypeMarket, Quantity: 10})
	h.books.Remove("TEST")
	h.sched.Advance(h.ctx, time.Second)

	assert.Empty(t, h.fills)
	got, live := h.orders.Live(o.ID)
	assert.False(t, live)
	assert.Contains(t, got.LastError, domain.ErrBookUnavailable.Error())
	assert.Equal(t, domain.OrderStatusWorking, got.Status)
}

func TestStoppedRunProducesNoFills(t *testing.T) {
	h := newHarness(t, 0)
	h.submit(domain.TradeOrder{
		Type:      domain.OrderTypeMarket,
		Quantity:  100,
		Algorithm: domain.AlgoTWAP,
		Params:    domain.AlgoParams{Duration: 10 * time.Minute, Slices: 5},
	})

	ctx, cancel := context.WithCancel(h.ctx)
	h.sched.Advance(ctx, time.Second)
	require.Len(t, h.fills, 1)

	cancel()
	h.sched.Advance(ctx, time.Hour)
	assert.Len(t, h.fills, 1)
}

func TestSubmitValidation(t *testing.T) {
	h := newHarness(t, 0)

	cases := map[string]domain.TradeOrder{
		"unknown algorithm": {Type: domain.OrderTypeMarket, Quantity: 1, Algorithm: "iceberg_sniper"},
		"twap ioc":          {Type: domain.OrderTypeMarket, Quantity: 1, Algorithm: domain.AlgoTWAP, TimeInForce: domain.TimeInForceIOC},
		"pov rate":          {Type: domain.OrderTypeMarket, Quantity: 1, Algorithm: domain.AlgoPOV, Params: domain.AlgoParams{ParticipationRate: 2}},
		"vwap delays":       {Type: domain.OrderTypeMarket, Quantity: 1, Algorithm: domain.AlgoVWAP, Params: domain.AlgoParams{MinChunkDelay: 5 * time.Second, MaxChunkDelay: time.Second}},
		"market with limit": {Type: domain.OrderTypeLimit, Price: 101, Quantity: 1, Algorithm: domain.AlgoMarket},
		"zero quantity":     {Type: domain.OrderTypeMarket, Quantity: 0},
	}
	for name, order := range cases {
		t.Run(name, func(t *testing.T) {
			order.Symbol = "TEST"
			order.Side = domain.OrderSideBuy
			_, err := h.router.Submit(h.ctx, order)
			require.ErrorIs(t, err, domain.ErrValidation)
		})
	}
	assert.Empty(t, h.orders.All())
	assert.Zero(t, h.sched.Len())
}

func TestLatencyModel(t *testing.T) {
	rng := market.NewRand(1)

	constant := NewLatencyModel(domain.LatencyParams{Distribution: domain.LatencyConstant, Mean: 5 * time.Millisecond}, rng)
	assert.Equal(t, 5*time.Millisecond, constant.Sample())

	normal := NewLatencyModel(domain.LatencyParams{Distribution: domain.LatencyNormal, Mean: time.Millisecond, StdDev: 10 * time.Millisecond}, rng)
	exp := NewLatencyModel(domain.LatencyParams{Distribution: domain.LatencyExponential, Mean: time.Millisecond}, rng)
	spike := NewLatencyModel(domain.LatencyParams{Distribution: domain.LatencySpike, Mean: time.Millisecond, SpikeProbability: 0.5}, rng)

	spikes := 0
	for i := 0; i < 500; i++ {
		assert.GreaterOrEqual(t, normal.Sample(), time.Duration(0))
		assert.GreaterOrEqual(t, exp.Sample(), time.Duration(0))
		switch d := spike.Sample(); d {
		case time.Millisecond:
		case 10 * time.Millisecond:
			spikes++
		default:
			t.Fatalf("unexpected spike sample %s", d)
		}
	}
	assert.Greater(t, spikes, 100)
	assert.Less(t, spikes, 400)
}
