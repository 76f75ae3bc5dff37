package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/execsim/internal/domain"
	"github.com/alanyoungcy/execsim/internal/market"
)

type fixture struct {
	clk    *clock.Mock
	books  *market.BookStore
	ledger *Ledger
	orders *OrderManager
	events []domain.OrderEvent
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func putBook(t *testing.T, books *market.BookStore, symbol string, bid, ask float64) {
	t.Helper()
	require.NoError(t, books.Put(domain.OrderBookSnapshot{
		Symbol:      symbol,
		TickSize:    0.01,
		BestBid:     bid,
		BestAsk:     ask,
		Spread:      ask - bid,
		MidPrice:    (bid + ask) / 2,
		BidVolume:   1000,
		AskVolume:   1000,
		TotalVolume: 2000,
	}))
}

func newFixture(t *testing.T, session domain.TradingSession) *fixture {
	t.Helper()
	f := &fixture{
		clk:    clock.NewMock(),
		books:  market.NewBookStore(),
		ledger: NewLedger(),
	}
	session.StartTime = f.clk.Now()
	putBook(t, f.books, "TEST", 100.99, 101.00)
	putBook(t, f.books, "OTHER", 49.99, 50.01)
	f.orders = NewOrderManager(f.books, f.ledger, session, 8*time.Hour, f.clk, discardLogger())
	f.orders.SetListener(func(ev domain.OrderEvent) { f.events = append(f.events, ev) })
	return f
}

func defaultSession() domain.TradingSession {
	return domain.TradingSession{
		ID:             "s1",
		InitialCash:    1_000_000,
		MaxLeverage:    1,
		PositionLimits: map[string]float64{"TEST": 500},
		DailyLossLimit: 10_000,
	}
}

func marketBuy(symbol string, qty float64) domain.TradeOrder {
	return domain.TradeOrder{
		Symbol:    symbol,
		Side:      domain.OrderSideBuy,
		Type:      domain.OrderTypeMarket,
		Quantity:  qty,
		Algorithm: domain.AlgoMarket,
	}
}

func fillFor(o domain.TradeOrder, qty, price float64) domain.ExecutionResult {
	return domain.ExecutionResult{
		ID:       "f-" + o.ID,
		OrderID:  o.ID,
		Symbol:   o.Symbol,
		Side:     o.Side,
		Quantity: qty,
		Price:    price,
	}
}

func TestAcceptRejectsInvalidOrdersWithoutMutation(t *testing.T) {
	f := newFixture(t, defaultSession())
	ctx := context.Background()

	limitNoPrice := marketBuy("TEST", 10)
	limitNoPrice.Type = domain.OrderTypeLimit

	cases := map[string]domain.TradeOrder{
		"zero quantity":     marketBuy("TEST", 0),
		"negative quantity": marketBuy("TEST", -5),
		"unknown symbol":    marketBuy("NOPE", 10),
		"limit no price":    limitNoPrice,
		"bad side":          {Symbol: "TEST", Side: "hold", Type: domain.OrderTypeMarket, Quantity: 1},
	}
	for name, order := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.orders.Accept(ctx, order)
			require.ErrorIs(t, err, domain.ErrValidation)
		})
	}

	assert.Zero(t, f.orders.ActiveCount())
	assert.Empty(t, f.orders.All())
	assert.Empty(t, f.ledger.Positions())
	assert.Empty(t, f.events)
}

func TestAcceptRunsPreTradeChecks(t *testing.T) {
	session := defaultSession()
	session.InitialCash = 20_000
	f := newFixture(t, session)
	ctx := context.Background()

	_, err := f.orders.Accept(ctx, marketBuy("TEST", 501))
	require.ErrorIs(t, err, domain.ErrRiskCheck)

	_, err = f.orders.Accept(ctx, marketBuy("OTHER", 1000))
	require.ErrorIs(t, err, domain.ErrRiskCheck, "50k notional exceeds 20k exposure")

	first, err := f.orders.Accept(ctx, marketBuy("TEST", 150))
	require.NoError(t, err)

	// Quantity still working on the first order counts towards exposure.
	_, err = f.orders.Accept(ctx, marketBuy("TEST", 50))
	require.ErrorIs(t, err, domain.ErrRiskCheck)

	internal := marketBuy("TEST", 50)
	internal.Internal = true
	_, err = f.orders.Accept(ctx, internal)
	require.NoError(t, err)

	assert.Equal(t, 2, f.orders.ActiveCount())
	assert.Equal(t, domain.OrderStatusRouting, first.Status)
	assert.Equal(t, 150.0, first.Remaining)
	assert.InDelta(t, 100.995, first.ArrivalMid, 1e-9)
}

func TestDuplicateClientOrderID(t *testing.T) {
	f := newFixture(t, defaultSession())
	ctx := context.Background()

	o := marketBuy("TEST", 1)
	o.ClientOrderID = "abc"
	_, err := f.orders.Accept(ctx, o)
	require.NoError(t, err)

	_, err = f.orders.Accept(ctx, o)
	require.ErrorIs(t, err, domain.ErrAlreadyExists)

	f.clk.Add(11 * time.Minute)
	f.orders.CleanupDedup()
	_, err = f.orders.Accept(ctx, o)
	require.NoError(t, err)
}

func TestLifecycleToFilled(t *testing.T) {
	f := newFixture(t, defaultSession())
	ctx := context.Background()

	o, err := f.orders.Accept(ctx, marketBuy("TEST", 100))
	require.NoError(t, err)

	_, _, err = f.orders.ApplyFill(o.ID, 10, 101)
	require.ErrorIs(t, err, domain.ErrInvalidTransition, "routing orders cannot fill")

	require.NoError(t, f.orders.MarkWorking(o.ID))

	got, qty, err := f.orders.ApplyFill(o.ID, 40, 101)
	require.NoError(t, err)
	assert.Equal(t, 40.0, qty)
	assert.Equal(t, domain.OrderStatusPartiallyFilled, got.Status)
	assert.Equal(t, 60.0, got.Remaining)

	got, qty, err = f.orders.ApplyFill(o.ID, 100, 102)
	require.NoError(t, err)
	assert.Equal(t, 60.0, qty, "fill is clamped to remaining")
	assert.Equal(t, domain.OrderStatusFilled, got.Status)
	assert.InDelta(t, 101.6, got.AvgFillPrice, 1e-9)
	assert.Zero(t, f.orders.ActiveCount())

	assert.False(t, f.orders.Cancel(o.ID, "late"))
	status, ok := f.orders.Status(o.ID)
	require.True(t, ok)
	assert.Equal(t, domain.OrderStatusFilled, status)

	statuses := make([]domain.OrderStatus, 0, len(f.events))
	for _, ev := range f.events {
		statuses = append(statuses, ev.Status)
	}
	assert.Equal(t, []domain.OrderStatus{
		domain.OrderStatusRouting,
		domain.OrderStatusWorking,
		domain.OrderStatusPartiallyFilled,
		domain.OrderStatusFilled,
	}, statuses)
}

func TestCancel(t *testing.T) {
	f := newFixture(t, defaultSession())
	ctx := context.Background()

	o, err := f.orders.Accept(ctx, marketBuy("TEST", 10))
	require.NoError(t, err)

	assert.False(t, f.orders.Cancel("missing", ""))
	assert.True(t, f.orders.Cancel(o.ID, "user"))
	assert.False(t, f.orders.Cancel(o.ID, "again"))
	assert.Zero(t, f.orders.ActiveCount())

	_, live := f.orders.Live(o.ID)
	assert.False(t, live)
}

func TestRejectOnlyFromRouting(t *testing.T) {
	f := newFixture(t, defaultSession())
	o, err := f.orders.Accept(context.Background(), marketBuy("TEST", 10))
	require.NoError(t, err)
	require.NoError(t, f.orders.MarkWorking(o.ID))
	assert.ErrorIs(t, f.orders.Reject(o.ID, "late"), domain.ErrInvalidTransition)
}

func TestExpireDue(t *testing.T) {
	f := newFixture(t, defaultSession())
	ctx := context.Background()
	start := f.clk.Now()

	gtd := marketBuy("TEST", 1)
	gtd.TimeInForce = domain.TimeInForceGTD
	gtd.ExpireAt = start.Add(time.Minute)

	day := marketBuy("TEST", 1)
	day.TimeInForce = domain.TimeInForceDAY

	delayed := marketBuy("TEST", 1)
	delayed.MaxDelay = 30 * time.Second

	gtc := marketBuy("TEST", 1)

	ids := map[string]string{}
	for name, o := range map[string]domain.TradeOrder{"gtd": gtd, "day": day, "delayed": delayed, "gtc": gtc} {
		acc, err := f.orders.Accept(ctx, o)
		require.NoError(t, err)
		require.NoError(t, f.orders.MarkWorking(acc.ID))
		ids[name] = acc.ID
	}

	f.clk.Add(30 * time.Second)
	expired := f.orders.ExpireDue(f.clk.Now())
	require.Len(t, expired, 1)
	assert.Equal(t, ids["delayed"], expired[0].ID)
	assert.Equal(t, domain.OrderStatusExpired, expired[0].Status)

	f.clk.Add(30 * time.Second)
	expired = f.orders.ExpireDue(f.clk.Now())
	require.Len(t, expired, 1)
	assert.Equal(t, ids["gtd"], expired[0].ID)

	f.clk.Add(8 * time.Hour)
	expired = f.orders.ExpireDue(f.clk.Now())
	require.Len(t, expired, 1)
	assert.Equal(t, ids["day"], expired[0].ID)

	status, _ := f.orders.Status(ids["gtc"])
	assert.Equal(t, domain.OrderStatusWorking, status)
}

func TestIsolateStopsLiveness(t *testing.T) {
	f := newFixture(t, defaultSession())
	o, err := f.orders.Accept(context.Background(), marketBuy("TEST", 10))
	require.NoError(t, err)

	f.orders.Isolate(o.ID, domain.ErrBookUnavailable)
	got, live := f.orders.Live(o.ID)
	assert.False(t, live)
	assert.Equal(t, domain.OrderStatusRouting, got.Status)
	assert.Contains(t, got.LastError, "order book unavailable")

	assert.Equal(t, []string{o.ID}, f.orders.CancelAll("stop"))
}

func TestLedgerReplayConsistency(t *testing.T) {
	l := NewLedger()
	o1 := domain.TradeOrder{ID: "1", Symbol: "A", Side: domain.OrderSideBuy}
	o2 := domain.TradeOrder{ID: "2", Symbol: "A", Side: domain.OrderSideSell}
	o3 := domain.TradeOrder{ID: "3", Symbol: "B", Side: domain.OrderSideSell}

	l.Record(fillFor(o1, 30.5, 10))
	l.Record(fillFor(o2, 10.25, 11))
	l.Record(fillFor(o3, 7, 20))
	l.Record(fillFor(o1, 0.1, 10))

	assert.Equal(t, ReplayPositions(l.Fills()), l.Positions())
	assert.InDelta(t, 20.35, l.Position("A"), 1e-9)
	assert.Equal(t, -7.0, l.Position("B"))
	assert.Len(t, l.FillsFor("1"), 2)

	mids := map[string]float64{"A": 10, "B": 20}
	// cash: -305 + 112.75 + 140 - 1 = -53.25; marks: 203.5 - 140
	assert.InDelta(t, 10.25, l.PnL(mids), 1e-9)
	assert.InDelta(t, 20.35*10+7*20, l.GrossExposure(mids), 1e-9)
}
