package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/execsim/internal/domain"
)

type submitted struct {
	orders []domain.TradeOrder
}

func (s *submitted) submit(f *fixture) OrderSubmitter {
	return func(ctx context.Context, o domain.TradeOrder) (string, error) {
		acc, err := f.orders.Accept(ctx, o)
		if err != nil {
			return "", err
		}
		s.orders = append(s.orders, acc)
		return acc.ID, nil
	}
}

func fillOrder(t *testing.T, f *fixture, side domain.OrderSide, qty, price float64) {
	t.Helper()
	o := marketBuy("TEST", qty)
	o.Side = side
	o.Internal = true
	acc, err := f.orders.Accept(context.Background(), o)
	require.NoError(t, err)
	require.NoError(t, f.orders.MarkWorking(acc.ID))
	_, filled, err := f.orders.ApplyFill(acc.ID, qty, price)
	require.NoError(t, err)
	f.ledger.Record(fillFor(acc, filled, price))
}

func TestRiskMonitorDropsDisabledControls(t *testing.T) {
	f := newFixture(t, defaultSession())
	rm := NewRiskMonitor([]domain.RiskControl{
		{Type: domain.RiskPositionLimit, Action: domain.RiskActionAlert, Enabled: true},
		{Name: "off", Type: domain.RiskLossLimit, Action: domain.RiskActionHaltTrading},
	}, defaultSession(), f.ledger, f.books, f.orders, f.clk, discardLogger())

	controls := rm.Controls()
	require.Len(t, controls, 1)
	assert.Equal(t, "position_limit_0", controls[0].Name)
}

func TestRiskMonitorAlertRaisedOncePerBreach(t *testing.T) {
	f := newFixture(t, defaultSession())
	rm := NewRiskMonitor([]domain.RiskControl{
		{Name: "pos", Type: domain.RiskPositionLimit, Limit: 50, Action: domain.RiskActionAlert, Enabled: true},
	}, defaultSession(), f.ledger, f.books, f.orders, f.clk, discardLogger())

	var heard []domain.RiskEvent
	rm.SetListener(func(ev domain.RiskEvent) { heard = append(heard, ev) })

	ctx := context.Background()
	assert.Empty(t, rm.Check(ctx))

	fillOrder(t, f, domain.OrderSideBuy, 80, 101)
	events := rm.Check(ctx)
	require.Len(t, events, 1)
	assert.Equal(t, "TEST", events[0].Symbol)
	assert.Equal(t, 50.0, events[0].Limit)
	assert.Equal(t, 80.0, events[0].Actual)

	assert.Empty(t, rm.Check(ctx), "an ongoing breach is reported once")

	fillOrder(t, f, domain.OrderSideSell, 40, 101)
	assert.Empty(t, rm.Check(ctx))

	fillOrder(t, f, domain.OrderSideBuy, 40, 101)
	assert.Len(t, rm.Check(ctx), 1, "a new breach after recovery is reported")

	assert.Len(t, rm.Events(), 2)
	assert.Len(t, heard, 2)
	assert.False(t, rm.Halted())
}

func TestRiskMonitorReducePosition(t *testing.T) {
	f := newFixture(t, defaultSession())
	rm := NewRiskMonitor([]domain.RiskControl{
		{Name: "pos", Type: domain.RiskPositionLimit, Limit: 50, Action: domain.RiskActionReducePosition, Enabled: true},
	}, defaultSession(), f.ledger, f.books, f.orders, f.clk, discardLogger())

	var sub submitted
	rm.SetActions(sub.submit(f), nil)

	fillOrder(t, f, domain.OrderSideBuy, 80, 101)
	ctx := context.Background()

	require.Len(t, rm.Check(ctx), 1)
	require.Len(t, sub.orders, 1)
	risk := sub.orders[0]
	assert.Equal(t, domain.OrderSideSell, risk.Side)
	assert.Equal(t, 30.0, risk.Quantity, "reduces the excess over the limit")
	assert.Equal(t, "risk:TEST", risk.Tag)
	assert.True(t, risk.Internal)

	// The first risk order is still live, so no second one is sent.
	assert.Empty(t, rm.Check(ctx))
	assert.Len(t, sub.orders, 1)

	f.orders.Cancel(risk.ID, "test")
	events := rm.Check(ctx)
	assert.Len(t, events, 1, "a new risk order raises a new event")
	assert.Len(t, sub.orders, 2)
}

func TestRiskMonitorClosePositionOnExposure(t *testing.T) {
	session := defaultSession()
	session.InitialCash = 5_000
	f := newFixture(t, session)
	rm := NewRiskMonitor([]domain.RiskControl{
		{Name: "gross", Type: domain.RiskExposureLimit, Action: domain.RiskActionClosePosition, Enabled: true},
	}, session, f.ledger, f.books, f.orders, f.clk, discardLogger())

	var sub submitted
	rm.SetActions(sub.submit(f), nil)

	fillOrder(t, f, domain.OrderSideSell, 60, 101)
	events := rm.Check(context.Background())
	require.Len(t, events, 1)
	assert.Equal(t, 5_000.0, events[0].Limit)

	require.Len(t, sub.orders, 1)
	assert.Equal(t, domain.OrderSideBuy, sub.orders[0].Side)
	assert.Equal(t, 60.0, sub.orders[0].Quantity)
}

func TestRiskMonitorHaltOnLoss(t *testing.T) {
	session := defaultSession()
	session.DailyLossLimit = 100
	f := newFixture(t, session)
	rm := NewRiskMonitor([]domain.RiskControl{
		{Name: "loss", Type: domain.RiskLossLimit, Action: domain.RiskActionHaltTrading, Enabled: true},
	}, session, f.ledger, f.books, f.orders, f.clk, discardLogger())

	var reasons []string
	rm.SetActions(nil, func(reason string) { reasons = append(reasons, reason) })

	// Bought 100 at 103 against a mid of 100.995: about -200.5 marked.
	fillOrder(t, f, domain.OrderSideBuy, 100, 103)

	ctx := context.Background()
	events := rm.Check(ctx)
	require.Len(t, events, 1)
	assert.Equal(t, domain.RiskActionHaltTrading, events[0].Action)
	assert.Less(t, events[0].Actual, -100.0)
	assert.True(t, rm.Halted())
	require.Len(t, reasons, 1)

	rm.Check(ctx)
	assert.Len(t, reasons, 1, "halt fires once")
}

func TestRiskMonitorNoRiskOrdersAfterHalt(t *testing.T) {
	session := defaultSession()
	session.DailyLossLimit = 100
	f := newFixture(t, session)
	rm := NewRiskMonitor([]domain.RiskControl{
		{Name: "loss", Type: domain.RiskLossLimit, Action: domain.RiskActionHaltTrading, Enabled: true},
		{Name: "pos", Type: domain.RiskPositionLimit, Limit: 50, Action: domain.RiskActionReducePosition, Enabled: true},
	}, session, f.ledger, f.books, f.orders, f.clk, discardLogger())

	var sub submitted
	halts := 0
	rm.SetActions(sub.submit(f), func(string) { halts++ })

	fillOrder(t, f, domain.OrderSideBuy, 100, 103)
	events := rm.Check(context.Background())

	require.Len(t, events, 2, "both breaches are still reported")
	assert.Equal(t, 1, halts)
	assert.Empty(t, sub.orders)
	assert.Empty(t, f.orders.Active())
}

func TestRiskMonitorRecord(t *testing.T) {
	f := newFixture(t, defaultSession())
	rm := NewRiskMonitor(nil, defaultSession(), f.ledger, f.books, f.orders, f.clk, discardLogger())

	rm.Record(domain.RiskEvent{Type: domain.RiskEventSlippageBreach, OrderID: "x"})
	events := rm.Events()
	require.Len(t, events, 1)
	assert.NotEmpty(t, events[0].ID)
	assert.Equal(t, f.clk.Now(), events[0].Timestamp)
}
