package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/alanyoungcy/execsim/internal/domain"
)

const defaultReduceFraction = 0.5

// MidReader returns the current mid of every symbol.
type MidReader interface {
	Mids() map[string]float64
}

// OrderSubmitter routes an order generated by a risk action.
type OrderSubmitter func(ctx context.Context, order domain.TradeOrder) (string, error)

// Halter stops the whole engine.
type Halter func(reason string)

// RiskListener receives every risk event.
type RiskListener func(domain.RiskEvent)

// RiskMonitor evaluates the configured controls on every risk tick and
// carries out their actions.
type RiskMonitor struct {
	controls []domain.RiskControl
	session  domain.TradingSession
	ledger   *Ledger
	mids     MidReader
	orders   *OrderManager
	clk      clock.Clock
	logger   *slog.Logger

	submit   OrderSubmitter
	halt     Halter
	listener RiskListener

	mu       sync.Mutex
	events   []domain.RiskEvent
	breached map[string]bool   // control/symbol keys currently in breach
	pending  map[string]string // symbol -> in-flight risk order id
	halted   bool
}

// NewRiskMonitor creates a RiskMonitor. Disabled controls are dropped.
func NewRiskMonitor(
	controls []domain.RiskControl,
	session domain.TradingSession,
	ledger *Ledger,
	mids MidReader,
	orders *OrderManager,
	clk clock.Clock,
	logger *slog.Logger,
) *RiskMonitor {
	enabled := make([]domain.RiskControl, 0, len(controls))
	for i, c := range controls {
		if !c.Enabled {
			continue
		}
		if c.Name == "" {
			c.Name = fmt.Sprintf("%s_%d", c.Type, i)
		}
		enabled = append(enabled, c)
	}
	return &RiskMonitor{
		controls: enabled,
		session:  session,
		ledger:   ledger,
		mids:     mids,
		orders:   orders,
		clk:      clk,
		logger:   logger.With(slog.String("component", "risk_monitor")),
		breached: make(map[string]bool),
		pending:  make(map[string]string),
	}
}

// SetActions wires the order submission and halt hooks used by the
// reduce, close and halt actions.
func (r *RiskMonitor) SetActions(submit OrderSubmitter, halt Halter) {
	r.submit = submit
	r.halt = halt
}

// SetListener registers the risk event callback.
func (r *RiskMonitor) SetListener(l RiskListener) {
	r.listener = l
}

// Controls returns the enabled controls.
func (r *RiskMonitor) Controls() []domain.RiskControl {
	out := make([]domain.RiskControl, len(r.controls))
	copy(out, r.controls)
	return out
}

// breach is one control violated for one symbol (empty for session-wide
// controls).
type breach struct {
	control domain.RiskControl
	symbol  string
	limit   float64
	actual  float64
	message string
}

// Check evaluates every control and runs the actions of those in breach.
// It returns the events raised on this tick.
func (r *RiskMonitor) Check(ctx context.Context) []domain.RiskEvent {
	positions := r.ledger.Positions()
	mids := r.mids.Mids()

	var raised []domain.RiskEvent
	seen := make(map[string]bool)
	for _, c := range r.controls {
		for _, b := range r.evaluate(c, positions, mids) {
			key := c.Name + "/" + b.symbol
			seen[key] = true

			r.mu.Lock()
			first := !r.breached[key]
			r.breached[key] = true
			r.mu.Unlock()

			acted := r.act(ctx, b, positions)
			if first || acted {
				raised = append(raised, r.raise(ctx, b))
			}
		}
	}

	r.mu.Lock()
	for key := range r.breached {
		if !seen[key] {
			delete(r.breached, key)
		}
	}
	r.mu.Unlock()
	return raised
}

func (r *RiskMonitor) evaluate(c domain.RiskControl, positions, mids map[string]float64) []breach {
	switch c.Type {
	case domain.RiskPositionLimit:
		var out []breach
		for _, sym := range sortedKeys(positions) {
			if c.Symbol != "" && c.Symbol != sym {
				continue
			}
			limit := c.Limit
			if limit <= 0 {
				var ok bool
				if limit, ok = r.session.PositionLimit(sym); !ok {
					continue
				}
			}
			if actual := math.Abs(positions[sym]); actual > limit+quantityEpsilon {
				out = append(out, breach{
					control: c, symbol: sym, limit: limit, actual: actual,
					message: fmt.Sprintf("position %.4f in %s exceeds %.4f", actual, sym, limit),
				})
			}
		}
		return out

	case domain.RiskLossLimit:
		limit := c.Limit
		if limit <= 0 {
			limit = r.session.DailyLossLimit
		}
		if limit <= 0 {
			return nil
		}
		pnl := r.ledger.PnL(mids)
		if pnl < -limit {
			return []breach{{
				control: c, limit: -limit, actual: pnl,
				message: fmt.Sprintf("pnl %.2f below loss limit -%.2f", pnl, limit),
			}}
		}

	case domain.RiskExposureLimit:
		limit := c.Limit
		if limit <= 0 {
			limit = r.session.MaxExposure()
		}
		if limit <= 0 {
			return nil
		}
		gross := r.ledger.GrossExposure(mids)
		if gross > limit {
			return []breach{{
				control: c, limit: limit, actual: gross,
				message: fmt.Sprintf("gross exposure %.2f exceeds %.2f", gross, limit),
			}}
		}
	}
	return nil
}

// act carries out the control's action and reports whether an order was
// submitted or trading halted.
func (r *RiskMonitor) act(ctx context.Context, b breach, positions map[string]float64) bool {
	switch b.control.Action {
	case domain.RiskActionHaltTrading:
		r.mu.Lock()
		already := r.halted
		r.halted = true
		r.mu.Unlock()
		if already || r.halt == nil {
			return false
		}
		r.halt(b.message)
		return true

	case domain.RiskActionReducePosition, domain.RiskActionClosePosition:
		symbols := []string{b.symbol}
		if b.symbol == "" {
			symbols = sortedKeys(positions)
		}
		acted := false
		for _, sym := range symbols {
			pos := positions[sym]
			if math.Abs(pos) <= quantityEpsilon {
				continue
			}
			qty := math.Abs(pos)
			if b.control.Action == domain.RiskActionReducePosition {
				qty = r.reduceQuantity(b, pos)
			}
			if r.flatten(ctx, b.control, sym, pos, qty) {
				acted = true
			}
		}
		return acted
	}
	return false
}

func (r *RiskMonitor) reduceQuantity(b breach, pos float64) float64 {
	if f := b.control.ReduceFraction; f > 0 && f <= 1 {
		return math.Abs(pos) * f
	}
	if b.control.Type == domain.RiskPositionLimit && b.symbol != "" {
		return math.Abs(pos) - b.limit
	}
	return math.Abs(pos) * defaultReduceFraction
}

// flatten submits an internal market order against pos unless one is
// already working for sym or trading has been halted.
func (r *RiskMonitor) flatten(ctx context.Context, c domain.RiskControl, sym string, pos, qty float64) bool {
	if r.submit == nil || qty <= quantityEpsilon {
		return false
	}

	r.mu.Lock()
	if r.halted {
		r.mu.Unlock()
		return false
	}
	if id, ok := r.pending[sym]; ok {
		if _, live := r.orders.Live(id); live {
			r.mu.Unlock()
			return false
		}
		delete(r.pending, sym)
	}
	r.mu.Unlock()

	side := domain.OrderSideSell
	if pos < 0 {
		side = domain.OrderSideBuy
	}
	id, err := r.submit(ctx, domain.TradeOrder{
		Symbol:    sym,
		Side:      side,
		Type:      domain.OrderTypeMarket,
		Quantity:  qty,
		Algorithm: domain.AlgoMarket,
		Tag:       "risk:" + sym,
		Internal:  true,
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "risk_monitor: risk order failed",
			slog.String("control", c.Name),
			slog.String("symbol", sym),
			slog.String("error", err.Error()),
		)
		return false
	}

	r.mu.Lock()
	r.pending[sym] = id
	r.mu.Unlock()

	r.logger.WarnContext(ctx, "risk_monitor: risk order submitted",
		slog.String("control", c.Name),
		slog.String("symbol", sym),
		slog.String("side", string(side)),
		slog.Float64("quantity", qty),
		slog.String("order_id", id),
	)
	return true
}

func (r *RiskMonitor) raise(ctx context.Context, b breach) domain.RiskEvent {
	ev := domain.RiskEvent{
		ID:        uuid.New().String(),
		Type:      string(b.control.Type),
		Control:   b.control.Name,
		Symbol:    b.symbol,
		Limit:     b.limit,
		Actual:    b.actual,
		Action:    b.control.Action,
		Message:   b.message,
		Timestamp: r.clk.Now(),
	}
	r.logger.WarnContext(ctx, "risk_monitor: limit breached",
		slog.String("control", ev.Control),
		slog.String("type", ev.Type),
		slog.String("symbol", ev.Symbol),
		slog.Float64("limit", ev.Limit),
		slog.Float64("actual", ev.Actual),
		slog.String("action", string(ev.Action)),
	)
	r.Record(ev)
	return ev
}

// Record stores an event raised elsewhere, such as a slippage breach.
func (r *RiskMonitor) Record(ev domain.RiskEvent) {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = r.clk.Now()
	}
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()

	if r.listener != nil {
		r.listener(ev)
	}
}

// Events returns a copy of every event raised so far.
func (r *RiskMonitor) Events() []domain.RiskEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.RiskEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Halted reports whether a halt_trading action fired.
func (r *RiskMonitor) Halted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.halted
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
