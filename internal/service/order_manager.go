package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/alanyoungcy/execsim/internal/domain"
)

// quantityEpsilon absorbs float residue when deciding an order is filled.
const quantityEpsilon = 1e-9

// BookReader reads the current book for a symbol.
type BookReader interface {
	Get(symbol string) (domain.OrderBookSnapshot, bool)
}

// OrderListener receives every order status change.
type OrderListener func(domain.OrderEvent)

// OrderManager owns every order of a session. Non-terminal orders live in
// the active index; all orders, terminal or not, stay in the registry for
// status lookups and reporting. Only OrderManager writes order status.
type OrderManager struct {
	mu       sync.RWMutex
	orders   map[string]*domain.TradeOrder
	active   map[string]struct{}
	sequence []string

	books    BookReader
	ledger   *Ledger
	session  domain.TradingSession
	dayEnd   time.Time
	dedup    *Dedup
	clk      clock.Clock
	listener OrderListener
	logger   *slog.Logger
}

// NewOrderManager creates an OrderManager for session. dayLength bounds DAY
// orders; zero disables DAY expiry.
func NewOrderManager(
	books BookReader,
	ledger *Ledger,
	session domain.TradingSession,
	dayLength time.Duration,
	clk clock.Clock,
	logger *slog.Logger,
) *OrderManager {
	m := &OrderManager{
		orders:  make(map[string]*domain.TradeOrder),
		active:  make(map[string]struct{}),
		books:   books,
		ledger:  ledger,
		session: session,
		dedup:   NewDedup(10*time.Minute, clk),
		clk:     clk,
		logger:  logger.With(slog.String("component", "order_manager")),
	}
	if dayLength > 0 {
		m.dayEnd = session.StartTime.Add(dayLength)
	}
	return m
}

// SetListener registers the status change callback. It must be called
// before the first order is accepted.
func (m *OrderManager) SetListener(l OrderListener) {
	m.listener = l
}

// Validate checks the order fields that do not depend on the algorithm.
func (m *OrderManager) Validate(order domain.TradeOrder) error {
	var problems []string
	if !(order.Quantity > 0) || math.IsInf(order.Quantity, 0) {
		problems = append(problems, fmt.Sprintf("quantity must be positive, got %v", order.Quantity))
	}
	if order.Symbol == "" {
		problems = append(problems, "symbol must not be empty")
	} else if _, ok := m.books.Get(order.Symbol); !ok {
		problems = append(problems, fmt.Sprintf("unknown symbol %q", order.Symbol))
	}
	if !order.Side.Valid() {
		problems = append(problems, fmt.Sprintf("unknown side %q", order.Side))
	}
	switch order.Type {
	case domain.OrderTypeMarket:
	case domain.OrderTypeLimit:
		if !(order.Price > 0) {
			problems = append(problems, "limit order requires a positive price")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown order type %q", order.Type))
	}
	if !order.TimeInForce.Valid() {
		problems = append(problems, fmt.Sprintf("unknown time in force %q", order.TimeInForce))
	}
	if order.TimeInForce == domain.TimeInForceGTD && order.ExpireAt.IsZero() {
		problems = append(problems, "GTD order requires expire_at")
	}
	if order.Iceberg && !(order.DisplayQuantity > 0) {
		problems = append(problems, "iceberg order requires a positive display quantity")
	}
	if order.MaxSlippageBps < 0 {
		problems = append(problems, "max slippage must not be negative")
	}
	if order.MaxDelay < 0 {
		problems = append(problems, "max delay must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrValidation, strings.Join(problems, "; "))
	}
	return nil
}

// PreTradeCheck verifies that order keeps the session inside its position
// and gross exposure limits. Quantity still working on other active orders
// counts towards the projected position.
func (m *OrderManager) PreTradeCheck(ctx context.Context, order domain.TradeOrder) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.preTradeCheckLocked(ctx, order)
}

func (m *OrderManager) preTradeCheckLocked(ctx context.Context, order domain.TradeOrder) error {
	projected := m.ledger.Positions()
	for id := range m.active {
		o := m.orders[id]
		projected[o.Symbol] += o.Side.Sign() * o.Remaining
	}
	projected[order.Symbol] += order.Side.Sign() * order.Quantity

	if limit, ok := m.session.PositionLimit(order.Symbol); ok {
		if qty := math.Abs(projected[order.Symbol]); qty > limit+quantityEpsilon {
			m.logger.WarnContext(ctx, "order_manager: position limit exceeded",
				slog.String("symbol", order.Symbol),
				slog.Float64("projected", qty),
				slog.Float64("limit", limit),
			)
			return fmt.Errorf("%w: projected position %.4f in %s exceeds limit %.4f",
				domain.ErrRiskCheck, qty, order.Symbol, limit)
		}
	}

	if maxExposure := m.session.MaxExposure(); maxExposure > 0 {
		var gross float64
		for sym, qty := range projected {
			snap, ok := m.books.Get(sym)
			if !ok {
				continue
			}
			gross += math.Abs(qty) * snap.MidPrice
		}
		if gross > maxExposure {
			m.logger.WarnContext(ctx, "order_manager: exposure limit exceeded",
				slog.String("symbol", order.Symbol),
				slog.Float64("projected", gross),
				slog.Float64("limit", maxExposure),
			)
			return fmt.Errorf("%w: projected exposure %.2f exceeds %.2f",
				domain.ErrRiskCheck, gross, maxExposure)
		}
	}
	return nil
}

// Accept validates and risk-checks order, then registers it in routing
// status. Nothing is stored when an error is returned. Internal orders skip
// the pre-trade checks.
func (m *OrderManager) Accept(ctx context.Context, order domain.TradeOrder) (domain.TradeOrder, error) {
	if err := m.Validate(order); err != nil {
		return domain.TradeOrder{}, err
	}

	m.mu.Lock()
	if order.ClientOrderID != "" && m.dedup.Seen(order.ClientOrderID) {
		m.mu.Unlock()
		return domain.TradeOrder{}, fmt.Errorf("order_manager: client order id %q: %w", order.ClientOrderID, domain.ErrAlreadyExists)
	}
	if !order.Internal {
		if err := m.preTradeCheckLocked(ctx, order); err != nil {
			m.mu.Unlock()
			return domain.TradeOrder{}, err
		}
	}

	now := m.clk.Now()
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	if _, exists := m.orders[order.ID]; exists {
		m.mu.Unlock()
		return domain.TradeOrder{}, fmt.Errorf("order_manager: order %q: %w", order.ID, domain.ErrAlreadyExists)
	}
	if order.TimeInForce == "" {
		order.TimeInForce = domain.TimeInForceGTC
	}
	if snap, ok := m.books.Get(order.Symbol); ok {
		order.ArrivalMid = snap.MidPrice
	}
	order.Remaining = order.Quantity
	order.Status = domain.OrderStatusRouting // pending -> routing on acceptance
	order.SubmittedAt = now
	order.UpdatedAt = now
	order.LastError = ""

	stored := order
	m.orders[order.ID] = &stored
	m.active[order.ID] = struct{}{}
	m.sequence = append(m.sequence, order.ID)
	if order.ClientOrderID != "" {
		m.dedup.Remember(order.ClientOrderID)
	}
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "order_manager: order accepted",
		slog.String("order_id", order.ID),
		slog.String("symbol", order.Symbol),
		slog.String("side", string(order.Side)),
		slog.String("algorithm", string(order.Algorithm)),
		slog.Float64("quantity", order.Quantity),
	)
	m.emit(order, "")
	return order, nil
}

// Get returns a copy of the order with id.
func (m *OrderManager) Get(id string) (domain.TradeOrder, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return domain.TradeOrder{}, false
	}
	return *o, true
}

// Status returns the status of the order with id.
func (m *OrderManager) Status(id string) (domain.OrderStatus, bool) {
	o, ok := m.Get(id)
	return o.Status, ok
}

// Live reports whether the order can still execute: it exists, is not
// terminal and has not been isolated after a fault.
func (m *OrderManager) Live(id string) (domain.TradeOrder, bool) {
	o, ok := m.Get(id)
	if !ok || o.Status.Terminal() || o.LastError != "" {
		return o, false
	}
	return o, true
}

// Active returns copies of the non-terminal orders in submission order.
func (m *OrderManager) Active() []domain.TradeOrder {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.TradeOrder, 0, len(m.active))
	for _, id := range m.sequence {
		if _, ok := m.active[id]; ok {
			out = append(out, *m.orders[id])
		}
	}
	return out
}

// All returns copies of every order in submission order.
func (m *OrderManager) All() []domain.TradeOrder {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.TradeOrder, 0, len(m.sequence))
	for _, id := range m.sequence {
		out = append(out, *m.orders[id])
	}
	return out
}

// ActiveCount returns the size of the active index.
func (m *OrderManager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

// MarkWorking moves a routed order to working.
func (m *OrderManager) MarkWorking(id string) error {
	return m.transition(id, domain.OrderStatusWorking, "")
}

// Reject moves a routed order to rejected.
func (m *OrderManager) Reject(id, reason string) error {
	return m.transition(id, domain.OrderStatusRejected, reason)
}

// Expire moves a working order to expired. It returns false if the order
// is unknown or can no longer expire.
func (m *OrderManager) Expire(id, reason string) bool {
	return m.transition(id, domain.OrderStatusExpired, reason) == nil
}

// Cancel moves a non-terminal order to cancelled. It returns false if the
// order is unknown or already terminal.
func (m *OrderManager) Cancel(id, reason string) bool {
	return m.transition(id, domain.OrderStatusCancelled, reason) == nil
}

// CancelAll cancels every active order and returns their ids.
func (m *OrderManager) CancelAll(reason string) []string {
	var ids []string
	for _, o := range m.Active() {
		if m.Cancel(o.ID, reason) {
			ids = append(ids, o.ID)
		}
	}
	return ids
}

// Isolate stops an order from advancing after a fault. The order keeps its
// status until it is cancelled or the session stops.
func (m *OrderManager) Isolate(id string, cause error) {
	m.mu.Lock()
	o, ok := m.orders[id]
	if !ok || o.Status.Terminal() {
		m.mu.Unlock()
		return
	}
	o.LastError = cause.Error()
	o.UpdatedAt = m.clk.Now()
	snapshot := *o
	m.mu.Unlock()

	m.logger.Error("order_manager: order isolated",
		slog.String("order_id", id),
		slog.String("error", cause.Error()),
	)
	m.emit(snapshot, cause.Error())
}

// ApplyFill decrements the order by qty and moves it to partially_filled
// or filled. qty is clamped to the remaining quantity; the clamped amount
// is returned with the updated order.
func (m *OrderManager) ApplyFill(id string, qty, price float64) (domain.TradeOrder, float64, error) {
	m.mu.Lock()
	o, ok := m.orders[id]
	if !ok {
		m.mu.Unlock()
		return domain.TradeOrder{}, 0, fmt.Errorf("order_manager: fill %q: %w", id, domain.ErrNotFound)
	}
	if o.Status.Terminal() || (o.Status != domain.OrderStatusWorking && o.Status != domain.OrderStatusPartiallyFilled) {
		status := o.Status
		m.mu.Unlock()
		return domain.TradeOrder{}, 0, fmt.Errorf("order_manager: fill %q in status %s: %w", id, status, domain.ErrInvalidTransition)
	}
	if qty > o.Remaining {
		qty = o.Remaining
	}
	if qty <= 0 {
		m.mu.Unlock()
		return domain.TradeOrder{}, 0, fmt.Errorf("order_manager: fill %q: nothing remaining: %w", id, domain.ErrInvalidTransition)
	}

	filledBefore := o.Filled()
	o.AvgFillPrice = (o.AvgFillPrice*filledBefore + price*qty) / (filledBefore + qty)
	o.Remaining -= qty
	if o.Remaining <= quantityEpsilon {
		o.Remaining = 0
		o.Status = domain.OrderStatusFilled
		delete(m.active, id)
	} else {
		o.Status = domain.OrderStatusPartiallyFilled
	}
	o.UpdatedAt = m.clk.Now()
	snapshot := *o
	m.mu.Unlock()

	m.emit(snapshot, "")
	return snapshot, qty, nil
}

// ExpireDue expires every order whose time in force or max delay has
// elapsed at now and returns them.
func (m *OrderManager) ExpireDue(now time.Time) []domain.TradeOrder {
	var due []string
	m.mu.RLock()
	for id := range m.active {
		if reason := m.expiryReason(m.orders[id], now); reason != "" {
			due = append(due, id)
		}
	}
	m.mu.RUnlock()
	sort.Strings(due)

	var out []domain.TradeOrder
	for _, id := range due {
		o, ok := m.Get(id)
		if !ok {
			continue
		}
		if m.Expire(id, m.expiryReason(&o, now)) {
			o, _ = m.Get(id)
			out = append(out, o)
		}
	}
	return out
}

func (m *OrderManager) expiryReason(o *domain.TradeOrder, now time.Time) string {
	if o.Status != domain.OrderStatusWorking && o.Status != domain.OrderStatusPartiallyFilled {
		return ""
	}
	switch {
	case o.TimeInForce == domain.TimeInForceGTD && !now.Before(o.ExpireAt):
		return "good-till-date elapsed"
	case o.TimeInForce == domain.TimeInForceDAY && !m.dayEnd.IsZero() && !now.Before(m.dayEnd):
		return "trading day ended"
	case o.MaxDelay > 0 && now.Sub(o.SubmittedAt) >= o.MaxDelay:
		return "max delay elapsed"
	}
	return ""
}

// CleanupDedup drops expired client order ids.
func (m *OrderManager) CleanupDedup() {
	m.dedup.Cleanup()
}

func (m *OrderManager) transition(id string, next domain.OrderStatus, reason string) error {
	m.mu.Lock()
	o, ok := m.orders[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("order_manager: %q: %w", id, domain.ErrNotFound)
	}
	if !o.Status.CanTransition(next) {
		status := o.Status
		m.mu.Unlock()
		return fmt.Errorf("order_manager: %q %s -> %s: %w", id, status, next, domain.ErrInvalidTransition)
	}
	o.Status = next
	o.UpdatedAt = m.clk.Now()
	if next.Terminal() {
		delete(m.active, id)
	}
	snapshot := *o
	m.mu.Unlock()

	if next.Terminal() {
		m.logger.Info("order_manager: order closed",
			slog.String("order_id", id),
			slog.String("status", string(next)),
			slog.Float64("filled", snapshot.Filled()),
			slog.String("reason", reason),
		)
	}
	m.emit(snapshot, reason)
	return nil
}

func (m *OrderManager) emit(o domain.TradeOrder, reason string) {
	if m.listener == nil {
		return
	}
	m.listener(domain.OrderEvent{
		OrderID:   o.ID,
		Symbol:    o.Symbol,
		Side:      o.Side,
		Algorithm: o.Algorithm,
		Status:    o.Status,
		Quantity:  o.Quantity,
		Remaining: o.Remaining,
		Reason:    reason,
		Hidden:    o.Hidden,
		Timestamp: o.UpdatedAt,
	})
}
