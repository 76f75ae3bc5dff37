// Package executor routes accepted orders to execution algorithms and turns
// their slicing decisions into fills.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/execsim/internal/domain"
	"github.com/alanyoungcy/execsim/internal/market"
	"github.com/alanyoungcy/execsim/internal/sched"
	"github.com/alanyoungcy/execsim/internal/service"
)

// Env bundles the collaborators shared by every algorithm.
type Env struct {
	Sched    *sched.Scheduler
	Orders   *service.OrderManager
	Books    *market.BookStore
	Filler   *Filler
	Rand     *market.Rand
	Defaults domain.AlgoDefaults
	Logger   *slog.Logger
}

// Algorithm decides how and when an order is sliced into fills. An
// algorithm holds orders by id only and re-reads them from the
// OrderManager before every slice, so cancellation is seen at once.
type Algorithm interface {
	Name() domain.Algorithm
	// Prepare fills unset parameters from defaults and validates them.
	// It must not have side effects beyond order.
	Prepare(order *domain.TradeOrder, defaults domain.AlgoDefaults) error
	// Start begins working an order that has just moved to working.
	Start(ctx context.Context, env *Env, order domain.TradeOrder)
}

// Ticker is implemented by algorithms that re-evaluate their orders on
// every order-processing tick.
type Ticker interface {
	OnTick(ctx context.Context, env *Env, order domain.TradeOrder)
}

// Router validates orders against their algorithm, registers them with the
// OrderManager and starts the algorithm.
type Router struct {
	env    *Env
	logger *slog.Logger

	mu    sync.RWMutex
	algos map[domain.Algorithm]Algorithm
}

// NewRouter creates a Router with the five built-in algorithms.
func NewRouter(env *Env) *Router {
	r := &Router{
		env:    env,
		logger: env.Logger.With(slog.String("component", "router")),
		algos:  make(map[domain.Algorithm]Algorithm),
	}
	r.Register(MarketOrder{})
	r.Register(LimitOrder{})
	r.Register(TWAP{})
	r.Register(VWAP{})
	r.Register(POV{})
	return r
}

// Register adds or replaces an algorithm.
func (r *Router) Register(a Algorithm) {
	r.mu.Lock()
	r.algos[a.Name()] = a
	r.mu.Unlock()
}

func (r *Router) lookup(name domain.Algorithm) (Algorithm, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.algos[name]
	return a, ok
}

// Submit validates, risk-checks and routes order. On error nothing has been
// stored. The returned order is in working status.
func (r *Router) Submit(ctx context.Context, order domain.TradeOrder) (domain.TradeOrder, error) {
	if order.Algorithm == "" {
		order.Algorithm = domain.AlgoMarket
		if order.Type == domain.OrderTypeLimit {
			order.Algorithm = domain.AlgoLimit
		}
	}
	algo, ok := r.lookup(order.Algorithm)
	if !ok {
		return domain.TradeOrder{}, fmt.Errorf("%w: unknown algorithm %q", domain.ErrValidation, order.Algorithm)
	}
	if err := algo.Prepare(&order, r.env.Defaults); err != nil {
		return domain.TradeOrder{}, err
	}

	accepted, err := r.env.Orders.Accept(ctx, order)
	if err != nil {
		return domain.TradeOrder{}, err
	}
	if err := r.env.Orders.MarkWorking(accepted.ID); err != nil {
		return domain.TradeOrder{}, fmt.Errorf("router: submit: %w", err)
	}
	accepted, _ = r.env.Orders.Get(accepted.ID)

	r.logger.InfoContext(ctx, "router: order routed",
		slog.String("order_id", accepted.ID),
		slog.String("algorithm", string(accepted.Algorithm)),
	)
	guard(r.env.Orders, accepted.ID, func(ctx context.Context) {
		algo.Start(ctx, r.env, accepted)
	})(ctx)

	accepted, _ = r.env.Orders.Get(accepted.ID)
	return accepted, nil
}

// ProcessTick runs one order-processing pass: time-in-force expiry, client
// id cleanup and re-evaluation of resting orders.
func (r *Router) ProcessTick(ctx context.Context) {
	for _, o := range r.env.Orders.ExpireDue(r.env.Sched.Now()) {
		r.logger.InfoContext(ctx, "router: order expired",
			slog.String("order_id", o.ID),
			slog.Float64("filled", o.Filled()),
		)
	}
	r.env.Orders.CleanupDedup()

	for _, o := range r.env.Orders.Active() {
		if ctx.Err() != nil {
			return
		}
		if o.Status != domain.OrderStatusWorking && o.Status != domain.OrderStatusPartiallyFilled {
			continue
		}
		algo, ok := r.lookup(o.Algorithm)
		if !ok {
			continue
		}
		if t, ok := algo.(Ticker); ok {
			guard(r.env.Orders, o.ID, func(ctx context.Context) {
				t.OnTick(ctx, r.env, o)
			})(ctx)
		}
	}
}

func validationError(algo domain.Algorithm, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", domain.ErrValidation, algo, fmt.Sprintf(format, args...))
}

// rejectImmediate refuses IOC and FOK on algorithms that work over time.
func rejectImmediate(algo domain.Algorithm, order *domain.TradeOrder) error {
	if order.TimeInForce.Immediate() {
		return validationError(algo, "time in force %s cannot be worked over time", order.TimeInForce)
	}
	return nil
}
