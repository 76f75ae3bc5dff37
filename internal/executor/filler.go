package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/execsim/internal/cost"
	"github.com/alanyoungcy/execsim/internal/domain"
	"github.com/alanyoungcy/execsim/internal/market"
	"github.com/alanyoungcy/execsim/internal/sched"
	"github.com/alanyoungcy/execsim/internal/service"
)

// FillOpts modifies how a single fill is recorded.
type FillOpts struct {
	// Immediate marks a fill that executes on arrival; it carries no delay
	// cost.
	Immediate bool
}

// Outcome reports what happened to a fill request once its latency elapsed.
type Outcome struct {
	Filled   float64
	Deferred bool // not executable at the current book, quantity untouched
}

// DoneFunc is called from the scheduler after a fill request resolves.
type DoneFunc func(ctx context.Context, out Outcome)

// FillListener receives every recorded fill.
type FillListener func(domain.ExecutionResult)

// BreachListener receives slippage breach events.
type BreachListener func(domain.RiskEvent)

// Filler turns fill decisions into ExecutionResults. Each request waits for
// a sampled latency on the scheduler, then prices itself against the book
// current at that moment.
type Filler struct {
	sched   *sched.Scheduler
	orders  *service.OrderManager
	books   *market.BookStore
	ledger  *service.Ledger
	costs   cost.Model
	impact  domain.ImpactParams
	latency *LatencyModel
	venue   string
	logger  *slog.Logger

	onFill   FillListener
	onBreach BreachListener

	mu       sync.Mutex
	inflight map[string]float64 // order id -> quantity awaiting latency
}

// NewFiller creates a Filler.
func NewFiller(
	s *sched.Scheduler,
	orders *service.OrderManager,
	books *market.BookStore,
	ledger *service.Ledger,
	costs cost.Model,
	impact domain.ImpactParams,
	latency *LatencyModel,
	venue string,
	logger *slog.Logger,
) *Filler {
	return &Filler{
		sched:    s,
		orders:   orders,
		books:    books,
		ledger:   ledger,
		costs:    costs,
		impact:   impact,
		latency:  latency,
		venue:    venue,
		logger:   logger.With(slog.String("component", "filler")),
		inflight: make(map[string]float64),
	}
}

// SetListeners registers the fill and slippage breach callbacks.
func (f *Filler) SetListeners(onFill FillListener, onBreach BreachListener) {
	f.onFill = onFill
	f.onBreach = onBreach
}

// InFlight returns the quantity of order id still waiting on latency.
func (f *Filler) InFlight(id string) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inflight[id]
}

// Execute requests a fill of qty for order id. The fill is recorded after
// the sampled latency; done, if non-nil, is called with the outcome.
func (f *Filler) Execute(id string, qty float64, opts FillOpts, done DoneFunc) {
	lat := f.latency.Sample()

	f.mu.Lock()
	f.inflight[id] += qty
	f.mu.Unlock()

	f.sched.After(lat, "fill:"+id, guard(f.orders, id, func(ctx context.Context) {
		out := f.record(ctx, id, qty, lat, opts)
		if done != nil {
			done(ctx, out)
		}
	}))
}

func (f *Filler) release(id string, qty float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	left := f.inflight[id] - qty
	if left <= 1e-9 {
		delete(f.inflight, id)
		return
	}
	f.inflight[id] = left
}

func (f *Filler) record(ctx context.Context, id string, qty float64, lat time.Duration, opts FillOpts) Outcome {
	defer f.release(id, qty)

	if ctx.Err() != nil {
		return Outcome{}
	}
	order, live := f.orders.Live(id)
	if !live {
		return Outcome{}
	}
	snap, ok := f.books.Get(order.Symbol)
	if !ok {
		f.orders.Isolate(id, fmt.Errorf("executor: fill %s: %w", order.Symbol, domain.ErrBookUnavailable))
		return Outcome{}
	}
	if !order.Marketable(snap.BestBid, snap.BestAsk) {
		return Outcome{Deferred: true}
	}

	price := snap.TouchPrice(order.Side)
	slippage := cost.SlippageBps(price, snap.MidPrice)
	if order.MaxSlippageBps > 0 && slippage > order.MaxSlippageBps {
		if order.Algorithm != domain.AlgoMarket {
			f.logger.DebugContext(ctx, "filler: fill deferred on slippage",
				slog.String("order_id", id),
				slog.Float64("slippage_bps", slippage),
				slog.Float64("max_slippage_bps", order.MaxSlippageBps),
			)
			return Outcome{Deferred: true}
		}
		f.breach(ctx, order, slippage)
	}

	updated, filled, err := f.orders.ApplyFill(id, qty, price)
	if err != nil {
		f.logger.WarnContext(ctx, "filler: fill dropped",
			slog.String("order_id", id),
			slog.String("error", err.Error()),
		)
		return Outcome{}
	}

	impact := cost.ImpactBps(f.impact, filled, snap)
	res := domain.ExecutionResult{
		ID:              uuid.New().String(),
		OrderID:         id,
		Symbol:          order.Symbol,
		Side:            order.Side,
		Algorithm:       order.Algorithm,
		Venue:           f.venue,
		Timestamp:       f.sched.Now(),
		Quantity:        filled,
		Price:           price,
		MidPrice:        snap.MidPrice,
		SlippageBps:     slippage,
		MarketImpactBps: impact,
		Latency:         lat,
		Costs: f.costs.Compute(cost.Fill{
			Side:       order.Side,
			Quantity:   filled,
			Price:      price,
			Book:       snap,
			ImpactBps:  impact,
			ArrivalMid: order.ArrivalMid,
			Immediate:  opts.Immediate,
		}),
		Book: snap,
	}
	f.ledger.Record(res)

	f.logger.InfoContext(ctx, "filler: fill recorded",
		slog.String("order_id", id),
		slog.String("symbol", res.Symbol),
		slog.String("side", string(res.Side)),
		slog.Float64("quantity", filled),
		slog.Float64("price", price),
		slog.Float64("remaining", updated.Remaining),
	)
	if f.onFill != nil {
		f.onFill(res)
	}
	return Outcome{Filled: filled}
}

func (f *Filler) breach(ctx context.Context, order domain.TradeOrder, slippage float64) {
	f.logger.WarnContext(ctx, "filler: slippage bound exceeded",
		slog.String("order_id", order.ID),
		slog.Float64("slippage_bps", slippage),
		slog.Float64("max_slippage_bps", order.MaxSlippageBps),
	)
	if f.onBreach == nil {
		return
	}
	f.onBreach(domain.RiskEvent{
		Type:    domain.RiskEventSlippageBreach,
		Symbol:  order.Symbol,
		OrderID: order.ID,
		Limit:   order.MaxSlippageBps,
		Actual:  slippage,
		Action:  domain.RiskActionAlert,
		Message: fmt.Sprintf("slippage %.2f bps exceeds bound %.2f bps", slippage, order.MaxSlippageBps),
	})
}

// guard isolates order id if fn panics, so one faulty order stops advancing
// without taking the scheduler down.
func guard(orders *service.OrderManager, id string, fn sched.Task) sched.Task {
	return func(ctx context.Context) {
		defer func() {
			if r := recover(); r != nil {
				orders.Isolate(id, fmt.Errorf("executor: task panicked: %v", r))
			}
		}()
		fn(ctx)
	}
}
