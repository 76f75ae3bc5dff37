package executor

import (
	"context"
	"math"

	"github.com/alanyoungcy/execsim/internal/domain"
)

// LimitOrder fills when the limit price crosses the touch. A resting order
// is re-evaluated on every order-processing tick until it fills, is
// cancelled or expires. Iceberg orders expose at most their display
// quantity per evaluation.
type LimitOrder struct{}

func (LimitOrder) Name() domain.Algorithm { return domain.AlgoLimit }

func (LimitOrder) Prepare(order *domain.TradeOrder, _ domain.AlgoDefaults) error {
	if order.Type == "" {
		order.Type = domain.OrderTypeLimit
	}
	if order.Type != domain.OrderTypeLimit {
		return validationError(domain.AlgoLimit, "requires a limit order type")
	}
	return nil
}

func (a LimitOrder) Start(ctx context.Context, env *Env, order domain.TradeOrder) {
	a.evaluate(ctx, env, order.ID, true)
}

func (a LimitOrder) OnTick(ctx context.Context, env *Env, order domain.TradeOrder) {
	a.evaluate(ctx, env, order.ID, false)
}

func (LimitOrder) evaluate(_ context.Context, env *Env, id string, arrival bool) {
	o, live := env.Orders.Live(id)
	if !live || env.Filler.InFlight(id) > 0 {
		return
	}
	snap, ok := env.Books.Get(o.Symbol)
	if !ok {
		return
	}

	if !o.Marketable(snap.BestBid, snap.BestAsk) {
		if arrival && o.TimeInForce.Immediate() {
			env.Orders.Expire(id, "not marketable on arrival")
		}
		return
	}

	qty := o.Remaining
	touch := touchSize(snap, o.Side)
	switch o.TimeInForce {
	case domain.TimeInForceFOK:
		if touch < qty {
			env.Orders.Expire(id, "insufficient size for fill-or-kill")
			return
		}
	case domain.TimeInForceIOC:
		if touch > 0 {
			qty = math.Min(qty, touch)
		}
	}
	if o.Iceberg && o.DisplayQuantity > 0 && o.DisplayQuantity < qty {
		qty = o.DisplayQuantity
	}

	var done DoneFunc
	if o.TimeInForce.Immediate() {
		done = func(context.Context, Outcome) {
			if _, live := env.Orders.Live(id); live {
				env.Orders.Expire(id, "immediate-or-cancel remainder")
			}
		}
	}
	env.Filler.Execute(id, qty, FillOpts{Immediate: arrival}, done)
}

// touchSize returns the size resting at the level an order on side trades
// against.
func touchSize(snap domain.OrderBookSnapshot, side domain.OrderSide) float64 {
	levels := snap.Asks
	if side == domain.OrderSideSell {
		levels = snap.Bids
	}
	if len(levels) == 0 {
		return 0
	}
	return levels[0].Size
}
