package executor

import (
	"context"

	"github.com/alanyoungcy/execsim/internal/domain"
)

// MarketOrder fills the whole remaining quantity at the touch in one fill.
type MarketOrder struct{}

func (MarketOrder) Name() domain.Algorithm { return domain.AlgoMarket }

func (MarketOrder) Prepare(order *domain.TradeOrder, _ domain.AlgoDefaults) error {
	if order.Type == "" {
		order.Type = domain.OrderTypeMarket
	}
	if order.Type != domain.OrderTypeMarket {
		return validationError(domain.AlgoMarket, "requires a market order type")
	}
	return nil
}

// Start fills at the touch. IOC takes at most the touch size and expires
// the rest; FOK expires unless the touch covers the whole quantity.
func (MarketOrder) Start(_ context.Context, env *Env, order domain.TradeOrder) {
	qty := order.Remaining
	var done DoneFunc
	if order.TimeInForce.Immediate() {
		if snap, ok := env.Books.Get(order.Symbol); ok {
			touch := touchSize(snap, order.Side)
			switch order.TimeInForce {
			case domain.TimeInForceFOK:
				if touch < qty {
					env.Orders.Expire(order.ID, "insufficient size for fill-or-kill")
					return
				}
			case domain.TimeInForceIOC:
				if touch > 0 {
					qty = min(qty, touch)
				}
			}
		}
		id := order.ID
		done = func(context.Context, Outcome) {
			if _, live := env.Orders.Live(id); live {
				env.Orders.Expire(id, "immediate-or-cancel remainder")
			}
		}
	}
	env.Filler.Execute(order.ID, qty, FillOpts{Immediate: true}, done)
}
