package executor

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/alanyoungcy/execsim/internal/domain"
)

const defaultMaxObservedVolume = 1000

// POV trades a fixed share of a sampled market volume every interval until
// the order is done.
type POV struct{}

func (POV) Name() domain.Algorithm { return domain.AlgoPOV }

func (POV) Prepare(order *domain.TradeOrder, d domain.AlgoDefaults) error {
	p := &order.Params
	if p.ParticipationRate == 0 {
		p.ParticipationRate = d.POVParticipation
	}
	if p.Interval == 0 {
		p.Interval = d.POVInterval
	}
	if p.ParticipationRate <= 0 || p.ParticipationRate > 1 {
		return validationError(domain.AlgoPOV, "participation rate must be in (0, 1], got %v", p.ParticipationRate)
	}
	if p.Interval <= 0 {
		return validationError(domain.AlgoPOV, "interval must be positive")
	}
	return rejectImmediate(domain.AlgoPOV, order)
}

func (a POV) Start(_ context.Context, env *Env, order domain.TradeOrder) {
	a.schedule(env, order, 0)
}

func (a POV) schedule(env *Env, order domain.TradeOrder, after time.Duration) {
	env.Sched.After(after, "pov:"+order.ID, guard(env.Orders, order.ID, func(ctx context.Context) {
		a.step(ctx, env, order)
	}))
}

func (a POV) step(ctx context.Context, env *Env, order domain.TradeOrder) {
	if ctx.Err() != nil {
		return
	}
	o, live := env.Orders.Live(order.ID)
	if !live {
		return
	}

	if available := o.Remaining - env.Filler.InFlight(o.ID); available > 1e-9 {
		maxVol := env.Defaults.POVMaxObservedVol
		if maxVol <= 0 {
			maxVol = defaultMaxObservedVolume
		}
		observed := env.Rand.Float64() * maxVol
		slice := math.Min(available, observed*o.Params.ParticipationRate)
		if slice > 1e-9 {
			env.Logger.DebugContext(ctx, "executor: pov slice",
				slog.String("order_id", o.ID),
				slog.Float64("observed_volume", observed),
				slog.Float64("quantity", slice),
			)
			env.Filler.Execute(o.ID, slice, FillOpts{}, nil)
		}
	}
	a.schedule(env, order, o.Params.Interval)
}
