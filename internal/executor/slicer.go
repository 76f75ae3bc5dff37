package executor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/alanyoungcy/execsim/internal/domain"
)

// slicePlan splits an order into count slices of size, the last absorbing
// whatever is left. delay returns the wait after slice k.
type slicePlan struct {
	algo  domain.Algorithm
	count int
	size  float64
	delay func(k int) time.Duration
	retry time.Duration // wait before re-trying a deferred final slice
}

// sliceSize returns the whole-unit share of quantity per slice, or the
// exact fraction when quantity is smaller than count.
func sliceSize(quantity float64, count int) float64 {
	size := math.Floor(quantity / float64(count))
	if size <= 0 {
		size = quantity / float64(count)
	}
	return size
}

// run executes slice k of the plan and schedules the next one. Nothing is
// scheduled once the order is no longer live or the run is over.
func (p slicePlan) run(ctx context.Context, env *Env, id string, k int) {
	if ctx.Err() != nil {
		return
	}
	o, live := env.Orders.Live(id)
	if !live {
		return
	}

	available := o.Remaining - env.Filler.InFlight(id)
	last := k >= p.count-1
	qty := p.size
	if last || qty > available {
		qty = available
	}

	if qty > 1e-9 {
		env.Logger.DebugContext(ctx, "executor: slice",
			slog.String("order_id", id),
			slog.String("algorithm", string(p.algo)),
			slog.Int("slice", k+1),
			slog.Int("of", p.count),
			slog.Float64("quantity", qty),
		)
		var done DoneFunc
		if last {
			done = func(ctx context.Context, out Outcome) {
				if out.Deferred {
					p.schedule(env, id, k, p.retry)
				}
			}
		}
		env.Filler.Execute(id, qty, FillOpts{}, done)
	}

	if !last {
		p.schedule(env, id, k+1, p.delay(k))
	}
}

func (p slicePlan) schedule(env *Env, id string, k int, after time.Duration) {
	name := fmt.Sprintf("%s:%s:%d", p.algo, id, k)
	env.Sched.After(after, name, guard(env.Orders, id, func(ctx context.Context) {
		p.run(ctx, env, id, k)
	}))
}
