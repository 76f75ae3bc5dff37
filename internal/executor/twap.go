package executor

import (
	"context"
	"time"

	"github.com/alanyoungcy/execsim/internal/domain"
)

// TWAP splits an order into equal slices spread evenly over a duration.
// The first slice goes out at once; the last absorbs the rounding
// remainder.
type TWAP struct{}

func (TWAP) Name() domain.Algorithm { return domain.AlgoTWAP }

func (TWAP) Prepare(order *domain.TradeOrder, d domain.AlgoDefaults) error {
	if order.Params.Duration == 0 {
		order.Params.Duration = d.TWAPDuration
	}
	if order.Params.Slices == 0 {
		order.Params.Slices = d.TWAPSlices
	}
	if order.Params.Duration <= 0 {
		return validationError(domain.AlgoTWAP, "duration must be positive")
	}
	if order.Params.Slices <= 0 {
		return validationError(domain.AlgoTWAP, "slices must be positive")
	}
	if order.Params.Duration/time.Duration(order.Params.Slices) <= 0 {
		return validationError(domain.AlgoTWAP, "duration %s too short for %d slices", order.Params.Duration, order.Params.Slices)
	}
	return rejectImmediate(domain.AlgoTWAP, order)
}

func (TWAP) Start(_ context.Context, env *Env, order domain.TradeOrder) {
	interval := order.Params.Duration / time.Duration(order.Params.Slices)
	plan := slicePlan{
		algo:  domain.AlgoTWAP,
		count: order.Params.Slices,
		size:  sliceSize(order.Quantity, order.Params.Slices),
		delay: func(int) time.Duration { return interval },
		retry: interval,
	}
	plan.schedule(env, order.ID, 0, 0)
}
