package executor

import (
	"context"
	"time"

	"github.com/alanyoungcy/execsim/internal/domain"
)

// VWAP splits an order into a fixed number of chunks separated by random
// delays. The delays stand in for a volume curve; no historical volume
// profile is used.
type VWAP struct{}

func (VWAP) Name() domain.Algorithm { return domain.AlgoVWAP }

func (VWAP) Prepare(order *domain.TradeOrder, d domain.AlgoDefaults) error {
	p := &order.Params
	if p.Chunks == 0 {
		p.Chunks = d.VWAPChunks
	}
	if p.MinChunkDelay == 0 && p.MaxChunkDelay == 0 {
		p.MinChunkDelay, p.MaxChunkDelay = d.VWAPMinDelay, d.VWAPMaxDelay
	}
	if p.Chunks <= 0 {
		return validationError(domain.AlgoVWAP, "chunks must be positive")
	}
	if p.MinChunkDelay < 0 || p.MaxChunkDelay < p.MinChunkDelay {
		return validationError(domain.AlgoVWAP, "invalid chunk delay range [%s, %s]", p.MinChunkDelay, p.MaxChunkDelay)
	}
	if p.MaxChunkDelay <= 0 {
		return validationError(domain.AlgoVWAP, "max chunk delay must be positive")
	}
	return rejectImmediate(domain.AlgoVWAP, order)
}

func (VWAP) Start(_ context.Context, env *Env, order domain.TradeOrder) {
	lo, hi := order.Params.MinChunkDelay, order.Params.MaxChunkDelay
	plan := slicePlan{
		algo:  domain.AlgoVWAP,
		count: order.Params.Chunks,
		size:  sliceSize(order.Quantity, order.Params.Chunks),
		delay: func(int) time.Duration {
			return lo + time.Duration(env.Rand.Float64()*float64(hi-lo))
		},
		retry: hi,
	}
	plan.schedule(env, order.ID, 0, 0)
}
