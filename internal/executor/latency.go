package executor

import (
	"time"

	"github.com/alanyoungcy/execsim/internal/domain"
	"github.com/alanyoungcy/execsim/internal/market"
)

const defaultSpikeMultiplier = 10

// LatencyModel samples the delay between a fill decision and the moment the
// fill is recorded.
type LatencyModel struct {
	params domain.LatencyParams
	rng    *market.Rand
}

// NewLatencyModel creates a LatencyModel drawing from rng.
func NewLatencyModel(params domain.LatencyParams, rng *market.Rand) *LatencyModel {
	if params.SpikeMultiplier <= 0 {
		params.SpikeMultiplier = defaultSpikeMultiplier
	}
	return &LatencyModel{params: params, rng: rng}
}

// Sample returns one latency draw. It is never negative.
func (m *LatencyModel) Sample() time.Duration {
	p := m.params
	var d time.Duration
	switch p.Distribution {
	case domain.LatencyNormal:
		d = p.Mean + time.Duration(m.rng.NormFloat64()*float64(p.StdDev))
	case domain.LatencyExponential:
		d = time.Duration(m.rng.ExpFloat64() * float64(p.Mean))
	case domain.LatencySpike:
		d = p.Mean
		if m.rng.Float64() < p.SpikeProbability {
			d = time.Duration(float64(p.Mean) * p.SpikeMultiplier)
		}
	default:
		d = p.Mean
	}
	if d < 0 {
		return 0
	}
	return d
}
