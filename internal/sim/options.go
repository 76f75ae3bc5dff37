package sim

import (
	"log/slog"

	"github.com/benbjohnson/clock"

	"github.com/alanyoungcy/execsim/internal/market"
)

// Option configures a Simulator.
type Option func(*Simulator)

// WithClock drives the simulator from clk. A *clock.Mock puts the
// simulator in virtual time: nothing runs until Advance is called.
func WithClock(clk clock.Clock) Option {
	return func(s *Simulator) { s.clk = clk }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Simulator) { s.logger = logger }
}

// WithObserver adds an event observer.
func WithObserver(o Observer) Option {
	return func(s *Simulator) { s.observers = append(s.observers, o) }
}

// WithLiquidityProvider registers an extra quote hook for symbol on top of
// the configured providers.
func WithLiquidityProvider(symbol string, lp market.LiquidityProvider) Option {
	return func(s *Simulator) {
		s.extraLPs = append(s.extraLPs, symbolLP{symbol: symbol, lp: lp})
	}
}

type symbolLP struct {
	symbol string
	lp     market.LiquidityProvider
}
