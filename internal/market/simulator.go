package market

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/benbjohnson/clock"

	"github.com/alanyoungcy/execsim/internal/domain"
)

const (
	defaultDepth     = 5
	defaultLevelSize = 1000.0
	defaultTickSize  = 0.01
)

// Simulator moves every symbol's book one step per market tick: a relative
// random walk of the mid, the configured spread kept on the tick grid,
// jittered level sizes and an occasional synthetic print.
type Simulator struct {
	store  *BookStore
	params domain.MarketParams
	specs  map[string]domain.SymbolSpec
	order  []string
	lps    *LiquidityProviderSet
	rng    *Rand
	clk    clock.Clock
	logger *slog.Logger
}

// NewSimulator creates a market Simulator writing into store.
func NewSimulator(
	store *BookStore,
	params domain.MarketParams,
	lps *LiquidityProviderSet,
	rng *Rand,
	clk clock.Clock,
	logger *slog.Logger,
) *Simulator {
	specs := make(map[string]domain.SymbolSpec, len(params.Symbols))
	order := make([]string, 0, len(params.Symbols))
	for _, s := range params.Symbols {
		if s.TickSize <= 0 {
			s.TickSize = defaultTickSize
		}
		if s.Depth <= 0 {
			s.Depth = defaultDepth
		}
		if s.LevelSize <= 0 {
			s.LevelSize = defaultLevelSize
		}
		if _, dup := specs[s.Symbol]; !dup {
			order = append(order, s.Symbol)
		}
		specs[s.Symbol] = s
	}
	return &Simulator{
		store:  store,
		params: params,
		specs:  specs,
		order:  order,
		lps:    lps,
		rng:    rng,
		clk:    clk,
		logger: logger.With(slog.String("component", "market_simulator")),
	}
}

// Seed stores an initial book for every configured symbol.
func (m *Simulator) Seed() error {
	for _, sym := range m.order {
		spec := m.specs[sym]
		if spec.InitialPrice <= 0 {
			return fmt.Errorf("market: seed %s: initial price must be positive: %w", sym, domain.ErrValidation)
		}
		snap := m.build(spec, spec.InitialPrice, SpreadTicks(spec.Spread, spec.TickSize), nil, 0)
		if err := m.store.Put(snap); err != nil {
			return fmt.Errorf("market: seed %s: %w", sym, err)
		}
		m.logger.Debug("book seeded",
			slog.String("symbol", sym),
			slog.Float64("best_bid", snap.BestBid),
			slog.Float64("best_ask", snap.BestAsk),
		)
	}
	return nil
}

// Tick advances every symbol by one step and returns the stored snapshots.
// A symbol whose next snapshot cannot be stored keeps its previous book.
func (m *Simulator) Tick() []domain.OrderBookSnapshot {
	out := make([]domain.OrderBookSnapshot, 0, len(m.order))
	for _, sym := range m.order {
		prev, ok := m.store.Get(sym)
		if !ok {
			continue
		}
		spec := m.specs[sym]

		delta := m.rng.Symmetric() * spec.Volatility
		mid := prev.MidPrice * (1 + delta)

		var trade *domain.Print
		if m.params.TradeProbability > 0 && m.rng.Float64() < m.params.TradeProbability {
			trade = &domain.Print{} // priced once the new touch is known
		} else {
			trade = prev.LastTrade
		}

		// The tick keeps the book's current spread, including any narrowing
		// a liquidity provider left on the previous snapshot.
		spreadTicks := SpreadTicks(spec.Spread, spec.TickSize)
		if prev.Spread > 0 {
			spreadTicks = SpreadTicks(prev.Spread, spec.TickSize)
		}
		next := m.build(spec, mid, spreadTicks, trade, prev.Sequence+1)
		if err := m.store.Put(next); err != nil {
			m.logger.Warn("market tick rejected",
				slog.String("symbol", sym),
				slog.String("error", err.Error()),
			)
			continue
		}
		out = append(out, next)
	}
	return out
}

// build derives a full snapshot spreadTicks wide around mid. A non-nil
// zero-valued trade is filled in as a fresh trade at the new touch.
func (m *Simulator) build(spec domain.SymbolSpec, mid float64, spreadTicks int, trade *domain.Print, seq uint64) domain.OrderBookSnapshot {
	tick := spec.TickSize
	half := float64(spreadTicks) * tick / 2

	bid := RoundToTick(mid-half, tick)
	if bid < tick {
		bid = tick
	}
	q := Quote{Bid: bid, Ask: OffsetTicks(bid, tick, spreadTicks)}
	q = m.lps.Apply(spec.Symbol, (q.Bid+q.Ask)/2, tick, q)

	now := m.clk.Now()
	snap := domain.OrderBookSnapshot{
		Symbol:    spec.Symbol,
		Sequence:  seq,
		Timestamp: now,
		TickSize:  tick,
		BestBid:   q.Bid,
		BestAsk:   q.Ask,
		Bids:      make([]domain.BookLevel, 0, spec.Depth),
		Asks:      make([]domain.BookLevel, 0, spec.Depth),
	}
	snap.Spread = RoundToTick(q.Ask-q.Bid, tick)
	snap.MidPrice = (q.Bid + q.Ask) / 2

	for i := 0; i < spec.Depth; i++ {
		if price := OffsetTicks(q.Bid, tick, -i); price > 0 {
			snap.Bids = append(snap.Bids, domain.BookLevel{
				Price:  price,
				Size:   m.levelSize(spec),
				Orders: 1 + m.rng.IntN(10),
			})
		}
		snap.Asks = append(snap.Asks, domain.BookLevel{
			Price:  OffsetTicks(q.Ask, tick, i),
			Size:   m.levelSize(spec),
			Orders: 1 + m.rng.IntN(10),
		})
	}
	snap.Bids[0].Size += q.BidExtra
	snap.Asks[0].Size += q.AskExtra

	for _, l := range snap.Bids {
		snap.BidVolume += l.Size
	}
	for _, l := range snap.Asks {
		snap.AskVolume += l.Size
	}
	snap.TotalVolume = snap.BidVolume + snap.AskVolume
	if snap.TotalVolume > 0 {
		snap.Imbalance = (snap.BidVolume - snap.AskVolume) / snap.TotalVolume
	}

	if trade != nil && trade.Timestamp.IsZero() {
		aggressor := domain.OrderSideBuy
		if m.rng.Float64() < 0.5 {
			aggressor = domain.OrderSideSell
		}
		trade = &domain.Print{
			Price:     snap.TouchPrice(aggressor),
			Size:      math.Max(1, math.Round(spec.LevelSize*0.1*m.rng.Float64())),
			Timestamp: now,
			Aggressor: aggressor,
		}
	}
	snap.LastTrade = trade
	return snap
}

func (m *Simulator) levelSize(spec domain.SymbolSpec) float64 {
	size := spec.LevelSize * (1 + m.rng.Symmetric()*m.params.SizeJitter)
	return math.Max(1, math.Round(size))
}
