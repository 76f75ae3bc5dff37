package market

import (
	"io"
	"log/slog"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/execsim/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMarket(t *testing.T, seed uint64, params domain.MarketParams, lps *LiquidityProviderSet) (*Simulator, *BookStore) {
	t.Helper()
	store := NewBookStore()
	m := NewSimulator(store, params, lps, NewRand(seed), clock.NewMock(), discardLogger())
	require.NoError(t, m.Seed())
	return m, store
}

func TestTickHelpers(t *testing.T) {
	assert.Equal(t, 100.99, RoundToTick(100.9901, 0.01))
	assert.Equal(t, 101.0, RoundToTick(100.995, 0.01))
	assert.Equal(t, 100.99, FloorToTick(100.999, 0.01))
	assert.Equal(t, 101.0, OffsetTicks(100.99, 0.01, 1))
	assert.Equal(t, 100.97, OffsetTicks(100.99, 0.01, -2))
	assert.True(t, IsTickMultiple(101.25, 0.05))
	assert.False(t, IsTickMultiple(101.26, 0.05))
	assert.Equal(t, 1, SpreadTicks(0.001, 0.01))
	assert.Equal(t, 3, SpreadTicks(0.03, 0.01))
}

func TestSeedPlacesTouchAroundMid(t *testing.T) {
	_, store := newTestMarket(t, 1, domain.MarketParams{
		Symbols: []domain.SymbolSpec{{Symbol: "TEST", InitialPrice: 100.995, Spread: 0.01, TickSize: 0.01}},
	}, nil)

	snap, ok := store.Get("TEST")
	require.True(t, ok)
	assert.Equal(t, 100.99, snap.BestBid)
	assert.Equal(t, 101.00, snap.BestAsk)
	assert.Equal(t, 0.01, snap.Spread)
	assert.Len(t, snap.Bids, defaultDepth)
	assert.Len(t, snap.Asks, defaultDepth)
	assert.Equal(t, snap.BidVolume+snap.AskVolume, snap.TotalVolume)
}

func TestTicksKeepBookValid(t *testing.T) {
	params := domain.MarketParams{
		Symbols: []domain.SymbolSpec{
			{Symbol: "AAA", InitialPrice: 50, Spread: 0.02, TickSize: 0.01, Volatility: 0.01, Depth: 4, LevelSize: 500},
			{Symbol: "BBB", InitialPrice: 0.05, Spread: 0.01, TickSize: 0.01, Volatility: 0.2},
		},
		TradeProbability: 0.5,
		SizeJitter:       0.5,
	}
	m, store := newTestMarket(t, 42, params, nil)

	for i := 0; i < 2000; i++ {
		for _, snap := range m.Tick() {
			require.Less(t, snap.BestBid, snap.BestAsk, "tick %d %s", i, snap.Symbol)
			require.True(t, IsTickMultiple(snap.BestBid, snap.TickSize))
			require.True(t, IsTickMultiple(snap.BestAsk, snap.TickSize))
			require.GreaterOrEqual(t, snap.Imbalance, -1.0)
			require.LessOrEqual(t, snap.Imbalance, 1.0)
			for j := 1; j < len(snap.Bids); j++ {
				require.Less(t, snap.Bids[j].Price, snap.Bids[j-1].Price)
			}
			for j := 1; j < len(snap.Asks); j++ {
				require.Greater(t, snap.Asks[j].Price, snap.Asks[j-1].Price)
			}
			if snap.LastTrade != nil {
				require.True(t, IsTickMultiple(snap.LastTrade.Price, snap.TickSize))
			}
		}
	}

	snap, _ := store.Get("AAA")
	assert.Equal(t, uint64(2000), snap.Sequence)
}

func TestZeroVolatilityHoldsTouch(t *testing.T) {
	m, store := newTestMarket(t, 7, domain.MarketParams{
		Symbols: []domain.SymbolSpec{{Symbol: "TEST", InitialPrice: 100.995, Spread: 0.01, TickSize: 0.01}},
	}, nil)

	for i := 0; i < 50; i++ {
		m.Tick()
	}
	snap, _ := store.Get("TEST")
	assert.Equal(t, 100.99, snap.BestBid)
	assert.Equal(t, 101.00, snap.BestAsk)
}

func TestTickKeepsExistingSpread(t *testing.T) {
	m, store := newTestMarket(t, 7, domain.MarketParams{
		Symbols: []domain.SymbolSpec{{Symbol: "TEST", InitialPrice: 100.995, Spread: 0.01, TickSize: 0.01}},
	}, nil)

	wide, ok := store.Get("TEST")
	require.True(t, ok)
	wide.BestBid, wide.BestAsk = 100.97, 101.02
	wide.Bids[0].Price, wide.Asks[0].Price = 100.97, 101.02
	wide.Spread = 0.05
	require.NoError(t, store.Put(wide))

	for i := 0; i < 10; i++ {
		m.Tick()
	}
	snap, _ := store.Get("TEST")
	assert.InDelta(t, 0.05, snap.Spread, 1e-9)
	assert.Equal(t, 100.97, snap.BestBid)
	assert.Equal(t, 101.02, snap.BestAsk)
}

func TestSameSeedSameMarket(t *testing.T) {
	params := domain.MarketParams{
		Symbols:          []domain.SymbolSpec{{Symbol: "X", InitialPrice: 20, Spread: 0.01, TickSize: 0.01, Volatility: 0.005}},
		TradeProbability: 0.3,
		SizeJitter:       0.2,
	}
	a, sa := newTestMarket(t, 99, params, nil)
	b, sb := newTestMarket(t, 99, params, nil)
	for i := 0; i < 100; i++ {
		a.Tick()
		b.Tick()
	}
	x, _ := sa.Get("X")
	y, _ := sb.Get("X")
	assert.Equal(t, x.BestBid, y.BestBid)
	assert.Equal(t, x.Bids, y.Bids)
}

func TestBookStoreRejectsCrossedBook(t *testing.T) {
	store := NewBookStore()
	err := store.Put(domain.OrderBookSnapshot{Symbol: "X", BestBid: 10, BestAsk: 10, TickSize: 0.01})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.False(t, store.Has("X"))

	err = store.Put(domain.OrderBookSnapshot{Symbol: "X", BestBid: 10.005, BestAsk: 10.01, TickSize: 0.01})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestQuotingProviderImprovesTouch(t *testing.T) {
	lps := NewLiquidityProviderSet()
	lps.Register("X", NewQuotingProvider(domain.LiquidityProviderSpec{
		Symbol:        "X",
		HalfSpreadBps: 10,
		Size:          250,
	}))

	_, store := newTestMarket(t, 3, domain.MarketParams{
		Symbols: []domain.SymbolSpec{{Symbol: "X", InitialPrice: 100, Spread: 0.5, TickSize: 0.01, LevelSize: 100}},
	}, lps)

	snap, _ := store.Get("X")
	assert.Equal(t, 99.90, snap.BestBid)
	assert.Equal(t, 100.10, snap.BestAsk)
	assert.GreaterOrEqual(t, snap.Bids[0].Size, 250.0)
}

func TestProviderCannotCrossBook(t *testing.T) {
	lps := NewLiquidityProviderSet()
	lps.Register("X", crossingProvider{})

	q := lps.Apply("X", 100, 0.01, Quote{Bid: 99.99, Ask: 100.01})
	assert.Equal(t, Quote{Bid: 99.99, Ask: 100.01}, q)
}

type crossingProvider struct{}

func (crossingProvider) Name() string { return "crossing" }
func (crossingProvider) Refresh(_ string, _, _ float64, q Quote) Quote {
	q.Bid = q.Ask + 1
	return q
}
