package market

import (
	"math"
	"sync"

	"github.com/alanyoungcy/execsim/internal/domain"
)

// Quote is the candidate top of book a market tick is about to store.
// BidExtra and AskExtra are sizes added at the touch by providers.
type Quote struct {
	Bid      float64
	Ask      float64
	BidExtra float64
	AskExtra float64
}

// LiquidityProvider may adjust a symbol's candidate quote on each tick.
type LiquidityProvider interface {
	Name() string
	Refresh(symbol string, mid, tick float64, q Quote) Quote
}

// LiquidityProviderSet holds the providers registered per symbol.
type LiquidityProviderSet struct {
	mu        sync.RWMutex
	providers map[string][]LiquidityProvider
}

// NewLiquidityProviderSet creates an empty set.
func NewLiquidityProviderSet() *LiquidityProviderSet {
	return &LiquidityProviderSet{providers: make(map[string][]LiquidityProvider)}
}

// Register adds lp to symbol.
func (s *LiquidityProviderSet) Register(symbol string, lp LiquidityProvider) {
	s.mu.Lock()
	s.providers[symbol] = append(s.providers[symbol], lp)
	s.mu.Unlock()
}

// Len returns the number of registered providers.
func (s *LiquidityProviderSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, lps := range s.providers {
		n += len(lps)
	}
	return n
}

// Apply runs every provider for symbol over q. An adjustment that would
// cross the book is discarded.
func (s *LiquidityProviderSet) Apply(symbol string, mid, tick float64, q Quote) Quote {
	if s == nil {
		return q
	}
	s.mu.RLock()
	lps := s.providers[symbol]
	s.mu.RUnlock()

	for _, lp := range lps {
		next := lp.Refresh(symbol, mid, tick, q)
		if next.Bid > 0 && next.Bid < next.Ask {
			q = next
		}
	}
	return q
}

// QuotingProvider is a market maker that quotes mid ± HalfSpreadBps and only
// requotes once the mid has moved by more than RequoteThreshold. Its quote
// improves the touch when it is inside the book and adds size when it
// joins the touch.
type QuotingProvider struct {
	spec domain.LiquidityProviderSpec

	mu      sync.Mutex
	quoted  bool
	lastMid float64
	bid     float64
	ask     float64
}

// NewQuotingProvider creates a QuotingProvider from spec.
func NewQuotingProvider(spec domain.LiquidityProviderSpec) *QuotingProvider {
	if spec.Name == "" {
		spec.Name = "quoting_provider"
	}
	if spec.HalfSpreadBps <= 0 {
		spec.HalfSpreadBps = 50
	}
	if spec.Size <= 0 {
		spec.Size = 10
	}
	if spec.RequoteThreshold <= 0 {
		spec.RequoteThreshold = 0.005
	}
	return &QuotingProvider{spec: spec}
}

// Name returns the provider name.
func (p *QuotingProvider) Name() string { return p.spec.Name }

// Refresh requotes if needed and merges the provider quote into q.
func (p *QuotingProvider) Refresh(_ string, mid, tick float64, q Quote) Quote {
	if mid <= 0 {
		return q
	}

	p.mu.Lock()
	if !p.quoted || math.Abs(mid-p.lastMid)/p.lastMid > p.spec.RequoteThreshold {
		half := p.spec.HalfSpreadBps / 10_000
		p.bid = RoundToTick(mid*(1-half), tick)
		p.ask = RoundToTick(mid*(1+half), tick)
		p.lastMid = mid
		p.quoted = true
	}
	bid, ask := p.bid, p.ask
	p.mu.Unlock()

	switch {
	case bid > q.Bid && bid < q.Ask:
		q.Bid = bid
		q.BidExtra = p.spec.Size
	case bid == q.Bid:
		q.BidExtra += p.spec.Size
	}
	switch {
	case ask < q.Ask && ask > q.Bid:
		q.Ask = ask
		q.AskExtra = p.spec.Size
	case ask == q.Ask:
		q.AskExtra += p.spec.Size
	}
	return q
}
