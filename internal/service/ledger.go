package service

import (
	"math"
	"sync"

	"github.com/alanyoungcy/execsim/internal/domain"
)

// Ledger is the append-only fill history. Positions and cash are derived
// from it under the same lock, so they always equal a replay of the fills
// recorded so far.
type Ledger struct {
	mu        sync.RWMutex
	fills     []domain.ExecutionResult
	positions map[string]float64
	cash      float64 // signed trade cash flow net of explicit fees
}

// NewLedger creates an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{positions: make(map[string]float64)}
}

// Record appends fill and applies it to positions and cash.
func (l *Ledger) Record(fill domain.ExecutionResult) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.fills = append(l.fills, fill)
	l.positions[fill.Symbol] += fill.SignedQuantity()
	l.cash -= fill.SignedQuantity()*fill.Price + fill.Costs.TotalExplicit
}

// Len returns the number of fills.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.fills)
}

// Fills returns a copy of the fill history.
func (l *Ledger) Fills() []domain.ExecutionResult {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.ExecutionResult, len(l.fills))
	copy(out, l.fills)
	return out
}

// FillsFor returns the fills of one order.
func (l *Ledger) FillsFor(orderID string) []domain.ExecutionResult {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []domain.ExecutionResult
	for _, f := range l.fills {
		if f.OrderID == orderID {
			out = append(out, f)
		}
	}
	return out
}

// Positions returns a point-in-time copy of the position ledger.
func (l *Ledger) Positions() map[string]float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]float64, len(l.positions))
	for sym, qty := range l.positions {
		out[sym] = qty
	}
	return out
}

// Position returns the signed position in symbol.
func (l *Ledger) Position(symbol string) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.positions[symbol]
}

// PnL marks every position to mids and adds the trade cash flow.
func (l *Ledger) PnL(mids map[string]float64) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pnl := l.cash
	for sym, qty := range l.positions {
		pnl += qty * mids[sym]
	}
	return pnl
}

// GrossExposure returns Σ|position|·mid.
func (l *Ledger) GrossExposure(mids map[string]float64) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var gross float64
	for sym, qty := range l.positions {
		gross += math.Abs(qty) * mids[sym]
	}
	return gross
}

// ReplayPositions rebuilds positions from a fill history.
func ReplayPositions(fills []domain.ExecutionResult) map[string]float64 {
	out := make(map[string]float64)
	for _, f := range fills {
		out[f.Symbol] += f.SignedQuantity()
	}
	return out
}
