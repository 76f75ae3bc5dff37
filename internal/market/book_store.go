// Package market holds the synthetic order books and the model that moves
// them on every market tick.
package market

import (
	"fmt"
	"sort"
	"sync"

	"github.com/alanyoungcy/execsim/internal/domain"
)

// BookStore holds one snapshot per symbol. A snapshot is replaced as a
// whole on update so readers never observe a partial book.
type BookStore struct {
	mu    sync.RWMutex
	books map[string]domain.OrderBookSnapshot
}

// NewBookStore creates an empty BookStore.
func NewBookStore() *BookStore {
	return &BookStore{books: make(map[string]domain.OrderBookSnapshot)}
}

// Put replaces the snapshot for snap.Symbol. Crossed books and off-grid
// touch prices are refused.
func (s *BookStore) Put(snap domain.OrderBookSnapshot) error {
	if snap.Symbol == "" {
		return fmt.Errorf("book_store: put: empty symbol: %w", domain.ErrValidation)
	}
	if snap.Crossed() {
		return fmt.Errorf("book_store: put %s: crossed book bid=%v ask=%v: %w",
			snap.Symbol, snap.BestBid, snap.BestAsk, domain.ErrValidation)
	}
	if !IsTickMultiple(snap.BestBid, snap.TickSize) || !IsTickMultiple(snap.BestAsk, snap.TickSize) {
		return fmt.Errorf("book_store: put %s: touch off tick grid: %w", snap.Symbol, domain.ErrValidation)
	}

	s.mu.Lock()
	s.books[snap.Symbol] = snap
	s.mu.Unlock()
	return nil
}

// Get returns the current snapshot for symbol.
func (s *BookStore) Get(symbol string) (domain.OrderBookSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.books[symbol]
	return snap, ok
}

// Has reports whether symbol has a book.
func (s *BookStore) Has(symbol string) bool {
	_, ok := s.Get(symbol)
	return ok
}

// Remove drops the book for symbol.
func (s *BookStore) Remove(symbol string) {
	s.mu.Lock()
	delete(s.books, symbol)
	s.mu.Unlock()
}

// Symbols returns the known symbols in sorted order.
func (s *BookStore) Symbols() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.books))
	for sym := range s.books {
		out = append(out, sym)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Mids returns the current mid price of every symbol.
func (s *BookStore) Mids() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]float64, len(s.books))
	for sym, snap := range s.books {
		out[sym] = snap.MidPrice
	}
	return out
}
