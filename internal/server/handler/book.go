package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/execsim/internal/domain"
)

// BookService exposes the simulated order books.
type BookService interface {
	Book(symbol string) (domain.OrderBookSnapshot, error)
}

// BookHandler serves order book snapshots.
type BookHandler struct {
	books  BookService
	logger *slog.Logger
}

// NewBookHandler creates a BookHandler.
func NewBookHandler(books BookService, logger *slog.Logger) *BookHandler {
	return &BookHandler{books: books, logger: logHandler(logger, "books")}
}

// GetBook returns the current snapshot for a symbol. The optional depth
// parameter truncates both sides.
// GET /api/books/{symbol}?depth=5
func (h *BookHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	snap, err := h.books.Book(symbol)
	if err != nil {
		writeDomainError(w, r, h.logger, "failed to get book", err)
		return
	}

	depth, err := queryInt(r.URL.Query(), "depth", 0, 1, 1<<31-1)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if depth > 0 {
		snap.Bids = snap.Bids[:min(depth, len(snap.Bids))]
		snap.Asks = snap.Asks[:min(depth, len(snap.Asks))]
	}

	writeJSON(w, http.StatusOK, snap)
}
