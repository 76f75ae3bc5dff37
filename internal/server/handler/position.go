package handler

import (
	"log/slog"
	"net/http"
	"sort"

	"github.com/alanyoungcy/execsim/internal/domain"
)

// PositionService defines the methods that the position handler requires.
type PositionService interface {
	Positions() map[string]float64
	PnL() float64
	Book(symbol string) (domain.OrderBookSnapshot, error)
}

// PositionHandler serves position-related HTTP endpoints.
type PositionHandler struct {
	positions PositionService
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler with the given service and logger.
func NewPositionHandler(positions PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		logger:    logHandler(logger, "positions"),
	}
}

type positionView struct {
	Symbol   string  `json:"symbol"`
	Quantity float64 `json:"quantity"`
	MidPrice float64 `json:"mid_price"`
	Value    float64 `json:"market_value"`
}

// listPositionsResponse wraps the list positions response.
type listPositionsResponse struct {
	Positions []positionView `json:"positions"`
	PnL       float64        `json:"pnl"`
}

// ListPositions returns every non-flat position marked at the current mid.
// GET /api/positions
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	held := h.positions.Positions()
	symbols := make([]string, 0, len(held))
	for sym, qty := range held {
		if qty != 0 {
			symbols = append(symbols, sym)
		}
	}
	sort.Strings(symbols)

	views := make([]positionView, 0, len(symbols))
	for _, sym := range symbols {
		v := positionView{Symbol: sym, Quantity: held[sym]}
		if snap, err := h.positions.Book(sym); err == nil {
			v.MidPrice = snap.MidPrice
			v.Value = v.Quantity * snap.MidPrice
		}
		views = append(views, v)
	}

	writeJSON(w, http.StatusOK, listPositionsResponse{
		Positions: views,
		PnL:       h.positions.PnL(),
	})
}
