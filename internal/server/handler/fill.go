package handler

import (
	"net/http"

	"github.com/alanyoungcy/execsim/internal/domain"
)

// FillService exposes the fill history.
type FillService interface {
	Fills() []domain.ExecutionResult
}

// FillHandler serves the session's fills.
type FillHandler struct {
	fills FillService
}

// NewFillHandler creates a FillHandler.
func NewFillHandler(fills FillService) *FillHandler {
	return &FillHandler{fills: fills}
}

// fillView drops the book captured at fill time, which is served by the
// books endpoint.
type fillView struct {
	domain.ExecutionResult
	Book *domain.OrderBookSnapshot `json:"book,omitempty"`
}

type listFillsResponse struct {
	Fills []fillView `json:"fills"`
	Total int        `json:"total"`
}

// ListFills returns fills in execution order, optionally for one symbol or
// order.
// GET /api/fills?symbol=TEST&order_id=...&limit=50&offset=0
func (h *FillHandler) ListFills(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := r.URL.Query()
	symbol := q.Get("symbol")
	orderID := q.Get("order_id")

	views := []fillView{}
	for _, f := range h.fills.Fills() {
		if symbol != "" && f.Symbol != symbol {
			continue
		}
		if orderID != "" && f.OrderID != orderID {
			continue
		}
		views = append(views, fillView{ExecutionResult: f})
	}

	writeJSON(w, http.StatusOK, listFillsResponse{
		Fills: page(views, opts),
		Total: len(views),
	})
}
