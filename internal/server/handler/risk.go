package handler

import (
	"net/http"

	"github.com/alanyoungcy/execsim/internal/domain"
)

// RiskService exposes raised risk events.
type RiskService interface {
	RiskEvents() []domain.RiskEvent
}

// RiskHandler serves risk events.
type RiskHandler struct {
	risk RiskService
}

// NewRiskHandler creates a RiskHandler.
func NewRiskHandler(risk RiskService) *RiskHandler {
	return &RiskHandler{risk: risk}
}

// ListEvents returns every risk event raised this session.
// GET /api/risk/events
func (h *RiskHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events := h.risk.RiskEvents()
	if events == nil {
		events = []domain.RiskEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}
