package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/execsim/internal/domain"
)

// SimulationService controls the running simulation.
type SimulationService interface {
	Status() domain.SimStatus
	PnL() float64
	Stop(ctx context.Context) (domain.ExecutionReport, error)
}

// SimulationHandler serves the simulator status and the stop control.
type SimulationHandler struct {
	Mode string
	sim  SimulationService
	log  *slog.Logger
}

// NewSimulationHandler creates a SimulationHandler for the given run mode.
func NewSimulationHandler(mode string, sim SimulationService, logger *slog.Logger) *SimulationHandler {
	return &SimulationHandler{Mode: mode, sim: sim, log: logHandler(logger, "simulation")}
}

// GetStatus responds with the run mode and simulator state.
// GET /api/status
func (h *SimulationHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":   h.Mode,
		"status": h.sim.Status(),
		"pnl":    h.sim.PnL(),
	})
}

// Stop ends the simulation and returns its report. Stopping twice returns
// the same report.
// POST /api/simulation/stop
func (h *SimulationHandler) Stop(w http.ResponseWriter, r *http.Request) {
	report, err := h.sim.Stop(r.Context())
	if err != nil {
		writeDomainError(w, r, h.log, "failed to stop simulation", err)
		return
	}
	h.log.InfoContext(r.Context(), "handler: simulation stopped",
		slog.String("session_id", report.SessionID),
	)
	writeJSON(w, http.StatusOK, report)
}
