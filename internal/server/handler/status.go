package handler

import (
	"net/http"

	"github.com/alanyoungcy/marketsync/internal/domain"
)

// RunReporter exposes the outcome of the latest refresh run.
type RunReporter interface {
	LastRun() (domain.RunSummary, bool)
}

// StatusHandler serves the process mode and the latest run summary.
type StatusHandler struct {
	mode string
	runs RunReporter
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode string, runs RunReporter) *StatusHandler {
	return &StatusHandler{mode: mode, runs: runs}
}

// GetStatus responds with the mode and, once a run finished, its summary.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"mode": h.mode}
	if run, ok := h.runs.LastRun(); ok {
		body["last_run"] = run
	}
	writeJSON(w, http.StatusOK, body)
}
