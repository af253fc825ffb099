package handler

import (
	"net/http"

	"github.com/alanyoungcy/hedgebot/internal/engine"
)

// Reporter exposes the engine's runtime counters and connection health.
type Reporter interface {
	Report() engine.EngineReport
}

// StatusHandler serves the engine status snapshot.
type StatusHandler struct {
	mode     string
	reporter Reporter
}

// NewStatusHandler creates a StatusHandler. reporter may be nil when the
// process runs without an engine (archive mode).
func NewStatusHandler(mode string, reporter Reporter) *StatusHandler {
	return &StatusHandler{mode: mode, reporter: reporter}
}

// GetStatus responds with the process mode and, when available, the full
// engine report.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"mode": h.mode,
	}
	if h.reporter != nil {
		body["engine"] = h.reporter.Report()
	}
	writeJSON(w, http.StatusOK, body)
}
