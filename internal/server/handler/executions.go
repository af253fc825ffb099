package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// executionLister is the read-only slice of the execution store the handler
// needs.
type executionLister interface {
	ListRecent(ctx context.Context, limit int) ([]domain.HedgeExecution, error)
}

// ExecutionHandler serves hedge execution history.
type ExecutionHandler struct {
	store executionLister
	log   *slog.Logger
}

// NewExecutionHandler creates an ExecutionHandler backed by the given store.
func NewExecutionHandler(store executionLister, logger *slog.Logger) *ExecutionHandler {
	return &ExecutionHandler{
		store: store,
		log:   logger.With(slog.String("handler", "executions")),
	}
}

// ListRecent responds with the most recent hedge executions, newest first.
// GET /api/executions/recent?limit=N
func (h *ExecutionHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusNotImplemented, "execution history is not enabled")
		return
	}

	limit := parseLimit(r)
	execs, err := h.store.ListRecent(r.Context(), limit)
	if err != nil {
		h.log.Error("list executions failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to list executions")
		return
	}
	if execs == nil {
		execs = []domain.HedgeExecution{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"executions": execs,
		"count":      len(execs),
	})
}
