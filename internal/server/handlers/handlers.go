// Package handlers implements HTTP request handlers for the automation API.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/fixl-developer/tma-automation/internal/dispatch"
	"github.com/fixl-developer/tma-automation/internal/health"
	"github.com/fixl-developer/tma-automation/internal/store"
	"github.com/fixl-developer/tma-automation/internal/workflow"
)

// Handlers contains all HTTP handler dependencies.
type Handlers struct {
	store      store.Store
	dispatcher *dispatch.Dispatcher
	machine    *workflow.Machine
	health     *health.Aggregator
	logger     *slog.Logger
}

// New creates a new Handlers instance.
func New(st store.Store, d *dispatch.Dispatcher, m *workflow.Machine, h *health.Aggregator) *Handlers {
	return &Handlers{
		store:      st,
		dispatcher: d,
		machine:    m,
		health:     h,
		logger:     slog.Default(),
	}
}

// SetLogger overrides the default logger.
func (h *Handlers) SetLogger(l *slog.Logger) {
	if l != nil {
		h.logger = l
	}
}

// writeError logs the internal error and returns a sanitized JSON error to
// the client.
func (h *Handlers) writeError(w http.ResponseWriter, status int, msg string, err error) {
	if err != nil {
		h.logger.Error(msg, "error", err, "status", status)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// notFoundOr maps store.ErrNotFound to 404 and everything else to 500.
func (h *Handlers) notFoundOr(w http.ResponseWriter, msg string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, msg+" not found", nil)
		return
	}
	h.writeError(w, http.StatusInternalServerError, "failed to load "+msg, err)
}

// queryLimit parses ?limit=N with a default and an upper bound.
func queryLimit(r *http.Request, def, max int) int {
	limit := def
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 && n <= max {
			limit = n
		}
	}
	return limit
}
