package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fixl-developer/tma-automation/internal/dispatch"
	"github.com/fixl-developer/tma-automation/pkg/types"
)

// IngestEvent accepts a domain event into the dispatch queue. Accepted
// events return 202 immediately; matching and execution happen async.
func (h *Handlers) IngestEvent(w http.ResponseWriter, r *http.Request) {
	var ev types.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", err)
		return
	}

	if err := h.dispatcher.Enqueue(ev); err != nil {
		switch {
		case errors.Is(err, dispatch.ErrQueueFull):
			h.writeError(w, http.StatusServiceUnavailable, "dispatch queue full", nil)
		case errors.Is(err, dispatch.ErrDepthExceeded):
			h.writeError(w, http.StatusUnprocessableEntity, "dispatch chain depth exceeded", nil)
		default:
			h.writeError(w, http.StatusBadRequest, err.Error(), nil)
		}
		return
	}

	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
}
