package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/fixl-developer/tma-automation/pkg/types"
)

// SLAStatus derives the current standing of every configured SLA policy.
func (h *Handlers) SLAStatus(w http.ResponseWriter, r *http.Request) {
	entries, err := h.health.SLAStatuses(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to compute sla status", err)
		return
	}
	if entries == nil {
		entries = []types.SLAStatusEntry{}
	}
	_ = json.NewEncoder(w).Encode(entries)
}
