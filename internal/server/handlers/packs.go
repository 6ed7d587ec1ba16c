package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fixl-developer/tma-automation/pkg/types"
)

// ListPacks returns all packs in registration order.
func (h *Handlers) ListPacks(w http.ResponseWriter, r *http.Request) {
	packs, err := h.store.ListPacks(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to list packs", err)
		return
	}
	if packs == nil {
		packs = []types.Pack{}
	}
	_ = json.NewEncoder(w).Encode(packs)
}

// PutPack creates or updates a pack. Health is derived and never accepted
// from the client.
func (h *Handlers) PutPack(w http.ResponseWriter, r *http.Request) {
	var pack types.Pack
	if err := json.NewDecoder(r.Body).Decode(&pack); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", err)
		return
	}
	if pack.ID == "" || pack.Name == "" {
		h.writeError(w, http.StatusBadRequest, "pack id and name are required", nil)
		return
	}
	if pack.Status == "" {
		pack.Status = types.PackDraft
	}

	now := time.Now()
	if existing, err := h.store.GetPack(r.Context(), pack.ID); err == nil {
		pack.Health = existing.Health
		pack.RuleIDs = existing.RuleIDs
		pack.CreatedAt = existing.CreatedAt
	} else {
		pack.Health = types.HealthOK
		pack.RuleIDs = nil
		pack.CreatedAt = now
	}
	pack.UpdatedAt = now

	if err := h.store.PutPack(r.Context(), pack); err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to store pack", err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(pack)
}

// GetPack returns a single pack.
func (h *Handlers) GetPack(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "packID")
	pack, err := h.store.GetPack(r.Context(), id)
	if err != nil {
		h.notFoundOr(w, "pack", err)
		return
	}
	_ = json.NewEncoder(w).Encode(pack)
}

// DeprecatePack soft-deletes a pack. Its rules stop dispatching but the
// execution history stays queryable.
func (h *Handlers) DeprecatePack(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "packID")
	if err := h.store.DeprecatePack(r.Context(), id); err != nil {
		h.notFoundOr(w, "pack", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PackHealth grades the pack from its rules' trailing executions on demand.
func (h *Handlers) PackHealth(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "packID")
	pack, err := h.store.GetPack(r.Context(), id)
	if err != nil {
		h.notFoundOr(w, "pack", err)
		return
	}
	grade, err := h.health.PackHealth(r.Context(), *pack)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to compute pack health", err)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"packId": pack.ID,
		"health": grade,
	})
}
