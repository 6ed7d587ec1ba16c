package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fixl-developer/tma-automation/pkg/types"
)

const ruleLockTTL = 5 * time.Second

// ListRules returns all rules in pack-then-rule order.
func (h *Handlers) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.store.ListRules(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to list rules", err)
		return
	}
	if rules == nil {
		rules = []types.Rule{}
	}
	_ = json.NewEncoder(w).Encode(rules)
}

// PutRule creates or updates a rule under an advisory lock so dispatch
// never observes a half-updated rule.
func (h *Handlers) PutRule(w http.ResponseWriter, r *http.Request) {
	var rule types.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", err)
		return
	}
	if id := chi.URLParam(r, "ruleID"); id != "" {
		rule.ID = id
	}
	if rule.ID == "" {
		h.writeError(w, http.StatusBadRequest, "rule id is required", nil)
		return
	}
	if rule.Status == "" {
		rule.Status = types.RuleDraft
	}
	if err := rule.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if _, err := h.store.GetPack(r.Context(), rule.PackID); err != nil {
		h.notFoundOr(w, "pack", err)
		return
	}

	lockKey := "rule:" + rule.ID
	ok, err := h.store.AcquireLock(r.Context(), lockKey, ruleLockTTL)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to acquire rule lock", err)
		return
	}
	if !ok {
		h.writeError(w, http.StatusConflict, "rule is being modified", nil)
		return
	}
	defer func() {
		if err := h.store.ReleaseLock(r.Context(), lockKey); err != nil {
			h.logger.Error("failed to release rule lock", "rule", rule.ID, "error", err)
		}
	}()

	now := time.Now()
	if existing, err := h.store.GetRule(r.Context(), rule.ID); err == nil {
		rule.Stats = existing.Stats
		rule.CreatedAt = existing.CreatedAt
	} else {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	if err := h.store.PutRule(r.Context(), rule); err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to store rule", err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(rule)
}

// GetRule returns a single rule.
func (h *Handlers) GetRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "ruleID")
	rule, err := h.store.GetRule(r.Context(), id)
	if err != nil {
		h.notFoundOr(w, "rule", err)
		return
	}
	_ = json.NewEncoder(w).Encode(rule)
}

// DeleteRule removes a rule.
func (h *Handlers) DeleteRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "ruleID")
	if err := h.store.DeleteRule(r.Context(), id); err != nil {
		h.notFoundOr(w, "rule", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListRuleExecutions returns recent executions for a rule, most recent
// first.
func (h *Handlers) ListRuleExecutions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "ruleID")
	limit := queryLimit(r, 50, 500)

	execs, err := h.store.ListExecutions(r.Context(), id, limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to list executions", err)
		return
	}
	if execs == nil {
		execs = []types.Execution{}
	}
	_ = json.NewEncoder(w).Encode(execs)
}

// TestRule runs the full pipeline synchronously against a supplied context
// and returns the resulting execution inline.
func (h *Handlers) TestRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "ruleID")

	var body struct {
		Context map[string]any `json:"context"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", err)
		return
	}

	exec, err := h.dispatcher.TestFire(r.Context(), id, body.Context)
	if err != nil {
		h.notFoundOr(w, "rule", err)
		return
	}
	_ = json.NewEncoder(w).Encode(exec)
}
