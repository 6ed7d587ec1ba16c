package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fixl-developer/tma-automation/internal/store"
	"github.com/fixl-developer/tma-automation/internal/workflow"
	"github.com/fixl-developer/tma-automation/pkg/types"
)

// ListWorkflows returns the latest version of every workflow.
func (h *Handlers) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	wfs, err := h.store.ListWorkflows(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to list workflows", err)
		return
	}
	if wfs == nil {
		wfs = []types.Workflow{}
	}
	_ = json.NewEncoder(w).Encode(wfs)
}

// PutWorkflow stores a new workflow version. Edits never mutate in place:
// the server assigns the next version number itself.
func (h *Handlers) PutWorkflow(w http.ResponseWriter, r *http.Request) {
	var wf types.Workflow
	if err := json.NewDecoder(r.Body).Decode(&wf); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", err)
		return
	}
	if wf.ID == "" {
		h.writeError(w, http.StatusBadRequest, "workflow id is required", nil)
		return
	}
	if wf.Status == "" {
		wf.Status = types.WorkflowDraft
	}
	if wf.Type == "" {
		wf.Type = types.WorkflowGeneric
	}
	if err := wf.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	wf.Version = 1
	if latest, err := h.store.GetWorkflow(r.Context(), wf.ID, 0); err == nil {
		wf.Version = latest.Version + 1
	}
	wf.CreatedAt = time.Now()

	if err := h.store.PutWorkflow(r.Context(), wf); err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to store workflow", err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(wf)
}

// GetWorkflow returns one workflow; ?version=N pins a version, default
// latest.
func (h *Handlers) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "workflowID")
	version := 0
	if q := r.URL.Query().Get("version"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 {
			h.writeError(w, http.StatusBadRequest, "invalid version", nil)
			return
		}
		version = n
	}
	wf, err := h.store.GetWorkflow(r.Context(), id, version)
	if err != nil {
		h.notFoundOr(w, "workflow", err)
		return
	}
	_ = json.NewEncoder(w).Encode(wf)
}

// ListWorkflowExecutions returns recent transition executions for a
// workflow, most recent first.
func (h *Handlers) ListWorkflowExecutions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "workflowID")
	limit := queryLimit(r, 50, 500)

	execs, err := h.store.ListWorkflowExecutions(r.Context(), id, limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to list executions", err)
		return
	}
	if execs == nil {
		execs = []types.Execution{}
	}
	_ = json.NewEncoder(w).Encode(execs)
}

// StartInstance creates a new instance of a workflow, pinned to its latest
// ACTIVE version.
func (h *Handlers) StartInstance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "workflowID")

	var body struct {
		TenantID string `json:"tenantId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", err)
		return
	}
	if body.TenantID == "" {
		h.writeError(w, http.StatusBadRequest, "tenantId is required", nil)
		return
	}

	inst, err := h.machine.StartInstance(r.Context(), id, body.TenantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "workflow not found", nil)
			return
		}
		h.writeError(w, http.StatusUnprocessableEntity, err.Error(), nil)
		return
	}
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(inst)
}

// GetInstance returns a workflow instance.
func (h *Handlers) GetInstance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "instanceID")
	inst, err := h.store.GetInstance(r.Context(), id)
	if err != nil {
		h.notFoundOr(w, "instance", err)
		return
	}
	_ = json.NewEncoder(w).Encode(inst)
}

// AdvanceInstance applies an event to an instance. Invalid transitions
// return 422 with the instance state untouched.
func (h *Handlers) AdvanceInstance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "instanceID")

	var body struct {
		Event string `json:"event"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", err)
		return
	}
	if body.Event == "" {
		h.writeError(w, http.StatusBadRequest, "event is required", nil)
		return
	}

	result, err := h.machine.AdvanceEvent(r.Context(), id, body.Event)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "instance not found", nil)
		return
	case errors.Is(err, workflow.ErrInvalidTransition), errors.Is(err, workflow.ErrTerminalState):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error(), nil)
		return
	case errors.Is(err, store.ErrRevisionConflict):
		h.writeError(w, http.StatusConflict, "concurrent transition, retry", nil)
		return
	default:
		// Transition applied but one of its actions failed; surface both in
		// the same shape as the success response.
		if result != nil {
			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode(struct {
				*workflow.AdvanceResult
				ActionError string `json:"actionError"`
			}{result, err.Error()})
			return
		}
		h.writeError(w, http.StatusInternalServerError, "failed to advance instance", err)
		return
	}

	_ = json.NewEncoder(w).Encode(result)
}
