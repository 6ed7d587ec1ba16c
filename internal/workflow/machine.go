// Package workflow executes multi-step workflows: ordered states with
// guarded transitions, distinct from single-shot rules.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/fixl-developer/tma-automation/internal/action"
	"github.com/fixl-developer/tma-automation/internal/metrics"
	"github.com/fixl-developer/tma-automation/internal/store"
	"github.com/fixl-developer/tma-automation/pkg/types"
)

// ErrInvalidTransition is returned when no guard in the current state
// matches the event. The instance state is left untouched.
var ErrInvalidTransition = errors.New("invalid transition")

// ErrTerminalState is returned when an event reaches an instance whose
// current state is terminal.
var ErrTerminalState = errors.New("instance is in a terminal state")

// AdvanceResult reports the applied transition.
type AdvanceResult struct {
	Instance      types.WorkflowInstance `json:"instance"`
	PreviousState string                 `json:"previousState"`
	ActionResults []types.ActionResult   `json:"actionResults"`
}

// Emitter publishes a state-changed event back into dispatch so STATE
// triggers fire on transitions.
type Emitter func(types.Event) error

// Machine advances workflow instances. Transitions for the same instance
// are serialized through a per-instance lock; different instances run fully
// in parallel.
type Machine struct {
	store    store.Store
	executor *action.Executor
	logger   *slog.Logger
	emit     Emitter

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewMachine creates a workflow machine.
func NewMachine(st store.Store, exec *action.Executor, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		store:    st,
		executor: exec,
		logger:   logger,
		locks:    make(map[string]*sync.Mutex),
	}
}

// SetEmitter wires transition events into the trigger dispatcher. The
// emitter carries the caller's dispatch depth forward so chains of
// rule-driven transitions stay bounded.
func (m *Machine) SetEmitter(fn Emitter) {
	m.emit = fn
}

func (m *Machine) instanceLock(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

// dropInstanceLock evicts the per-instance mutex once the instance can no
// longer transition. Goroutines already holding the old mutex still
// serialize among themselves; late arrivals get a fresh one and are
// rejected by the terminal-state check.
func (m *Machine) dropInstanceLock(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, id)
}

// StartInstance creates an instance pinned to the latest version of the
// workflow, positioned at its first state.
func (m *Machine) StartInstance(ctx context.Context, workflowID, tenantID string) (*types.WorkflowInstance, error) {
	wf, err := m.store.GetWorkflow(ctx, workflowID, 0)
	if err != nil {
		return nil, fmt.Errorf("loading workflow %q: %w", workflowID, err)
	}
	if wf.Status != types.WorkflowActive {
		return nil, fmt.Errorf("workflow %q is %s, not ACTIVE", workflowID, wf.Status)
	}
	now := time.Now()
	inst := types.WorkflowInstance{
		ID:           ulid.Make().String(),
		WorkflowID:   wf.ID,
		Version:      wf.Version,
		TenantID:     tenantID,
		CurrentState: wf.States[0].Name,
		Revision:     1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.store.PutInstance(ctx, inst); err != nil {
		return nil, fmt.Errorf("storing instance: %w", err)
	}
	return &inst, nil
}

// AdvanceEvent applies an event to an instance and returns the applied
// transition. Concurrent events for the same instance serialize: the second
// one observes the new state and either applies or is rejected, never lost
// and never double-applied. Guard actions run before the revision swap; if
// the swap loses to a concurrent writer the action side effects are recorded
// as a FAILED execution and ErrRevisionConflict is returned.
func (m *Machine) AdvanceEvent(ctx context.Context, instanceID, event string) (*AdvanceResult, error) {
	lock := m.instanceLock(instanceID)
	lock.Lock()
	defer lock.Unlock()

	inst, err := m.store.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("loading instance %q: %w", instanceID, err)
	}
	wf, err := m.store.GetWorkflow(ctx, inst.WorkflowID, inst.Version)
	if err != nil {
		return nil, fmt.Errorf("loading workflow %q v%d: %w", inst.WorkflowID, inst.Version, err)
	}

	state := wf.State(inst.CurrentState)
	if state == nil {
		return nil, fmt.Errorf("instance %q references unknown state %q", instanceID, inst.CurrentState)
	}
	if state.Terminal {
		metrics.TransitionsInvalid.Add(1)
		return nil, fmt.Errorf("%w: %s", ErrTerminalState, state.Name)
	}

	var guard *types.TransitionGuard
	for i := range state.Transitions {
		if state.Transitions[i].Event == event {
			guard = &state.Transitions[i]
			break
		}
	}
	if guard == nil {
		metrics.TransitionsInvalid.Add(1)
		return nil, fmt.Errorf("%w: no guard for event %q in state %q", ErrInvalidTransition, event, state.Name)
	}

	startedAt := time.Now()
	executionID := ulid.Make().String()

	var results []types.ActionResult
	status := types.ExecutionSuccess
	var actionErr error
	if len(guard.Actions) > 0 {
		results, status, actionErr = m.executor.Execute(ctx, action.Run{
			RuleID:      inst.WorkflowID,
			ExecutionID: executionID,
			TenantID:    inst.TenantID,
			Actions:     guard.Actions,
			Context:     map[string]any{"instanceId": inst.ID, "event": event, "from": state.Name, "to": guard.Target},
		})
	}

	updated := *inst
	updated.CurrentState = guard.Target
	updated.Revision = inst.Revision + 1
	updated.UpdatedAt = time.Now()
	ok, err := m.store.CompareAndSwapInstance(ctx, instanceID, inst.Revision, updated)
	if err != nil {
		return nil, fmt.Errorf("storing instance %q: %w", instanceID, err)
	}

	exec := types.Execution{
		ID:            executionID,
		WorkflowID:    inst.WorkflowID,
		TenantID:      inst.TenantID,
		StartedAt:     startedAt,
		DurationMs:    time.Since(startedAt).Milliseconds(),
		Status:        status,
		ActionResults: results,
	}
	if actionErr != nil {
		exec.Error = actionErr.Error()
	}
	if !ok {
		// The swap lost against a concurrent writer after the guard actions
		// already ran. Record those side effects as a failed execution so the
		// log stays complete, then surface the conflict.
		exec.Status = types.ExecutionFailed
		exec.Error = store.ErrRevisionConflict.Error()
		if err := m.store.AppendExecution(ctx, exec); err != nil {
			m.logger.Error("failed to append workflow execution", "workflow", inst.WorkflowID, "instance", instanceID, "error", err)
		}
		return nil, store.ErrRevisionConflict
	}
	metrics.TransitionsApplied.Add(1)
	if next := wf.State(guard.Target); next != nil && next.Terminal {
		m.dropInstanceLock(instanceID)
	}

	if err := m.store.AppendExecution(ctx, exec); err != nil {
		m.logger.Error("failed to append workflow execution", "workflow", inst.WorkflowID, "instance", instanceID, "error", err)
	}

	if m.emit != nil {
		ev := types.Event{
			TenantID:    inst.TenantID,
			Entity:      inst.WorkflowID,
			StateName:   guard.Target,
			Depth:       types.DispatchDepth(ctx),
			CausationID: executionID,
			Payload: map[string]any{
				"instanceId": inst.ID,
				"event":      event,
				"from":       state.Name,
				"to":         guard.Target,
			},
			OccurredAt: time.Now(),
		}
		if err := m.emit(ev); err != nil {
			m.logger.Warn("state event not dispatched",
				"instance", inst.ID, "state", guard.Target, "error", err)
		}
	}

	return &AdvanceResult{
		Instance:      updated,
		PreviousState: state.Name,
		ActionResults: results,
	}, actionErr
}

// Advance applies an event to an instance. It satisfies the action
// executor's Advancer interface for STATE_CHANGE actions.
func (m *Machine) Advance(ctx context.Context, instanceID, event string) error {
	_, err := m.AdvanceEvent(ctx, instanceID, event)
	return err
}
