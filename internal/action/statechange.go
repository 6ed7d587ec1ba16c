package action

import (
	"context"
	"fmt"
)

// Advancer applies an event to a workflow instance. Implemented by the
// workflow machine; declared here to keep the dependency one-way.
type Advancer interface {
	Advance(ctx context.Context, instanceID, event string) error
}

// StateChangeHandler drives workflow transitions from STATE_CHANGE actions.
type StateChangeHandler struct {
	advancer Advancer
}

// NewStateChangeHandler creates a STATE_CHANGE handler.
func NewStateChangeHandler(a Advancer) *StateChangeHandler {
	return &StateChangeHandler{advancer: a}
}

// Execute resolves the target instance (literal instanceId, or a payload
// field named by instanceField) and advances it. Transition rejections are
// permanent: retrying an invalid transition cannot make it valid.
func (h *StateChangeHandler) Execute(ctx context.Context, inv Invocation) error {
	instanceID := inv.Action.Config["instanceId"]
	if instanceID == "" {
		field := inv.Action.Config["instanceField"]
		if v, ok := inv.Context[field].(string); ok {
			instanceID = v
		}
	}
	if instanceID == "" {
		return Permanent(fmt.Errorf("no workflow instance resolved for state change"))
	}

	event := inv.Action.Config["event"]
	if err := h.advancer.Advance(ctx, instanceID, event); err != nil {
		return Permanent(fmt.Errorf("advancing instance %s: %w", instanceID, err))
	}
	return nil
}
