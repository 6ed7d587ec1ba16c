package action

import (
	"context"
	"fmt"
	"time"

	"github.com/fixl-developer/tma-automation/internal/notify"
)

// AssignHandler emits ASSIGN actions. Ownership records live in the
// collaborating admin systems; the engine publishes the assignment through
// the notification layer with the idempotency key attached.
type AssignHandler struct {
	dispatcher *notify.Dispatcher
}

// NewAssignHandler creates an ASSIGN handler.
func NewAssignHandler(d *notify.Dispatcher) *AssignHandler {
	return &AssignHandler{dispatcher: d}
}

func (h *AssignHandler) Execute(ctx context.Context, inv Invocation) error {
	assignee := inv.Action.Config["assignee"]
	n := notify.Notification{
		TenantID:       inv.TenantID,
		RuleID:         inv.RuleID,
		Channel:        "assignment",
		Message:        fmt.Sprintf("assigned to %s", assignee),
		IdempotencyKey: inv.IdempotencyKey,
		Details: map[string]any{
			"assignee": assignee,
			"role":     inv.Action.Config["role"],
			"context":  inv.Context,
		},
		Timestamp: time.Now(),
	}
	if err := h.dispatcher.Send(ctx, n); err != nil {
		return Transient(err)
	}
	return nil
}
