package action

import (
	"context"
	"time"

	"github.com/fixl-developer/tma-automation/internal/notify"
)

// NotifyHandler delivers NOTIFY actions through the notification dispatcher.
type NotifyHandler struct {
	dispatcher *notify.Dispatcher
}

// NewNotifyHandler creates a NOTIFY handler.
func NewNotifyHandler(d *notify.Dispatcher) *NotifyHandler {
	return &NotifyHandler{dispatcher: d}
}

// Execute sends the configured message. Delivery failures are transient:
// the notification layer is an external collaborator that may flake.
func (h *NotifyHandler) Execute(ctx context.Context, inv Invocation) error {
	n := notify.Notification{
		TenantID:       inv.TenantID,
		RuleID:         inv.RuleID,
		Channel:        inv.Action.Config["channel"],
		Message:        inv.Action.Config["message"],
		IdempotencyKey: inv.IdempotencyKey,
		Details:        inv.Context,
		Timestamp:      time.Now(),
	}
	if err := h.dispatcher.Send(ctx, n); err != nil {
		return Transient(err)
	}
	return nil
}
