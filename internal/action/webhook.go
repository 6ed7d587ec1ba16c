package action

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// WebhookHandler posts WEBHOOK actions to tenant-configured URLs. A circuit
// breaker fails fast when a downstream keeps erroring so retries don't pile
// onto a dead endpoint.
type WebhookHandler struct {
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewWebhookHandler creates a WEBHOOK handler.
func NewWebhookHandler() *WebhookHandler {
	return &WebhookHandler{
		client: &http.Client{Timeout: 10 * time.Second},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name: "webhook",
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			Timeout: 30 * time.Second,
		}),
	}
}

// Execute posts the event context as JSON. HTTP 5xx and transport errors
// are transient; 4xx responses are permanent and skip the retry budget.
func (h *WebhookHandler) Execute(ctx context.Context, inv Invocation) error {
	url := inv.Action.Config["url"]

	body := map[string]any{
		"ruleId":      inv.RuleID,
		"executionId": inv.ExecutionID,
		"tenantId":    inv.TenantID,
		"context":     inv.Context,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return Permanent(fmt.Errorf("marshaling webhook body: %w", err))
	}

	_, err = h.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return nil, Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", inv.IdempotencyKey)

		resp, err := h.client.Do(req)
		if err != nil {
			return nil, Transient(fmt.Errorf("webhook POST failed: %w", err))
		}
		defer func() { _ = resp.Body.Close() }()

		switch {
		case resp.StatusCode >= 500:
			return nil, Transient(fmt.Errorf("webhook returned status %d", resp.StatusCode))
		case resp.StatusCode >= 400:
			return nil, Permanent(fmt.Errorf("webhook returned status %d", resp.StatusCode))
		}
		return nil, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return Transient(err)
	}
	return err
}
