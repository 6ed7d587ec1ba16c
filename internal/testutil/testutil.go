// Package testutil provides shared test utilities for the automation
// engine.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fixl-developer/tma-automation/internal/action"
	"github.com/fixl-developer/tma-automation/internal/store"
	"github.com/fixl-developer/tma-automation/pkg/types"
)

// WaitFor polls check every 10ms until it returns true or timeout is reached.
func WaitFor(t *testing.T, timeout time.Duration, check func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for condition: %s", msg)
}

// WaitForExecutions polls until at least n executions exist for the rule,
// returning them most-recent-first.
func WaitForExecutions(t *testing.T, st store.Store, ruleID string, n int, timeout time.Duration) []types.Execution {
	t.Helper()
	var execs []types.Execution
	WaitFor(t, timeout, func() bool {
		var err error
		execs, err = st.ListExecutions(context.Background(), ruleID, n+10)
		return err == nil && len(execs) >= n
	}, "executions for "+ruleID)
	return execs
}

// RecordingHandler is an action.Handler that records every invocation.
type RecordingHandler struct {
	mu          sync.Mutex
	invocations []action.Invocation

	// Err, when set, is returned from every call.
	Err error
}

func (h *RecordingHandler) Execute(_ context.Context, inv action.Invocation) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.invocations = append(h.invocations, inv)
	return h.Err
}

// Invocations returns a copy of the recorded invocations.
func (h *RecordingHandler) Invocations() []action.Invocation {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]action.Invocation, len(h.invocations))
	copy(out, h.invocations)
	return out
}

// Count returns how many times the handler ran.
func (h *RecordingHandler) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.invocations)
}

// FlakyHandler fails with the configured error until FailuresLeft attempts
// have been consumed, then succeeds. It records idempotency keys per attempt.
type FlakyHandler struct {
	mu           sync.Mutex
	FailuresLeft int
	Err          error
	Keys         []string
}

func (h *FlakyHandler) Execute(_ context.Context, inv action.Invocation) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Keys = append(h.Keys, inv.IdempotencyKey)
	if h.FailuresLeft > 0 {
		h.FailuresLeft--
		return h.Err
	}
	return nil
}

// SeenKeys returns a copy of the idempotency keys seen across attempts.
func (h *FlakyHandler) SeenKeys() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.Keys))
	copy(out, h.Keys)
	return out
}

// MakeRule builds a minimal ACTIVE event-triggered rule for tests.
func MakeRule(id, packID, tenantID, entity, eventName string) types.Rule {
	return types.Rule{
		ID:       id,
		PackID:   packID,
		TenantID: tenantID,
		Name:     id,
		Status:   types.RuleActive,
		Trigger: types.Trigger{
			Kind:      types.TriggerEvent,
			Entity:    entity,
			EventName: eventName,
		},
	}
}

// MakePack builds a minimal ACTIVE pack for tests.
func MakePack(id string) types.Pack {
	return types.Pack{
		ID:     id,
		Name:   id,
		Status: types.PackActive,
		Health: types.HealthOK,
	}
}
