package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/fixl-developer/tma-automation/pkg/types"
)

// FireRule runs one rule against an event synchronously, bypassing trigger
// matching. The scheduler uses it to fire SCHEDULE rules at due time.
func (d *Dispatcher) FireRule(ctx context.Context, ruleID string, ev types.Event) (*types.Execution, error) {
	rule, err := d.store.GetRule(ctx, ruleID)
	if err != nil {
		return nil, fmt.Errorf("loading rule %q: %w", ruleID, err)
	}
	pack, err := d.store.GetPack(ctx, rule.PackID)
	if err != nil {
		return nil, fmt.Errorf("loading pack %q: %w", rule.PackID, err)
	}
	exec := d.runRule(ctx, ev, Candidate{Rule: *rule, Pack: *pack}, d.ruleGate(rule.ID))
	return &exec, nil
}

// TestFire runs a rule's full pipeline synchronously against a supplied
// context, without a real event. It ignores the rule's enabled status so
// drafts can be exercised; the execution is recorded like any other.
func (d *Dispatcher) TestFire(ctx context.Context, ruleID string, evalCtx map[string]any) (*types.Execution, error) {
	rule, err := d.store.GetRule(ctx, ruleID)
	if err != nil {
		return nil, fmt.Errorf("loading rule %q: %w", ruleID, err)
	}
	ev := types.Event{
		TenantID:   rule.TenantID,
		Entity:     rule.Trigger.Entity,
		Name:       rule.Trigger.EventName,
		StateName:  rule.Trigger.StateName,
		Payload:    evalCtx,
		OccurredAt: time.Now(),
	}
	pack, err := d.store.GetPack(ctx, rule.PackID)
	if err != nil {
		return nil, fmt.Errorf("loading pack %q: %w", rule.PackID, err)
	}
	exec := d.runRule(ctx, ev, Candidate{Rule: *rule, Pack: *pack}, nil)
	return &exec, nil
}
