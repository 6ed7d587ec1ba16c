// Package dispatch routes inbound events to candidate rules and runs the
// matched rules through the condition evaluator and action executor.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/fixl-developer/tma-automation/internal/action"
	"github.com/fixl-developer/tma-automation/internal/condition"
	"github.com/fixl-developer/tma-automation/internal/metrics"
	"github.com/fixl-developer/tma-automation/internal/store"
	"github.com/fixl-developer/tma-automation/pkg/types"
)

// ErrDepthExceeded rejects events whose dispatch chain has grown past
// types.MaxDispatchDepth. The nested dispatch is aborted; the parent rule's
// execution is unaffected.
var ErrDepthExceeded = errors.New("dispatch chain depth exceeded")

// ErrQueueFull rejects events when the dispatch queue has no capacity.
var ErrQueueFull = errors.New("dispatch queue full")

const (
	defaultWorkers   = 8
	defaultQueueSize = 1024
)

// Candidate pairs a matched rule with its owning pack. Candidates for one
// event are ordered pack-then-rule insertion order; this is the execution
// order of the batch.
type Candidate struct {
	Rule types.Rule
	Pack types.Pack
}

// Dispatcher consumes the event queue with a worker pool. Each matched
// (event, rule) pair is an independent unit of work; failures never abort
// sibling rules.
type Dispatcher struct {
	store    store.Store
	executor *action.Executor
	logger   *slog.Logger

	queue   chan types.Event
	workers int

	cancel context.CancelFunc
	group  *errgroup.Group
}

// New creates a Dispatcher. Zero config values fall back to defaults.
func New(st store.Store, exec *action.Executor, cfg *types.DispatcherConfig, logger *slog.Logger) *Dispatcher {
	workers := defaultWorkers
	queueSize := defaultQueueSize
	if cfg != nil {
		if cfg.Workers > 0 {
			workers = cfg.Workers
		}
		if cfg.QueueSize > 0 {
			queueSize = cfg.QueueSize
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		store:    st,
		executor: exec,
		logger:   logger,
		queue:    make(chan types.Event, queueSize),
		workers:  workers,
	}
}

// Start spins up the worker pool.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)
	d.group = g
	for i := 0; i < d.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case ev := <-d.queue:
					d.process(ctx, ev)
				}
			}
		})
	}
	d.logger.Info("dispatcher started", "workers", d.workers)
}

// Stop signals the workers and waits for in-flight work to finish.
func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.group != nil {
		_ = d.group.Wait()
	}
	d.logger.Info("dispatcher stopped")
}

// Enqueue accepts an event into the dispatch queue. It never blocks: a full
// queue is an error the ingestion surface turns into backpressure.
func (d *Dispatcher) Enqueue(ev types.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	if ev.Depth >= types.MaxDispatchDepth {
		metrics.DepthGuardTrips.Add(1)
		d.logger.Warn("dispatch chain depth exceeded, event dropped",
			"tenant", ev.TenantID, "entity", ev.Entity, "name", ev.Name, "causation", ev.CausationID)
		return ErrDepthExceeded
	}
	if ev.ID == "" {
		ev.ID = ulid.Make().String()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}
	select {
	case d.queue <- ev:
		metrics.EventsAccepted.Add(1)
		return nil
	default:
		metrics.EventsDropped.Add(1)
		return ErrQueueFull
	}
}

// Match returns the candidate rules for an event in pack-then-rule
// insertion order. It is read-only: candidates are a snapshot, so no rule
// in the batch observes effects of a sibling (batch isolation).
func (d *Dispatcher) Match(ctx context.Context, ev types.Event) ([]Candidate, error) {
	packs, err := d.store.ListPacks(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing packs: %w", err)
	}
	rules, err := d.store.ListRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing rules: %w", err)
	}
	byID := make(map[string]types.Rule, len(rules))
	for _, r := range rules {
		byID[r.ID] = r
	}

	var out []Candidate
	for _, pack := range packs {
		if pack.Status != types.PackActive {
			continue
		}
		for _, rid := range pack.RuleIDs {
			rule, ok := byID[rid]
			if !ok || rule.Status != types.RuleActive || rule.TenantID != ev.TenantID {
				continue
			}
			if matches(rule.Trigger, ev) {
				out = append(out, Candidate{Rule: rule, Pack: pack})
			}
		}
	}
	return out, nil
}

// matches tests a trigger against an event. SCHEDULE triggers never match
// here; their candidates come from the scheduler.
func matches(t types.Trigger, ev types.Event) bool {
	switch t.Kind {
	case types.TriggerEvent:
		return ev.Name != "" && t.Entity == ev.Entity && t.EventName == ev.Name
	case types.TriggerState:
		return ev.StateName != "" && t.Entity == ev.Entity && t.StateName == ev.StateName
	default:
		return false
	}
}

// process runs every candidate of one event in order. Events parallelize
// across workers; candidates of one batch run sequentially so the audit
// trail matches the declared order.
func (d *Dispatcher) process(ctx context.Context, ev types.Event) {
	candidates, err := d.Match(ctx, ev)
	if err != nil {
		d.logger.Error("match failed", "tenant", ev.TenantID, "entity", ev.Entity, "error", err)
		return
	}
	for _, cand := range candidates {
		d.runRule(ctx, ev, cand, d.ruleGate(cand.Rule.ID))
	}
}

// runRule executes one (event, rule) pair and appends exactly one
// execution record.
func (d *Dispatcher) runRule(ctx context.Context, ev types.Event, cand Candidate, gate action.Gate) types.Execution {
	metrics.DispatchesTotal.Add(1)
	startedAt := time.Now()
	exec := types.Execution{
		ID:        ulid.Make().String(),
		RuleID:    cand.Rule.ID,
		PackID:    cand.Pack.ID,
		TenantID:  ev.TenantID,
		StartedAt: startedAt,
	}

	evalCtx := buildContext(ev)
	passed, err := condition.Evaluate(cand.Rule.Conditions, evalCtx)
	switch {
	case err != nil:
		// Malformed conditions skip the rule; they are never a match.
		exec.Status = types.ExecutionSkipped
		exec.Error = err.Error()
		d.logger.Warn("rule skipped: condition evaluation failed",
			"rule", cand.Rule.ID, "error", err)
	case !passed:
		exec.Status = types.ExecutionSkipped
	default:
		runCtx := types.WithDispatchDepth(ctx, ev.Depth+1)
		results, status, actionErr := d.executor.Execute(runCtx, action.Run{
			RuleID:      cand.Rule.ID,
			ExecutionID: exec.ID,
			TenantID:    ev.TenantID,
			Actions:     cand.Rule.Actions,
			Context:     evalCtx,
			Gate:        gate,
		})
		exec.Status = status
		exec.ActionResults = results
		if actionErr != nil {
			exec.Error = actionErr.Error()
		}
	}

	exec.DurationMs = time.Since(startedAt).Milliseconds()
	switch exec.Status {
	case types.ExecutionSuccess:
		metrics.ExecutionsSuccess.Add(1)
	case types.ExecutionFailed:
		metrics.ExecutionsFailed.Add(1)
	default:
		metrics.ExecutionsSkipped.Add(1)
	}
	if err := d.store.AppendExecution(ctx, exec); err != nil {
		d.logger.Error("failed to append execution", "rule", cand.Rule.ID, "execution", exec.ID, "error", err)
	}
	return exec
}

// ruleGate re-reads the rule before each action so a mid-flight disable
// stops subsequent actions.
func (d *Dispatcher) ruleGate(ruleID string) action.Gate {
	return func(ctx context.Context) bool {
		rule, err := d.store.GetRule(ctx, ruleID)
		if err != nil {
			// A vanished rule counts as disabled.
			return false
		}
		return rule.Status == types.RuleActive
	}
}

// buildContext exposes the event payload as the condition-evaluation root,
// with event metadata nested under "event".
func buildContext(ev types.Event) map[string]any {
	out := make(map[string]any, len(ev.Payload)+1)
	for k, v := range ev.Payload {
		out[k] = v
	}
	if _, taken := out["event"]; !taken {
		out["event"] = map[string]any{
			"entity":     ev.Entity,
			"name":       ev.Name,
			"stateName":  ev.StateName,
			"tenantId":   ev.TenantID,
			"occurredAt": ev.OccurredAt,
		}
	}
	return out
}
