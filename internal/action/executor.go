// Package action executes a rule's ordered action list with retry, backoff,
// per-action timeouts, and idempotency keys.
package action

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fixl-developer/tma-automation/internal/metrics"
	"github.com/fixl-developer/tma-automation/pkg/types"
)

// Retry and timeout defaults. Only transient-classified failures consume
// the retry budget.
const (
	MaxAttempts    = 3
	backoffBase    = 200 * time.Millisecond
	backoffFactor  = 2
	backoffCap     = 5 * time.Second
	DefaultTimeout = 10 * time.Second
)

// Gate reports whether the run may continue. The dispatcher supplies a gate
// that checks the rule is still enabled; a false return stops subsequent
// actions (the in-flight one completes).
type Gate func(ctx context.Context) bool

// Run is one execution of a rule's action list.
type Run struct {
	RuleID      string
	ExecutionID string
	TenantID    string
	Actions     []types.Action
	Context     map[string]any
	Gate        Gate
}

// Executor runs action lists through the handler registry.
type Executor struct {
	registry *Registry
	logger   *slog.Logger

	defaultTimeout time.Duration
	typeTimeouts   map[types.ActionType]time.Duration
	sleep          func(time.Duration) // overridable in tests
}

// NewExecutor creates an Executor with the given registry.
func NewExecutor(registry *Registry, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		registry:       registry,
		logger:         logger,
		defaultTimeout: DefaultTimeout,
		typeTimeouts:   make(map[types.ActionType]time.Duration),
		sleep:          time.Sleep,
	}
}

// SetTimeout overrides the per-attempt timeout for one action type.
func (e *Executor) SetTimeout(t types.ActionType, d time.Duration) {
	if d > 0 {
		e.typeTimeouts[t] = d
	}
}

// SetDefaultTimeout overrides the default per-attempt timeout.
func (e *Executor) SetDefaultTimeout(d time.Duration) {
	if d > 0 {
		e.defaultTimeout = d
	}
}

func (e *Executor) timeoutFor(t types.ActionType) time.Duration {
	if d, ok := e.typeTimeouts[t]; ok {
		return d
	}
	return e.defaultTimeout
}

// IdempotencyKey builds the deterministic key for one action of one
// execution. It is stable across retry attempts.
func IdempotencyKey(ruleID, executionID string, index int) string {
	return fmt.Sprintf("%s:%s:%d", ruleID, executionID, index)
}

// Backoff returns the wait before the given retry attempt (attempt 2 waits
// one base interval). Exponential with a hard cap.
func Backoff(attempt int) time.Duration {
	d := backoffBase
	for i := 2; i < attempt; i++ {
		d *= backoffFactor
		if d >= backoffCap {
			return backoffCap
		}
	}
	if d > backoffCap {
		return backoffCap
	}
	return d
}

// Execute runs the actions strictly in declared order. It halts at the
// first action that exhausts its retry budget; actions completed before the
// halt stay committed (handlers must be idempotent, no rollback). The
// returned status is SUCCESS, FAILED, or SKIPPED_CANCELLED.
func (e *Executor) Execute(ctx context.Context, run Run) ([]types.ActionResult, types.ExecutionStatus, error) {
	results := make([]types.ActionResult, 0, len(run.Actions))

	for i, act := range run.Actions {
		if run.Gate != nil && !run.Gate(ctx) {
			for j := i; j < len(run.Actions); j++ {
				results = append(results, types.ActionResult{
					Index:  j,
					Type:   run.Actions[j].Type,
					Status: types.ActionSkipped,
				})
			}
			return results, types.ExecutionSkippedCancelled, nil
		}

		res := e.executeOne(ctx, run, i, act)
		results = append(results, res)
		if res.Status == types.ActionFailed {
			for j := i + 1; j < len(run.Actions); j++ {
				results = append(results, types.ActionResult{
					Index:  j,
					Type:   run.Actions[j].Type,
					Status: types.ActionSkipped,
				})
			}
			return results, types.ExecutionFailed, fmt.Errorf("action %d (%s): %s", i, act.Type, res.Error)
		}
	}
	return results, types.ExecutionSuccess, nil
}

func (e *Executor) executeOne(ctx context.Context, run Run, index int, act types.Action) types.ActionResult {
	key := IdempotencyKey(run.RuleID, run.ExecutionID, index)
	res := types.ActionResult{
		Index:          index,
		Type:           act.Type,
		IdempotencyKey: key,
	}

	handler, err := e.registry.Lookup(act.Type)
	if err != nil {
		res.Status = types.ActionFailed
		res.Error = err.Error()
		return res
	}

	inv := Invocation{
		Action:         act,
		RuleID:         run.RuleID,
		ExecutionID:    run.ExecutionID,
		TenantID:       run.TenantID,
		Index:          index,
		IdempotencyKey: key,
		Context:        run.Context,
	}

	var lastErr error
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		res.Attempts = attempt
		if attempt > 1 {
			metrics.ActionRetries.Add(1)
			e.sleep(Backoff(attempt))
		}

		attemptCtx, cancel := context.WithTimeout(ctx, e.timeoutFor(act.Type))
		err := handler.Execute(attemptCtx, inv)
		cancel()

		if err == nil {
			res.Status = types.ActionSucceeded
			return res
		}
		lastErr = err

		category := Classify(err)
		if !retryable(category) {
			e.logger.Warn("action failed permanently",
				"rule", run.RuleID, "action", act.Type, "index", index, "error", err)
			break
		}
		e.logger.Warn("action attempt failed",
			"rule", run.RuleID, "action", act.Type, "index", index,
			"attempt", attempt, "category", category, "error", err)
	}

	res.Status = types.ActionFailed
	res.Error = lastErr.Error()
	return res
}
