package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/fixl-developer/tma-automation/pkg/types"
)

func (s *Store) executionIndexKey(ruleID string) string {
	return s.prefix + "executions:rule:" + ruleID
}

func (s *Store) workflowExecutionIndexKey(workflowID string) string {
	return s.prefix + "executions:workflow:" + workflowID
}

func (s *Store) executionGlobalKey() string {
	return s.prefix + "executions:all"
}

func (s *Store) scheduleMarkKey(ruleID string) string {
	return s.prefix + "schedmark:" + ruleID
}

// AppendExecution pushes an execution onto its indexes. The log is
// append-only; entries are never rewritten.
func (s *Store) AppendExecution(ctx context.Context, exec types.Execution) error {
	data, err := json.Marshal(exec)
	if err != nil {
		return fmt.Errorf("marshaling execution: %w", err)
	}
	pipe := s.client.Pipeline()
	if exec.RuleID != "" {
		key := s.executionIndexKey(exec.RuleID)
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, s.executionMax-1)
	}
	if exec.WorkflowID != "" {
		key := s.workflowExecutionIndexKey(exec.WorkflowID)
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, s.executionMax-1)
	}
	pipe.LPush(ctx, s.executionGlobalKey(), data)
	pipe.LTrim(ctx, s.executionGlobalKey(), 0, s.executionMax-1)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Store) listExecutions(ctx context.Context, key string, limit int) ([]types.Execution, error) {
	end := int64(-1)
	if limit > 0 {
		end = int64(limit) - 1
	}
	items, err := s.client.LRange(ctx, key, 0, end).Result()
	if err != nil {
		return nil, err
	}
	out := make([]types.Execution, 0, len(items))
	for _, item := range items {
		var exec types.Execution
		if err := json.Unmarshal([]byte(item), &exec); err != nil {
			return nil, fmt.Errorf("unmarshaling execution: %w", err)
		}
		out = append(out, exec)
	}
	return out, nil
}

// ListExecutions returns a rule's executions, most recent first.
func (s *Store) ListExecutions(ctx context.Context, ruleID string, limit int) ([]types.Execution, error) {
	return s.listExecutions(ctx, s.executionIndexKey(ruleID), limit)
}

// ListWorkflowExecutions returns a workflow's executions, most recent first.
func (s *Store) ListWorkflowExecutions(ctx context.Context, workflowID string, limit int) ([]types.Execution, error) {
	return s.listExecutions(ctx, s.workflowExecutionIndexKey(workflowID), limit)
}

// ListRecentExecutions returns the most recent executions across all rules.
func (s *Store) ListRecentExecutions(ctx context.Context, limit int) ([]types.Execution, error) {
	return s.listExecutions(ctx, s.executionGlobalKey(), limit)
}

// GetScheduleMark returns the last fire time for a SCHEDULE rule, or nil.
func (s *Store) GetScheduleMark(ctx context.Context, ruleID string) (*time.Time, error) {
	raw, err := s.client.Get(ctx, s.scheduleMarkKey(ruleID)).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, fmt.Errorf("parsing schedule mark for %q: %w", ruleID, err)
	}
	return &t, nil
}

// PutScheduleMark records the last fire time for a SCHEDULE rule.
func (s *Store) PutScheduleMark(ctx context.Context, ruleID string, firedAt time.Time) error {
	return s.client.Set(ctx, s.scheduleMarkKey(ruleID), firedAt.Format(time.RFC3339Nano), 0).Err()
}

// AcquireLock takes an advisory lock with SET NX PX semantics.
func (s *Store) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, s.prefix+"lock:"+key, "1", ttl).Result()
}

// ReleaseLock releases an advisory lock.
func (s *Store) ReleaseLock(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+"lock:"+key).Err()
}
