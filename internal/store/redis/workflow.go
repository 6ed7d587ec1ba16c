package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	goredis "github.com/redis/go-redis/v9"

	"github.com/fixl-developer/tma-automation/internal/store"
	"github.com/fixl-developer/tma-automation/pkg/types"
)

func (s *Store) workflowKey(id string, version int) string {
	return s.prefix + "workflow:" + id + ":v" + strconv.Itoa(version)
}

func (s *Store) workflowLatestKey(id string) string {
	return s.prefix + "workflow:" + id + ":latest"
}

func (s *Store) workflowIndexKey() string {
	return s.prefix + "workflows"
}

func (s *Store) instanceKey(id string) string {
	return s.prefix + "instance:" + id
}

// PutWorkflow stores a new immutable workflow version and advances the
// latest pointer.
func (s *Store) PutWorkflow(ctx context.Context, wf types.Workflow) error {
	data, err := json.Marshal(wf)
	if err != nil {
		return fmt.Errorf("marshaling workflow: %w", err)
	}
	existed, err := s.client.Exists(ctx, s.workflowLatestKey(wf.ID)).Result()
	if err != nil {
		return err
	}
	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.workflowKey(wf.ID, wf.Version), data, 0)
	pipe.Set(ctx, s.workflowLatestKey(wf.ID), wf.Version, 0)
	if existed == 0 {
		pipe.RPush(ctx, s.workflowIndexKey(), wf.ID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// GetWorkflow retrieves the given version, or the latest when version is 0.
func (s *Store) GetWorkflow(ctx context.Context, id string, version int) (*types.Workflow, error) {
	if version == 0 {
		latest, err := s.client.Get(ctx, s.workflowLatestKey(id)).Int()
		if errors.Is(err, goredis.Nil) {
			return nil, store.ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		version = latest
	}
	data, err := s.client.Get(ctx, s.workflowKey(id, version)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var wf types.Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("unmarshaling workflow %q: %w", id, err)
	}
	return &wf, nil
}

// ListWorkflows returns the latest version of every workflow in insertion order.
func (s *Store) ListWorkflows(ctx context.Context) ([]types.Workflow, error) {
	ids, err := s.client.LRange(ctx, s.workflowIndexKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]types.Workflow, 0, len(ids))
	for _, id := range ids {
		wf, err := s.GetWorkflow(ctx, id, 0)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *wf)
	}
	return out, nil
}

// PutInstance stores a workflow instance unconditionally.
func (s *Store) PutInstance(ctx context.Context, inst types.WorkflowInstance) error {
	data, err := json.Marshal(inst)
	if err != nil {
		return fmt.Errorf("marshaling instance: %w", err)
	}
	return s.client.Set(ctx, s.instanceKey(inst.ID), data, 0).Err()
}

// GetInstance retrieves a workflow instance.
func (s *Store) GetInstance(ctx context.Context, id string) (*types.WorkflowInstance, error) {
	data, err := s.client.Get(ctx, s.instanceKey(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var inst types.WorkflowInstance
	if err := json.Unmarshal(data, &inst); err != nil {
		return nil, fmt.Errorf("unmarshaling instance %q: %w", id, err)
	}
	return &inst, nil
}

// CompareAndSwapInstance writes the instance only if the stored revision
// matches the expected one. Runs server-side via a Lua script.
func (s *Store) CompareAndSwapInstance(ctx context.Context, id string, expectedRevision int, inst types.WorkflowInstance) (bool, error) {
	data, err := json.Marshal(inst)
	if err != nil {
		return false, fmt.Errorf("marshaling instance: %w", err)
	}
	res, err := s.casScript.Run(ctx, s.client, []string{s.instanceKey(id)}, expectedRevision, data).Int()
	if err != nil {
		return false, err
	}
	if res == -1 {
		return false, store.ErrNotFound
	}
	return res == 1, nil
}
