// Package memory implements an in-memory Store. It is the default provider
// for single-process deployments and the backing store for tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fixl-developer/tma-automation/internal/store"
	"github.com/fixl-developer/tma-automation/pkg/types"
)

// Compile-time interface satisfaction check.
var _ store.Store = (*Store)(nil)

// Store is an in-memory store.Store implementation. Reads are safe for
// unlimited concurrency; the execution log is append-only.
type Store struct {
	mu            sync.RWMutex
	packs         map[string]types.Pack
	packOrder     []string
	rules         map[string]types.Rule
	workflows     map[string][]types.Workflow // id -> versions ascending
	workflowOrder []string
	instances     map[string]types.WorkflowInstance
	executions    []types.Execution
	byRule        map[string][]int // rule id -> indexes into executions
	byWorkflow    map[string][]int
	marks         map[string]time.Time
	locks         map[string]time.Time // key -> expiry
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		packs:      make(map[string]types.Pack),
		rules:      make(map[string]types.Rule),
		workflows:  make(map[string][]types.Workflow),
		instances:  make(map[string]types.WorkflowInstance),
		byRule:     make(map[string][]int),
		byWorkflow: make(map[string][]int),
		marks:      make(map[string]time.Time),
		locks:      make(map[string]time.Time),
	}
}

func (s *Store) PutPack(_ context.Context, pack types.Pack) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.packs[pack.ID]; !ok {
		s.packOrder = append(s.packOrder, pack.ID)
	}
	s.packs[pack.ID] = pack
	return nil
}

func (s *Store) GetPack(_ context.Context, id string) (*types.Pack, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.packs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

// ListPacks returns packs in insertion order. Candidate ordering during
// dispatch depends on this.
func (s *Store) ListPacks(_ context.Context) ([]types.Pack, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Pack, 0, len(s.packOrder))
	for _, id := range s.packOrder {
		out = append(out, s.packs[id])
	}
	return out, nil
}

func (s *Store) DeprecatePack(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.packs[id]
	if !ok {
		return store.ErrNotFound
	}
	p.Status = types.PackDeprecated
	p.UpdatedAt = time.Now()
	s.packs[id] = p
	return nil
}

func (s *Store) PutRule(_ context.Context, rule types.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[rule.ID] = rule
	p, ok := s.packs[rule.PackID]
	if !ok {
		return nil
	}
	for _, rid := range p.RuleIDs {
		if rid == rule.ID {
			return nil
		}
	}
	p.RuleIDs = append(p.RuleIDs, rule.ID)
	s.packs[rule.PackID] = p
	return nil
}

func (s *Store) GetRule(_ context.Context, id string) (*types.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rules[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &r, nil
}

// ListRules returns all rules in pack-then-rule insertion order.
func (s *Store) ListRules(_ context.Context) ([]types.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.Rule
	for _, pid := range s.packOrder {
		for _, rid := range s.packs[pid].RuleIDs {
			if r, ok := s.rules[rid]; ok {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

func (s *Store) DeleteRule(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[id]
	if !ok {
		return store.ErrNotFound
	}
	delete(s.rules, id)
	if p, ok := s.packs[r.PackID]; ok {
		kept := p.RuleIDs[:0]
		for _, rid := range p.RuleIDs {
			if rid != id {
				kept = append(kept, rid)
			}
		}
		p.RuleIDs = kept
		s.packs[r.PackID] = p
	}
	return nil
}

func (s *Store) PutWorkflow(_ context.Context, wf types.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	versions := s.workflows[wf.ID]
	if len(versions) == 0 {
		s.workflowOrder = append(s.workflowOrder, wf.ID)
	}
	s.workflows[wf.ID] = append(versions, wf)
	return nil
}

// GetWorkflow returns the given version, or the latest when version is 0.
func (s *Store) GetWorkflow(_ context.Context, id string, version int) (*types.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	versions := s.workflows[id]
	if len(versions) == 0 {
		return nil, store.ErrNotFound
	}
	if version == 0 {
		wf := versions[len(versions)-1]
		return &wf, nil
	}
	for _, wf := range versions {
		if wf.Version == version {
			out := wf
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListWorkflows(_ context.Context) ([]types.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Workflow, 0, len(s.workflowOrder))
	for _, id := range s.workflowOrder {
		versions := s.workflows[id]
		out = append(out, versions[len(versions)-1])
	}
	return out, nil
}

func (s *Store) PutInstance(_ context.Context, inst types.WorkflowInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances[inst.ID] = inst
	return nil
}

func (s *Store) GetInstance(_ context.Context, id string) (*types.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.instances[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &inst, nil
}

func (s *Store) CompareAndSwapInstance(_ context.Context, id string, expectedRevision int, inst types.WorkflowInstance) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.instances[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if cur.Revision != expectedRevision {
		return false, nil
	}
	s.instances[id] = inst
	return true, nil
}

func (s *Store) AppendExecution(_ context.Context, exec types.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := len(s.executions)
	s.executions = append(s.executions, exec)
	if exec.RuleID != "" {
		s.byRule[exec.RuleID] = append(s.byRule[exec.RuleID], idx)
	}
	if exec.WorkflowID != "" {
		s.byWorkflow[exec.WorkflowID] = append(s.byWorkflow[exec.WorkflowID], idx)
	}
	return nil
}

func (s *Store) ListExecutions(_ context.Context, ruleID string, limit int) ([]types.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.byRule[ruleID], limit), nil
}

func (s *Store) ListWorkflowExecutions(_ context.Context, workflowID string, limit int) ([]types.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.byWorkflow[workflowID], limit), nil
}

func (s *Store) ListRecentExecutions(_ context.Context, limit int) ([]types.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idxs := make([]int, len(s.executions))
	for i := range idxs {
		idxs[i] = i
	}
	return s.collect(idxs, limit), nil
}

// collect returns executions for the given indexes, most recent first.
func (s *Store) collect(idxs []int, limit int) []types.Execution {
	out := make([]types.Execution, 0, len(idxs))
	for i := len(idxs) - 1; i >= 0; i-- {
		out = append(out, s.executions[idxs[i]])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].StartedAt.After(out[b].StartedAt)
	})
	return out
}

func (s *Store) GetScheduleMark(_ context.Context, ruleID string) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.marks[ruleID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (s *Store) PutScheduleMark(_ context.Context, ruleID string, firedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marks[ruleID] = firedAt
	return nil
}

func (s *Store) AcquireLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	// Sweep expired entries so abandoned keys do not accumulate. The lock
	// table is small (one entry per concurrent edit), so a full pass is fine.
	for k, exp := range s.locks {
		if !now.Before(exp) {
			delete(s.locks, k)
		}
	}
	if _, held := s.locks[key]; held {
		return false, nil
	}
	s.locks[key] = now.Add(ttl)
	return true, nil
}

func (s *Store) ReleaseLock(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, key)
	return nil
}

func (s *Store) Start(context.Context) error { return nil }
func (s *Store) Stop(context.Context) error  { return nil }
func (s *Store) Ping(context.Context) error  { return nil }
