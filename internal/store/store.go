// Package store defines the storage backend interface for the automation
// engine. The engine reads packs, rules, and workflows written by the admin
// surface and writes executions; the execution log is append-only.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/fixl-developer/tma-automation/pkg/types"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrRevisionConflict is returned when a compare-and-swap write loses a race.
var ErrRevisionConflict = errors.New("revision conflict")

// Store is the storage backend interface. The memory provider is the
// default; redis backs multi-process deployments and postgres archives
// executions out of the hot store.
type Store interface {
	// Packs. Deprecation is a soft delete: the pack stays readable with
	// status DEPRECATED.
	PutPack(ctx context.Context, pack types.Pack) error
	GetPack(ctx context.Context, id string) (*types.Pack, error)
	ListPacks(ctx context.Context) ([]types.Pack, error)
	DeprecatePack(ctx context.Context, id string) error

	// Rules. PutRule registers the rule in its pack's ordered rule set.
	PutRule(ctx context.Context, rule types.Rule) error
	GetRule(ctx context.Context, id string) (*types.Rule, error)
	ListRules(ctx context.Context) ([]types.Rule, error)
	DeleteRule(ctx context.Context, id string) error

	// Workflows are versioned and immutable; PutWorkflow writes a new
	// version. Version 0 on reads means latest.
	PutWorkflow(ctx context.Context, wf types.Workflow) error
	GetWorkflow(ctx context.Context, id string, version int) (*types.Workflow, error)
	ListWorkflows(ctx context.Context) ([]types.Workflow, error)

	// Workflow instances, with CAS on Revision for per-instance writes.
	PutInstance(ctx context.Context, inst types.WorkflowInstance) error
	GetInstance(ctx context.Context, id string) (*types.WorkflowInstance, error)
	CompareAndSwapInstance(ctx context.Context, id string, expectedRevision int, inst types.WorkflowInstance) (bool, error)

	// Execution log — append-only audit trail, most-recent-first reads.
	AppendExecution(ctx context.Context, exec types.Execution) error
	ListExecutions(ctx context.Context, ruleID string, limit int) ([]types.Execution, error)
	ListWorkflowExecutions(ctx context.Context, workflowID string, limit int) ([]types.Execution, error)
	ListRecentExecutions(ctx context.Context, limit int) ([]types.Execution, error)

	// Schedule marks record the last fire time per SCHEDULE rule so missed
	// ticks fire at most once on recovery.
	GetScheduleMark(ctx context.Context, ruleID string) (*time.Time, error)
	PutScheduleMark(ctx context.Context, ruleID string, firedAt time.Time) error

	// Advisory locks serialize rule writes so dispatch never observes a
	// half-updated rule.
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error

	// Lifecycle
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Ping(ctx context.Context) error
}
