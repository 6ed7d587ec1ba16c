// Package types defines the public domain types for the automation engine.
package types

import (
	"fmt"
	"time"
)

// Pack is a named bundle of related automation rules. Health is derived from
// trailing execution outcomes by the aggregator; deprecation is a soft delete.
type Pack struct {
	ID             string     `yaml:"id" json:"id"`
	Name           string     `yaml:"name" json:"name"`
	Status         PackStatus `yaml:"status" json:"status"`
	Health         PackHealth `yaml:"health,omitempty" json:"health,omitempty"`
	RuleIDs        []string   `yaml:"ruleIds,omitempty" json:"ruleIds,omitempty"`
	TenantAdoption int        `yaml:"tenantAdoption,omitempty" json:"tenantAdoption,omitempty"`
	CreatedAt      time.Time  `yaml:"createdAt,omitempty" json:"createdAt,omitempty"`
	UpdatedAt      time.Time  `yaml:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}

// Trigger is the tagged variant that causes a rule to be considered.
// Exactly one kind is set per rule.
type Trigger struct {
	Kind      TriggerKind `yaml:"kind" json:"kind"`
	Entity    string      `yaml:"entity,omitempty" json:"entity,omitempty"`
	EventName string      `yaml:"eventName,omitempty" json:"eventName,omitempty"`
	StateName string      `yaml:"stateName,omitempty" json:"stateName,omitempty"`
	CronExpr  string      `yaml:"cronExpression,omitempty" json:"cronExpression,omitempty"`
}

// Validate checks that the trigger carries exactly the fields its kind needs.
func (t Trigger) Validate() error {
	switch t.Kind {
	case TriggerEvent:
		if t.Entity == "" || t.EventName == "" {
			return fmt.Errorf("EVENT trigger requires entity and eventName")
		}
	case TriggerState:
		if t.Entity == "" || t.StateName == "" {
			return fmt.Errorf("STATE trigger requires entity and stateName")
		}
	case TriggerSchedule:
		if t.CronExpr == "" {
			return fmt.Errorf("SCHEDULE trigger requires cronExpression")
		}
	default:
		return fmt.Errorf("unknown trigger kind %q", t.Kind)
	}
	return nil
}

// Condition is a single boolean test over event context. Logic describes how
// it combines with the preceding condition; the first condition carries none.
type Condition struct {
	Field    string       `yaml:"field" json:"field"`
	Operator Operator     `yaml:"operator" json:"operator"`
	Value    any          `yaml:"value,omitempty" json:"value,omitempty"`
	Logic    CombineLogic `yaml:"logic,omitempty" json:"logic,omitempty"`
}

// Action is a side-effecting step executed when a rule's conditions pass.
// Config is validated against the type's schema at rule-save time.
type Action struct {
	Type   ActionType        `yaml:"type" json:"type"`
	Config map[string]string `yaml:"config,omitempty" json:"config,omitempty"`
}

// Validate checks the action config against the schema for its type.
func (a Action) Validate() error {
	switch a.Type {
	case ActionNotify:
		if a.Config["message"] == "" {
			return fmt.Errorf("NOTIFY action requires config.message")
		}
	case ActionWebhook:
		if a.Config["url"] == "" {
			return fmt.Errorf("WEBHOOK action requires config.url")
		}
	case ActionStateChange:
		if a.Config["instanceId"] == "" && a.Config["instanceField"] == "" {
			return fmt.Errorf("STATE_CHANGE action requires config.instanceId or config.instanceField")
		}
		if a.Config["event"] == "" {
			return fmt.Errorf("STATE_CHANGE action requires config.event")
		}
	case ActionAssign:
		if a.Config["assignee"] == "" {
			return fmt.Errorf("ASSIGN action requires config.assignee")
		}
	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}
	return nil
}

// RuleStats is a cached snapshot of a rule's execution history. It is
// recomputed from the execution log and never the write path of record.
type RuleStats struct {
	ExecutionCount int        `yaml:"executionCount" json:"executionCount"`
	SuccessCount   int        `yaml:"successCount" json:"successCount"`
	FailureCount   int        `yaml:"failureCount" json:"failureCount"`
	AvgDurationMs  float64    `yaml:"avgDurationMs" json:"avgDurationMs"`
	LastRunAt      *time.Time `yaml:"lastRunAt,omitempty" json:"lastRunAt,omitempty"`
}

// Rule is a trigger + conditions + actions unit owned by exactly one pack.
// It fires at most once per matching event.
type Rule struct {
	ID         string      `yaml:"id" json:"id"`
	PackID     string      `yaml:"packId" json:"packId"`
	TenantID   string      `yaml:"tenantId" json:"tenantId"`
	Name       string      `yaml:"name" json:"name"`
	Status     RuleStatus  `yaml:"status" json:"status"`
	Trigger    Trigger     `yaml:"trigger" json:"trigger"`
	Conditions []Condition `yaml:"conditions,omitempty" json:"conditions,omitempty"`
	Actions    []Action    `yaml:"actions,omitempty" json:"actions,omitempty"`
	Stats      RuleStats   `yaml:"stats,omitempty" json:"stats,omitempty"`
	CreatedAt  time.Time   `yaml:"createdAt,omitempty" json:"createdAt,omitempty"`
	UpdatedAt  time.Time   `yaml:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}

// Validate checks a rule document is well formed enough to store.
func (r Rule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	if r.PackID == "" {
		return fmt.Errorf("rule packId is required")
	}
	if r.TenantID == "" {
		return fmt.Errorf("rule tenantId is required")
	}
	if err := r.Trigger.Validate(); err != nil {
		return fmt.Errorf("trigger: %w", err)
	}
	for i, c := range r.Conditions {
		if c.Field == "" {
			return fmt.Errorf("condition %d: field is required", i)
		}
		if i == 0 && c.Logic != "" {
			return fmt.Errorf("condition 0 must not carry combine logic")
		}
		if i > 0 && c.Logic != LogicAnd && c.Logic != LogicOr {
			return fmt.Errorf("condition %d: logic must be AND or OR", i)
		}
	}
	for i, a := range r.Actions {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}
	}
	return nil
}

// TransitionGuard maps an inbound event name to the next state and the
// actions emitted by the transition.
type TransitionGuard struct {
	Event   string   `yaml:"event" json:"event"`
	Target  string   `yaml:"target" json:"target"`
	Actions []Action `yaml:"actions,omitempty" json:"actions,omitempty"`
}

// WorkflowState is a named state with its outbound transition guards.
type WorkflowState struct {
	Name        string            `yaml:"name" json:"name"`
	Terminal    bool              `yaml:"terminal,omitempty" json:"terminal,omitempty"`
	Transitions []TransitionGuard `yaml:"transitions,omitempty" json:"transitions,omitempty"`
}

// Workflow is a versioned multi-state process. Versions are immutable:
// edits create a new version, never mutate in place.
type Workflow struct {
	ID        string          `yaml:"id" json:"id"`
	Name      string          `yaml:"name" json:"name"`
	Version   int             `yaml:"version" json:"version"`
	Type      WorkflowType    `yaml:"type" json:"type"`
	Status    WorkflowStatus  `yaml:"status" json:"status"`
	States    []WorkflowState `yaml:"states" json:"states"`
	Stats     RuleStats       `yaml:"stats,omitempty" json:"stats,omitempty"`
	CreatedAt time.Time       `yaml:"createdAt,omitempty" json:"createdAt,omitempty"`
}

// State returns the named state definition, or nil if absent.
func (w Workflow) State(name string) *WorkflowState {
	for i := range w.States {
		if w.States[i].Name == name {
			return &w.States[i]
		}
	}
	return nil
}

// Validate checks the workflow's state graph is internally consistent.
func (w Workflow) Validate() error {
	if w.Name == "" {
		return fmt.Errorf("workflow name is required")
	}
	if len(w.States) == 0 {
		return fmt.Errorf("workflow requires at least one state")
	}
	seen := make(map[string]bool, len(w.States))
	for _, s := range w.States {
		if seen[s.Name] {
			return fmt.Errorf("duplicate state %q", s.Name)
		}
		seen[s.Name] = true
		if s.Terminal && len(s.Transitions) > 0 {
			return fmt.Errorf("terminal state %q must not declare transitions", s.Name)
		}
	}
	for _, s := range w.States {
		for _, g := range s.Transitions {
			if !seen[g.Target] {
				return fmt.Errorf("state %q transitions to unknown state %q", s.Name, g.Target)
			}
			for i, a := range g.Actions {
				if err := a.Validate(); err != nil {
					return fmt.Errorf("state %q guard %q action %d: %w", s.Name, g.Event, i, err)
				}
			}
		}
	}
	return nil
}

// WorkflowInstance tracks the current state of one running workflow.
// Version pins the workflow definition the instance was started against.
type WorkflowInstance struct {
	ID           string    `json:"id"`
	WorkflowID   string    `json:"workflowId"`
	Version      int       `json:"version"`
	TenantID     string    `json:"tenantId"`
	CurrentState string    `json:"currentState"`
	Revision     int       `json:"revision"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ActionResult records the outcome of one action within an execution.
type ActionResult struct {
	Index          int          `json:"index"`
	Type           ActionType   `json:"type"`
	Status         ActionStatus `json:"status"`
	Attempts       int          `json:"attempts"`
	IdempotencyKey string       `json:"idempotencyKey"`
	Error          string       `json:"error,omitempty"`
}

// Execution is an immutable audit record of one dispatch attempt. It is the
// sole source of truth for stats aggregation.
type Execution struct {
	ID            string          `json:"id"`
	RuleID        string          `json:"ruleId,omitempty"`
	WorkflowID    string          `json:"workflowId,omitempty"`
	PackID        string          `json:"packId,omitempty"`
	TenantID      string          `json:"tenantId"`
	StartedAt     time.Time       `json:"startedAt"`
	DurationMs    int64           `json:"durationMs"`
	Status        ExecutionStatus `json:"status"`
	Error         string          `json:"error,omitempty"`
	ActionResults []ActionResult  `json:"actionResults,omitempty"`
}

// SLAPolicy is a configured turnaround target for a module/tier.
type SLAPolicy struct {
	Module   string `yaml:"module" json:"module"`
	Tier     string `yaml:"tier" json:"tier"`
	TargetMs int64  `yaml:"targetMs" json:"targetMs"`
}

// SLAStatusEntry pairs a policy with its derived rolling duration and status.
// It is computed from executions on demand and never persisted.
type SLAStatusEntry struct {
	Module    string    `json:"module"`
	Tier      string    `json:"tier"`
	TargetMs  int64     `json:"targetMs"`
	CurrentMs int64     `json:"currentMs"`
	Status    SLAStatus `json:"status"`
}

// MaxDispatchDepth caps how deep a chain of rule-triggered events may grow
// before nested dispatch is aborted.
const MaxDispatchDepth = 5

// Event is an inbound domain event routed to candidate rules. Depth and
// CausationID carry the dispatch chain metadata for the loop guard.
type Event struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"tenantId"`
	Entity      string         `json:"entity"`
	Name        string         `json:"name"`
	StateName   string         `json:"stateName,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	OccurredAt  time.Time      `json:"occurredAt"`
	Depth       int            `json:"depth,omitempty"`
	CausationID string         `json:"causationId,omitempty"`
}

// Validate checks the minimum shape required to accept an event.
func (e Event) Validate() error {
	if e.TenantID == "" {
		return fmt.Errorf("event tenantId is required")
	}
	if e.Entity == "" {
		return fmt.Errorf("event entity is required")
	}
	if e.Name == "" && e.StateName == "" {
		return fmt.Errorf("event requires a name or stateName")
	}
	return nil
}
