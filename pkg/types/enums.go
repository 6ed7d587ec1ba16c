package types

// PackStatus represents the publication state of a pack.
type PackStatus string

// PackStatus values enumerate the pack lifecycle states.
const (
	PackActive     PackStatus = "ACTIVE"
	PackDraft      PackStatus = "DRAFT"
	PackDeprecated PackStatus = "DEPRECATED"
)

// PackHealth is the derived health of a pack. It is computed from trailing
// execution outcomes and never set directly.
type PackHealth string

const (
	HealthOK      PackHealth = "ok"
	HealthWarning PackHealth = "warning"
	HealthError   PackHealth = "error"
)

// RuleStatus represents the publication state of a rule.
type RuleStatus string

const (
	RuleActive   RuleStatus = "ACTIVE"
	RuleDraft    RuleStatus = "DRAFT"
	RuleDisabled RuleStatus = "DISABLED"
)

// TriggerKind discriminates the trigger variant of a rule.
type TriggerKind string

const (
	TriggerEvent    TriggerKind = "EVENT"
	TriggerState    TriggerKind = "STATE"
	TriggerSchedule TriggerKind = "SCHEDULE"
)

// Operator is a condition comparison operator.
type Operator string

// Operator values enumerate the supported condition tests.
const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpContains    Operator = "contains"
	OpExists      Operator = "exists"
)

// CombineLogic describes how a condition combines with its predecessor.
type CombineLogic string

const (
	LogicAnd CombineLogic = "AND"
	LogicOr  CombineLogic = "OR"
)

// ActionType discriminates the action variant within a rule.
type ActionType string

const (
	ActionNotify      ActionType = "NOTIFY"
	ActionWebhook     ActionType = "WEBHOOK"
	ActionStateChange ActionType = "STATE_CHANGE"
	ActionAssign      ActionType = "ASSIGN"
)

// WorkflowType classifies a workflow by the platform surface it serves.
type WorkflowType string

const (
	WorkflowApproval WorkflowType = "APPROVAL"
	WorkflowBooking  WorkflowType = "BOOKING"
	WorkflowIntake   WorkflowType = "INTAKE"
	WorkflowEscrow   WorkflowType = "ESCROW"
	WorkflowPageant  WorkflowType = "PAGEANT"
	WorkflowCasting  WorkflowType = "CASTING"
	WorkflowCampaign WorkflowType = "CAMPAIGN"
	WorkflowGeneric  WorkflowType = "GENERIC"
)

// WorkflowStatus represents the publication state of a workflow version.
type WorkflowStatus string

const (
	WorkflowActive   WorkflowStatus = "ACTIVE"
	WorkflowDraft    WorkflowStatus = "DRAFT"
	WorkflowDisabled WorkflowStatus = "DISABLED"
	WorkflowArchived WorkflowStatus = "ARCHIVED"
)

// ExecutionStatus is the terminal outcome of one dispatch attempt.
type ExecutionStatus string

const (
	ExecutionSuccess          ExecutionStatus = "SUCCESS"
	ExecutionFailed           ExecutionStatus = "FAILED"
	ExecutionSkipped          ExecutionStatus = "SKIPPED"
	ExecutionSkippedCancelled ExecutionStatus = "SKIPPED_CANCELLED"
)

// ActionStatus is the outcome of a single action within an execution.
type ActionStatus string

const (
	ActionSucceeded ActionStatus = "SUCCEEDED"
	ActionFailed    ActionStatus = "FAILED"
	ActionSkipped   ActionStatus = "SKIPPED"
)

// SLAStatus indicates whether a module/tier meets its turnaround target.
type SLAStatus string

const (
	SLAMet      SLAStatus = "MET"
	SLABreached SLAStatus = "BREACHED"
)

// FailureCategory classifies why an action attempt failed. Only transient
// and timeout failures are retried.
type FailureCategory string

const (
	FailureTransient FailureCategory = "TRANSIENT"
	FailurePermanent FailureCategory = "PERMANENT"
	FailureTimeout   FailureCategory = "TIMEOUT"
)
