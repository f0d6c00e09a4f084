package types

import "time"

// NodeType classifies a workflow node by the signing step it represents.
type NodeType string

const (
	NodeTypeStart               NodeType = "start"
	NodeTypeDocumentAnalysis    NodeType = "document_analysis"
	NodeTypeComplianceCheck     NodeType = "compliance_check"
	NodeTypeHumanReview         NodeType = "human_review"
	NodeTypeApprovalGate        NodeType = "approval_gate"
	NodeTypeSignatureCollection NodeType = "signature_collection"
	NodeTypeValidation          NodeType = "validation"
	NodeTypeNotification        NodeType = "notification"
	NodeTypeCompletion          NodeType = "completion"
)

// ActionType identifies the operation a node performs when executed.
type ActionType string

const (
	ActionUpdateStatus     ActionType = "update_status"
	ActionAnalyzeDocument  ActionType = "analyze_document"
	ActionCheckCompliance  ActionType = "check_compliance"
	ActionCollectSignature ActionType = "collect_signature"
	ActionSendNotification ActionType = "send_notification"
	ActionCreateAuditLog   ActionType = "create_audit_log"
	ActionWaitForHuman     ActionType = "wait_for_human"
	ActionTriggerWebhook   ActionType = "trigger_webhook"
)

// Operator is a comparison applied between a resolved data field and a
// condition value.
type Operator string

const (
	OpEquals            Operator = "equals"
	OpNotEquals         Operator = "not_equals"
	OpContains          Operator = "contains"
	OpGreaterThan       Operator = "greater_than"
	OpLessThan          Operator = "less_than"
	OpGreaterThanEquals Operator = "greater_than_equals"
	OpLessThanEquals    Operator = "less_than_equals"
	OpIn                Operator = "in"
	OpNotIn             Operator = "not_in"
	OpExists            Operator = "exists"
	OpNotExists         Operator = "not_exists"
)

// LogicalOperator joins a condition with the running result of the
// conditions evaluated before it.
type LogicalOperator string

const (
	LogicalAnd LogicalOperator = "and"
	LogicalOr  LogicalOperator = "or"
)

// Status is the lifecycle state of a workflow instance.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further lifecycle transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// WorkflowNode is a single step in a workflow graph.
type WorkflowNode struct {
	ID                  string              `json:"id" yaml:"id"`
	Type                NodeType            `json:"type" yaml:"type"`
	Name                string              `json:"name,omitempty" yaml:"name,omitempty"`
	Description         string              `json:"description,omitempty" yaml:"description,omitempty"`
	Action              WorkflowAction      `json:"action" yaml:"action"`
	Conditions          []WorkflowCondition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	NextNodes           []string            `json:"next_nodes,omitempty" yaml:"next_nodes,omitempty"`
	TimeoutSeconds      int                 `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
	HumanReviewRequired bool                `json:"human_review_required,omitempty" yaml:"human_review_required,omitempty"`
}

// WorkflowAction describes the operation a node dispatches, with
// type-specific parameters. Async actions are suspension points: the
// dispatcher awaits the collaborator's result instead of scheduling
// fire-and-forget work.
type WorkflowAction struct {
	Type       ActionType             `json:"type" yaml:"type"`
	Parameters map[string]interface{} `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Async      bool                   `json:"async,omitempty" yaml:"async,omitempty"`
}

// WorkflowCondition gates a node's action on the workflow data context.
// Either Field/Operator/Value or a raw Expression is set. LogicalOperator
// declares how the NEXT condition combines with the running result.
type WorkflowCondition struct {
	Field           string          `json:"field,omitempty" yaml:"field,omitempty"`
	Operator        Operator        `json:"operator,omitempty" yaml:"operator,omitempty"`
	Value           interface{}     `json:"value,omitempty" yaml:"value,omitempty"`
	Expression      string          `json:"expression,omitempty" yaml:"expression,omitempty"`
	LogicalOperator LogicalOperator `json:"logical_operator,omitempty" yaml:"logical_operator,omitempty"`
}

// HistoryStatus is the recorded outcome of one node visit.
type HistoryStatus string

const (
	HistorySuccess HistoryStatus = "success"
	HistoryFailure HistoryStatus = "failure"
	HistorySkipped HistoryStatus = "skipped"
)

// WorkflowHistoryEntry is an immutable record of one node visit.
type WorkflowHistoryEntry struct {
	Timestamp  time.Time              `json:"timestamp"`
	NodeID     string                 `json:"node_id"`
	Action     ActionType             `json:"action"`
	Result     map[string]interface{} `json:"result,omitempty"`
	DurationMS int64                  `json:"duration_ms"`
	Status     HistoryStatus          `json:"status"`
}

// WorkflowError captures a failure observed while executing a node.
// Recoverable errors pause the workflow for later resumption, fatal
// ones fail it.
type WorkflowError struct {
	Timestamp   time.Time `json:"timestamp"`
	NodeID      string    `json:"node_id"`
	ErrorType   string    `json:"error_type"`
	Message     string    `json:"message"`
	StackTrace  string    `json:"stack_trace,omitempty"`
	Recoverable bool      `json:"recoverable"`
}

// WorkflowState is the mutable runtime state of one workflow instance.
type WorkflowState struct {
	WorkflowID  string                 `json:"workflow_id"`
	CurrentNode string                 `json:"current_node"`
	Status      Status                 `json:"status"`
	Data        map[string]interface{} `json:"data"`
	History     []WorkflowHistoryEntry `json:"history"`
	Errors      []WorkflowError        `json:"errors,omitempty"`
	StartedAt   time.Time              `json:"started_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
}

// Definition is a registered workflow graph: the node set plus its entry
// point. The ID is assigned by the engine at registration.
type Definition struct {
	ID        string         `json:"id,omitempty" yaml:"id,omitempty"`
	Name      string         `json:"name,omitempty" yaml:"name,omitempty"`
	StartNode string         `json:"start_node" yaml:"start_node"`
	Nodes     []WorkflowNode `json:"nodes" yaml:"nodes"`
}

// Node finds a node by ID.
func (d Definition) Node(id string) (WorkflowNode, bool) {
	for _, n := range d.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return WorkflowNode{}, false
}

// Validate runs the structural checks over the definition's node set.
func (d Definition) Validate() ValidationResult {
	return ValidateNodes(d.Nodes)
}
