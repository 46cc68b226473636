package domain

import (
	"encoding/json"
	"time"
)

// TriggerType is the closed set of domain events a workflow can react to.
type TriggerType string

const (
	TriggerLeadCreated       TriggerType = "LEAD_CREATED"
	TriggerLeadStatusChanged TriggerType = "LEAD_STATUS_CHANGED"
	TriggerLeadAssigned      TriggerType = "LEAD_ASSIGNED"
	TriggerTagAdded          TriggerType = "TAG_ADDED"
	TriggerEmailOpened       TriggerType = "EMAIL_OPENED"
	TriggerScoreThreshold    TriggerType = "SCORE_THRESHOLD"
	TriggerCampaignCompleted TriggerType = "CAMPAIGN_COMPLETED"
	TriggerTimeBased         TriggerType = "TIME_BASED"
)

// Valid reports whether t is one of the known trigger types.
func (t TriggerType) Valid() bool {
	switch t {
	case TriggerLeadCreated, TriggerLeadStatusChanged, TriggerLeadAssigned,
		TriggerTagAdded, TriggerEmailOpened, TriggerScoreThreshold,
		TriggerCampaignCompleted, TriggerTimeBased:
		return true
	}
	return false
}

// ExecutionStatus is the lifecycle of a workflow execution record.
// Executions are created PENDING; the terminal transition belongs to the
// action executor.
type ExecutionStatus string

const (
	ExecutionPending ExecutionStatus = "PENDING"
	ExecutionSuccess ExecutionStatus = "SUCCESS"
	ExecutionFailed  ExecutionStatus = "FAILED"
)

// Terminal reports whether no further transition is allowed.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionSuccess || s == ExecutionFailed
}

// Workflow is an automation definition. TriggerData holds the raw
// {"conditions": [...]} document; a nil document or one without conditions
// means the workflow matches every event of its trigger type. Actions are
// opaque to the decision engines.
type Workflow struct {
	ID             string            `json:"id" db:"id"`
	OrganizationID string            `json:"organizationId" db:"organization_id"`
	Name           string            `json:"name" db:"name"`
	Description    string            `json:"description,omitempty" db:"description"`
	TriggerType    TriggerType       `json:"triggerType" db:"trigger_type"`
	TriggerData    json.RawMessage   `json:"triggerData,omitempty" db:"trigger_data"`
	Actions        json.RawMessage   `json:"actions,omitempty" db:"actions"`
	IsActive       bool              `json:"isActive" db:"is_active"`
	Executions     int               `json:"executions" db:"executions"`
	LastRunAt      *time.Time        `json:"lastRunAt,omitempty" db:"last_run_at"`
	CreatedAt      time.Time         `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time         `json:"updatedAt" db:"updated_at"`
}

// TriggerEvent is an inbound domain event offered to trigger detection.
// When OrganizationID is set only that organization's workflows are
// candidates.
type TriggerEvent struct {
	Type           TriggerType    `json:"type"`
	Data           map[string]any `json:"data"`
	LeadID         string         `json:"leadId,omitempty"`
	OrganizationID string         `json:"organizationId,omitempty"`
}

// ExecutionMetadata is the durable snapshot stored with an execution.
// EventData is JSON-safe and never mutated after insert.
type ExecutionMetadata struct {
	EventData map[string]any `json:"eventData"`
	QueuedAt  string         `json:"queuedAt"`
}

// WorkflowExecution is an append-only record that a workflow matched an event.
type WorkflowExecution struct {
	ID          string            `json:"id" db:"id"`
	WorkflowID  string            `json:"workflowId" db:"workflow_id"`
	LeadID      *string           `json:"leadId,omitempty" db:"lead_id"`
	Status      ExecutionStatus   `json:"status" db:"status"`
	Metadata    ExecutionMetadata `json:"metadata" db:"metadata"`
	StartedAt   time.Time         `json:"startedAt" db:"started_at"`
	CompletedAt *time.Time        `json:"completedAt,omitempty" db:"completed_at"`
}
