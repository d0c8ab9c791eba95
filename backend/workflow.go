// Package backend defines the persistence and dispatch contracts the engine
// runs against, plus the options shared by their implementations.
package backend

import (
	"time"

	"flowforge/compile"
	"flowforge/graph"
)

// WorkflowStatus is the lifecycle state of a workflow definition.
type WorkflowStatus string

const (
	// StatusEdit marks a workflow that is still being designed.
	StatusEdit WorkflowStatus = "EDIT"
	// StatusActive marks a workflow that accepts ingress events.
	StatusActive WorkflowStatus = "ACTIVE"
)

// Workflow is a stored workflow: its graph definition plus the plan compiled
// from it. The plan is compiled when the definition is saved, never at
// trigger time, so malformed graphs are rejected before anything runs.
type Workflow struct {
	ID          int64          `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Status      WorkflowStatus `json:"status"`
	Draft       bool           `json:"draft"`

	Definition *graph.Definition `json:"definition,omitempty"`
	Plan       *compile.Plan     `json:"plan,omitempty"`

	CrontabExpression string `json:"crontab_expression,omitempty"`

	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// WorkflowUpdate carries the fields of a partial workflow update; nil fields
// are left unchanged.
type WorkflowUpdate struct {
	Name              *string
	Description       *string
	Status            *WorkflowStatus
	Draft             *bool
	Definition        *graph.Definition
	Plan              *compile.Plan
	CrontabExpression *string
}

// ListWorkflowsOptions filters and orders ListWorkflows.
type ListWorkflowsOptions struct {
	Status   WorkflowStatus
	SortDesc bool
}
