package backend

import (
	"time"

	"flowforge/item"
)

// RunStatus is the lifecycle state of one workflow run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "PENDING"
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED"
	// RunStatusPartial marks a run where some lineage branches succeeded and
	// others failed. Sibling branches never abort each other.
	RunStatusPartial RunStatus = "PARTIAL"
	RunStatusFailed  RunStatus = "FAILED"
)

// Run is one execution of a workflow over one ingress event.
type Run struct {
	ID         string     `json:"id"`
	WorkflowID int64      `json:"workflow_id"`
	Status     RunStatus  `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Result is one persisted terminal item of a run. Either Item is set, or
// Error carries the failure marker for that lineage branch.
type Result struct {
	RunID        string     `json:"run_id"`
	LineageIndex *int       `json:"lineage_index,omitempty"`
	NodeID       string     `json:"node_id,omitempty"`
	Item         *item.Item `json:"item,omitempty"`
	Error        string     `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
