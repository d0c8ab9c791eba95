package backend

import (
	"time"

	"flowforge/compile"
	"flowforge/item"
)

// Job is one dispatched run: the compiled plan plus the input items to feed
// through it. Jobs cross the broker as JSON.
type Job struct {
	ID         string        `json:"id"`
	RunID      string        `json:"run_id"`
	WorkflowID int64         `json:"workflow_id"`
	Plan       *compile.Plan `json:"plan"`
	Items      []*item.Item  `json:"items"`

	EnqueuedAt time.Time `json:"enqueued_at"`

	// LockedBy and LockedUntil are maintained by the broker while a worker
	// holds the job.
	LockedBy    string     `json:"-"`
	LockedUntil *time.Time `json:"-"`

	// Receipt is the broker delivery tag, set on Dequeue by brokers that
	// need one to acknowledge the job.
	Receipt string `json:"-"`
}
