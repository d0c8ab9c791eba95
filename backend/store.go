package backend

import (
	"context"
	"errors"
)

var (
	ErrWorkflowNotFound = errors.New("workflow not found")
	ErrRunNotFound      = errors.New("run not found")
)

// Store persists workflows, runs and run results.
type Store interface {
	// CreateWorkflow stores a new workflow and fills its ID and timestamps.
	CreateWorkflow(ctx context.Context, workflow *Workflow) error

	// GetWorkflow returns the workflow with the given id.
	GetWorkflow(ctx context.Context, id int64) (*Workflow, error)

	// ListWorkflows returns workflows ordered by creation time.
	ListWorkflows(ctx context.Context, options ListWorkflowsOptions) ([]*Workflow, error)

	// UpdateWorkflow applies a partial update and returns the updated row.
	UpdateWorkflow(ctx context.Context, id int64, update *WorkflowUpdate) (*Workflow, error)

	// DeleteWorkflow removes a workflow.
	DeleteWorkflow(ctx context.Context, id int64) error

	// TouchLastRun records when a workflow was last triggered.
	TouchLastRun(ctx context.Context, id int64) error

	// ListScheduled returns active, non-draft workflows with a crontab
	// expression.
	ListScheduled(ctx context.Context) ([]*Workflow, error)

	// CreateRun records a new run in the pending state.
	CreateRun(ctx context.Context, run *Run) error

	// GetRun returns the run with the given id.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns the runs of a workflow, newest first.
	ListRuns(ctx context.Context, workflowID int64) ([]*Run, error)

	// StartRun transitions a run to running.
	StartRun(ctx context.Context, id string) error

	// CompleteRun records a run's terminal status.
	CompleteRun(ctx context.Context, id string, status RunStatus) error

	// SaveResult persists one terminal item (or error marker) of a run.
	SaveResult(ctx context.Context, result *Result) error

	// GetResults returns the persisted results of a run in insertion order.
	GetResults(ctx context.Context, runID string) ([]*Result, error)

	// Close closes any underlying resources.
	Close() error
}
