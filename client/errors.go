package client

import "fmt"

// WorkflowNotRunnableError reports a trigger against a workflow that is a
// draft, not active, or has no compiled plan.
type WorkflowNotRunnableError struct {
	ID     int64
	Reason string
}

func (e *WorkflowNotRunnableError) Error() string {
	return fmt.Sprintf("workflow %d is not runnable: %s", e.ID, e.Reason)
}
