package executor

import (
	"errors"
	"fmt"
	"strings"
)

// TaskFailure reports a task handler that returned an error or panicked,
// naming the node so callers can surface where a run went wrong.
type TaskFailure struct {
	NodeID string
	Task   string
	Err    error
}

func (e *TaskFailure) Error() string {
	return fmt.Sprintf("task %q failed on node %q: %v", e.Task, e.NodeID, e.Err)
}

func (e *TaskFailure) Unwrap() error {
	return e.Err
}

// JoinIncompleteError reports a merge that did not receive all of its
// expected inputs because one or more predecessor branches failed.
type JoinIncompleteError struct {
	NodeID   string
	Expected int
	Received int
	Errs     []error
}

func (e *JoinIncompleteError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}

	return fmt.Sprintf(
		"merge %q received %d of %d inputs: %s",
		e.NodeID, e.Received, e.Expected, strings.Join(msgs, "; "))
}

func (e *JoinIncompleteError) Unwrap() []error {
	return e.Errs
}

// Is reports a match for errors.Is against another JoinIncompleteError of
// the same node.
func (e *JoinIncompleteError) Is(target error) bool {
	var other *JoinIncompleteError
	if !errors.As(target, &other) {
		return false
	}
	return other.NodeID == "" || other.NodeID == e.NodeID
}
