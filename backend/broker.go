package backend

import "context"

// Broker dispatches jobs from the trigger path to workers. Implementations
// must hand each job to at most one worker at a time; a job whose lock
// expires becomes visible again.
type Broker interface {
	// Enqueue makes the job available to workers.
	Enqueue(ctx context.Context, job *Job) error

	// Dequeue returns the next pending job, locking it for this consumer, or
	// nil when nothing is pending.
	Dequeue(ctx context.Context) (*Job, error)

	// Extend renews the lock of a job the caller is still working on.
	Extend(ctx context.Context, job *Job) error

	// Complete removes a finished job.
	Complete(ctx context.Context, job *Job) error

	// Close closes any underlying resources.
	Close() error
}
