// Package log holds the structured logging field keys used across the
// codebase. Components log through *slog.Logger; this package only names the
// fields so they stay consistent.
package log

const (
	NamespaceKey = "flowforge"

	WorkflowIDKey   = NamespaceKey + ".workflow.id"
	WorkflowNameKey = NamespaceKey + ".workflow.name"

	RunIDKey = NamespaceKey + ".run.id"
	JobIDKey = NamespaceKey + ".job.id"

	NodeIDKey       = NamespaceKey + ".node.id"
	TaskNameKey     = NamespaceKey + ".task.name"
	LineageIndexKey = NamespaceKey + ".lineage_index"

	AttemptKey  = NamespaceKey + ".attempt"
	DurationKey = NamespaceKey + ".duration_ms"

	WorkerNameKey = NamespaceKey + ".worker.name"

	ErrorKey = NamespaceKey + ".error"
)
