// Package compile translates a stored workflow definition into an executable
// plan of sequential chains, parallel groups, merges and routes.
package compile

// StepKind discriminates the plan primitives. Plans are serialized to JSON
// when stored with a workflow and when dispatched to workers, so a single
// step struct with a kind tag is used instead of an interface hierarchy.
type StepKind string

const (
	// KindInvoke runs one task handler on the current item.
	KindInvoke StepKind = "invoke"
	// KindSequence threads the item through its steps in order.
	KindSequence StepKind = "sequence"
	// KindParallel runs each branch on its own clone of the item.
	KindParallel StepKind = "parallel"
	// KindMerge combines the results of the preceding parallel group into a
	// single item. It requires all expected inputs; a failed predecessor
	// fails the merge explicitly.
	KindMerge StepKind = "merge"
	// KindRoute evaluates conditions against the item and executes the first
	// matching branch.
	KindRoute StepKind = "route"
)

// MergePolicy selects how a merge step combines predecessor payloads. It is
// configured per merge node, not fixed.
type MergePolicy string

const (
	// MergeLastWriterWins overwrites payload keys in branch order.
	MergeLastWriterWins MergePolicy = "last_writer_wins"
	// MergeDeep recursively merges nested payload objects.
	MergeDeep MergePolicy = "deep_merge"
)

// RouterTask is the task name that marks a node as a router. Its outgoing
// edges carry route indices referencing the conditions in the node config.
const RouterTask = "router"

// Condition is a predicate on the item payload.
type Condition struct {
	Field string `json:"field"`
	Op    string `json:"op"`
	Value any    `json:"value,omitempty"`
}

// Route pairs a condition with the branch to execute when it matches. A nil
// condition is the default route.
type Route struct {
	Condition *Condition `json:"condition,omitempty"`
	Branch    *Step      `json:"branch"`
}

// Step is one node of the compiled plan tree. Which fields are meaningful
// depends on Kind.
type Step struct {
	Kind StepKind `json:"kind"`

	// Invoke, Merge and Route steps reference the definition node they were
	// compiled from, so errors can name the offending node.
	NodeID string         `json:"node_id,omitempty"`
	Task   string         `json:"task,omitempty"`
	Label  string         `json:"label,omitempty"`
	Config map[string]any `json:"config,omitempty"`

	// Retryable marks invoke steps whose task declares no external side
	// effect and is therefore safe to retry idempotently.
	Retryable   bool `json:"retryable,omitempty"`
	MaxAttempts int  `json:"max_attempts,omitempty"`

	Steps    []*Step `json:"steps,omitempty"`
	Branches []*Step `json:"branches,omitempty"`

	// ExpectedInputs is the number of predecessor results a merge must see
	// before combining; an incomplete join fails instead of hanging.
	ExpectedInputs int         `json:"expected_inputs,omitempty"`
	Policy         MergePolicy `json:"policy,omitempty"`

	Routes []Route `json:"routes,omitempty"`
}

// Plan is the compiled, executable representation of a workflow graph.
type Plan struct {
	Root *Step `json:"root"`
}
