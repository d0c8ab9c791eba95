package compile

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"flowforge/graph"
)

func TestCompile_LinearChain(t *testing.T) {
	def := &graph.Definition{
		Nodes: []graph.Node{
			{ID: "a", Task: "extract"},
			{ID: "b", Task: "transform"},
			{ID: "c", Task: "load"},
		},
		Edges: []graph.Edge{
			{Source: "a", Target: "b"},
			{Source: "b", Target: "c"},
		},
	}

	plan, err := Compile(def)
	require.NoError(t, err)

	root := plan.Root
	require.Equal(t, KindSequence, root.Kind)
	require.Len(t, root.Steps, 3)
	for i, task := range []string{"extract", "transform", "load"} {
		require.Equal(t, KindInvoke, root.Steps[i].Kind)
		require.Equal(t, task, root.Steps[i].Task)
	}
}

func TestCompile_SingleNode(t *testing.T) {
	def := &graph.Definition{
		Nodes: []graph.Node{{ID: "only", Task: "work"}},
	}

	plan, err := Compile(def)
	require.NoError(t, err)
	require.Equal(t, KindInvoke, plan.Root.Kind)
	require.Equal(t, "only", plan.Root.NodeID)
}

func TestCompile_Cycle(t *testing.T) {
	def := &graph.Definition{
		Nodes: []graph.Node{{ID: "A", Task: "t"}, {ID: "B", Task: "t"}},
		Edges: []graph.Edge{
			{Source: "A", Target: "B"},
			{Source: "B", Target: "A"},
		},
	}

	_, err := Compile(def)
	require.Error(t, err)

	var invalid *graph.InvalidGraphError
	require.True(t, errors.As(err, &invalid))
}

func TestCompile_BranchPoint(t *testing.T) {
	def := &graph.Definition{
		Nodes: []graph.Node{
			{ID: "x", Task: "split"},
			{ID: "y", Task: "left"},
			{ID: "z", Task: "right"},
		},
		Edges: []graph.Edge{
			{Source: "x", Target: "y"},
			{Source: "x", Target: "z"},
		},
	}

	plan, err := Compile(def)
	require.NoError(t, err)

	root := plan.Root
	require.Equal(t, KindSequence, root.Kind)
	require.Len(t, root.Steps, 2)
	require.Equal(t, KindInvoke, root.Steps[0].Kind)

	parallel := root.Steps[1]
	require.Equal(t, KindParallel, parallel.Kind)
	require.Len(t, parallel.Branches, 2)
	require.Equal(t, "left", parallel.Branches[0].Task)
	require.Equal(t, "right", parallel.Branches[1].Task)
}

func TestCompile_Chord(t *testing.T) {
	def := &graph.Definition{
		Nodes: []graph.Node{
			{ID: "x", Task: "split"},
			{ID: "y", Task: "left"},
			{ID: "z", Task: "right"},
			{ID: "j", Task: "combine", Config: map[string]any{"merge_policy": "deep_merge"}},
			{ID: "k", Task: "finish"},
		},
		Edges: []graph.Edge{
			{Source: "x", Target: "y"},
			{Source: "x", Target: "z"},
			{Source: "y", Target: "j"},
			{Source: "z", Target: "j"},
			{Source: "j", Target: "k"},
		},
	}

	plan, err := Compile(def)
	require.NoError(t, err)

	root := plan.Root
	require.Equal(t, KindSequence, root.Kind)
	require.Len(t, root.Steps, 5)

	require.Equal(t, KindInvoke, root.Steps[0].Kind)
	require.Equal(t, KindParallel, root.Steps[1].Kind)

	merge := root.Steps[2]
	require.Equal(t, KindMerge, merge.Kind)
	require.Equal(t, "j", merge.NodeID)
	require.Equal(t, 2, merge.ExpectedInputs)
	require.Equal(t, MergeDeep, merge.Policy)

	require.Equal(t, "combine", root.Steps[3].Task)
	require.Equal(t, "finish", root.Steps[4].Task)
}

func TestCompile_DirectEdgeIntoJoin(t *testing.T) {
	def := &graph.Definition{
		Nodes: []graph.Node{
			{ID: "x", Task: "split"},
			{ID: "y", Task: "enrich"},
			{ID: "j", Task: "combine"},
		},
		Edges: []graph.Edge{
			{Source: "x", Target: "j"},
			{Source: "x", Target: "y"},
			{Source: "y", Target: "j"},
		},
	}

	plan, err := Compile(def)
	require.NoError(t, err)

	root := plan.Root
	require.Equal(t, KindSequence, root.Kind)

	parallel := root.Steps[1]
	require.Equal(t, KindParallel, parallel.Kind)
	require.Len(t, parallel.Branches, 2)
	// The direct edge becomes an identity branch.
	require.Equal(t, KindSequence, parallel.Branches[0].Kind)
	require.Empty(t, parallel.Branches[0].Steps)

	merge := root.Steps[2]
	require.Equal(t, KindMerge, merge.Kind)
	require.Equal(t, 2, merge.ExpectedInputs)
	require.Equal(t, MergeLastWriterWins, merge.Policy)
}

func TestCompile_MultipleEntriesConverge(t *testing.T) {
	def := &graph.Definition{
		Nodes: []graph.Node{
			{ID: "e1", Task: "source_a"},
			{ID: "e2", Task: "source_b"},
			{ID: "j", Task: "combine"},
			{ID: "k", Task: "finish"},
		},
		Edges: []graph.Edge{
			{Source: "e1", Target: "j"},
			{Source: "e2", Target: "j"},
			{Source: "j", Target: "k"},
		},
	}

	plan, err := Compile(def)
	require.NoError(t, err)

	root := plan.Root
	require.Equal(t, KindSequence, root.Kind)
	require.Len(t, root.Steps, 4)
	require.Equal(t, KindParallel, root.Steps[0].Kind)
	require.Equal(t, KindMerge, root.Steps[1].Kind)
	require.Equal(t, "combine", root.Steps[2].Task)
	require.Equal(t, "finish", root.Steps[3].Task)
}

func TestCompile_UnsupportedJoinTopology(t *testing.T) {
	def := &graph.Definition{
		Nodes: []graph.Node{
			{ID: "x", Task: "split"},
			{ID: "y", Task: "left"},
			{ID: "z", Task: "right"},
			{ID: "e", Task: "outsider"},
			{ID: "j", Task: "combine"},
		},
		Edges: []graph.Edge{
			{Source: "x", Target: "y"},
			{Source: "x", Target: "z"},
			{Source: "y", Target: "j"},
			{Source: "z", Target: "j"},
			{Source: "e", Target: "j"},
		},
	}

	_, err := Compile(def)
	require.Error(t, err)

	var invalid *graph.InvalidGraphError
	require.True(t, errors.As(err, &invalid))
	require.Contains(t, err.Error(), "join")
}

func TestCompile_RetryableMarking(t *testing.T) {
	def := &graph.Definition{
		Nodes: []graph.Node{
			{ID: "a", Task: "fetch", Config: map[string]any{"retryable": true, "max_attempts": float64(5)}},
			{ID: "b", Task: "write"},
		},
		Edges: []graph.Edge{{Source: "a", Target: "b"}},
	}

	plan, err := Compile(def)
	require.NoError(t, err)

	fetch := plan.Root.Steps[0]
	require.True(t, fetch.Retryable)
	require.Equal(t, 5, fetch.MaxAttempts)

	write := plan.Root.Steps[1]
	require.False(t, write.Retryable)
}

func TestCompile_Router(t *testing.T) {
	def := &graph.Definition{
		Nodes: []graph.Node{
			{ID: "in", Task: "classify"},
			{ID: "r", Task: "router", Config: map[string]any{
				"conditions": []any{
					map[string]any{"field": "type", "op": "eq", "value": "invoice"},
					map[string]any{"field": "type", "op": "eq", "value": "receipt"},
				},
			}},
			{ID: "a", Task: "handle_invoice"},
			{ID: "b", Task: "handle_receipt"},
			{ID: "c", Task: "handle_other"},
		},
		Edges: []graph.Edge{
			{Source: "in", Target: "r"},
			{Source: "r", Target: "b", SourceHandle: "r-route-1"},
			{Source: "r", Target: "a", SourceHandle: "r-route-0"},
			{Source: "r", Target: "c"},
		},
	}

	plan, err := Compile(def)
	require.NoError(t, err)

	root := plan.Root
	require.Equal(t, KindSequence, root.Kind)
	require.Len(t, root.Steps, 2)

	route := root.Steps[1]
	require.Equal(t, KindRoute, route.Kind)
	require.Len(t, route.Routes, 3)

	// Routes ordered by route index, default last.
	require.Equal(t, "invoice", route.Routes[0].Condition.Value)
	require.Equal(t, "handle_invoice", route.Routes[0].Branch.Task)
	require.Equal(t, "receipt", route.Routes[1].Condition.Value)
	require.Nil(t, route.Routes[2].Condition)
	require.Equal(t, "handle_other", route.Routes[2].Branch.Task)
}

func TestCompile_RouterMissingCondition(t *testing.T) {
	def := &graph.Definition{
		Nodes: []graph.Node{
			{ID: "r", Task: "router", Config: map[string]any{"conditions": []any{}}},
			{ID: "a", Task: "handle"},
		},
		Edges: []graph.Edge{
			{Source: "r", Target: "a", SourceHandle: "r-route-0"},
		},
	}

	_, err := Compile(def)
	require.Error(t, err)

	var invalid *graph.InvalidGraphError
	require.True(t, errors.As(err, &invalid))
	require.Contains(t, err.Error(), "route index 0")
}

func TestPlan_JSONRoundTrip(t *testing.T) {
	def := &graph.Definition{
		Nodes: []graph.Node{
			{ID: "x", Task: "split"},
			{ID: "y", Task: "left"},
			{ID: "z", Task: "right"},
			{ID: "j", Task: "combine"},
		},
		Edges: []graph.Edge{
			{Source: "x", Target: "y"},
			{Source: "x", Target: "z"},
			{Source: "y", Target: "j"},
			{Source: "z", Target: "j"},
		},
	}

	plan, err := Compile(def)
	require.NoError(t, err)

	data, err := json.Marshal(plan)
	require.NoError(t, err)

	var decoded Plan
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, plan, &decoded)
}
