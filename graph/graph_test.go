package graph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefinition_Validate(t *testing.T) {
	tests := []struct {
		name    string
		def     Definition
		wantErr string
	}{
		{
			name: "valid chain",
			def: Definition{
				Nodes: []Node{{ID: "a", Task: "t1"}, {ID: "b", Task: "t2"}},
				Edges: []Edge{{Source: "a", Target: "b"}},
			},
		},
		{
			name:    "empty definition",
			def:     Definition{},
			wantErr: "no nodes",
		},
		{
			name: "duplicate node id",
			def: Definition{
				Nodes: []Node{{ID: "a", Task: "t1"}, {ID: "a", Task: "t2"}},
			},
			wantErr: "duplicate node id",
		},
		{
			name: "missing task",
			def: Definition{
				Nodes: []Node{{ID: "a"}},
			},
			wantErr: "no task",
		},
		{
			name: "edge references unknown target",
			def: Definition{
				Nodes: []Node{{ID: "a", Task: "t1"}},
				Edges: []Edge{{Source: "a", Target: "ghost"}},
			},
			wantErr: "unknown target",
		},
		{
			name: "edge references unknown source",
			def: Definition{
				Nodes: []Node{{ID: "a", Task: "t1"}},
				Edges: []Edge{{Source: "ghost", Target: "a"}},
			},
			wantErr: "unknown source",
		},
		{
			name: "two node cycle",
			def: Definition{
				Nodes: []Node{{ID: "entry", Task: "t"}, {ID: "a", Task: "t"}, {ID: "b", Task: "t"}},
				Edges: []Edge{
					{Source: "entry", Target: "a"},
					{Source: "a", Target: "b"},
					{Source: "b", Target: "a"},
				},
			},
			wantErr: "cycle detected",
		},
		{
			name: "all nodes in cycle, no entry",
			def: Definition{
				Nodes: []Node{{ID: "a", Task: "t"}, {ID: "b", Task: "t"}},
				Edges: []Edge{
					{Source: "a", Target: "b"},
					{Source: "b", Target: "a"},
				},
			},
			wantErr: "no entry node",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.def.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}

			require.Error(t, err)
			var invalid *InvalidGraphError
			require.True(t, errors.As(err, &invalid))
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDefinition_EntryNodes(t *testing.T) {
	def := Definition{
		Nodes: []Node{{ID: "a", Task: "t"}, {ID: "b", Task: "t"}, {ID: "c", Task: "t"}},
		Edges: []Edge{{Source: "a", Target: "c"}, {Source: "b", Target: "c"}},
	}

	require.Equal(t, []string{"a", "b"}, def.EntryNodes())
	require.Equal(t, 2, def.FanIn("c"))
	require.Len(t, def.Outgoing("a"), 1)
}

func TestEdge_RouteIndex(t *testing.T) {
	require.Equal(t, 2, Edge{SourceHandle: "node-1-route-2"}.RouteIndex())
	require.Equal(t, 0, Edge{SourceHandle: "r-route-0"}.RouteIndex())
	require.Equal(t, -1, Edge{}.RouteIndex())
	require.Equal(t, -1, Edge{SourceHandle: "nohandle"}.RouteIndex())
}
