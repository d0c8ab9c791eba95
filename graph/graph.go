// Package graph holds the stored workflow definition: nodes carrying task
// invocations and edges describing data flow between them.
package graph

import (
	"fmt"
	"strconv"
	"strings"
)

// InvalidGraphError describes a structurally invalid workflow definition. It
// is raised at compile time, before any task executes.
type InvalidGraphError struct {
	Node   string
	Edge   string
	Reason string
}

func (e *InvalidGraphError) Error() string {
	var b strings.Builder
	b.WriteString("invalid graph: ")
	b.WriteString(e.Reason)
	if e.Node != "" {
		fmt.Fprintf(&b, " (node %q)", e.Node)
	}
	if e.Edge != "" {
		fmt.Fprintf(&b, " (edge %s)", e.Edge)
	}
	return b.String()
}

// Position is where the editor placed a node. It is presentation-only and
// ignored by the compiler.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is one processing step in a workflow definition.
type Node struct {
	ID       string         `json:"id"`
	Task     string         `json:"task"`
	Label    string         `json:"label,omitempty"`
	Config   map[string]any `json:"config,omitempty"`
	Position Position       `json:"position,omitempty"`
}

// Edge connects the output of Source to the input of Target. SourceHandle
// optionally carries a route index for router nodes, in the form
// "<nodeID>-route-<index>".
type Edge struct {
	ID           string `json:"id,omitempty"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"source_handle,omitempty"`
}

// RouteIndex parses the route index from the edge's source handle. It returns
// -1 when the edge carries no route information.
func (e Edge) RouteIndex() int {
	if e.SourceHandle == "" {
		return -1
	}
	idx := strings.LastIndex(e.SourceHandle, "-")
	if idx < 0 {
		return -1
	}
	n, err := strconv.Atoi(e.SourceHandle[idx+1:])
	if err != nil {
		return -1
	}
	return n
}

func (e Edge) String() string {
	return fmt.Sprintf("%s->%s", e.Source, e.Target)
}

// Definition is a stored workflow graph.
type Definition struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Node returns the node with the given id.
func (d *Definition) Node(id string) (Node, bool) {
	for _, n := range d.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Outgoing returns the edges leaving node id, in definition order.
func (d *Definition) Outgoing(id string) []Edge {
	var edges []Edge
	for _, e := range d.Edges {
		if e.Source == id {
			edges = append(edges, e)
		}
	}
	return edges
}

// FanIn returns the number of edges entering node id.
func (d *Definition) FanIn(id string) int {
	count := 0
	for _, e := range d.Edges {
		if e.Target == id {
			count++
		}
	}
	return count
}

// EntryNodes returns the ids of nodes with no incoming edge, in definition
// order.
func (d *Definition) EntryNodes() []string {
	incoming := map[string]bool{}
	for _, e := range d.Edges {
		incoming[e.Target] = true
	}

	var entries []string
	for _, n := range d.Nodes {
		if !incoming[n.ID] {
			entries = append(entries, n.ID)
		}
	}
	return entries
}

// Validate checks the structural invariants of the definition: node ids are
// unique, edges reference existing nodes, at least one entry node exists, and
// no cycle is reachable from an entry node.
func (d *Definition) Validate() error {
	if len(d.Nodes) == 0 {
		return &InvalidGraphError{Reason: "definition has no nodes"}
	}

	seen := map[string]bool{}
	for _, n := range d.Nodes {
		if n.ID == "" {
			return &InvalidGraphError{Reason: "node id must not be empty"}
		}
		if n.Task == "" {
			return &InvalidGraphError{Node: n.ID, Reason: "node has no task"}
		}
		if seen[n.ID] {
			return &InvalidGraphError{Node: n.ID, Reason: "duplicate node id"}
		}
		seen[n.ID] = true
	}

	for _, e := range d.Edges {
		if !seen[e.Source] {
			return &InvalidGraphError{Node: e.Source, Edge: e.String(), Reason: "edge references unknown source node"}
		}
		if !seen[e.Target] {
			return &InvalidGraphError{Node: e.Target, Edge: e.String(), Reason: "edge references unknown target node"}
		}
	}

	entries := d.EntryNodes()
	if len(entries) == 0 {
		return &InvalidGraphError{Reason: "definition has no entry node, every node has an incoming edge"}
	}

	// DFS from each entry node; a back edge means a cycle reachable from an
	// entry.
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[string]int{}

	var visit func(id string) error
	visit = func(id string) error {
		color[id] = gray
		for _, e := range d.Outgoing(id) {
			switch color[e.Target] {
			case gray:
				return &InvalidGraphError{Node: e.Target, Edge: e.String(), Reason: "cycle detected"}
			case white:
				if err := visit(e.Target); err != nil {
					return err
				}
			}
		}
		color[id] = black
		return nil
	}

	for _, entry := range entries {
		if color[entry] == white {
			if err := visit(entry); err != nil {
				return err
			}
		}
	}

	return nil
}
