package compile

import (
	"fmt"
	"sort"

	"flowforge/graph"
)

// Compile validates the definition and translates it into a plan. All
// structural problems are reported here, before any task executes; a
// malformed graph never reaches a worker.
func Compile(def *graph.Definition) (*Plan, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	c := &compiler{def: def}

	entries := def.EntryNodes()

	if len(entries) == 1 {
		root, join, err := c.chain(entries[0])
		if err != nil {
			return nil, err
		}
		if join != "" {
			return nil, &graph.InvalidGraphError{Node: join, Reason: "join node is not fed by a single branch group"}
		}
		return &Plan{Root: root}, nil
	}

	// Multiple entry nodes behave like branches of a virtual branch point:
	// every ingress item is cloned into each entry.
	group, err := c.converge(entries)
	if err != nil {
		return nil, err
	}

	last := group
	if last.Kind == KindSequence && len(last.Steps) > 0 {
		last = last.Steps[len(last.Steps)-1]
	}
	if last.Kind != KindMerge {
		return &Plan{Root: group}, nil
	}

	// The entries converged on a join; continue with the join node's own
	// task on the merged item.
	rest, join, err := c.chain(last.NodeID)
	if err != nil {
		return nil, err
	}
	if join != "" {
		return nil, &graph.InvalidGraphError{Node: join, Reason: "join node is not fed by a single branch group"}
	}

	steps := append([]*Step{}, group.Steps...)
	if rest.Kind == KindSequence {
		steps = append(steps, rest.Steps...)
	} else {
		steps = append(steps, rest)
	}

	return &Plan{Root: &Step{Kind: KindSequence, Steps: steps}}, nil
}

type compiler struct {
	def *graph.Definition
}

// chain compiles the linear run starting at nodeID. It stops before entering
// a join node (fan-in > 1) and reports that node's id so the caller can
// coordinate the merge; join == "" means the chain ran to a terminal node.
func (c *compiler) chain(nodeID string) (step *Step, join string, err error) {
	var steps []*Step
	cur := nodeID

	for {
		node, ok := c.def.Node(cur)
		if !ok {
			return nil, "", &graph.InvalidGraphError{Node: cur, Reason: "node not found"}
		}

		if node.Task == RouterTask {
			route, err := c.router(node)
			if err != nil {
				return nil, "", err
			}
			steps = append(steps, route)
			return sequence(steps), "", nil
		}

		steps = append(steps, invokeStep(node))

		out := c.def.Outgoing(cur)
		switch len(out) {
		case 0:
			return sequence(steps), "", nil

		case 1:
			next := out[0].Target
			if c.def.FanIn(next) > 1 {
				return sequence(steps), next, nil
			}
			cur = next

		default:
			targets := make([]string, len(out))
			for i, e := range out {
				targets[i] = e.Target
			}

			group, err := c.converge(targets)
			if err != nil {
				return nil, "", err
			}
			steps = append(steps, group)

			last := group
			if last.Kind == KindSequence && len(last.Steps) > 0 {
				last = last.Steps[len(last.Steps)-1]
			}
			if last.Kind != KindMerge {
				// Branches never rejoin; the group is terminal.
				return sequence(steps), "", nil
			}

			// The group converged and merged; continue with the join node's
			// own task on the merged item.
			joinNode, _ := c.def.Node(last.NodeID)
			cur = joinNode.ID

			// converge already appended the merge; hoist its inner steps so
			// the plan stays flat.
			steps = steps[:len(steps)-1]
			steps = append(steps, group.Steps...)
		}
	}
}

// converge compiles a set of sibling branches. When every branch feeds the
// same join node and accounts for all of that node's inputs, the result is
// sequence(parallel(branches), merge(join)); when no branch feeds a join, it
// is a terminal parallel group. Anything in between is a structural error.
func (c *compiler) converge(targets []string) (*Step, error) {
	branches := make([]*Step, 0, len(targets))
	joins := make([]string, 0, len(targets))

	for _, target := range targets {
		if c.def.FanIn(target) > 1 {
			// Direct edge into the join: the branch passes its clone through.
			branches = append(branches, &Step{Kind: KindSequence})
			joins = append(joins, target)
			continue
		}

		branch, join, err := c.chain(target)
		if err != nil {
			return nil, err
		}
		branches = append(branches, branch)
		joins = append(joins, join)
	}

	join := joins[0]
	for _, j := range joins[1:] {
		if j != join {
			return nil, &graph.InvalidGraphError{
				Node:   firstNonEmpty(joins),
				Reason: "unsupported join topology, sibling branches must either all converge on the same join node or not converge at all",
			}
		}
	}

	parallel := &Step{Kind: KindParallel, Branches: branches}

	if join == "" {
		return parallel, nil
	}

	if fanIn := c.def.FanIn(join); fanIn != len(branches) {
		return nil, &graph.InvalidGraphError{
			Node:   join,
			Reason: fmt.Sprintf("join node expects %d inputs but the branch group provides %d", fanIn, len(branches)),
		}
	}

	joinNode, _ := c.def.Node(join)

	return &Step{
		Kind:  KindSequence,
		Steps: []*Step{parallel, mergeStep(joinNode, len(branches))},
	}, nil
}

// router compiles a router node: each outgoing edge with a route index pairs
// the corresponding configured condition with its branch; edges without a
// route index become the default route. Router branches must not feed joins.
func (c *compiler) router(node graph.Node) (*Step, error) {
	type indexedRoute struct {
		index int
		route Route
	}

	var indexed []indexedRoute
	var defaults []Route

	conditions, _ := node.Config["conditions"].([]any)

	for _, e := range c.def.Outgoing(node.ID) {
		branch, join, err := c.chain(e.Target)
		if err != nil {
			return nil, err
		}
		if join != "" {
			return nil, &graph.InvalidGraphError{
				Node:   node.ID,
				Edge:   e.String(),
				Reason: "router branches must not converge on a join node",
			}
		}

		ri := e.RouteIndex()
		if ri < 0 {
			defaults = append(defaults, Route{Branch: branch})
			continue
		}

		if ri >= len(conditions) {
			return nil, &graph.InvalidGraphError{
				Node:   node.ID,
				Edge:   e.String(),
				Reason: fmt.Sprintf("route index %d has no configured condition", ri),
			}
		}

		condition, err := parseCondition(conditions[ri])
		if err != nil {
			return nil, &graph.InvalidGraphError{Node: node.ID, Reason: err.Error()}
		}

		indexed = append(indexed, indexedRoute{index: ri, route: Route{Condition: condition, Branch: branch}})
	}

	sort.SliceStable(indexed, func(a, b int) bool { return indexed[a].index < indexed[b].index })

	routes := make([]Route, 0, len(indexed)+len(defaults))
	for _, ir := range indexed {
		routes = append(routes, ir.route)
	}
	routes = append(routes, defaults...)

	return &Step{
		Kind:   KindRoute,
		NodeID: node.ID,
		Task:   node.Task,
		Label:  node.Label,
		Routes: routes,
	}, nil
}

func parseCondition(v any) (*Condition, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("route condition must be an object")
	}

	field, _ := m["field"].(string)
	if field == "" {
		return nil, fmt.Errorf("route condition has no field")
	}

	op, _ := m["op"].(string)
	if op == "" {
		op = "eq"
	}

	return &Condition{Field: field, Op: op, Value: m["value"]}, nil
}

func invokeStep(node graph.Node) *Step {
	retryable, _ := node.Config["retryable"].(bool)
	maxAttempts := intConfig(node.Config, "max_attempts")

	return &Step{
		Kind:        KindInvoke,
		NodeID:      node.ID,
		Task:        node.Task,
		Label:       node.Label,
		Config:      node.Config,
		Retryable:   retryable,
		MaxAttempts: maxAttempts,
	}
}

func mergeStep(node graph.Node, expectedInputs int) *Step {
	policy := MergeLastWriterWins
	if p, ok := node.Config["merge_policy"].(string); ok && p != "" {
		policy = MergePolicy(p)
	}

	return &Step{
		Kind:           KindMerge,
		NodeID:         node.ID,
		Label:          node.Label,
		ExpectedInputs: expectedInputs,
		Policy:         policy,
	}
}

func sequence(steps []*Step) *Step {
	if len(steps) == 1 {
		return steps[0]
	}
	return &Step{Kind: KindSequence, Steps: steps}
}

func firstNonEmpty(values []string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func intConfig(config map[string]any, key string) int {
	switch v := config[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
