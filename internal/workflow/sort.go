package workflow

// Ordering is the result of a topological sort. Fallback lists, in output
// order, the ids that could not be ordered by their dependencies (cycles) and
// were appended by fallbackOrder.
type Ordering struct {
	Nodes    []Node
	Fallback []string
}

// HasCycle reports whether some nodes had to be appended without honoring
// their dependencies.
func (o Ordering) HasCycle() bool {
	return len(o.Fallback) > 0
}

// Sort orders nodes so that every edge source comes before its target. It
// never fails: nodes caught in a cycle are appended in input order.
func Sort(nodes []Node, edges []Edge) []Node {
	return TopologicalOrder(nodes, edges).Nodes
}

// TopologicalOrder runs Kahn's algorithm over nodes and edges. Zero in-degree
// nodes are emitted in input order and successors are released in edge order,
// so the result is deterministic for a given input. Edges that reference an
// unknown id are ignored.
func TopologicalOrder(nodes []Node, edges []Edge) Ordering {
	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		if _, exists := index[n.ID]; !exists {
			index[n.ID] = i
		}
	}

	inDegree := make([]int, len(nodes))
	successors := make([][]int, len(nodes))
	for _, e := range edges {
		src, okSrc := index[e.Source]
		dst, okDst := index[e.Target]
		if !okSrc || !okDst {
			continue
		}
		successors[src] = append(successors[src], dst)
		inDegree[dst]++
	}

	queue := make([]int, 0, len(nodes))
	for i := range nodes {
		if inDegree[i] == 0 {
			queue = append(queue, i)
		}
	}

	emitted := make([]bool, len(nodes))
	ordered := make([]Node, 0, len(nodes))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if emitted[current] {
			continue
		}
		emitted[current] = true
		ordered = append(ordered, nodes[current])

		for _, next := range successors[current] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(ordered) == len(nodes) {
		return Ordering{Nodes: ordered}
	}
	rest := fallbackOrder(nodes, emitted)
	fallback := make([]string, 0, len(rest))
	for _, n := range rest {
		fallback = append(fallback, n.ID)
	}
	return Ordering{Nodes: append(ordered, rest...), Fallback: fallback}
}

// fallbackOrder returns the nodes that were never emitted, keeping their
// relative input order.
func fallbackOrder(nodes []Node, emitted []bool) []Node {
	rest := make([]Node, 0)
	for i, n := range nodes {
		if !emitted[i] {
			rest = append(rest, n)
		}
	}
	return rest
}
