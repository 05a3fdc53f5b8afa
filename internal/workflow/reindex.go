package workflow

import "sort"

// stepCandidate is a step node with its input position, used to break ties
// deterministically.
type stepCandidate struct {
	node  Node
	index int
}

// byPosition orders candidates left to right, then top to bottom, then by
// input order.
func byPosition(a, b stepCandidate) bool {
	if a.node.Position.X != b.node.Position.X {
		return a.node.Position.X < b.node.Position.X
	}
	if a.node.Position.Y != b.node.Position.Y {
		return a.node.Position.Y < b.node.Position.Y
	}
	return a.index < b.index
}

// Reindex recomputes step numbers of the nodes that carry one so that they
// follow the primary left to right chain of the graph. Nodes without a step
// number are returned untouched, as are nodes whose number does not change.
func Reindex(nodes []Node, edges []Edge) []Node {
	steps := make(map[string]stepCandidate)
	order := make([]stepCandidate, 0, len(nodes))
	for i, n := range nodes {
		if !n.HasStep() {
			continue
		}
		if _, exists := steps[n.ID]; exists {
			continue
		}
		c := stepCandidate{node: n, index: i}
		steps[n.ID] = c
		order = append(order, c)
	}
	if len(order) == 0 {
		return nodes
	}

	inDegree := make(map[string]int, len(order))
	successors := make(map[string][]stepCandidate, len(order))
	for _, e := range edges {
		src, okSrc := steps[e.Source]
		dst, okDst := steps[e.Target]
		if !okSrc || !okDst {
			continue
		}
		successors[src.node.ID] = append(successors[src.node.ID], dst)
		inDegree[dst.node.ID]++
	}

	chain := walkChain(order, inDegree, successors)

	numbers := make(map[string]int, len(order))
	for i, id := range chain {
		numbers[id] = i + 1
	}

	remaining := make([]stepCandidate, 0)
	for _, c := range order {
		if _, reached := numbers[c.node.ID]; !reached {
			remaining = append(remaining, c)
		}
	}
	sort.SliceStable(remaining, func(i, j int) bool {
		return byPosition(remaining[i], remaining[j])
	})
	for _, c := range remaining {
		numbers[c.node.ID] = len(numbers) + 1
	}

	out := make([]Node, len(nodes))
	for i, n := range nodes {
		out[i] = n
		if !n.HasStep() {
			continue
		}
		next, ok := numbers[n.ID]
		if !ok || *n.StepNumber == next {
			continue
		}
		out[i].StepNumber = intPtr(next)
	}
	return out
}

// walkChain picks the start node and follows the leftmost unvisited successor
// until the chain ends.
func walkChain(order []stepCandidate, inDegree map[string]int, successors map[string][]stepCandidate) []string {
	var start *stepCandidate
	for i := range order {
		c := order[i]
		if inDegree[c.node.ID] != 0 {
			continue
		}
		if start == nil || byPosition(c, *start) {
			start = &order[i]
		}
	}
	if start == nil {
		// every step node has an incoming step edge, start from the leftmost
		for i := range order {
			if start == nil || byPosition(order[i], *start) {
				start = &order[i]
			}
		}
	}

	visited := map[string]bool{start.node.ID: true}
	chain := []string{start.node.ID}
	current := start.node.ID
	for {
		var next *stepCandidate
		for _, c := range successors[current] {
			if visited[c.node.ID] {
				continue
			}
			if next == nil || byPosition(c, *next) {
				candidate := c
				next = &candidate
			}
		}
		if next == nil {
			return chain
		}
		visited[next.node.ID] = true
		chain = append(chain, next.node.ID)
		current = next.node.ID
	}
}
