package workflow

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nodesOf(ids ...string) []Node {
	nodes := make([]Node, 0, len(ids))
	for _, id := range ids {
		nodes = append(nodes, Node{ID: id, Label: id})
	}
	return nodes
}

func edge(source, target string) Edge {
	return Edge{ID: EdgeID(source, target), Source: source, Target: target}
}

func idsOf(nodes []Node) []string {
	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	return ids
}

func assertRespectsEdges(t *testing.T, ordered []Node, edges []Edge) {
	t.Helper()
	pos := make(map[string]int, len(ordered))
	for i, n := range ordered {
		pos[n.ID] = i
	}
	for _, e := range edges {
		src, okSrc := pos[e.Source]
		dst, okDst := pos[e.Target]
		if !okSrc || !okDst {
			continue
		}
		assert.Less(t, src, dst, "edge %s -> %s", e.Source, e.Target)
	}
}

func TestSort(t *testing.T) {
	tests := []struct {
		name  string
		nodes []Node
		edges []Edge
		want  []string
	}{
		{
			name:  "linear chain declared backwards",
			nodes: nodesOf("c", "b", "a"),
			edges: []Edge{edge("a", "b"), edge("b", "c")},
			want:  []string{"a", "b", "c"},
		},
		{
			name:  "independent nodes keep input order",
			nodes: nodesOf("x", "y", "z"),
			want:  []string{"x", "y", "z"},
		},
		{
			name:  "fan out releases successors in edge order",
			nodes: nodesOf("root", "left", "right", "join"),
			edges: []Edge{edge("root", "right"), edge("root", "left"), edge("left", "join"), edge("right", "join")},
			want:  []string{"root", "right", "left", "join"},
		},
		{
			name:  "edges to unknown nodes are ignored",
			nodes: nodesOf("b", "a"),
			edges: []Edge{edge("ghost", "b"), edge("a", "phantom"), edge("a", "b")},
			want:  []string{"a", "b"},
		},
		{
			name:  "empty graph",
			nodes: nil,
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sort(tt.nodes, tt.edges)
			assert.Equal(t, tt.want, idsOf(got))
			assertRespectsEdges(t, got, tt.edges)
		})
	}
}

func TestTopologicalOrder_CycleUsesFallback(t *testing.T) {
	nodes := nodesOf("start", "loop1", "loop2", "after")
	edges := []Edge{
		edge("start", "loop1"),
		edge("loop1", "loop2"),
		edge("loop2", "loop1"),
		edge("loop2", "after"),
	}

	ordering := TopologicalOrder(nodes, edges)

	require.True(t, ordering.HasCycle())
	assert.Equal(t, []string{"loop1", "loop2", "after"}, ordering.Fallback)
	assert.Equal(t, []string{"start", "loop1", "loop2", "after"}, idsOf(ordering.Nodes))
}

func TestSort_IsPermutationForCyclicGraphs(t *testing.T) {
	for size := 2; size <= 8; size++ {
		t.Run(fmt.Sprintf("ring of %d", size), func(t *testing.T) {
			ids := make([]string, size)
			for i := range ids {
				ids[i] = fmt.Sprintf("n%d", i)
			}
			nodes := nodesOf(ids...)
			edges := make([]Edge, 0, size)
			for i := range ids {
				edges = append(edges, edge(ids[i], ids[(i+1)%size]))
			}

			got := Sort(nodes, edges)

			require.Len(t, got, size)
			assert.ElementsMatch(t, ids, idsOf(got))
		})
	}
}

func TestSort_DAGRespectsEveryEdge(t *testing.T) {
	// layered DAG where every node points to all nodes of the next layer,
	// declared in reverse to make sure ordering comes from the edges
	layers := [][]string{{"a1", "a2"}, {"b1", "b2", "b3"}, {"c1"}, {"d1", "d2"}}
	var ids []string
	var edges []Edge
	for l := len(layers) - 1; l >= 0; l-- {
		ids = append(ids, layers[l]...)
	}
	for l := 0; l < len(layers)-1; l++ {
		for _, src := range layers[l] {
			for _, dst := range layers[l+1] {
				edges = append(edges, edge(src, dst))
			}
		}
	}

	got := Sort(nodesOf(ids...), edges)

	require.Len(t, got, len(ids))
	assertRespectsEdges(t, got, edges)
	assert.False(t, TopologicalOrder(nodesOf(ids...), edges).HasCycle())
}
