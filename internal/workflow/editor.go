package workflow

import (
	"errors"
	"fmt"
)

var ErrDuplicateEdge = errors.New("edge already exists")

// InsertionStep returns the step number a node dropped onto the canvas will
// take: right after the selected step node, or at the end of the chain.
func InsertionStep(nodes []Node, selectedID string) int {
	if selectedID != "" {
		for _, n := range nodes {
			if n.ID == selectedID && n.HasStep() {
				return *n.StepNumber + 1
			}
		}
	}
	return countSteps(nodes) + 1
}

// InsertNode adds node to the graph at the insertion step derived from
// selectedID. Step nodes at or after that step are shifted by one, the new
// node starts unconfigured, and the result is reindexed against edges.
func InsertNode(nodes []Node, edges []Edge, node Node, selectedID string) []Node {
	step := InsertionStep(nodes, selectedID)

	out := make([]Node, 0, len(nodes)+1)
	for _, n := range nodes {
		if n.HasStep() && *n.StepNumber >= step {
			n.StepNumber = intPtr(*n.StepNumber + 1)
		}
		out = append(out, n)
	}

	node.StepNumber = intPtr(step)
	node.IsConfigured = false
	node.Config = nil
	out = append(out, node)

	return Reindex(out, edges)
}

// RewireEdges splices newID between sourceID and every node sourceID used to
// point to. Edges not leaving sourceID are kept in place.
func RewireEdges(edges []Edge, sourceID, newID string) []Edge {
	out := make([]Edge, 0, len(edges)+2)
	targets := make([]string, 0)
	for _, e := range edges {
		if e.Source == sourceID {
			targets = append(targets, e.Target)
			continue
		}
		out = append(out, e)
	}

	out = append(out, Edge{ID: EdgeID(sourceID, newID), Source: sourceID, Target: newID})
	for _, target := range targets {
		out = append(out, Edge{ID: EdgeID(newID, target), Source: newID, Target: target})
	}
	return out
}

// Connect appends edge, refusing ids that already exist.
func Connect(edges []Edge, edge Edge) ([]Edge, error) {
	if edge.ID == "" {
		edge.ID = EdgeID(edge.Source, edge.Target)
	}
	for _, e := range edges {
		if e.ID == edge.ID {
			return edges, fmt.Errorf("%w: %s", ErrDuplicateEdge, edge.ID)
		}
	}
	out := make([]Edge, len(edges), len(edges)+1)
	copy(out, edges)
	return append(out, edge), nil
}

// Drop inserts node into the graph the way the editor does when a node is
// dropped on the canvas. With a selected node the new node is wired between
// it and its former targets, and step numbers are normalized again.
func (g *Graph) Drop(node Node, selectedID string) Node {
	g.Nodes = InsertNode(g.Nodes, g.Edges, node, selectedID)

	if selectedID != "" {
		if _, ok := g.Node(selectedID); ok {
			g.Edges = RewireEdges(g.Edges, selectedID, node.ID)
			g.Nodes = Reindex(g.Nodes, g.Edges)
		}
	}

	inserted, _ := g.Node(node.ID)
	return inserted
}

// Connect adds an edge between two existing nodes and renumbers the steps.
func (g *Graph) Connect(edge Edge) error {
	edges, err := Connect(g.Edges, edge)
	if err != nil {
		return err
	}
	g.Edges = edges
	g.Nodes = Reindex(g.Nodes, g.Edges)
	return nil
}

// Move updates the canvas position of a node. Positions break ties in the
// step chain, so steps are renumbered.
func (g *Graph) Move(id string, pos Position) bool {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			g.Nodes[i].Position = pos
			g.Nodes = Reindex(g.Nodes, g.Edges)
			return true
		}
	}
	return false
}

// Configure replaces the configuration of a node and marks it configured.
func (g *Graph) Configure(id string, cfg Config) bool {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			g.Nodes[i].Config = cfg
			g.Nodes[i].IsConfigured = true
			return true
		}
	}
	return false
}
