package workflow

import (
	"fmt"
	"strings"
)

// Position is the canvas coordinate of a node.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Config is the provider specific configuration of a node. The engine never
// validates it, handlers do.
type Config map[string]any

// String returns the trimmed string value stored under key, or "".
func (c Config) String(key string) string {
	if c == nil {
		return ""
	}
	switch v := c[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// StringMap returns the map stored under key with every value stringified.
func (c Config) StringMap(key string) map[string]string {
	out := make(map[string]string)
	raw, ok := c[key].(map[string]any)
	if !ok {
		if typed, ok := c[key].(map[string]string); ok {
			return typed
		}
		return out
	}
	for k, v := range raw {
		out[k] = fmt.Sprint(v)
	}
	return out
}

// Node is one step of a workflow graph.
type Node struct {
	ID           string   `json:"id"`
	StepNumber   *int     `json:"stepNumber"`
	Label        string   `json:"label"`
	Config       Config   `json:"config"`
	IsConfigured bool     `json:"isConfigured"`
	Position     Position `json:"position"`
}

// HasStep reports whether the node takes part in step numbering.
func (n Node) HasStep() bool {
	return n.StepNumber != nil
}

// Step returns the step number or 0 when the node has none.
func (n Node) Step() int {
	if n.StepNumber == nil {
		return 0
	}
	return *n.StepNumber
}

// Edge is a directed dependency between two nodes.
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// EdgeID builds the identifier used for edges created by the editor.
func EdgeID(source, target string) string {
	return fmt.Sprintf("edge-%s-%s", source, target)
}

// Graph is a snapshot of the nodes and edges owned by an editor session.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// StepCount returns how many nodes carry a step number.
func (g *Graph) StepCount() int {
	return countSteps(g.Nodes)
}

func countSteps(nodes []Node) int {
	count := 0
	for _, n := range nodes {
		if n.HasStep() {
			count++
		}
	}
	return count
}

func intPtr(v int) *int {
	return &v
}
