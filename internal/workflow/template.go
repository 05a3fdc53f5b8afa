package workflow

import (
	"fmt"
	"strings"
)

// Template is a prebuilt workflow described as an ordered list of step
// labels.
type Template struct {
	Name  string   `json:"name"`
	Steps []string `json:"steps"`
}

const (
	aiToolNodeID    = "ai-tool-1"
	aiToolNodeLabel = "OpenAI Model"
)

var templatePositions = []Position{
	{X: 150, Y: 280},
	{X: 400, Y: 180},
	{X: 650, Y: 180},
	{X: 900, Y: 180},
}

// NodePosition returns the default canvas position of the i-th template step.
func NodePosition(i int) Position {
	if i >= 0 && i < len(templatePositions) {
		return templatePositions[i]
	}
	return Position{X: 150 + float64(i)*250, Y: 280}
}

// BuildInitialFlow turns a template into a linear graph. configured lists the
// steps (by index) that already have a working configuration. A step that
// generates content with AI gets a model node spliced in right after it.
func BuildInitialFlow(tpl Template, configured map[int]bool) Graph {
	g := Graph{
		Nodes: make([]Node, 0, len(tpl.Steps)+1),
		Edges: make([]Edge, 0, len(tpl.Steps)),
	}

	aiIndex := -1
	for i, label := range tpl.Steps {
		g.Nodes = append(g.Nodes, Node{
			ID:           fmt.Sprintf("step-%d", i),
			StepNumber:   intPtr(i + 1),
			Label:        label,
			IsConfigured: configured[i],
			Position:     NodePosition(i),
		})
		if i > 0 {
			g.Edges = append(g.Edges, Edge{
				ID:     fmt.Sprintf("edge-%d-%d", i-1, i),
				Source: fmt.Sprintf("step-%d", i-1),
				Target: fmt.Sprintf("step-%d", i),
			})
		}
		if aiIndex < 0 && strings.Contains(strings.ToLower(label), "ai generate") {
			aiIndex = i
		}
	}

	if aiIndex >= 0 {
		anchor := g.Nodes[aiIndex]
		g.Drop(Node{
			ID:    aiToolNodeID,
			Label: aiToolNodeLabel,
			Position: Position{
				X: anchor.Position.X + 125,
				Y: anchor.Position.Y + 160,
			},
		}, anchor.ID)
	}

	return g
}
