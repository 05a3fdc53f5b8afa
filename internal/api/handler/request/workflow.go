package request

import (
	"encoding/json"

	"autoflow/internal/workflow"
)

// Graph carries the editor state sent by the canvas.
type Graph struct {
	Nodes []workflow.Node `json:"nodes"`
	Edges []workflow.Edge `json:"edges"`
}

// InsertNode drops a node into the chain after SelectedID, or appends it
// when no node is selected.
type InsertNode struct {
	Graph
	Node       workflow.Node `json:"node"`
	SelectedID string        `json:"selectedId"`
}

// ConnectNodes adds an edge drawn by the user.
type ConnectNodes struct {
	Graph
	Source string `json:"source" validate:"required"`
	Target string `json:"target" validate:"required,nefield=Source"`
}

// BuildTemplate builds the starting graph of a template.
type BuildTemplate struct {
	Name  string   `json:"name"`
	Steps []string `json:"steps" validate:"required,min=1,dive,required"`
	// Configured marks template steps (by index) whose node is already set up.
	Configured map[int]bool `json:"configured"`
}

// RunWorkflow starts an execution of the given graph.
type RunWorkflow struct {
	Graph
	StopIfEmptyTriggerProviders []string        `json:"stopIfEmptyTriggerProviders"`
	Input                       json.RawMessage `json:"input"`
}

// SaveWorkflow stores the graph of a workflow. Active turns on the scheduler
// for graphs starting with a schedule trigger.
type SaveWorkflow struct {
	Graph
	Name   string `json:"name" validate:"max=255"`
	Active bool   `json:"active"`
}
