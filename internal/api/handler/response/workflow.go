package response

import (
	"time"

	"autoflow/internal/workflow"
)

type Graph struct {
	Nodes []workflow.Node `json:"nodes"`
	Edges []workflow.Edge `json:"edges"`
}

// Sort is the execution order of a graph. Fallback lists the nodes that were
// appended in declared order because they sit on a cycle.
type Sort struct {
	Nodes    []workflow.Node `json:"nodes"`
	HasCycle bool            `json:"hasCycle"`
	Fallback []string        `json:"fallback"`
}

// Insert is the graph after a node drop, with the stored node.
type Insert struct {
	Graph
	Node workflow.Node `json:"node"`
}

// Run is the outcome of one execution.
type Run struct {
	RunID      string              `json:"runId"`
	WorkflowID string              `json:"workflowId"`
	Summary    workflow.RunSummary `json:"summary"`
}

// Workflow is a saved graph with its schedule state.
type Workflow struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Nodes     []workflow.Node `json:"nodes"`
	Edges     []workflow.Edge `json:"edges"`
	Schedule  string          `json:"schedule,omitempty"`
	Active    bool            `json:"active"`
	NextRunAt *time.Time      `json:"nextRunAt,omitempty"`
	LastRunAt *time.Time      `json:"lastRunAt,omitempty"`
	UpdatedAt time.Time       `json:"updatedAt"`
}
