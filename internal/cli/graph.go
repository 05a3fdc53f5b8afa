package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"autoflow/internal/workflow"
	"autoflow/pkg"

	"github.com/spf13/cobra"
)

type graphFile struct {
	Nodes []workflow.Node `json:"nodes"`
	Edges []workflow.Edge `json:"edges"`
}

type sortOutput struct {
	Nodes    []workflow.Node `json:"nodes"`
	HasCycle bool            `json:"hasCycle"`
	Fallback []string        `json:"fallback"`
}

// readGraph loads a graph from path, or from stdin when path is "-".
func readGraph(stdin io.Reader, path string) (graphFile, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return graphFile{}, fmt.Errorf("failed to open graph: %w", err)
		}
		defer f.Close()
		r = f
	}

	var g graphFile
	if err := json.NewDecoder(r).Decode(&g); err != nil {
		return graphFile{}, fmt.Errorf("failed to decode graph: %w", err)
	}
	return g, nil
}

func (a *app) sortCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sort <graph.json|->",
		Short: "Print the execution order of a graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := readGraph(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			ordering := workflow.TopologicalOrder(g.Nodes, g.Edges)
			if ordering.HasCycle() {
				a.logger.Warn().Strs("nodeIds", ordering.Fallback).Msg("Graph has a cycle")
			}
			out := sortOutput{Nodes: ordering.Nodes, HasCycle: ordering.HasCycle(), Fallback: ordering.Fallback}
			if out.Fallback == nil {
				out.Fallback = []string{}
			}
			return pkg.PrettyPrint(cmd.OutOrStdout(), out)
		},
	}
}

func (a *app) reindexCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex <graph.json|->",
		Short: "Renumber the steps of a graph along its edges",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := readGraph(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			g.Nodes = workflow.Reindex(g.Nodes, g.Edges)
			return pkg.PrettyPrint(cmd.OutOrStdout(), g)
		},
	}
}
