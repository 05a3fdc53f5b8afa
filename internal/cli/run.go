package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"autoflow/internal/workflow"
	"autoflow/internal/workflow/nodes"
	"autoflow/pkg"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func (a *app) runCommand() *cobra.Command {
	var (
		inputFile   string
		stopIfEmpty []string
	)

	cmd := &cobra.Command{
		Use:   "run <graph.json|->",
		Short: "Execute a graph locally",
		Long: `Execute a graph with the same handlers as the API. Nodes must carry
their credentials inline (apiKey, webhookUrl, ...) since flowctl has no
access to stored connections.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := readGraph(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			opts := workflow.RunOptions{StopIfEmptyTriggerProviders: stopIfEmpty}
			if inputFile != "" {
				raw, err := os.ReadFile(inputFile)
				if err != nil {
					return fmt.Errorf("failed to read input: %w", err)
				}
				if !json.Valid(raw) {
					return fmt.Errorf("input %s is not valid JSON", inputFile)
				}
				opts.Input = raw
			}

			engine := workflow.NewEngine(a.logger)
			nodes.Register(engine, nodes.DepsFromConfig(a.appConfig(), nil))

			ctx := workflow.WithRunInfo(cmd.Context(), workflow.RunInfo{WorkflowID: "local", RunID: uuid.NewString()})
			summary := engine.Execute(ctx, g.Nodes, g.Edges, opts)
			if err := pkg.PrettyPrint(cmd.OutOrStdout(), summary); err != nil {
				return err
			}

			if failed, ok := summary.Failed(); ok {
				return fmt.Errorf("step %d (%s) failed: %s", failed.StepNumber, failed.Label, failed.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&inputFile, "input", "i", "", "JSON payload handed to webhook triggers")
	cmd.Flags().StringSliceVar(&stopIfEmpty, "stop-if-empty", nil, "trigger providers that end the run when they find nothing")
	return cmd
}
