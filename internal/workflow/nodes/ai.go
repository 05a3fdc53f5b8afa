package nodes

import (
	"context"
	"fmt"

	"autoflow/internal/workflow"
	"autoflow/pkg"
)

const defaultGeneratePrompt = "Summarize:\n\n{{emails}}"

func (h *handlers) aiGenerate(_ context.Context, node workflow.Node, run *workflow.ExecutionContext) (workflow.Delta, error) {
	tpl := node.Config.String("prompt")
	if tpl == "" {
		tpl = defaultGeneratePrompt
	}
	return workflow.PromptDelta(workflow.RenderPrompt(tpl, run.TriggerData)), nil
}

// model returns the handler calling the completer registered for provider.
// Credentials come from the node config, else from its connection.
func (h *handlers) model(provider workflow.Provider, name string) workflow.Handler {
	return workflow.HandlerFunc(func(ctx context.Context, node workflow.Node, run *workflow.ExecutionContext) (workflow.Delta, error) {
		req := pkg.ChatRequest{
			APIKey:   node.Config.String("apiKey"),
			Endpoint: node.Config.String("apiEndpoint"),
			Model:    node.Config.String("model"),
		}

		if req.APIKey == "" {
			if connectionID := node.Config.String("connectionId"); connectionID != "" {
				conn, err := h.resolve(ctx, connectionID)
				if err != nil {
					return workflow.Delta{}, err
				}
				req.APIKey = conn.AccessToken
				if req.Endpoint == "" {
					req.Endpoint = conn.Meta("endpoint")
				}
				if req.Model == "" {
					req.Model = conn.Meta("model")
				}
			}
		}
		if req.APIKey == "" && provider != workflow.ProviderOllama {
			return workflow.Delta{}, pkg.MissingAPIKey(name)
		}

		completer, ok := h.deps.Models[provider]
		if !ok || completer == nil {
			return workflow.Delta{}, fmt.Errorf("no %s client configured", name)
		}

		req.Prompt = run.Prompt
		if req.Prompt == "" {
			req.Prompt = workflow.RenderPrompt("", run.TriggerData)
		}
		output, err := completer.Complete(ctx, req)
		if err != nil {
			return workflow.Delta{}, err
		}
		return workflow.AIDelta(string(provider), output, req.Prompt), nil
	})
}
