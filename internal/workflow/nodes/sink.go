package nodes

import (
	"context"
	"errors"
	"strings"

	"autoflow/internal/workflow"
	"autoflow/pkg"
)

const defaultEmailSubject = "Workflow summary"

// webhookURL reads the URL from the node config, else from the metadata of
// its connection.
func (h *handlers) webhookURL(ctx context.Context, node workflow.Node) (string, error) {
	if url := node.Config.String("webhookUrl"); url != "" {
		return url, nil
	}
	connectionID := node.Config.String("connectionId")
	if connectionID == "" {
		return "", nil
	}
	conn, err := h.resolve(ctx, connectionID)
	if err != nil {
		return "", err
	}
	return conn.Meta("webhook_url", "webhookUrl"), nil
}

func (h *handlers) discord(ctx context.Context, node workflow.Node, run *workflow.ExecutionContext) (workflow.Delta, error) {
	url, err := h.webhookURL(ctx, node)
	if err != nil {
		return workflow.Delta{}, err
	}
	if url == "" {
		return workflow.SinkDelta(softFailure("Discord webhook URL missing."), nil), nil
	}
	if h.deps.Webhooks == nil {
		return workflow.Delta{}, errors.New("webhook client not configured")
	}

	content := contentOf(run)
	if err := h.deps.Webhooks.PostDiscord(ctx, url, content); err != nil {
		return workflow.Delta{}, err
	}
	return workflow.SinkDelta(sent(workflow.ProviderDiscord), map[string]any{"content": content}), nil
}

func (h *handlers) slack(ctx context.Context, node workflow.Node, run *workflow.ExecutionContext) (workflow.Delta, error) {
	url, err := h.webhookURL(ctx, node)
	if err != nil {
		return workflow.Delta{}, err
	}
	if url == "" {
		return workflow.SinkDelta(softFailure("Slack webhook URL missing."), nil), nil
	}
	if h.deps.Webhooks == nil {
		return workflow.Delta{}, errors.New("webhook client not configured")
	}

	text := contentOf(run)
	if err := h.deps.Webhooks.PostSlack(ctx, url, text); err != nil {
		return workflow.Delta{}, err
	}
	return workflow.SinkDelta(sent(workflow.ProviderSlack), map[string]any{"text": text}), nil
}

func (h *handlers) httpRequest(ctx context.Context, node workflow.Node, run *workflow.ExecutionContext) (workflow.Delta, error) {
	url := node.Config.String("url")
	if url == "" {
		return workflow.SinkDelta(softFailure("HTTP Request URL missing."), nil), nil
	}
	if h.deps.Webhooks == nil {
		return workflow.Delta{}, errors.New("webhook client not configured")
	}

	emails := run.TriggerData
	if emails == nil {
		emails = []workflow.Record{}
	}
	payload := map[string]any{"summary": run.AIOutput, "emails": emails}

	result, err := h.deps.Webhooks.Send(ctx, pkg.HTTPRequest{
		URL:        url,
		Method:     node.Config.String("method"),
		Headers:    node.Config.StringMap("headers"),
		Payload:    payload,
		ResultPath: node.Config.String("resultPath"),
	})
	if err != nil {
		return workflow.Delta{}, err
	}
	return workflow.SinkDelta(result, payload), nil
}

func (h *handlers) email(ctx context.Context, node workflow.Node, run *workflow.ExecutionContext) (workflow.Delta, error) {
	to := splitAddresses(node.Config.String("to"))
	if len(to) == 0 {
		return workflow.SinkDelta(softFailure("Email recipient missing."), nil), nil
	}
	if h.deps.Mailer == nil {
		return workflow.Delta{}, errors.New("mailer not configured")
	}

	subject := node.Config.String("subject")
	if subject == "" {
		subject = defaultEmailSubject
	}
	msg := pkg.EmailMessage{
		To:      to,
		CC:      splitAddresses(node.Config.String("cc")),
		Subject: subject,
		Body:    contentOf(run),
	}
	if err := h.deps.Mailer.Send(ctx, h.deps.SMTP, msg); err != nil {
		return workflow.Delta{}, err
	}
	return workflow.SinkDelta(sent(workflow.ProviderEmail), msg), nil
}

func splitAddresses(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if addr := strings.TrimSpace(part); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}
