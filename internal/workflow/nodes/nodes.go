// Package nodes holds the provider handlers plugged into the workflow engine.
package nodes

import (
	"context"
	"fmt"
	"strings"
	"time"

	"autoflow"
	"autoflow/internal/workflow"
	"autoflow/pkg"
)

// Connection is a stored third party account with its secrets decrypted.
type Connection struct {
	ID           string
	Platform     string
	AccessToken  string
	RefreshToken string
	Metadata     map[string]any
}

// Meta returns the trimmed string metadata value of the first key present.
func (c Connection) Meta(keys ...string) string {
	for _, key := range keys {
		if v, ok := c.Metadata[key]; ok && v != nil {
			if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
				return s
			}
		}
	}
	return ""
}

// ConnectionResolver loads connections referenced by node configs. Only
// connections owned by userID resolve.
type ConnectionResolver interface {
	Resolve(ctx context.Context, userID, connectionID string) (Connection, error)
	UpdateAccessToken(ctx context.Context, connectionID, accessToken string) error
}

type GmailLister interface {
	ListUnseen(ctx context.Context, creds pkg.InboxCredentials, onRefresh pkg.TokenRefreshed) ([]pkg.InboxMessage, error)
}

type IMAPLister interface {
	ListUnseen(ctx context.Context, account pkg.IMAPAccount) ([]pkg.InboxMessage, error)
}

type WebhookSender interface {
	PostDiscord(ctx context.Context, webhookURL, content string) error
	PostSlack(ctx context.Context, webhookURL, text string) error
	Send(ctx context.Context, req pkg.HTTPRequest) (any, error)
}

// Deps are the adapters the handlers call out to. A nil adapter makes the
// handlers depending on it fail at execution time.
type Deps struct {
	Connections ConnectionResolver
	Gmail       GmailLister
	IMAP        IMAPLister
	Models      map[workflow.Provider]pkg.ChatCompleter
	Webhooks    WebhookSender
	Mailer      pkg.Mailer
	SMTP        pkg.SMTPConfig
	Now         func() time.Time
}

// DefaultModels returns the SDK backed completers of every model provider.
func DefaultModels(ollamaHost string) map[workflow.Provider]pkg.ChatCompleter {
	return map[workflow.Provider]pkg.ChatCompleter{
		workflow.ProviderOpenAI: &pkg.OpenAIClient{},
		workflow.ProviderGemini: &pkg.GeminiClient{},
		workflow.ProviderClaude: &pkg.ClaudeClient{},
		workflow.ProviderOllama: &pkg.OllamaClient{Host: ollamaHost},
	}
}

// DepsFromConfig wires the production adapters. connections may be nil when
// every node carries its credentials in its config.
func DepsFromConfig(cfg autoflow.AppConfig, connections ConnectionResolver) Deps {
	return Deps{
		Connections: connections,
		Gmail: &pkg.GmailInbox{
			ClientID:     cfg.GoogleConfig.ClientID,
			ClientSecret: cfg.GoogleConfig.ClientSecret,
			TokenURL:     cfg.GoogleConfig.TokenURL,
		},
		IMAP:     &pkg.IMAPInbox{},
		Models:   DefaultModels(cfg.OllamaHost),
		Webhooks: pkg.NewWebhookClient(),
		Mailer:   &pkg.SMTPMailer{},
		SMTP: pkg.SMTPConfig{
			Host:     cfg.SMTPConfig.Host,
			Port:     cfg.SMTPConfig.Port,
			Username: cfg.SMTPConfig.Username,
			Password: cfg.SMTPConfig.Password,
			From:     cfg.SMTPConfig.From,
			UseTLS:   cfg.SMTPConfig.UseTLS,
		},
	}
}

// Register binds every provider handler to engine.
func Register(engine *workflow.Engine, deps Deps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	h := &handlers{deps: deps}

	engine.Register(workflow.ProviderGmail, workflow.HandlerFunc(h.gmail))
	engine.Register(workflow.ProviderWebhookTrigger, workflow.HandlerFunc(h.webhookTrigger))
	engine.Register(workflow.ProviderScheduleTrigger, workflow.HandlerFunc(h.scheduleTrigger))
	engine.Register(workflow.ProviderAIGenerate, workflow.HandlerFunc(h.aiGenerate))
	engine.Register(workflow.ProviderOpenAI, h.model(workflow.ProviderOpenAI, "OpenAI"))
	engine.Register(workflow.ProviderGemini, h.model(workflow.ProviderGemini, "Gemini"))
	engine.Register(workflow.ProviderClaude, h.model(workflow.ProviderClaude, "Claude"))
	engine.Register(workflow.ProviderOllama, h.model(workflow.ProviderOllama, "Ollama"))
	engine.Register(workflow.ProviderDiscord, workflow.HandlerFunc(h.discord))
	engine.Register(workflow.ProviderSlack, workflow.HandlerFunc(h.slack))
	engine.Register(workflow.ProviderHTTPRequest, workflow.HandlerFunc(h.httpRequest))
	engine.Register(workflow.ProviderEmail, workflow.HandlerFunc(h.email))
}

type handlers struct {
	deps Deps
}

// resolve loads a connection of the user the run belongs to.
func (h *handlers) resolve(ctx context.Context, connectionID string) (Connection, error) {
	if h.deps.Connections == nil {
		return Connection{}, fmt.Errorf("connection %s cannot be resolved: no connection store", connectionID)
	}
	info, _ := workflow.RunInfoFrom(ctx)
	conn, err := h.deps.Connections.Resolve(ctx, info.UserID, connectionID)
	if err != nil {
		return Connection{}, fmt.Errorf("failed to load connection %s: %w", connectionID, err)
	}
	return conn, nil
}

// softFailure is the sink result of a step that could not send anything but
// must not abort the run.
func softFailure(message string) map[string]any {
	return map[string]any{"ok": false, "error": message}
}

func sent(provider workflow.Provider) map[string]any {
	return map[string]any{"ok": true, "provider": string(provider)}
}

func contentOf(run *workflow.ExecutionContext) string {
	if run.AIOutput == "" {
		return "(no content)"
	}
	return run.AIOutput
}
