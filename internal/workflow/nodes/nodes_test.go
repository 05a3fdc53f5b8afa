package nodes

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoflow/internal/workflow"
	"autoflow/pkg"
)

type fakeConnections struct {
	conns   map[string]Connection
	owners  map[string]string
	updated map[string]string
}

func (f *fakeConnections) Resolve(_ context.Context, userID, id string) (Connection, error) {
	conn, ok := f.conns[id]
	if !ok {
		return Connection{}, errors.New("connection not found")
	}
	if owner, scoped := f.owners[id]; scoped && owner != userID {
		return Connection{}, errors.New("connection not found")
	}
	return conn, nil
}

func (f *fakeConnections) UpdateAccessToken(_ context.Context, id, token string) error {
	if f.updated == nil {
		f.updated = make(map[string]string)
	}
	f.updated[id] = token
	return nil
}

type fakeGmail struct {
	messages  []pkg.InboxMessage
	refreshTo string
	creds     pkg.InboxCredentials
}

func (f *fakeGmail) ListUnseen(ctx context.Context, creds pkg.InboxCredentials, onRefresh pkg.TokenRefreshed) ([]pkg.InboxMessage, error) {
	f.creds = creds
	if f.refreshTo != "" {
		if err := onRefresh(ctx, f.refreshTo); err != nil {
			return nil, err
		}
	}
	return f.messages, nil
}

type fakeIMAP struct {
	account pkg.IMAPAccount
}

func (f *fakeIMAP) ListUnseen(_ context.Context, account pkg.IMAPAccount) ([]pkg.InboxMessage, error) {
	f.account = account
	return []pkg.InboxMessage{{ID: "7", Subject: "Invoice", Snippet: "due"}}, nil
}

type fakeModel struct {
	output string
	got    pkg.ChatRequest
}

func (f *fakeModel) Complete(_ context.Context, req pkg.ChatRequest) (string, error) {
	f.got = req
	return f.output, nil
}

type fakeWebhooks struct {
	discord []string
	slack   []string
	request pkg.HTTPRequest
	result  any
	err     error
}

func (f *fakeWebhooks) PostDiscord(_ context.Context, url, content string) error {
	f.discord = append(f.discord, url, content)
	return f.err
}

func (f *fakeWebhooks) PostSlack(_ context.Context, url, text string) error {
	f.slack = append(f.slack, url, text)
	return f.err
}

func (f *fakeWebhooks) Send(_ context.Context, req pkg.HTTPRequest) (any, error) {
	f.request = req
	return f.result, f.err
}

type fakeMailer struct {
	sent []pkg.EmailMessage
}

func (f *fakeMailer) Send(_ context.Context, _ pkg.SMTPConfig, msg pkg.EmailMessage) error {
	f.sent = append(f.sent, msg)
	return nil
}

func step(n int) *int { return &n }

func chain(nodes ...workflow.Node) ([]workflow.Node, []workflow.Edge) {
	var edges []workflow.Edge
	for i := range nodes {
		nodes[i].StepNumber = step(i + 1)
		if i > 0 {
			edges = append(edges, workflow.Edge{
				ID:     workflow.EdgeID(nodes[i-1].ID, nodes[i].ID),
				Source: nodes[i-1].ID,
				Target: nodes[i].ID,
			})
		}
	}
	return nodes, edges
}

func newEngine(deps Deps) *workflow.Engine {
	engine := workflow.NewEngine(zerolog.Nop())
	Register(engine, deps)
	return engine
}

func TestRegister_CoversHandledProviders(t *testing.T) {
	engine := newEngine(Deps{})

	for _, p := range []workflow.Provider{
		workflow.ProviderGmail, workflow.ProviderWebhookTrigger, workflow.ProviderScheduleTrigger,
		workflow.ProviderAIGenerate, workflow.ProviderOpenAI, workflow.ProviderGemini,
		workflow.ProviderClaude, workflow.ProviderOllama, workflow.ProviderDiscord,
		workflow.ProviderSlack, workflow.ProviderHTTPRequest, workflow.ProviderEmail,
	} {
		assert.True(t, engine.Handles(p), p)
	}
	assert.False(t, engine.Handles(workflow.ProviderNotion))
	assert.False(t, engine.Handles(workflow.ProviderSheets))
}

func TestGmailToDiscordPipeline(t *testing.T) {
	conns := &fakeConnections{conns: map[string]Connection{
		"c-gmail":   {ID: "c-gmail", Platform: PlatformGmail, AccessToken: "old", RefreshToken: "r"},
		"c-openai":  {ID: "c-openai", Platform: "openai", AccessToken: "sk-1", Metadata: map[string]any{"model": "gpt-4o-mini"}},
		"c-discord": {ID: "c-discord", Platform: "discord", Metadata: map[string]any{"webhook_url": "https://discord.test/hook"}},
	}}
	gmail := &fakeGmail{
		messages:  []pkg.InboxMessage{{ID: "m1", Subject: "Hello", Snippet: "World"}},
		refreshTo: "fresh",
	}
	model := &fakeModel{output: "one email about greetings"}
	hooks := &fakeWebhooks{}
	engine := newEngine(Deps{
		Connections: conns,
		Gmail:       gmail,
		Models:      map[workflow.Provider]pkg.ChatCompleter{workflow.ProviderOpenAI: model},
		Webhooks:    hooks,
	})

	nodes, edges := chain(
		workflow.Node{ID: "a", Label: "Gmail inbox", Config: workflow.Config{"connectionId": "c-gmail"}},
		workflow.Node{ID: "b", Label: "AI Generate", Config: workflow.Config{"prompt": "Digest of {{count}}:\n{{emails}}"}},
		workflow.Node{ID: "c", Label: "OpenAI Model", Config: workflow.Config{"connectionId": "c-openai"}},
		workflow.Node{ID: "d", Label: "Discord alert", Config: workflow.Config{"connectionId": "c-discord"}},
	)

	summary := engine.Execute(context.Background(), nodes, edges, workflow.RunOptions{StopIfEmptyTriggerProviders: []string{"gmail"}})

	require.Len(t, summary.Steps, 4)
	for _, s := range summary.Steps {
		assert.Equal(t, workflow.StepStatusOK, s.Status, s.NodeID)
	}
	assert.Equal(t, "gmail", pkg.FromPtrOr(summary.TriggerProvider, ""))
	assert.Equal(t, 1, summary.TriggerCount)
	assert.Equal(t, "openai", pkg.FromPtrOr(summary.AIProvider, ""))
	assert.Equal(t, "one email about greetings", summary.AIOutput)
	assert.Equal(t, map[string]any{"ok": true, "provider": "discord"}, summary.SinkResult)

	assert.Equal(t, "Digest of 1:\n- [1] Hello - World", model.got.Prompt)
	assert.Equal(t, "sk-1", model.got.APIKey)
	assert.Equal(t, "gpt-4o-mini", model.got.Model)
	assert.Equal(t, pkg.InboxCredentials{AccessToken: "old", RefreshToken: "r"}, gmail.creds)
	assert.Equal(t, map[string]string{"c-gmail": "fresh"}, conns.updated)
	assert.Equal(t, []string{"https://discord.test/hook", "one email about greetings"}, hooks.discord)
}

func TestGmail_IMAPConnection(t *testing.T) {
	imap := &fakeIMAP{}
	engine := newEngine(Deps{
		Connections: &fakeConnections{conns: map[string]Connection{
			"c": {ID: "c", Platform: PlatformIMAP, AccessToken: "pw", Metadata: map[string]any{"host": "mail.test", "port": 143, "username": "me", "use_tls": false}},
		}},
		IMAP: imap,
	})
	nodes, edges := chain(workflow.Node{ID: "a", Label: "Gmail", Config: workflow.Config{"connectionId": "c"}})

	summary := engine.Execute(context.Background(), nodes, edges, workflow.RunOptions{})

	assert.Equal(t, pkg.IMAPAccount{Host: "mail.test", Port: 143, Username: "me", Password: "pw", UseTLS: false}, imap.account)
	require.Len(t, summary.TriggerData, 1)
	assert.Equal(t, "Invoice", summary.TriggerData[0].Subject())
}

func TestGmail_EmptyInboxStops(t *testing.T) {
	engine := newEngine(Deps{
		Connections: &fakeConnections{conns: map[string]Connection{"c": {ID: "c", Platform: PlatformGmail}}},
		Gmail:       &fakeGmail{},
		Webhooks:    &fakeWebhooks{},
	})
	nodes, edges := chain(
		workflow.Node{ID: "a", Label: "Gmail", Config: workflow.Config{"connectionId": "c"}},
		workflow.Node{ID: "b", Label: "Slack", Config: workflow.Config{"webhookUrl": "https://slack.test"}},
	)

	summary := engine.Execute(context.Background(), nodes, edges, workflow.RunOptions{StopIfEmptyTriggerProviders: []string{"GMAIL"}})

	require.Len(t, summary.Steps, 1)
	assert.True(t, summary.Stopped())
	assert.Equal(t, workflow.StopReasonEmptyTrigger, summary.Steps[0].Reason)
	assert.Equal(t, []workflow.Record{}, summary.TriggerData)
}

func TestGmail_Errors(t *testing.T) {
	tests := []struct {
		name   string
		config workflow.Config
		want   string
	}{
		{"missing connection id", workflow.Config{}, "missing Gmail connectionId"},
		{"unknown connection", workflow.Config{"connectionId": "nope"}, "failed to load connection nope: connection not found"},
		{"not a mailbox", workflow.Config{"connectionId": "c-openai"}, `connection c-openai is a "openai" connection, not a mailbox`},
		{"no platform", workflow.Config{"connectionId": "c-blank"}, `connection c-blank is a "" connection, not a mailbox`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gmail := &fakeGmail{}
			conns := &fakeConnections{conns: map[string]Connection{
				"c-openai": {ID: "c-openai", Platform: "openai", AccessToken: "sk-1"},
				"c-blank":  {ID: "c-blank"},
			}}
			engine := newEngine(Deps{Connections: conns, Gmail: gmail})
			nodes, edges := chain(workflow.Node{ID: "a", Label: "Gmail", Config: tt.config})

			summary := engine.Execute(context.Background(), nodes, edges, workflow.RunOptions{})

			failed, ok := summary.Failed()
			require.True(t, ok)
			assert.Equal(t, tt.want, failed.Error)
			assert.True(t, summary.OK)
			assert.Empty(t, gmail.creds.AccessToken)
		})
	}
}

func TestConnections_ResolvedForRunOwner(t *testing.T) {
	conns := &fakeConnections{
		conns: map[string]Connection{
			"c-discord": {ID: "c-discord", Platform: "discord", Metadata: map[string]any{"webhook_url": "https://discord.test/hook"}},
		},
		owners: map[string]string{"c-discord": "u1"},
	}

	tests := []struct {
		name      string
		userID    string
		wantError string
		wantSent  int
	}{
		{name: "owner", userID: "u1", wantSent: 2},
		{name: "other user", userID: "u2", wantError: "failed to load connection c-discord: connection not found"},
		{name: "no run owner", userID: "", wantError: "failed to load connection c-discord: connection not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hooks := &fakeWebhooks{}
			engine := newEngine(Deps{Connections: conns, Webhooks: hooks})
			nodes, edges := chain(workflow.Node{ID: "a", Label: "Discord", Config: workflow.Config{"connectionId": "c-discord"}})
			ctx := workflow.WithRunInfo(context.Background(), workflow.RunInfo{WorkflowID: "wf-1", RunID: "r", UserID: tt.userID})

			summary := engine.Execute(ctx, nodes, edges, workflow.RunOptions{})

			failed, ok := summary.Failed()
			if tt.wantError == "" {
				assert.False(t, ok)
			} else {
				require.True(t, ok)
				assert.Equal(t, tt.wantError, failed.Error)
			}
			assert.Len(t, hooks.discord, tt.wantSent)
		})
	}
}

func TestModel_MissingKey(t *testing.T) {
	tests := []struct {
		label string
		want  string
	}{
		{"OpenAI", "missing OpenAI API key"},
		{"Gemini", "missing Gemini API key"},
		{"Claude", "missing Claude API key"},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			engine := newEngine(Deps{Models: DefaultModels("")})
			nodes, edges := chain(workflow.Node{ID: "a", Label: tt.label})

			summary := engine.Execute(context.Background(), nodes, edges, workflow.RunOptions{})

			failed, ok := summary.Failed()
			require.True(t, ok)
			assert.Equal(t, tt.want, failed.Error)
		})
	}
}

func TestModel_ClaudeUsesClaudeClient(t *testing.T) {
	claude := &fakeModel{output: "from claude"}
	gemini := &fakeModel{output: "from gemini"}
	engine := newEngine(Deps{Models: map[workflow.Provider]pkg.ChatCompleter{
		workflow.ProviderClaude: claude,
		workflow.ProviderGemini: gemini,
	}})
	nodes, edges := chain(workflow.Node{ID: "a", Label: "Claude", Config: workflow.Config{"apiKey": "k", "apiEndpoint": "https://proxy.test"}})

	summary := engine.Execute(context.Background(), nodes, edges, workflow.RunOptions{})

	assert.Equal(t, "from claude", summary.AIOutput)
	assert.Equal(t, "claude", pkg.FromPtrOr(summary.AIProvider, ""))
	assert.Equal(t, "https://proxy.test", claude.got.Endpoint)
	assert.Equal(t, "Summarize the following emails:\n\n- No unread emails", claude.got.Prompt)
	assert.Empty(t, gemini.got.Prompt)
}

func TestModel_OllamaNeedsNoKey(t *testing.T) {
	ollama := &fakeModel{output: "local"}
	engine := newEngine(Deps{Models: map[workflow.Provider]pkg.ChatCompleter{workflow.ProviderOllama: ollama}})
	nodes, edges := chain(workflow.Node{ID: "a", Label: "Local model", Config: workflow.Config{"provider": "ollama"}})

	summary := engine.Execute(context.Background(), nodes, edges, workflow.RunOptions{})

	_, failed := summary.Failed()
	assert.False(t, failed)
	assert.Equal(t, "local", summary.AIOutput)
}

func TestSinks_MissingTarget(t *testing.T) {
	tests := []struct {
		label string
		want  string
	}{
		{"Discord", "Discord webhook URL missing."},
		{"Slack", "Slack webhook URL missing."},
		{"HTTP Request", "HTTP Request URL missing."},
		{"Send mail", "Email recipient missing."},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			engine := newEngine(Deps{Webhooks: &fakeWebhooks{}, Mailer: &fakeMailer{}})
			config := workflow.Config{}
			if tt.label == "Send mail" {
				config["provider"] = "email"
			}
			nodes, edges := chain(workflow.Node{ID: "a", Label: tt.label, Config: config})

			summary := engine.Execute(context.Background(), nodes, edges, workflow.RunOptions{})

			require.Len(t, summary.Steps, 1)
			assert.Equal(t, workflow.StepStatusOK, summary.Steps[0].Status)
			assert.Equal(t, map[string]any{"ok": false, "error": tt.want}, summary.SinkResult)
		})
	}
}

func TestHTTPRequest_SendsSummary(t *testing.T) {
	hooks := &fakeWebhooks{result: "abc"}
	engine := newEngine(Deps{Webhooks: hooks})
	nodes, edges := chain(workflow.Node{ID: "a", Label: "HTTP Request", Config: workflow.Config{
		"url":        "https://api.test/items",
		"method":     "PUT",
		"headers":    map[string]any{"Authorization": "Bearer t"},
		"resultPath": "data.id",
	}})

	summary := engine.Execute(context.Background(), nodes, edges, workflow.RunOptions{})

	assert.Equal(t, "abc", summary.SinkResult)
	assert.Equal(t, "https://api.test/items", hooks.request.URL)
	assert.Equal(t, "PUT", hooks.request.Method)
	assert.Equal(t, map[string]string{"Authorization": "Bearer t"}, hooks.request.Headers)
	assert.Equal(t, map[string]any{"summary": "", "emails": []workflow.Record{}}, hooks.request.Payload)
}

func TestSink_UpstreamErrorFailsStep(t *testing.T) {
	engine := newEngine(Deps{Webhooks: &fakeWebhooks{err: &pkg.UpstreamError{Provider: "Slack", StatusCode: 404, Body: "no_team"}}})
	nodes, edges := chain(workflow.Node{ID: "a", Label: "Slack", Config: workflow.Config{"webhookUrl": "https://slack.test"}})

	summary := engine.Execute(context.Background(), nodes, edges, workflow.RunOptions{})

	failed, ok := summary.Failed()
	require.True(t, ok)
	assert.Equal(t, "Slack error: 404 no_team", failed.Error)
}

func TestEmailSink(t *testing.T) {
	mailer := &fakeMailer{}
	engine := newEngine(Deps{Mailer: mailer})
	nodes, edges := chain(workflow.Node{ID: "a", Label: "Notify team", Config: workflow.Config{
		"provider": "email",
		"to":       "a@example.com, b@example.com",
	}})

	engine.Execute(context.Background(), nodes, edges, workflow.RunOptions{})

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, mailer.sent[0].To)
	assert.Equal(t, defaultEmailSubject, mailer.sent[0].Subject)
	assert.Equal(t, "(no content)", mailer.sent[0].Body)
}

func TestWebhookRecords(t *testing.T) {
	tests := []struct {
		name  string
		input string
		path  string
		want  []workflow.Record
	}{
		{"empty input", "", "", []workflow.Record{}},
		{"array", `[{"subject":"a"},{"subject":"b"}]`, "", []workflow.Record{{"subject": "a"}, {"subject": "b"}}},
		{"object", `{"subject":"a"}`, "", []workflow.Record{{"subject": "a"}}},
		{"path to array", `{"data":{"items":[{"id":1}]}}`, "data.items", []workflow.Record{{"id": float64(1)}}},
		{"missing path", `{"data":{}}`, "data.items", []workflow.Record{}},
		{"scalar items", `[1,"x"]`, "", []workflow.Record{{"value": float64(1)}, {"value": "x"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := WebhookRecords([]byte(tt.input), tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := WebhookRecords([]byte("{oops"), "")
	assert.Error(t, err)
}

func TestWebhookTrigger_EmptyPayloadStops(t *testing.T) {
	engine := newEngine(Deps{})
	nodes, edges := chain(
		workflow.Node{ID: "a", Label: "Webhook", Config: workflow.Config{"itemsPath": "items"}},
		workflow.Node{ID: "b", Label: "AI Generate"},
	)

	summary := engine.Execute(context.Background(), nodes, edges, workflow.RunOptions{
		StopIfEmptyTriggerProviders: []string{"webhook-trigger"},
		Input:                       json.RawMessage(`{"items":[]}`),
	})

	require.Len(t, summary.Steps, 1)
	assert.True(t, summary.Stopped())
	assert.Equal(t, "webhook", pkg.FromPtrOr(summary.TriggerProvider, ""))
}

func TestScheduleTrigger(t *testing.T) {
	now := time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)
	engine := newEngine(Deps{Now: func() time.Time { return now }})
	nodes, edges := chain(workflow.Node{ID: "a", Label: "Schedule", Config: workflow.Config{"cron": "0 9 * * 1-5"}})

	summary := engine.Execute(context.Background(), nodes, edges, workflow.RunOptions{})

	require.Len(t, summary.TriggerData, 1)
	assert.Equal(t, workflow.Record{
		"cron":    "0 9 * * 1-5",
		"firedAt": "2024-05-01T08:30:00Z",
		"nextRun": "2024-05-01T09:00:00Z",
	}, summary.TriggerData[0])

	nodes, edges = chain(workflow.Node{ID: "a", Label: "Schedule", Config: workflow.Config{"cron": "whenever"}})
	summary = engine.Execute(context.Background(), nodes, edges, workflow.RunOptions{})
	_, failed := summary.Failed()
	assert.True(t, failed)
}

func TestScheduleOf(t *testing.T) {
	tests := []struct {
		name    string
		cfg     workflow.Config
		want    string
		wantErr string
	}{
		{"plain cron", workflow.Config{"cron": "@hourly", "interval": "5"}, "@hourly", ""},
		{"editor cron", workflow.Config{"scheduleType": "cron", "cronExpression": "0 */5 * * * *"}, "0 */5 * * * *", ""},
		{"editor cron empty", workflow.Config{"scheduleType": "cron"}, "", "missing schedule cron expression"},
		{"interval string", workflow.Config{"scheduleType": "interval", "interval": "15"}, "@every 15m", ""},
		{"interval number", workflow.Config{"interval": float64(5)}, "@every 5m", ""},
		{"interval zero", workflow.Config{"interval": "0"}, "", `invalid schedule interval "0"`},
		{"nothing", workflow.Config{}, "", "missing schedule cron expression"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ScheduleOf(tt.cfg)
			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNoHandlerProvidersRunAsNoop(t *testing.T) {
	engine := newEngine(Deps{})
	nodes, edges := chain(
		workflow.Node{ID: "a", Label: "Notion page"},
		workflow.Node{ID: "b", Label: "Google Sheets row"},
		workflow.Node{ID: "c", Label: "Mystery"},
	)

	summary := engine.Execute(context.Background(), nodes, edges, workflow.RunOptions{})

	require.Len(t, summary.Steps, 3)
	assert.Equal(t, workflow.ProviderUnknown, summary.Steps[2].Provider)
	for _, s := range summary.Steps {
		assert.Equal(t, workflow.StepStatusOK, s.Status)
	}
}
