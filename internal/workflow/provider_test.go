package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		name     string
		label    string
		explicit string
		want     Provider
		found    bool
	}{
		{"gmail label", "Send email via Gmail", "", ProviderGmail, true},
		{"explicit wins over label", "anything", "slack", ProviderSlack, true},
		{"explicit is lowercased", "Gmail inbox", "Discord", ProviderDiscord, true},
		{"explicit provider outside the label table", "Gmail", "Ollama", ProviderOllama, true},
		{"gmail before slack", "Forward Gmail digest to Slack", "", ProviderGmail, true},
		{"slack before openai", "Post OpenAI answer on Slack", "", ProviderSlack, true},
		{"notion", "Create Notion page", "", ProviderNotion, true},
		{"sheets", "Append row to Google Sheets", "", ProviderSheets, true},
		{"gemini", "Ask Gemini", "", ProviderGemini, true},
		{"claude", "Claude summary", "", ProviderClaude, true},
		{"ai generate with space", "AI Generate summary", "", ProviderAIGenerate, true},
		{"ai generate with dash", "ai-generate", "", ProviderAIGenerate, true},
		{"openai before ai generate", "AI generate with OpenAI", "", ProviderOpenAI, true},
		{"http request", "HTTP Request", "", ProviderHTTPRequest, true},
		{"http before webhook", "HTTP webhook", "", ProviderHTTPRequest, true},
		{"webhook", "Incoming Webhook", "", ProviderWebhookTrigger, true},
		{"schedule", "Every morning (schedule)", "", ProviderScheduleTrigger, true},
		{"no match", "Do something", "", "", false},
		{"empty label", "", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := DetectProvider(tt.label, tt.explicit)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.found, found)
		})
	}
}

func TestProviderOf(t *testing.T) {
	assert.Equal(t, ProviderUnknown, ProviderOf(Node{Label: "mystery"}))
	assert.Equal(t, ProviderClaude, ProviderOf(Node{Label: "Gmail", Config: Config{"provider": "Claude"}}))
	assert.Equal(t, ProviderGmail, ProviderOf(Node{Label: "Gmail", Config: Config{"provider": "  "}}))
}
