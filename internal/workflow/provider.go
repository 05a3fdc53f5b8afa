package workflow

import "strings"

// Provider is the canonical key of the service or capability a node stands
// for.
type Provider string

const (
	ProviderGmail           Provider = "gmail"
	ProviderSlack           Provider = "slack"
	ProviderDiscord         Provider = "discord"
	ProviderNotion          Provider = "notion"
	ProviderSheets          Provider = "sheets"
	ProviderOpenAI          Provider = "openai"
	ProviderGemini          Provider = "gemini"
	ProviderClaude          Provider = "claude"
	ProviderAIGenerate      Provider = "ai-generate"
	ProviderHTTPRequest     Provider = "http-request"
	ProviderWebhookTrigger  Provider = "webhook-trigger"
	ProviderScheduleTrigger Provider = "schedule-trigger"

	// Reachable only through an explicit provider in the node config.
	ProviderOllama Provider = "ollama"
	ProviderEmail  Provider = "email"

	ProviderUnknown Provider = "unknown"
)

type labelRule struct {
	keywords []string
	provider Provider
}

// labelRules is checked top to bottom, the first keyword found in the label
// wins. Labels often carry several keywords ("Send Gmail digest to Slack"), so
// the order matters.
var labelRules = []labelRule{
	{keywords: []string{"gmail"}, provider: ProviderGmail},
	{keywords: []string{"slack"}, provider: ProviderSlack},
	{keywords: []string{"discord"}, provider: ProviderDiscord},
	{keywords: []string{"notion"}, provider: ProviderNotion},
	{keywords: []string{"sheets"}, provider: ProviderSheets},
	{keywords: []string{"openai"}, provider: ProviderOpenAI},
	{keywords: []string{"gemini"}, provider: ProviderGemini},
	{keywords: []string{"claude"}, provider: ProviderClaude},
	{keywords: []string{"ai generate", "ai-generate"}, provider: ProviderAIGenerate},
	{keywords: []string{"http"}, provider: ProviderHTTPRequest},
	{keywords: []string{"webhook"}, provider: ProviderWebhookTrigger},
	{keywords: []string{"schedule"}, provider: ProviderScheduleTrigger},
}

// DetectProvider resolves the provider of a node. An explicit provider from
// the node config wins; otherwise the label is matched against labelRules.
// The boolean is false when nothing matched.
func DetectProvider(label, explicit string) (Provider, bool) {
	if explicit != "" {
		return Provider(strings.ToLower(explicit)), true
	}

	lower := strings.ToLower(label)
	for _, rule := range labelRules {
		for _, keyword := range rule.keywords {
			if strings.Contains(lower, keyword) {
				return rule.provider, true
			}
		}
	}
	return "", false
}

// ProviderOf resolves the provider of node, falling back to ProviderUnknown.
func ProviderOf(node Node) Provider {
	if p, ok := DetectProvider(node.Label, node.Config.String("provider")); ok {
		return p
	}
	return ProviderUnknown
}
