package pkg

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	ollama "github.com/ollama/ollama/api"
	"github.com/openai/openai-go"
	openaioption "github.com/openai/openai-go/option"
	"google.golang.org/genai"
)

const (
	DefaultOpenAIModel = "gpt-3.5-turbo"
	DefaultGeminiModel = "gemini-1.5-flash-latest"
	DefaultClaudeModel = "claude-3-5-sonnet-20240620"
	DefaultOllamaModel = "llama3"

	summarizerSystemPrompt = "You are an email summarizer."
	claudeMaxTokens        = 1000
)

// ChatRequest is a single prompt sent to a model provider.
type ChatRequest struct {
	APIKey   string
	Endpoint string
	Model    string
	Prompt   string
}

// ChatCompleter sends a prompt to a model and returns the generated text.
type ChatCompleter interface {
	Complete(ctx context.Context, req ChatRequest) (string, error)
}

// OpenAIClient calls the chat completions API.
type OpenAIClient struct {
	HTTPClient *http.Client
}

func (slf *OpenAIClient) Complete(ctx context.Context, req ChatRequest) (string, error) {
	if req.APIKey == "" {
		return "", MissingAPIKey("OpenAI")
	}
	opts := []openaioption.RequestOption{
		openaioption.WithAPIKey(req.APIKey),
		openaioption.WithMaxRetries(0),
	}
	if base := baseURL(req.Endpoint, "/chat/completions"); base != "" {
		opts = append(opts, openaioption.WithBaseURL(base))
	}
	if slf.HTTPClient != nil {
		opts = append(opts, openaioption.WithHTTPClient(slf.HTTPClient))
	}
	client := openai.NewClient(opts...)

	model := req.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(summarizerSystemPrompt),
			openai.UserMessage(req.Prompt),
		},
		Temperature: openai.Float(0.2),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", &UpstreamError{Provider: "OpenAI", StatusCode: apiErr.StatusCode, Body: apiErr.RawJSON()}
		}
		return "", fmt.Errorf("failed to call OpenAI: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// GeminiClient calls the Gemini generateContent API.
type GeminiClient struct {
	HTTPClient *http.Client
}

func (slf *GeminiClient) Complete(ctx context.Context, req ChatRequest) (string, error) {
	if req.APIKey == "" {
		return "", MissingAPIKey("Gemini")
	}
	cfg := &genai.ClientConfig{
		APIKey:     req.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: slf.HTTPClient,
	}
	if req.Endpoint != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: req.Endpoint}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return "", fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := req.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	resp, err := client.Models.GenerateContent(ctx, model, genai.Text(req.Prompt), nil)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", &UpstreamError{Provider: "Gemini", StatusCode: apiErr.Code, Body: apiErr.Message}
		}
		return "", fmt.Errorf("failed to call Gemini: %w", err)
	}
	return resp.Text(), nil
}

// ClaudeClient calls the Anthropic messages API.
type ClaudeClient struct {
	HTTPClient *http.Client
}

func (slf *ClaudeClient) Complete(ctx context.Context, req ChatRequest) (string, error) {
	if req.APIKey == "" {
		return "", MissingAPIKey("Claude")
	}
	opts := []anthropicoption.RequestOption{
		anthropicoption.WithAPIKey(req.APIKey),
		anthropicoption.WithMaxRetries(0),
	}
	if base := baseURL(req.Endpoint, "/v1/messages"); base != "" {
		opts = append(opts, anthropicoption.WithBaseURL(base))
	}
	if slf.HTTPClient != nil {
		opts = append(opts, anthropicoption.WithHTTPClient(slf.HTTPClient))
	}
	client := anthropic.NewClient(opts...)

	model := req.Model
	if model == "" {
		model = DefaultClaudeModel
	}
	message, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: claudeMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", &UpstreamError{Provider: "Claude", StatusCode: apiErr.StatusCode, Body: apiErr.RawJSON()}
		}
		return "", fmt.Errorf("failed to call Claude: %w", err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return text.String(), nil
}

// OllamaClient calls a self hosted Ollama server. No API key is needed.
type OllamaClient struct {
	Host       string
	HTTPClient *http.Client
}

func (slf *OllamaClient) Complete(ctx context.Context, req ChatRequest) (string, error) {
	host := req.Endpoint
	if host == "" {
		host = slf.Host
	}
	base, err := url.Parse(host)
	if err != nil || base.Host == "" {
		return "", fmt.Errorf("invalid Ollama host %q", host)
	}
	httpClient := slf.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	client := ollama.NewClient(base, httpClient)

	model := req.Model
	if model == "" {
		model = DefaultOllamaModel
	}
	stream := false
	var out strings.Builder
	err = client.Chat(ctx, &ollama.ChatRequest{
		Model: model,
		Messages: []ollama.Message{
			{Role: "system", Content: summarizerSystemPrompt},
			{Role: "user", Content: req.Prompt},
		},
		Stream:  &stream,
		Options: map[string]any{"temperature": 0.2},
	}, func(resp ollama.ChatResponse) error {
		out.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		var statusErr ollama.StatusError
		if errors.As(err, &statusErr) {
			return "", &UpstreamError{Provider: "Ollama", StatusCode: statusErr.StatusCode, Body: statusErr.ErrorMessage}
		}
		return "", fmt.Errorf("failed to call Ollama: %w", err)
	}
	return out.String(), nil
}

// baseURL turns a full endpoint URL into the base URL expected by the SDKs.
func baseURL(endpoint, suffix string) string {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return ""
	}
	endpoint = strings.TrimSuffix(strings.TrimSuffix(endpoint, "/"), suffix)
	return endpoint + "/"
}
