package pkg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	webhookTimeout  = 15 * time.Second
	maxResponseBody = 1 << 20
)

// WebhookClient posts JSON payloads to chat webhooks and arbitrary HTTP
// endpoints.
type WebhookClient struct {
	HTTPClient *http.Client
}

// NewWebhookClient returns a client with a bounded timeout.
func NewWebhookClient() *WebhookClient {
	return &WebhookClient{HTTPClient: &http.Client{Timeout: webhookTimeout}}
}

// PostDiscord sends content to a Discord webhook.
func (slf *WebhookClient) PostDiscord(ctx context.Context, webhookURL, content string) error {
	_, err := slf.postJSON(ctx, "Discord", webhookURL, map[string]string{"content": content})
	return err
}

// PostSlack sends text to a Slack incoming webhook.
func (slf *WebhookClient) PostSlack(ctx context.Context, webhookURL, text string) error {
	_, err := slf.postJSON(ctx, "Slack", webhookURL, map[string]string{"text": text})
	return err
}

// HTTPRequest describes a call made by the http-request sink.
type HTTPRequest struct {
	URL     string
	Method  string
	Headers map[string]string
	Payload any
	// ResultPath is a gjson path extracted from a JSON response.
	ResultPath string
}

// Send performs req and returns the decoded JSON response, or {"ok": true}
// when the body is not JSON.
func (slf *WebhookClient) Send(ctx context.Context, req HTTPRequest) (any, error) {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodPost
	}

	var body io.Reader
	if method != http.MethodGet && method != http.MethodHead {
		data, err := json.Marshal(req.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	raw, err := slf.do(httpReq, "HTTP Request")
	if err != nil {
		return nil, err
	}
	return DecodeResult(raw, req.ResultPath), nil
}

// DecodeResult parses a response body. Non JSON bodies yield {"ok": true};
// with a path only the matching value is returned.
func DecodeResult(raw []byte, path string) any {
	if !gjson.ValidBytes(raw) || len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{"ok": true}
	}
	result := gjson.ParseBytes(raw)
	if path != "" {
		result = result.Get(path)
	}
	return result.Value()
}

func (slf *WebhookClient) postJSON(ctx context.Context, provider, url string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return slf.do(req, provider)
}

func (slf *WebhookClient) do(req *http.Request, provider string) ([]byte, error) {
	client := slf.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", provider, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", provider, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{Provider: provider, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return raw, nil
}
