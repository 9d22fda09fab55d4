package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/echoes-app/demo-relay/internal/config"
	"github.com/echoes-app/demo-relay/internal/metrics"
)

const (
	defaultAnthropicHost = "https://api.anthropic.com"
	anthropicVersion     = "2023-06-01"

	// anthropicMaxHistory is how many trailing turns are sent per call.
	anthropicMaxHistory = 12
	// maxReplyTokens caps the generated reply length for both providers.
	maxReplyTokens = 200
)

// Anthropic sends role-tagged messages to the Anthropic Messages API and
// extracts the first completion. A non-2xx status is fatal for the call:
// there is no retry here.
type Anthropic struct {
	apiKey string
	model  string
	host   string
	client *http.Client
}

func NewAnthropic(cfg config.ProviderConfig) *Anthropic {
	host := cfg.AnthropicHost
	if host == "" {
		host = defaultAnthropicHost
	}
	return &Anthropic{
		apiKey: cfg.AnthropicAPIKey,
		model:  cfg.AnthropicModel,
		host:   host,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (p *Anthropic) Label() string   { return config.ProviderAnthropic }
func (p *Anthropic) MaxHistory() int { return anthropicMaxHistory }

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []anthropicContent `json:"content"`
	Error   *anthropicError    `json:"error,omitempty"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (p *Anthropic) Complete(ctx context.Context, messages []Message) (string, error) {
	req := p.buildRequest(messages)

	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshaling anthropic request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("building anthropic request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(p.Label(), "error").Inc()
		return "", fmt.Errorf("calling anthropic: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(p.Label(), "error").Inc()
		return "", fmt.Errorf("reading anthropic response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.UpstreamRequestsTotal.WithLabelValues(p.Label(), "error").Inc()
		return "", &statusError{code: resp.StatusCode, body: string(body)}
	}

	var decoded anthropicResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(p.Label(), "error").Inc()
		return "", &formatError{snippet: snippet(body)}
	}
	if decoded.Error != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(p.Label(), "error").Inc()
		return "", fmt.Errorf("anthropic API error: %s", decoded.Error.Message)
	}

	var text string
	for _, c := range decoded.Content {
		if c.Type == "text" {
			text += c.Text
		}
	}
	if text == "" {
		metrics.UpstreamRequestsTotal.WithLabelValues(p.Label(), "error").Inc()
		return "", &formatError{snippet: snippet(body)}
	}

	metrics.UpstreamRequestsTotal.WithLabelValues(p.Label(), "success").Inc()
	return text, nil
}

// buildRequest separates system messages into the dedicated system field
// (the Messages API rejects role "system" in the body) and passes the rest
// through in order.
func (p *Anthropic) buildRequest(messages []Message) anthropicRequest {
	var system string
	body := make([]anthropicMessage, 0, len(messages))

	for _, m := range messages {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		body = append(body, anthropicMessage{Role: m.Role, Content: m.Content})
	}

	return anthropicRequest{
		Model:     p.model,
		MaxTokens: maxReplyTokens,
		System:    system,
		Messages:  body,
	}
}

func snippet(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
