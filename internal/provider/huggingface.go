package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/echoes-app/demo-relay/internal/config"
	"github.com/echoes-app/demo-relay/internal/metrics"
)

const (
	defaultHFHost = "https://api-inference.huggingface.co"

	// hfMaxHistory is how many trailing turns fit in the prompt.
	hfMaxHistory = 8

	hfMaxAttempts  = 3
	coldStartDelay = 10 * time.Second
	transientDelay = 2 * time.Second
	hfTemperature  = 0.8
	hfNucleusTopP  = 0.9
)

// HuggingFace flattens the conversation into a single instruction-formatted
// prompt and calls the hosted text-generation endpoint. The endpoint cold
// starts: a 503 means the model is still loading, so the call polls with a
// fixed backoff, sharing one attempt budget with generic transient
// failures.
type HuggingFace struct {
	apiKey string
	model  string
	host   string
	client *http.Client
	retry  retryPolicy
}

func NewHuggingFace(cfg config.ProviderConfig) *HuggingFace {
	host := cfg.HFHost
	if host == "" {
		host = defaultHFHost
	}

	p := &HuggingFace{
		apiKey: cfg.HFAPIKey,
		model:  cfg.HFModel,
		host:   host,
		client: &http.Client{Timeout: cfg.Timeout},
	}
	p.retry = retryPolicy{
		maxAttempts: hfMaxAttempts,
		classify:    classifyHFError,
		delay: func(class errorClass) time.Duration {
			if class == classColdStart {
				return coldStartDelay
			}
			return transientDelay
		},
		sleep: sleepCtx,
		onRetry: func(class errorClass) {
			reason := "transient"
			if class == classColdStart {
				reason = "cold_start"
			}
			metrics.UpstreamRetriesTotal.WithLabelValues(p.Label(), reason).Inc()
		},
	}
	return p
}

func (p *HuggingFace) Label() string   { return config.ProviderHuggingFace }
func (p *HuggingFace) MaxHistory() int { return hfMaxHistory }

type hfRequest struct {
	Inputs     string       `json:"inputs"`
	Parameters hfParameters `json:"parameters"`
	Options    hfOptions    `json:"options"`
}

type hfParameters struct {
	MaxNewTokens   int     `json:"max_new_tokens"`
	Temperature    float64 `json:"temperature"`
	TopP           float64 `json:"top_p"`
	ReturnFullText bool    `json:"return_full_text"`
}

type hfOptions struct {
	// WaitForModel false makes cold starts surface as 503 so the retry
	// loop controls the polling cadence instead of the upstream holding
	// the connection.
	WaitForModel bool `json:"wait_for_model"`
}

type hfError struct {
	Error         string  `json:"error"`
	EstimatedTime float64 `json:"estimated_time"`
}

func (p *HuggingFace) Complete(ctx context.Context, messages []Message) (string, error) {
	payload, err := json.Marshal(hfRequest{
		Inputs: buildPrompt(messages),
		Parameters: hfParameters{
			MaxNewTokens:   maxReplyTokens,
			Temperature:    hfTemperature,
			TopP:           hfNucleusTopP,
			ReturnFullText: false,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling generation request: %w", err)
	}

	return p.retry.do(ctx, func() (string, error) {
		return p.call(ctx, payload)
	})
}

func (p *HuggingFace) call(ctx context.Context, payload []byte) (string, error) {
	url := p.host + "/models/" + p.model
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("building generation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(p.Label(), "error").Inc()
		return "", fmt.Errorf("calling generation endpoint: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(p.Label(), "error").Inc()
		return "", fmt.Errorf("reading generation response: %w", err)
	}

	if resp.StatusCode == http.StatusServiceUnavailable {
		metrics.UpstreamRequestsTotal.WithLabelValues(p.Label(), "cold_start").Inc()
		var detail hfError
		_ = json.Unmarshal(body, &detail)
		return "", &coldStartError{estimatedTime: detail.EstimatedTime}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.UpstreamRequestsTotal.WithLabelValues(p.Label(), "error").Inc()
		return "", &statusError{code: resp.StatusCode, body: snippet(body)}
	}

	text, err := decodeGenerated(body)
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(p.Label(), "error").Inc()
		return "", err
	}

	metrics.UpstreamRequestsTotal.WithLabelValues(p.Label(), "success").Inc()
	return text, nil
}

// classifyHFError maps failures onto the retry classes: cold start waits
// longer, malformed responses and cancelled contexts are fatal, everything
// else gets the short-delay retry.
func classifyHFError(err error) errorClass {
	var cold *coldStartError
	if errors.As(err, &cold) {
		return classColdStart
	}
	var format *formatError
	if errors.As(err, &format) {
		return classFatal
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return classFatal
	}
	return classTransient
}

// buildPrompt flattens the conversation into a single instruction-formatted
// string: system messages become a <<SYS>> preamble, user messages become
// [INST] turns, assistant messages continue the text verbatim.
func buildPrompt(messages []Message) string {
	var b strings.Builder
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			b.WriteString("[INST] <<SYS>>\n")
			b.WriteString(m.Content)
			b.WriteString("\n<</SYS>> [/INST]\n")
		case RoleUser:
			b.WriteString("[INST] ")
			b.WriteString(m.Content)
			b.WriteString(" [/INST]\n")
		default:
			b.WriteString(m.Content)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// decodeGenerated normalizes the three response shapes the generation
// endpoint is known to produce, in order: a list whose first element
// carries generated_text, a bare object with generated_text, or a raw JSON
// string. Anything else is a fatal format error.
func decodeGenerated(body []byte) (string, error) {
	var list []struct {
		GeneratedText *string `json:"generated_text"`
	}
	if err := json.Unmarshal(body, &list); err == nil && len(list) > 0 && list[0].GeneratedText != nil {
		return *list[0].GeneratedText, nil
	}

	var obj struct {
		GeneratedText *string `json:"generated_text"`
	}
	if err := json.Unmarshal(body, &obj); err == nil && obj.GeneratedText != nil {
		return *obj.GeneratedText, nil
	}

	var s string
	if err := json.Unmarshal(body, &s); err == nil {
		return s, nil
	}

	return "", &formatError{snippet: snippet(body)}
}
