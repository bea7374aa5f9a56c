// Package llm turns an agent's situation into a decision using a language
// model, and provides model-backed importance scoring and embeddings.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

const (
	anthropicURL     = "https://api.anthropic.com/v1/messages"
	anthropicVersion = "2023-06-01"

	DefaultAnthropicModel = "claude-haiku-4-5-20251001"
	defaultMaxTokens      = 500
	defaultMaxPerMin      = 20
)

// Completer produces a completion for a system and user prompt.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// ErrRateLimited is returned when the per-minute call budget is spent.
var ErrRateLimited = goerr.New("llm rate limit exceeded")

// AnthropicClient wraps the Anthropic Messages API with a per-minute call
// budget.
type AnthropicClient struct {
	apiKey     string
	model      string
	maxTokens  int
	url        string
	httpClient *http.Client

	mu        sync.Mutex
	callCount int
	resetAt   time.Time
	maxPerMin int
}

type AnthropicOption func(*AnthropicClient)

func WithModel(model string) AnthropicOption {
	return func(c *AnthropicClient) {
		if model != "" {
			c.model = model
		}
	}
}

func WithMaxTokens(n int) AnthropicOption {
	return func(c *AnthropicClient) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithRateLimit caps calls per minute.
func WithRateLimit(perMin int) AnthropicOption {
	return func(c *AnthropicClient) {
		if perMin > 0 {
			c.maxPerMin = perMin
		}
	}
}

// WithEndpoint overrides the API URL.
func WithEndpoint(url string) AnthropicOption {
	return func(c *AnthropicClient) {
		if url != "" {
			c.url = url
		}
	}
}

// NewAnthropicClient returns nil when apiKey is empty (LLM disabled).
func NewAnthropicClient(apiKey string, opts ...AnthropicOption) *AnthropicClient {
	if apiKey == "" {
		return nil
	}
	c := &AnthropicClient{
		apiKey:     apiKey,
		model:      DefaultAnthropicModel,
		maxTokens:  defaultMaxTokens,
		url:        anthropicURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		maxPerMin:  defaultMaxPerMin,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enabled returns true if the client has a valid API key.
func (c *AnthropicClient) Enabled() bool {
	return c != nil && c.apiKey != ""
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type request struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
}

type response struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (c *AnthropicClient) take() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	if now.After(c.resetAt) {
		c.callCount = 0
		c.resetAt = now.Add(time.Minute)
	}
	if c.callCount >= c.maxPerMin {
		return false
	}
	c.callCount++
	return true
}

// Complete sends one user message and returns the first text block.
func (c *AnthropicClient) Complete(ctx context.Context, system, user string) (string, error) {
	if !c.Enabled() {
		return "", goerr.New("anthropic client not configured")
	}
	if !c.take() {
		return "", goerr.Wrap(ErrRateLimited, "anthropic call rejected", goerr.V("max_per_min", c.maxPerMin))
	}

	body, err := json.Marshal(request{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    system,
		Messages:  []message{{Role: "user", Content: user}},
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to marshal anthropic request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", goerr.Wrap(err, "failed to create anthropic request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", goerr.Wrap(err, "anthropic call failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", goerr.Wrap(err, "failed to read anthropic response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", goerr.New("anthropic API error", goerr.V("status", resp.StatusCode), goerr.V("body", string(respBody)))
	}

	var apiResp response
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", goerr.Wrap(err, "failed to unmarshal anthropic response")
	}
	if len(apiResp.Content) == 0 {
		return "", goerr.New("empty anthropic response")
	}

	slog.Debug("anthropic call",
		"model", c.model,
		"input_tokens", apiResp.Usage.InputTokens,
		"output_tokens", apiResp.Usage.OutputTokens,
	)
	return apiResp.Content[0].Text, nil
}
