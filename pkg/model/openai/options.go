package openai

import (
	"net/http"
	"strings"
	"time"

	"github.com/stellarlinkco/chatrelay/pkg/retry"
)

// Option customizes a Model at construction time.
type Option func(*Model)

// New builds a chat-completions client bound to one model name. The zero
// retry policy means a single attempt; pass WithRetryPolicy for backoff.
func New(apiKey, model string, opts ...Option) *Model {
	m := &Model{
		client:      &http.Client{Timeout: defaultHTTPTimeout * time.Second},
		baseURL:     defaultBaseURL,
		model:       model,
		headers:     defaultHeaders(apiKey),
		retryPolicy: retry.Policy{MaxAttempts: 1},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// WithHTTPClient shares a pooled client across model instances.
func WithHTTPClient(client *http.Client) Option {
	return func(m *Model) {
		if client != nil {
			m.client = client
		}
	}
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(base string) Option {
	return func(m *Model) {
		m.baseURL = sanitizeBaseURL(base)
	}
}

// WithTools binds the function declarations sent with every request.
func WithTools(tools []ToolDefinition) Option {
	return func(m *Model) {
		m.tools = cloneTools(tools)
	}
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) Option {
	return func(m *Model) {
		if n > 0 {
			m.maxTokens = n
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(m *Model) {
		m.temperature = &t
	}
}

// WithRetryPolicy enables backoff on transient connection failures.
func WithRetryPolicy(p retry.Policy) Option {
	return func(m *Model) {
		m.retryPolicy = p
	}
}

// WithHeader sets an extra request header.
func WithHeader(key, value string) Option {
	return func(m *Model) {
		if strings.TrimSpace(key) == "" {
			return
		}
		m.headers[key] = value
	}
}

func defaultHeaders(apiKey string) map[string]string {
	h := map[string]string{
		"Content-Type": "application/json",
		"Accept":       "application/json",
		"User-Agent":   userAgent,
	}
	if strings.TrimSpace(apiKey) != "" {
		h["Authorization"] = "Bearer " + apiKey
	}
	return h
}

func sanitizeBaseURL(base string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(base), "/")
	if trimmed == "" {
		return defaultBaseURL
	}
	return trimmed
}

func cloneMap(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func cloneTools(in []ToolDefinition) []ToolDefinition {
	if len(in) == 0 {
		return nil
	}
	out := make([]ToolDefinition, len(in))
	for i, tool := range in {
		out[i] = tool
		if tool.Type == "" {
			out[i].Type = "function"
		}
		if tool.Function.Parameters != nil {
			out[i].Function.Parameters = cloneMap(tool.Function.Parameters)
		}
	}
	return out
}
