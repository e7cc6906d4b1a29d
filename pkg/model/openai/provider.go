package openai

import (
	"net/http"

	"github.com/stellarlinkco/chatrelay/pkg/retry"
)

// Factory stamps out per-request Model instances that share one pooled HTTP
// client, credentials, and retry schedule. Built once at process start.
type Factory struct {
	client      *http.Client
	apiKey      string
	baseURL     string
	maxTokens   int
	retryPolicy retry.Policy
}

// FactoryConfig carries the upstream settings a Factory is built from.
type FactoryConfig struct {
	APIKey      string
	BaseURL     string
	MaxTokens   int
	RetryPolicy retry.Policy
}

// NewFactory builds a model factory around a shared HTTP client. The client
// carries no overall timeout; streaming responses outlive any fixed value,
// so deadlines travel on the request context instead.
func NewFactory(cfg FactoryConfig) *Factory {
	policy := cfg.RetryPolicy
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Factory{
		client:      &http.Client{},
		apiKey:      cfg.APIKey,
		baseURL:     sanitizeBaseURL(cfg.BaseURL),
		maxTokens:   cfg.MaxTokens,
		retryPolicy: policy,
	}
}

// Model builds a client bound to one model name and tool set.
func (f *Factory) Model(name string, tools []ToolDefinition) *Model {
	return New(f.apiKey, name,
		WithHTTPClient(f.client),
		WithBaseURL(f.baseURL),
		WithMaxTokens(f.maxTokens),
		WithRetryPolicy(f.retryPolicy),
		WithTools(tools),
	)
}
