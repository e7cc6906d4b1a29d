package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stellarlinkco/chatrelay/pkg/agent"
	"github.com/stellarlinkco/chatrelay/pkg/config"
	"github.com/stellarlinkco/chatrelay/pkg/model"
	"github.com/stellarlinkco/chatrelay/pkg/model/openai"
	"github.com/stellarlinkco/chatrelay/pkg/tool"
)

// fakeUpstream scripts model behavior per test.
type fakeUpstream struct {
	generateFn func(ctx context.Context, messages []model.Message) (model.Message, error)
	streamFn   func(ctx context.Context, messages []model.Message, cb model.StreamCallback) error
}

func (f *fakeUpstream) Generate(ctx context.Context, messages []model.Message) (model.Message, error) {
	if f.generateFn == nil {
		return model.Message{Role: "assistant"}, nil
	}
	return f.generateFn(ctx, messages)
}

func (f *fakeUpstream) GenerateStream(ctx context.Context, messages []model.Message, cb model.StreamCallback) error {
	if f.streamFn == nil {
		return cb(model.StreamResult{Final: true})
	}
	return f.streamFn(ctx, messages, cb)
}

// providerSpy records what the server requested from the model layer.
type providerSpy struct {
	upstream  *fakeUpstream
	modelName string
	tools     []openai.ToolDefinition
	messages  []model.Message
}

func (p *providerSpy) provide(name string, tools []openai.ToolDefinition) model.Model {
	p.modelName = name
	p.tools = tools
	capture := &fakeUpstream{
		generateFn: func(ctx context.Context, messages []model.Message) (model.Message, error) {
			p.messages = messages
			return p.upstream.Generate(ctx, messages)
		},
		streamFn: func(ctx context.Context, messages []model.Message, cb model.StreamCallback) error {
			p.messages = messages
			return p.upstream.GenerateStream(ctx, messages, cb)
		},
	}
	return capture
}

func newTestServer(t *testing.T, spy *providerSpy, mutate func(cfg *config.Config)) *Server {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	agents, err := agent.NewRegistry(agent.Defaults()...)
	if err != nil {
		t.Fatalf("agent registry: %v", err)
	}
	srv, err := New(cfg, Deps{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Agents: agents,
		Tools:  tool.DefaultRegistry(),
		Models: spy.provide,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return srv
}

func postChat(srv *Server, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

const userHello = `{"id":"m1","role":"user","parts":[{"type":"text","text":"hello"}]}`

func TestChatStreamsDeltas(t *testing.T) {
	spy := &providerSpy{upstream: &fakeUpstream{
		streamFn: func(ctx context.Context, messages []model.Message, cb model.StreamCallback) error {
			for _, chunk := range []string{"Hel", "lo"} {
				if err := cb(model.StreamResult{Message: model.Message{Role: "assistant", Content: chunk}}); err != nil {
					return err
				}
			}
			return cb(model.StreamResult{Message: model.Message{Role: "assistant", Content: "Hello"}, Final: true})
		},
	}}
	srv := newTestServer(t, spy, nil)

	rec := postChat(srv, `{"model":"gpt-4o","messages":[`+userHello+`]}`, map[string]string{"X-Request-ID": "req-7"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("content type = %q", got)
	}
	if got := rec.Header().Get("X-Request-ID"); got != "req-7" {
		t.Fatalf("request id = %q", got)
	}
	want := "data: {\"type\":\"text-delta\",\"textDelta\":\"Hel\"}\n\n" +
		"data: {\"type\":\"text-delta\",\"textDelta\":\"lo\"}\n\n" +
		"data: {\"type\":\"finish\"}\n\n"
	if rec.Body.String() != want {
		t.Fatalf("body = %q", rec.Body.String())
	}
	if spy.modelName != "gpt-4o" {
		t.Fatalf("model = %q", spy.modelName)
	}
	if len(spy.messages) != 2 || spy.messages[0].Role != "system" || spy.messages[1].Content != "hello" {
		t.Fatalf("upstream messages = %+v", spy.messages)
	}
}

func TestChatUnknownAgent(t *testing.T) {
	spy := &providerSpy{upstream: &fakeUpstream{}}
	srv := newTestServer(t, spy, nil)

	rec := postChat(srv, `{"agent":"xyz","messages":[`+userHello+`]}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	want := "data: {\"type\":\"error\",\"error\":\"unknown agent 'xyz'; available: [main, research, code_review]\"}\n\n"
	if rec.Body.String() != want {
		t.Fatalf("body = %q", rec.Body.String())
	}
	if spy.modelName != "" {
		t.Fatalf("upstream called for unknown agent: %q", spy.modelName)
	}
}

func TestChatNamedAgentOverridesRequest(t *testing.T) {
	spy := &providerSpy{upstream: &fakeUpstream{
		generateFn: func(ctx context.Context, messages []model.Message) (model.Message, error) {
			return model.Message{Role: "assistant", Content: "looks fine"}, nil
		},
	}}
	srv := newTestServer(t, spy, nil)

	rec := postChat(srv, `{"agent":"code_review","model":"gpt-3.5-turbo","tools":["generateChart"],"messages":[`+userHello+`]}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	want := "data: {\"type\":\"text-delta\",\"textDelta\":\"looks fine\"}\n\n" +
		"data: {\"type\":\"finish\"}\n\n"
	if rec.Body.String() != want {
		t.Fatalf("body = %q", rec.Body.String())
	}
	if spy.modelName != "gpt-4o" {
		t.Fatalf("model = %q want the agent model", spy.modelName)
	}
	if len(spy.tools) != 1 || spy.tools[0].Function.Name != "analyze_complexity" {
		t.Fatalf("tools = %+v want the agent tool set", spy.tools)
	}
	if len(spy.messages) == 0 || !strings.Contains(spy.messages[0].Content, "code reviewer") {
		t.Fatalf("system prompt not overridden: %+v", spy.messages)
	}
}

func TestChatModelPrefixNormalized(t *testing.T) {
	spy := &providerSpy{upstream: &fakeUpstream{}}
	srv := newTestServer(t, spy, nil)

	rec := postChat(srv, `{"model":"openai/gpt-4o-mini","messages":[`+userHello+`]}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if spy.modelName != "gpt-4o-mini" {
		t.Fatalf("model = %q", spy.modelName)
	}
}

func TestChatUnknownModelFallsBackToDefault(t *testing.T) {
	spy := &providerSpy{upstream: &fakeUpstream{}}
	srv := newTestServer(t, spy, nil)

	rec := postChat(srv, `{"model":"gpt-9-ultra","messages":[`+userHello+`]}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if spy.modelName != "gpt-4o" {
		t.Fatalf("model = %q want the configured default", spy.modelName)
	}
}

func TestChatToolWhitelist(t *testing.T) {
	spy := &providerSpy{upstream: &fakeUpstream{}}
	srv := newTestServer(t, spy, nil)

	postChat(srv, `{"model":"gpt-4o","messages":[`+userHello+`]}`, nil)
	if spy.tools != nil {
		t.Fatalf("tools = %+v want none without a whitelist", spy.tools)
	}

	postChat(srv, `{"model":"gpt-4o","tools":["generateChart","nope"],"messages":[`+userHello+`]}`, nil)
	if len(spy.tools) != 1 || spy.tools[0].Function.Name != "generateChart" {
		t.Fatalf("tools = %+v", spy.tools)
	}
}

func TestChatRequestValidation(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		body       string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "method not allowed",
			method:     http.MethodGet,
			wantStatus: http.StatusMethodNotAllowed,
			wantCode:   CodeInvalidRequest,
		},
		{
			name:       "malformed body",
			method:     http.MethodPost,
			body:       `{"model":`,
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeInvalidRequest,
		},
		{
			name:       "missing messages",
			method:     http.MethodPost,
			body:       `{"model":"gpt-4o"}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   CodeInvalidRequest,
		},
		{
			name:       "missing model",
			method:     http.MethodPost,
			body:       `{"messages":[` + userHello + `]}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   CodeInvalidRequest,
		},
		{
			name:       "invalid message structure",
			method:     http.MethodPost,
			body:       `{"model":"gpt-4o","messages":[{"id":"m1","role":"user","parts":[{"type":"blob"}]}]}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   CodeInvalidMessage,
		},
	}

	spy := &providerSpy{upstream: &fakeUpstream{}}
	srv := newTestServer(t, spy, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/chat", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d want %d", rec.Code, tt.wantStatus)
			}
			var body apiError
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Code != tt.wantCode {
				t.Fatalf("code = %q want %q", body.Code, tt.wantCode)
			}
			if body.Detail == "" {
				t.Fatal("detail is empty")
			}
		})
	}
}

func TestChatUpstreamErrorBecomesEvent(t *testing.T) {
	spy := &providerSpy{upstream: &fakeUpstream{
		streamFn: func(ctx context.Context, messages []model.Message, cb model.StreamCallback) error {
			return openai.APIError{StatusCode: 503, Message: "overloaded"}
		},
	}}
	srv := newTestServer(t, spy, nil)

	rec := postChat(srv, `{"model":"gpt-4o","messages":[`+userHello+`]}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"type":"error"`) || !strings.Contains(body, "overloaded") {
		t.Fatalf("body = %q", body)
	}
	if strings.Contains(body, `"type":"finish"`) {
		t.Fatalf("finish after terminal error: %q", body)
	}
}

func TestModelsEndpoint(t *testing.T) {
	spy := &providerSpy{upstream: &fakeUpstream{}}
	srv := newTestServer(t, spy, nil)

	req := httptest.NewRequest(http.MethodGet, "/models", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Models []ModelInfo `json:"models"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	ids := make([]string, 0, len(body.Models))
	for _, m := range body.Models {
		ids = append(ids, m.ID)
	}
	want := []string{"gpt-4o", "gpt-4o-mini", "gpt-4-turbo", "gpt-3.5-turbo"}
	if len(ids) != len(want) {
		t.Fatalf("models = %v", ids)
	}
	for i, id := range want {
		if ids[i] != id {
			t.Fatalf("models = %v want %v", ids, want)
		}
	}
}

func TestNewValidatesDeps(t *testing.T) {
	cfg := config.Default()
	agents, err := agent.NewRegistry(agent.Defaults()...)
	if err != nil {
		t.Fatalf("agent registry: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	provider := func(string, []openai.ToolDefinition) model.Model { return &fakeUpstream{} }

	tests := []struct {
		name    string
		cfg     *config.Config
		deps    Deps
		wantErr string
	}{
		{name: "nil config", deps: Deps{Logger: logger}, wantErr: "config is required"},
		{name: "nil logger", cfg: cfg, wantErr: "logger is required"},
		{name: "nil agents", cfg: cfg, deps: Deps{Logger: logger}, wantErr: "agent registry is required"},
		{name: "nil tools", cfg: cfg, deps: Deps{Logger: logger, Agents: agents}, wantErr: "tool registry is required"},
		{
			name:    "nil models",
			cfg:     cfg,
			deps:    Deps{Logger: logger, Agents: agents, Tools: tool.DefaultRegistry()},
			wantErr: "model provider is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, tt.deps)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q got %v", tt.wantErr, err)
			}
		})
	}

	if _, err := New(cfg, Deps{Logger: logger, Agents: agents, Tools: tool.DefaultRegistry(), Models: provider}); err != nil {
		t.Fatalf("full deps: %v", err)
	}
}
