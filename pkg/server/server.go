// Package server exposes the relay HTTP surface: the streaming chat
// endpoint, the title sibling, the model catalog, and health probes.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/stellarlinkco/chatrelay/pkg/agent"
	"github.com/stellarlinkco/chatrelay/pkg/config"
	"github.com/stellarlinkco/chatrelay/pkg/model"
	"github.com/stellarlinkco/chatrelay/pkg/model/openai"
	"github.com/stellarlinkco/chatrelay/pkg/tool"
)

// ModelProvider builds an upstream model client bound to one model name and
// tool set. One call per request.
type ModelProvider func(name string, tools []openai.ToolDefinition) model.Model

// Deps carries the process-wide collaborators a Server is wired with.
// TitleModels is optional; when nil the title endpoint shares Models.
type Deps struct {
	Logger       *slog.Logger
	Agents       *agent.Registry
	Tools        *tool.Registry
	Models       ModelProvider
	TitleModels  ModelProvider
	HealthChecks map[string]HealthCheck
}

// Server routes requests and holds the immutable per-process state.
type Server struct {
	logger      *slog.Logger
	agents      *agent.Registry
	tools       *tool.Registry
	models      ModelProvider
	titleModels ModelProvider

	streamTimeout  time.Duration
	streamBuffer   int
	defaultModel   string
	titleModel     string
	titleTimeout   time.Duration
	titleMaxLength int

	healthChecks map[string]HealthCheck
	handler      http.Handler
}

// New wires routes and the middleware chain. The chain runs outermost
// first: recovery, request id, logging, CORS, auth.
func New(cfg *config.Config, deps Deps) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server: config is required")
	}
	if deps.Logger == nil {
		return nil, errors.New("server: logger is required")
	}
	if deps.Agents == nil {
		return nil, errors.New("server: agent registry is required")
	}
	if deps.Tools == nil {
		return nil, errors.New("server: tool registry is required")
	}
	if deps.Models == nil {
		return nil, errors.New("server: model provider is required")
	}

	titleModels := deps.TitleModels
	if titleModels == nil {
		titleModels = deps.Models
	}

	s := &Server{
		logger:         deps.Logger,
		agents:         deps.Agents,
		tools:          deps.Tools,
		models:         deps.Models,
		titleModels:    titleModels,
		streamTimeout:  cfg.Stream.Timeout.Std(),
		streamBuffer:   cfg.Stream.Buffer,
		defaultModel:   cfg.Upstream.DefaultModel,
		titleModel:     cfg.Title.Model,
		titleTimeout:   cfg.Title.Timeout.Std(),
		titleMaxLength: cfg.Title.MaxLength,
		healthChecks:   deps.HealthChecks,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/chat", s.handleChat)
	mux.HandleFunc("/title/generate", s.handleTitle)
	mux.HandleFunc("/models", s.handleModels)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/live", s.handleHealthLive)
	mux.HandleFunc("/health/ready", s.handleHealth)

	auth := newAuthenticator(cfg.Auth)
	var handler http.Handler = auth.wrap(mux)
	handler = withCORS(cfg.Server.CORSOrigins, handler)
	handler = withLogging(deps.Logger, handler)
	handler = withRequestID(handler)
	handler = withRecovery(deps.Logger, handler)
	s.handler = handler
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Run serves until ctx is cancelled, then drains within the shutdown
// timeout.
func (s *Server) Run(ctx context.Context, cfg config.ServerConfig) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           s,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout.Std(),
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.Std())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	err := <-errCh
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// toolDefinitions resolves the enabled subset into upstream declarations.
// An empty result disables tools for the request.
func toolDefinitions(reg *tool.Registry, names []string) []openai.ToolDefinition {
	decls := reg.Declarations(names)
	if len(decls) == 0 {
		return nil
	}
	out := make([]openai.ToolDefinition, 0, len(decls))
	for _, d := range decls {
		out = append(out, openai.ToolDefinition{
			Type: "function",
			Function: openai.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Parameters,
			},
		})
	}
	return out
}
