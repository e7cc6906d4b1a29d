// chatrelayd runs the streaming chat relay: it loads layered configuration,
// wires the upstream client, tool and agent registries, and serves the HTTP
// surface until interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stellarlinkco/chatrelay/pkg/agent"
	"github.com/stellarlinkco/chatrelay/pkg/config"
	"github.com/stellarlinkco/chatrelay/pkg/model"
	"github.com/stellarlinkco/chatrelay/pkg/model/openai"
	"github.com/stellarlinkco/chatrelay/pkg/retry"
	"github.com/stellarlinkco/chatrelay/pkg/server"
	"github.com/stellarlinkco/chatrelay/pkg/telemetry"
	"github.com/stellarlinkco/chatrelay/pkg/tool"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := run(ctx, os.Args[1:]); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, argv []string) error {
	flags := flag.NewFlagSet("chatrelayd", flag.ContinueOnError)
	configDir := flags.String("config-dir", ".", "Directory holding chatrelay.yaml and chatrelay.local.yaml.")
	if err := flags.Parse(argv); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.NewLoader(*configDir).Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", slog.String("error", err.Error()))
		}
	}()

	agents, err := agent.NewRegistry(agent.Defaults()...)
	if err != nil {
		return err
	}
	tools := tool.DefaultRegistry()

	policy := retry.Default()
	policy.MaxAttempts = cfg.Upstream.MaxAttempts
	factory := openai.NewFactory(openai.FactoryConfig{
		APIKey:      cfg.Upstream.APIKey,
		BaseURL:     cfg.Upstream.BaseURL,
		MaxTokens:   cfg.Upstream.MaxTokens,
		RetryPolicy: policy,
	})

	srv, err := server.New(cfg, server.Deps{
		Logger: logger,
		Agents: agents,
		Tools:  tools,
		Models: func(name string, defs []openai.ToolDefinition) model.Model {
			return factory.Model(name, defs)
		},
		// Title generation is a single unary call, so it rides the official
		// SDK client instead of the hand-rolled streaming transport.
		TitleModels: func(name string, defs []openai.ToolDefinition) model.Model {
			return openai.NewSDKModel(cfg.Upstream.APIKey, name, cfg.Upstream.BaseURL, cfg.Upstream.MaxTokens, defs)
		},
		HealthChecks: map[string]server.HealthCheck{
			"upstream": upstreamCheck(cfg.Upstream.BaseURL),
		},
	})
	if err != nil {
		return err
	}

	logger.Info("listening",
		slog.String("addr", cfg.Server.Addr),
		slog.String("auth_mode", cfg.Auth.Mode),
	)
	return srv.Run(ctx, cfg.Server)
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	level, err := cfg.ParseLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// upstreamCheck probes upstream reachability without spending tokens. Any
// HTTP response counts as reachable; only transport errors fail the check.
func upstreamCheck(baseURL string) server.HealthCheck {
	client := &http.Client{}
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v1/models", nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		return nil
	}
}
