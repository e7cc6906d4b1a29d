package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/stellarlinkco/chatrelay/pkg/agent"
	"github.com/stellarlinkco/chatrelay/pkg/event"
	"github.com/stellarlinkco/chatrelay/pkg/message"
	"github.com/stellarlinkco/chatrelay/pkg/model"
	"github.com/stellarlinkco/chatrelay/pkg/telemetry"
)

const defaultSystemPrompt = "You are a helpful assistant. When a display tool fits the answer, " +
	"call it instead of describing the output in prose."

// chatRequest is the POST /chat body. Agent distinguishes absent/null from
// a named agent through the pointer.
type chatRequest struct {
	Messages []message.UIMessage `json:"messages"`
	Model    string              `json:"model"`
	Tools    []string            `json:"tools"`
	Agent    *string             `json:"agent"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, CodeInvalidRequest, "method not allowed")
		return
	}
	defer r.Body.Close()

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "malformed JSON body")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusUnprocessableEntity, CodeInvalidRequest, "messages is required")
		return
	}

	modelName := normalizeModel(req.Model)
	prompt := defaultSystemPrompt
	toolNames := req.Tools
	streaming := true
	var unknownAgent string

	if req.Agent != nil {
		name := strings.TrimSpace(*req.Agent)
		desc, ok := s.agents.Lookup(name)
		if !ok {
			unknownAgent = s.agents.UnknownAgent(name)
		} else {
			// A named agent owns its prompt, tools, model, and delivery
			// mode; the client whitelist is ignored.
			prompt = desc.SystemPrompt
			toolNames = desc.Tools
			streaming = desc.Streaming
			if desc.Model != "" {
				modelName = desc.Model
			}
		}
	}
	if modelName == "" && unknownAgent == "" {
		writeError(w, http.StatusUnprocessableEntity, CodeInvalidRequest, "model is required")
		return
	}
	if modelName != "" && !knownModel(modelName) {
		s.logger.Debug("unknown model, using default",
			slog.String("requested", modelName),
			slog.String("default", s.defaultModel),
		)
		modelName = s.defaultModel
	}

	converted, err := message.Convert(req.Messages)
	if err != nil {
		status, code := classify(err)
		writeError(w, status, code, err.Error())
		return
	}
	if prompt != "" {
		converted = append([]model.Message{{Role: "system", Content: prompt}}, converted...)
	}

	sw, err := event.NewWriter(w, event.WithTimeout(s.streamTimeout))
	if err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternalError, err.Error())
		return
	}

	requestID := RequestIDFromContext(r.Context())
	sw.Open(requestID)

	// Past this point every failure is an in-band event on a 200 stream.
	if unknownAgent != "" {
		_ = sw.WriteEvent(event.Error{Message: unknownAgent})
		return
	}

	ctx, span := telemetry.StartSpan(r.Context(), "server.chat",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(telemetry.SanitizeAttributes(
			attribute.String("llm.model", modelName),
			attribute.Bool("chat.streaming", streaming),
		)...),
	)
	defer telemetry.EndSpan(span, nil)

	// Cancelling on return unblocks the producer on disconnect, timeout,
	// and normal completion alike.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	upstream := s.models(modelName, toolDefinitions(s.tools, toolNames))
	ag, err := agent.New(agent.Config{
		Model:     upstream,
		Tools:     s.tools,
		ToolNames: toolNames,
		Streaming: streaming,
		Buffer:    s.streamBuffer,
	})
	if err != nil {
		_ = sw.WriteEvent(event.Error{Message: err.Error()})
		return
	}

	if err := sw.Stream(ctx, ag.Run(ctx, converted)); err != nil {
		s.logger.Warn("stream ended",
			slog.String("request_id", requestID),
			slog.String("reason", err.Error()),
		)
	}
}

// normalizeModel strips the provider prefix clients sometimes send.
func normalizeModel(name string) string {
	return strings.TrimPrefix(strings.TrimSpace(name), "openai/")
}
