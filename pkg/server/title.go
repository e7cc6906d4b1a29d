package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/stellarlinkco/chatrelay/pkg/model"
	"github.com/stellarlinkco/chatrelay/pkg/telemetry"
)

const titlePrompt = "Generate a short title for the conversation that starts with the " +
	"following user message. Return only the title text, at most a few words, " +
	"no quotes and no trailing punctuation."

type titleRequest struct {
	UserMessage    string `json:"userMessage"`
	ConversationID string `json:"conversationId"`
}

type titleResponse struct {
	Title       string `json:"title"`
	UseFallback bool   `json:"useFallback"`
}

// handleTitle generates a conversation title through the non-streaming
// model path. Failures degrade to an empty title with useFallback set, so
// the endpoint never surfaces an error status for upstream trouble.
func (s *Server) handleTitle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, CodeInvalidRequest, "method not allowed")
		return
	}
	defer r.Body.Close()

	var req titleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "malformed JSON body")
		return
	}
	if strings.TrimSpace(req.UserMessage) == "" {
		writeError(w, http.StatusUnprocessableEntity, CodeInvalidRequest, "userMessage is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.titleTimeout)
	defer cancel()
	ctx, span := telemetry.StartSpan(ctx, "server.title",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("llm.model", s.titleModel)),
	)

	upstream := s.titleModels(s.titleModel, nil)
	msg, err := upstream.Generate(ctx, []model.Message{
		{Role: "system", Content: titlePrompt},
		{Role: "user", Content: req.UserMessage},
	})
	telemetry.EndSpan(span, err)
	resp := titleResponse{UseFallback: true}
	if err != nil {
		s.logger.Warn("title generation failed",
			slog.String("conversation_id", req.ConversationID),
			slog.String("request_id", RequestIDFromContext(r.Context())),
			slog.String("error", err.Error()),
		)
	} else if title := cleanTitle(msg.Content, s.titleMaxLength); title != "" {
		resp = titleResponse{Title: title}
	}
	writeJSON(w, http.StatusOK, resp)
}

// cleanTitle normalizes model output: trim space, strip one matching pair
// of outer quotes, and truncate over-long titles at a word boundary when
// one exists in the last 40% of the cut.
func cleanTitle(raw string, maxLength int) string {
	title := strings.TrimSpace(raw)
	for _, quote := range []string{`"`, "'"} {
		if len(title) >= 2 && strings.HasPrefix(title, quote) && strings.HasSuffix(title, quote) {
			title = strings.TrimSpace(title[1 : len(title)-1])
			break
		}
	}
	if maxLength <= 0 || len(title) <= maxLength {
		return title
	}
	cut := title[:maxLength]
	if idx := strings.LastIndex(cut, " "); idx > maxLength*6/10 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(cut) + "..."
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
