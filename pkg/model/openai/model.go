package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	modelpkg "github.com/stellarlinkco/chatrelay/pkg/model"
	"github.com/stellarlinkco/chatrelay/pkg/retry"
)

// Ensure Model implements modelpkg.Model.
var _ modelpkg.Model = (*Model)(nil)

// Model talks to an OpenAI-compatible Chat Completions endpoint. One
// instance is built per request with the model name and tool declarations
// already bound; the underlying HTTP client is shared.
type Model struct {
	client      *http.Client
	baseURL     string
	model       string
	headers     map[string]string
	tools       []ToolDefinition
	temperature *float64
	maxTokens   int
	retryPolicy retry.Policy
}

// Generate performs a blocking chat completion request.
func (m *Model) Generate(ctx context.Context, messages []modelpkg.Message) (modelpkg.Message, error) {
	payload := m.buildPayload(messages, false)
	resp, err := m.doRequest(ctx, payload)
	if err != nil {
		return modelpkg.Message{}, err
	}
	defer resp.Body.Close()

	var completion chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return modelpkg.Message{}, fmt.Errorf("decode upstream response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return modelpkg.Message{}, errors.New("upstream response contains no choices")
	}
	return convertChoice(completion.Choices[0])
}

// GenerateStream invokes the streaming endpoint and relays partial chunks.
// Connection-level failures are retried; once the body is being consumed no
// retry happens and the error reaches the caller as-is.
func (m *Model) GenerateStream(ctx context.Context, messages []modelpkg.Message, cb modelpkg.StreamCallback) error {
	if cb == nil {
		return errors.New("stream callback is required")
	}

	payload := m.buildPayload(messages, true)
	resp, err := m.doRequest(ctx, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	stream := newChunkStream(cb)
	if err := stream.consume(ctx, resp.Body); err != nil {
		return err
	}
	return stream.finalize()
}

func (m *Model) buildPayload(messages []modelpkg.Message, stream bool) chatRequest {
	payload := chatRequest{
		Model:    m.model,
		Messages: toChatMessages(messages),
		Stream:   stream,
	}
	if len(payload.Messages) == 0 {
		empty := ""
		payload.Messages = []chatMessage{{Role: "user", Content: &empty}}
	}
	if m.maxTokens > 0 {
		payload.MaxTokens = m.maxTokens
	}
	if m.temperature != nil {
		payload.Temperature = m.temperature
	}
	if len(m.tools) > 0 {
		payload.Tools = cloneTools(m.tools)
	}
	return payload
}

// doRequest issues the completion request, retrying transient failures
// until a response body is obtained. The returned response always has a
// 2xx status.
func (m *Model) doRequest(ctx context.Context, payload chatRequest) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode upstream request: %w", err)
	}

	var resp *http.Response
	attempt := func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+chatCompletionsPath, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create upstream request: %w", err)
		}
		for k, v := range m.headers {
			if v == "" {
				continue
			}
			req.Header.Set(k, v)
		}
		r, err := m.client.Do(req)
		if err != nil {
			return err
		}
		if r.StatusCode >= http.StatusMultipleChoices {
			apiErr := readAPIError(r)
			r.Body.Close()
			return apiErr
		}
		resp = r
		return nil
	}
	if err := retry.Do(ctx, m.retryPolicy, attempt); err != nil {
		return nil, err
	}
	return resp, nil
}

func convertChoice(choice chatChoice) (modelpkg.Message, error) {
	role := choice.Message.Role
	if role == "" {
		role = "assistant"
	}
	toolCalls, err := convertToolCalls(choice.Message.ToolCalls)
	if err != nil {
		return modelpkg.Message{}, err
	}
	return modelpkg.Message{
		Role:      role,
		Content:   choice.Message.Content.Text(),
		ToolCalls: toolCalls,
	}, nil
}

func convertToolCalls(calls []responseToolCall) ([]modelpkg.ToolCall, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	out := make([]modelpkg.ToolCall, 0, len(calls))
	for _, call := range calls {
		if call.Type != "function" || call.Function == nil {
			continue
		}
		args, err := decodeArguments(call.Function.Arguments)
		if err != nil {
			return nil, err
		}
		out = append(out, modelpkg.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: args,
		})
	}
	return out, nil
}

func toChatMessages(messages []modelpkg.Message) []chatMessage {
	if len(messages) == 0 {
		return nil
	}
	out := make([]chatMessage, 0, len(messages))
	for _, msg := range messages {
		role := normalizeRole(msg.Role)
		content := msg.Content
		var contentPtr *string
		if content != "" {
			contentPtr = &content
		}
		switch role {
		case "assistant":
			param := chatMessage{Role: role, Content: contentPtr}
			if len(msg.ToolCalls) > 0 {
				param.ToolCalls = encodeToolCalls(msg.ToolCalls)
				if msg.Content == "" {
					param.Content = nil
				}
			}
			out = append(out, param)
		case "tool":
			param := chatMessage{Role: role, Content: stringPtr(content)}
			if len(msg.ToolCalls) > 0 {
				param.ToolCallID = msg.ToolCalls[0].ID
				if name := strings.TrimSpace(msg.ToolCalls[0].Name); name != "" {
					param.Name = name
				}
			}
			out = append(out, param)
		case "system", "user":
			if contentPtr == nil {
				contentPtr = stringPtr("")
			}
			out = append(out, chatMessage{Role: role, Content: contentPtr})
		default:
			if contentPtr == nil {
				contentPtr = stringPtr("")
			}
			out = append(out, chatMessage{Role: "user", Content: contentPtr})
		}
	}
	return out
}

func encodeToolCalls(calls []modelpkg.ToolCall) []toolCallParam {
	if len(calls) == 0 {
		return nil
	}
	out := make([]toolCallParam, 0, len(calls))
	for _, call := range calls {
		name := strings.TrimSpace(call.Name)
		if name == "" {
			continue
		}
		out = append(out, toolCallParam{
			ID:   call.ID,
			Type: "function",
			Function: &functionParam{
				Name:      name,
				Arguments: encodeArguments(call.Arguments),
			},
		})
	}
	return out
}

func stringPtr(s string) *string {
	return &s
}

func encodeArguments(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func decodeArguments(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decode tool arguments: %w", err)
	}
	return out, nil
}

func normalizeRole(role string) string {
	trimmed := strings.ToLower(strings.TrimSpace(role))
	switch trimmed {
	case "assistant", "user", "system", "tool":
		return trimmed
	default:
		return "user"
	}
}

func readAPIError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return APIError{StatusCode: resp.StatusCode, Message: resp.Status}
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return APIError{StatusCode: resp.StatusCode, Message: resp.Status}
	}
	var apiErr errorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return APIError{
			StatusCode: resp.StatusCode,
			Type:       apiErr.Error.Type,
			Code:       apiErr.Error.Code,
			Message:    apiErr.Error.Message,
		}
	}
	return APIError{StatusCode: resp.StatusCode, Message: string(body)}
}
