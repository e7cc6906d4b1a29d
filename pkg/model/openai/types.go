package openai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	defaultBaseURL       = "https://api.openai.com"
	chatCompletionsPath  = "/v1/chat/completions"
	defaultHTTPTimeout   = 120 // seconds
	userAgent            = "chatrelay/openai"
	maxStreamLineBytes   = 1024 * 1024
	initialStreamBufSize = 64 * 1024
)

// chatRequest models the Chat Completions payload subset the relay sends.
type chatRequest struct {
	Model       string           `json:"model"`
	Messages    []chatMessage    `json:"messages"`
	Temperature *float64         `json:"temperature,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	ToolChoice  json.RawMessage  `json:"tool_choice,omitempty"`
	Stream      bool             `json:"stream"`
}

// chatMessage describes a single request message.
type chatMessage struct {
	Role       string          `json:"role"`
	Content    *string         `json:"content"`
	Name       string          `json:"name,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolCalls  []toolCallParam `json:"tool_calls,omitempty"`
}

// toolCallParam serializes a prior assistant tool call.
type toolCallParam struct {
	ID       string         `json:"id,omitempty"`
	Type     string         `json:"type"`
	Function *functionParam `json:"function,omitempty"`
}

type functionParam struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDefinition describes a callable function sent upstream.
type ToolDefinition struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition carries the JSON-Schema for a callable function.
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// chatResponse captures the non-streaming response subset the relay reads.
type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

type chatChoice struct {
	Index   int             `json:"index"`
	Message responseMessage `json:"message"`
}

type responseMessage struct {
	Role      string             `json:"role"`
	Content   messageContent     `json:"content"`
	ToolCalls []responseToolCall `json:"tool_calls,omitempty"`
}

type responseToolCall struct {
	ID       string        `json:"id"`
	Type     string        `json:"type"`
	Function *functionBody `json:"function,omitempty"`
}

type functionBody struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// messageContent normalizes string vs array content payloads.
type messageContent []contentPart

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Text collapses all text parts into a single string.
func (c messageContent) Text() string {
	if len(c) == 0 {
		return ""
	}
	var b strings.Builder
	for _, part := range c {
		if part.Type == "text" && part.Text != "" {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}

// UnmarshalJSON accepts either a plain string or an array of parts.
func (c *messageContent) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = nil
		return nil
	}
	switch data[0] {
	case '[':
		var parts []contentPart
		if err := json.Unmarshal(data, &parts); err != nil {
			return err
		}
		*c = messageContent(parts)
		return nil
	case '"':
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		*c = messageContent{{Type: "text", Text: text}}
		return nil
	}
	return fmt.Errorf("unsupported content payload: %s", string(data))
}

// streamChunk represents one streaming delta envelope.
type streamChunk struct {
	Choices []streamChoice `json:"choices"`
}

type streamChoice struct {
	Index        int         `json:"index"`
	Delta        streamDelta `json:"delta"`
	FinishReason string      `json:"finish_reason"`
}

type streamDelta struct {
	Role      string          `json:"role"`
	Content   messageContent  `json:"content"`
	ToolCalls []toolCallDelta `json:"tool_calls"`
}

// toolCallDelta accumulates partial function call data keyed by index.
type toolCallDelta struct {
	Index    int            `json:"index"`
	ID       string         `json:"id,omitempty"`
	Type     string         `json:"type,omitempty"`
	Function *functionDelta `json:"function,omitempty"`
}

type functionDelta struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// APIError surfaces HTTP metadata along with upstream error info.
type APIError struct {
	StatusCode int
	Type       string
	Code       string
	Message    string
}

// HTTPStatusCode reports the upstream status for failure classification.
func (e APIError) HTTPStatusCode() int { return e.StatusCode }

func (e APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "upstream API error (%d", e.StatusCode)
	if e.Type != "" {
		b.WriteString(", ")
		b.WriteString(e.Type)
	}
	b.WriteString(")")
	if e.Code != "" {
		b.WriteString(" code=")
		b.WriteString(e.Code)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}
