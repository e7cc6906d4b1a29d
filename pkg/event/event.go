// Package event defines the wire-level output event taxonomy and the SSE
// writer that delivers it. The event set is closed: text deltas, finalized
// tool calls, tool results, and exactly one terminal finish or error.
package event

import (
	"encoding/json"
	"fmt"
)

// Type discriminates the output event union.
type Type string

const (
	TypeTextDelta  Type = "text-delta"
	TypeToolCall   Type = "tool-call"
	TypeToolResult Type = "tool-result"
	TypeFinish     Type = "finish"
	TypeError      Type = "error"
)

// Event is one member of the closed output union. Concrete types marshal
// with a fixed field order so an emitted frame re-serializes byte-identical
// after parsing.
type Event interface {
	EventType() Type
	Terminal() bool
}

// TextDelta carries one non-empty chunk of assistant text.
type TextDelta struct {
	TextDelta string
}

func (TextDelta) EventType() Type { return TypeTextDelta }
func (TextDelta) Terminal() bool  { return false }

func (e TextDelta) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type      Type   `json:"type"`
		TextDelta string `json:"textDelta"`
	}{TypeTextDelta, e.TextDelta})
}

// ToolCall announces a finalized model tool invocation.
type ToolCall struct {
	ToolCallID string
	ToolName   string
	Args       map[string]any
}

func (ToolCall) EventType() Type { return TypeToolCall }
func (ToolCall) Terminal() bool  { return false }

func (e ToolCall) MarshalJSON() ([]byte, error) {
	args := e.Args
	if args == nil {
		args = map[string]any{}
	}
	return json.Marshal(struct {
		Type       Type           `json:"type"`
		ToolCallID string         `json:"toolCallId"`
		ToolName   string         `json:"toolName"`
		Args       map[string]any `json:"args"`
	}{TypeToolCall, e.ToolCallID, e.ToolName, args})
}

// ToolResult carries the handler output for an earlier ToolCall.
type ToolResult struct {
	ToolCallID string
	Result     map[string]any
}

func (ToolResult) EventType() Type { return TypeToolResult }
func (ToolResult) Terminal() bool  { return false }

func (e ToolResult) MarshalJSON() ([]byte, error) {
	result := e.Result
	if result == nil {
		result = map[string]any{}
	}
	return json.Marshal(struct {
		Type       Type           `json:"type"`
		ToolCallID string         `json:"toolCallId"`
		Result     map[string]any `json:"result"`
	}{TypeToolResult, e.ToolCallID, result})
}

// Finish is the success terminator.
type Finish struct{}

func (Finish) EventType() Type { return TypeFinish }
func (Finish) Terminal() bool  { return true }

func (Finish) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type Type `json:"type"`
	}{TypeFinish})
}

// Error is the failure terminator. Message is user-visible and concise.
type Error struct {
	Message string
}

func (Error) EventType() Type { return TypeError }
func (Error) Terminal() bool  { return true }

func (e Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type  Type   `json:"type"`
		Error string `json:"error"`
	}{TypeError, e.Message})
}

// Decode parses an emitted event frame body back into its concrete type.
func Decode(data []byte) (Event, error) {
	var envelope struct {
		Type       Type           `json:"type"`
		TextDelta  string         `json:"textDelta"`
		ToolCallID string         `json:"toolCallId"`
		ToolName   string         `json:"toolName"`
		Args       map[string]any `json:"args"`
		Result     map[string]any `json:"result"`
		Error      string         `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("event: decode frame: %w", err)
	}
	switch envelope.Type {
	case TypeTextDelta:
		return TextDelta{TextDelta: envelope.TextDelta}, nil
	case TypeToolCall:
		return ToolCall{ToolCallID: envelope.ToolCallID, ToolName: envelope.ToolName, Args: envelope.Args}, nil
	case TypeToolResult:
		return ToolResult{ToolCallID: envelope.ToolCallID, Result: envelope.Result}, nil
	case TypeFinish:
		return Finish{}, nil
	case TypeError:
		return Error{Message: envelope.Error}, nil
	}
	return nil, fmt.Errorf("event: unknown type %q", envelope.Type)
}
