// Package message defines the client-facing conversation model and its
// conversion into the flat message list consumed by upstream clients.
package message

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Part type discriminators.
const (
	PartTypeText           = "text"
	PartTypeToolInvocation = "tool-invocation"
)

// Roles accepted on a UIMessage.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// UIMessage is one client message composed of ordered typed parts.
type UIMessage struct {
	ID    string `json:"id"`
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// Part is a tagged union of text and tool-invocation segments.
type Part struct {
	Type       string         `json:"type"`
	Text       string         `json:"text,omitempty"`
	ToolCallID string         `json:"toolCallId,omitempty"`
	ToolName   string         `json:"toolName,omitempty"`
	Args       map[string]any `json:"args,omitempty"`
	Result     map[string]any `json:"result,omitempty"`
	hasResult  bool
}

// HasResult reports whether the part carried an embedded result, including
// an explicit empty object.
func (p Part) HasResult() bool {
	return p.hasResult || p.Result != nil
}

// UnmarshalJSON tracks result presence so an explicit empty object is
// distinguishable from an absent field.
func (p *Part) UnmarshalJSON(data []byte) error {
	type alias Part
	var raw struct {
		alias
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = Part(raw.alias)
	p.Result = nil
	if len(raw.Result) > 0 && !bytes.Equal(bytes.TrimSpace(raw.Result), []byte("null")) {
		var result map[string]any
		if err := json.Unmarshal(raw.Result, &result); err != nil {
			return fmt.Errorf("tool-invocation result: %w", err)
		}
		if result == nil {
			result = map[string]any{}
		}
		p.Result = result
		p.hasResult = true
	}
	return nil
}

// InvalidMessageError reports a conversation that violates the message
// model. Handlers map it to a 422 response.
type InvalidMessageError struct {
	Reason string
}

func (e *InvalidMessageError) Error() string {
	return "invalid message: " + e.Reason
}

func invalidf(format string, args ...any) error {
	return &InvalidMessageError{Reason: fmt.Sprintf(format, args...)}
}

func validRole(role string) bool {
	switch role {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}
