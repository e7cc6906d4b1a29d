package message

import (
	"encoding/json"
	"strings"

	"github.com/stellarlinkco/chatrelay/pkg/model"
)

// Convert flattens a UIMessage list into the ordered message list the
// upstream client consumes. It is the single point that enforces
// turn-structure invariants; any violation returns InvalidMessageError.
//
// Conversion is deterministic and order-preserving: derived entries appear
// in the same relative order as the parts they came from.
func Convert(messages []UIMessage) ([]model.Message, error) {
	out := make([]model.Message, 0, len(messages))
	seenCalls := map[string]bool{}
	resolved := map[string]bool{}

	for i, msg := range messages {
		if !validRole(msg.Role) {
			return nil, invalidf("messages[%d]: unknown role %q", i, msg.Role)
		}
		if len(msg.Parts) == 0 {
			return nil, invalidf("messages[%d]: parts is empty", i)
		}
		switch msg.Role {
		case RoleSystem:
			text, err := textOnly(msg.Parts, i)
			if err != nil {
				return nil, err
			}
			out = append(out, model.Message{Role: "system", Content: text})
		case RoleUser:
			entries, err := convertUser(msg, i, resolved)
			if err != nil {
				return nil, err
			}
			out = append(out, entries...)
		case RoleAssistant:
			entries, err := convertAssistant(msg, i, seenCalls, resolved)
			if err != nil {
				return nil, err
			}
			out = append(out, entries...)
		}
	}
	return out, nil
}

func textOnly(parts []Part, idx int) (string, error) {
	texts := make([]string, 0, len(parts))
	for _, part := range parts {
		if part.Type != PartTypeText {
			return "", invalidf("messages[%d]: part type %q not allowed here", idx, part.Type)
		}
		texts = append(texts, part.Text)
	}
	return strings.Join(texts, "\n"), nil
}

// convertUser emits user entries for text runs and tool entries for
// tool-invocation parts, which is how clients hand back a tool result
// produced on their side.
func convertUser(msg UIMessage, idx int, resolved map[string]bool) ([]model.Message, error) {
	var out []model.Message
	var texts []string
	flushText := func() {
		if len(texts) == 0 {
			return
		}
		out = append(out, model.Message{Role: "user", Content: strings.Join(texts, "\n")})
		texts = nil
	}
	for _, part := range msg.Parts {
		switch part.Type {
		case PartTypeText:
			texts = append(texts, part.Text)
		case PartTypeToolInvocation:
			if part.ToolCallID == "" {
				return nil, invalidf("messages[%d]: tool-invocation missing toolCallId", idx)
			}
			if resolved[part.ToolCallID] {
				return nil, invalidf("messages[%d]: duplicate toolCallId %q", idx, part.ToolCallID)
			}
			resolved[part.ToolCallID] = true
			flushText()
			out = append(out, toolEntry(part))
		default:
			return nil, invalidf("messages[%d]: unknown part type %q", idx, part.Type)
		}
	}
	flushText()
	return out, nil
}

// convertAssistant folds parts into assistant entries. Text and pending
// tool calls share one entry; an embedded result closes the entry and emits
// the matching tool entry, so later text opens a fresh assistant entry.
func convertAssistant(msg UIMessage, idx int, seenCalls, resolved map[string]bool) ([]model.Message, error) {
	var out []model.Message
	var texts []string
	var calls []model.ToolCall

	flush := func() {
		if len(texts) == 0 && len(calls) == 0 {
			return
		}
		out = append(out, model.Message{
			Role:      "assistant",
			Content:   strings.Join(texts, ""),
			ToolCalls: calls,
		})
		texts = nil
		calls = nil
	}

	for _, part := range msg.Parts {
		switch part.Type {
		case PartTypeText:
			texts = append(texts, part.Text)
		case PartTypeToolInvocation:
			if part.ToolCallID == "" {
				return nil, invalidf("messages[%d]: tool-invocation missing toolCallId", idx)
			}
			if seenCalls[part.ToolCallID] {
				return nil, invalidf("messages[%d]: duplicate toolCallId %q", idx, part.ToolCallID)
			}
			seenCalls[part.ToolCallID] = true
			calls = append(calls, model.ToolCall{
				ID:        part.ToolCallID,
				Name:      part.ToolName,
				Arguments: part.Args,
			})
			if part.HasResult() {
				if resolved[part.ToolCallID] {
					return nil, invalidf("messages[%d]: duplicate result for toolCallId %q", idx, part.ToolCallID)
				}
				resolved[part.ToolCallID] = true
				flush()
				out = append(out, toolEntry(part))
			}
		default:
			return nil, invalidf("messages[%d]: unknown part type %q", idx, part.Type)
		}
	}
	flush()
	return out, nil
}

func toolEntry(part Part) model.Message {
	result := part.Result
	if result == nil {
		result = map[string]any{}
	}
	return model.Message{
		Role:    "tool",
		Content: encodeResult(result),
		ToolCalls: []model.ToolCall{{
			ID:   part.ToolCallID,
			Name: part.ToolName,
		}},
	}
}

func encodeResult(result map[string]any) string {
	data, err := json.Marshal(result)
	if err != nil {
		return "{}"
	}
	return string(data)
}
