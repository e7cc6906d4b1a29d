package openai

import (
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go/v3"

	modelpkg "github.com/stellarlinkco/chatrelay/pkg/model"
)

func sdkMessagesIn(messages []modelpkg.Message) ([]openaisdk.ChatCompletionMessageParamUnion, error) {
	if len(messages) == 0 {
		return []openaisdk.ChatCompletionMessageParamUnion{openaisdk.UserMessage("")}, nil
	}
	params := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(messages))
	for idx, msg := range messages {
		switch normalizeRole(msg.Role) {
		case "system":
			params = append(params, openaisdk.SystemMessage(msg.Content))
		case "user":
			params = append(params, openaisdk.UserMessage(msg.Content))
		case "assistant":
			union, err := sdkAssistantIn(msg)
			if err != nil {
				return nil, fmt.Errorf("messages[%d]: %w", idx, err)
			}
			params = append(params, union)
		case "tool":
			id := firstToolCallID(msg.ToolCalls)
			if id == "" {
				return nil, fmt.Errorf("messages[%d]: tool message missing tool_call_id", idx)
			}
			params = append(params, openaisdk.ToolMessage(msg.Content, id))
		default:
			params = append(params, openaisdk.UserMessage(msg.Content))
		}
	}
	return params, nil
}

func sdkAssistantIn(msg modelpkg.Message) (openaisdk.ChatCompletionMessageParamUnion, error) {
	asst := openaisdk.ChatCompletionAssistantMessageParam{}
	if msg.Content != "" || len(msg.ToolCalls) == 0 {
		asst.Content.OfString = openaisdk.String(msg.Content)
	}
	if len(msg.ToolCalls) > 0 {
		calls := make([]openaisdk.ChatCompletionMessageToolCallUnionParam, 0, len(msg.ToolCalls))
		for idx, call := range msg.ToolCalls {
			name := strings.TrimSpace(call.Name)
			if name == "" {
				return openaisdk.ChatCompletionMessageParamUnion{}, fmt.Errorf("tool_calls[%d]: missing name", idx)
			}
			calls = append(calls, openaisdk.ChatCompletionMessageToolCallUnionParam{
				OfFunction: &openaisdk.ChatCompletionMessageFunctionToolCallParam{
					ID: call.ID,
					Function: openaisdk.ChatCompletionMessageFunctionToolCallFunctionParam{
						Name:      name,
						Arguments: encodeArguments(call.Arguments),
					},
				},
			})
		}
		asst.ToolCalls = calls
	}
	return openaisdk.ChatCompletionMessageParamUnion{OfAssistant: &asst}, nil
}

func sdkToolsIn(tools []ToolDefinition) []openaisdk.ChatCompletionToolUnionParam {
	out := make([]openaisdk.ChatCompletionToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		def := openaisdk.FunctionDefinitionParam{Name: tool.Function.Name}
		if tool.Function.Description != "" {
			def.Description = openaisdk.String(tool.Function.Description)
		}
		if len(tool.Function.Parameters) > 0 {
			def.Parameters = openaisdk.FunctionParameters(cloneMap(tool.Function.Parameters))
		}
		out = append(out, openaisdk.ChatCompletionToolUnionParam{
			OfFunction: &openaisdk.ChatCompletionFunctionToolParam{Function: def},
		})
	}
	return out
}

func sdkMessageOut(msg openaisdk.ChatCompletionMessage) (modelpkg.Message, error) {
	role := strings.TrimSpace(string(msg.Role))
	if role == "" {
		role = "assistant"
	}
	content := msg.Content
	if content == "" && strings.TrimSpace(msg.Refusal) != "" {
		content = msg.Refusal
	}
	result := modelpkg.Message{Role: role, Content: content}

	if len(msg.ToolCalls) > 0 {
		calls := make([]modelpkg.ToolCall, 0, len(msg.ToolCalls))
		for idx, call := range msg.ToolCalls {
			fn := call.AsFunction()
			if strings.TrimSpace(fn.Function.Name) == "" {
				continue
			}
			args, err := decodeArguments(fn.Function.Arguments)
			if err != nil {
				return modelpkg.Message{}, fmt.Errorf("tool_calls[%d]: %w", idx, err)
			}
			calls = append(calls, modelpkg.ToolCall{
				ID:        fn.ID,
				Name:      fn.Function.Name,
				Arguments: args,
			})
		}
		result.ToolCalls = calls
	}
	return result, nil
}

func firstToolCallID(calls []modelpkg.ToolCall) string {
	for _, call := range calls {
		if id := strings.TrimSpace(call.ID); id != "" {
			return id
		}
	}
	return ""
}
