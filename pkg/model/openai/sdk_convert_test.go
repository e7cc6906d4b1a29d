package openai

import (
	"strings"
	"testing"

	modelpkg "github.com/stellarlinkco/chatrelay/pkg/model"
)

func TestSDKMessagesIn(t *testing.T) {
	t.Run("empty history yields one placeholder", func(t *testing.T) {
		params, err := sdkMessagesIn(nil)
		if err != nil {
			t.Fatalf("convert: %v", err)
		}
		if len(params) != 1 {
			t.Fatalf("params = %d want 1", len(params))
		}
	})

	t.Run("roles map one to one", func(t *testing.T) {
		params, err := sdkMessagesIn([]modelpkg.Message{
			{Role: "system", Content: "be brief"},
			{Role: "user", Content: "hello"},
			{Role: "assistant", Content: "hi"},
			{Role: "weird", Content: "treated as user"},
		})
		if err != nil {
			t.Fatalf("convert: %v", err)
		}
		if len(params) != 4 {
			t.Fatalf("params = %d want 4", len(params))
		}
	})

	t.Run("tool message without call id rejected", func(t *testing.T) {
		_, err := sdkMessagesIn([]modelpkg.Message{
			{Role: "tool", Content: "{}"},
		})
		if err == nil || !strings.Contains(err.Error(), "tool_call_id") {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("assistant call without name rejected", func(t *testing.T) {
		_, err := sdkMessagesIn([]modelpkg.Message{
			{Role: "assistant", ToolCalls: []modelpkg.ToolCall{{ID: "call_1"}}},
		})
		if err == nil || !strings.Contains(err.Error(), "missing name") {
			t.Fatalf("err = %v", err)
		}
	})
}

func TestFirstToolCallID(t *testing.T) {
	calls := []modelpkg.ToolCall{{ID: "  "}, {ID: "call_9"}}
	if got := firstToolCallID(calls); got != "call_9" {
		t.Fatalf("id = %q", got)
	}
	if got := firstToolCallID(nil); got != "" {
		t.Fatalf("id = %q want empty", got)
	}
}
