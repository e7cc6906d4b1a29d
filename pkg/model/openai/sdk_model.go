package openai

import (
	"context"
	"fmt"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	modelpkg "github.com/stellarlinkco/chatrelay/pkg/model"
	"github.com/stellarlinkco/chatrelay/pkg/telemetry"
)

// Ensure SDKModel implements the Model interface.
var _ modelpkg.Model = (*SDKModel)(nil)

// SDKModel wraps the official OpenAI SDK. The relay uses it for unary
// completions (title generation); the hand-rolled Model above remains the
// streaming path because it exposes the raw SSE body to the relay's
// backpressure loop.
type SDKModel struct {
	client    openaisdk.Client
	model     openaisdk.ChatModel
	maxTokens int
	tools     []ToolDefinition
}

// NewSDKModel creates an SDK-backed model. baseURL may be empty for the
// public endpoint.
func NewSDKModel(apiKey, model, baseURL string, maxTokens int, tools []ToolDefinition) *SDKModel {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &SDKModel{
		client:    openaisdk.NewClient(opts...),
		model:     openaisdk.ChatModel(model),
		maxTokens: maxTokens,
		tools:     cloneTools(tools),
	}
}

// Generate performs a blocking completion call.
func (m *SDKModel) Generate(ctx context.Context, messages []modelpkg.Message) (_ modelpkg.Message, err error) {
	ctx, span := telemetry.StartSpan(ctx, "model.openai.sdk.generate",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(telemetry.SanitizeAttributes(
			attribute.String("llm.provider", "openai"),
			attribute.String("llm.model", string(m.model)),
			attribute.Bool("llm.stream", false),
		)...),
	)
	defer telemetry.EndSpan(span, err)

	params, err := m.buildParams(messages)
	if err != nil {
		return modelpkg.Message{}, err
	}

	completion, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return modelpkg.Message{}, fmt.Errorf("openai sdk call: %w", err)
	}
	if len(completion.Choices) == 0 {
		return modelpkg.Message{}, fmt.Errorf("no choices in response")
	}
	return sdkMessageOut(completion.Choices[0].Message)
}

// GenerateStream streams deltas through the callback using the SDK
// accumulator for tool-call assembly.
func (m *SDKModel) GenerateStream(ctx context.Context, messages []modelpkg.Message, cb modelpkg.StreamCallback) (err error) {
	if cb == nil {
		return fmt.Errorf("stream callback is required")
	}

	ctx, span := telemetry.StartSpan(ctx, "model.openai.sdk.generate_stream",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(telemetry.SanitizeAttributes(
			attribute.String("llm.provider", "openai"),
			attribute.String("llm.model", string(m.model)),
			attribute.Bool("llm.stream", true),
		)...),
	)
	defer telemetry.EndSpan(span, err)

	params, err := m.buildParams(messages)
	if err != nil {
		return err
	}

	stream := m.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	acc := openaisdk.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		if !acc.AddChunk(chunk) {
			return fmt.Errorf("accumulate stream chunk failed")
		}

		if len(chunk.Choices) > 0 {
			if delta := chunk.Choices[0].Delta; delta.Content != "" {
				if err := cb(modelpkg.StreamResult{
					Message: modelpkg.Message{Role: "assistant", Content: delta.Content},
				}); err != nil {
					return err
				}
			}
		}

		if finishedTool, ok := acc.JustFinishedToolCall(); ok {
			args, err := decodeArguments(finishedTool.Arguments)
			if err != nil {
				return fmt.Errorf("decode streaming tool call: %w", err)
			}
			if err := cb(modelpkg.StreamResult{
				Message: modelpkg.Message{
					Role: "assistant",
					ToolCalls: []modelpkg.ToolCall{{
						ID:        finishedTool.ID,
						Name:      finishedTool.Name,
						Arguments: args,
					}},
				},
			}); err != nil {
				return err
			}
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("stream error: %w", err)
	}

	if len(acc.Choices) == 0 {
		return fmt.Errorf("stream produced no choices")
	}
	finalMsg, err := sdkMessageOut(acc.Choices[0].Message)
	if err != nil {
		return err
	}
	return cb(modelpkg.StreamResult{Message: finalMsg, Final: true})
}

func (m *SDKModel) buildParams(messages []modelpkg.Message) (openaisdk.ChatCompletionNewParams, error) {
	messageParams, err := sdkMessagesIn(messages)
	if err != nil {
		return openaisdk.ChatCompletionNewParams{}, err
	}
	params := openaisdk.ChatCompletionNewParams{
		Messages: messageParams,
		Model:    m.model,
	}
	if m.maxTokens > 0 {
		params.MaxTokens = openaisdk.Int(int64(m.maxTokens))
	}
	if len(m.tools) > 0 {
		params.Tools = sdkToolsIn(m.tools)
	}
	return params, nil
}
