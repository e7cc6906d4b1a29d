package model

import "context"

// Model describes the behavior every upstream completion backend must support.
// Generate is a unary request/response call, while GenerateStream delivers
// incremental updates through the supplied callback.
type Model interface {
	Generate(ctx context.Context, messages []Message) (Message, error)
	GenerateStream(ctx context.Context, messages []Message, cb StreamCallback) error
}

// StreamCallback consumes incremental output produced by GenerateStream.
// Implementations invoke the callback in upstream order; StreamResult.Final
// signals completion.
type StreamCallback func(StreamResult) error

// StreamResult wraps a partial or final model response. When Final is true the
// stream is complete and no more chunks will be delivered.
type StreamResult struct {
	Message Message
	Final   bool
}

// Message is the flat conversation entry consumed by upstream clients.
// Role is one of system, user, assistant, or tool. An assistant message may
// carry both text and tool calls. A tool message carries the result payload
// for a previously issued call; its ToolCalls slice holds exactly the call it
// resolves (id and name).
type Message struct {
	Role      string
	Content   string
	ToolCalls []ToolCall
}

// ToolCall is a model-initiated invocation of a named function.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}
