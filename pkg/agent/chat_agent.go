package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/stellarlinkco/chatrelay/pkg/event"
	"github.com/stellarlinkco/chatrelay/pkg/model"
	"github.com/stellarlinkco/chatrelay/pkg/tool"
)

const (
	defaultEventBuffer = 16
	maxEventBuffer     = 64
)

// errHalted marks a stream that already wrote its terminal error event.
// It aborts the upstream consume loop without producing a second terminal.
var errHalted = errors.New("agent: stream halted")

// Config wires one ChatAgent instance. One instance serves one request.
type Config struct {
	// Model produces the upstream completion.
	Model model.Model
	// Tools resolves tool handlers. Nil disables tool execution.
	Tools *tool.Registry
	// ToolNames is the enabled subset for this request. Calls to tools
	// outside the subset are relayed but never executed.
	ToolNames []string
	// Streaming selects live delta delivery. When false the agent collects
	// the full response and replays it as one text-delta plus tool events.
	Streaming bool
	// Buffer sizes the event channel. Zero means the default.
	Buffer int
}

func (c Config) validate() error {
	if c.Model == nil {
		return errors.New("agent: model is required")
	}
	return nil
}

// ChatAgent projects one upstream model call into the wire event taxonomy.
type ChatAgent struct {
	model     model.Model
	tools     *tool.Registry
	enabled   map[string]bool
	streaming bool
	buffer    int
}

// New builds a ChatAgent from the config.
func New(cfg Config) (*ChatAgent, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	enabled := make(map[string]bool, len(cfg.ToolNames))
	for _, name := range cfg.ToolNames {
		enabled[name] = true
	}
	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	if buffer > maxEventBuffer {
		buffer = maxEventBuffer
	}
	return &ChatAgent{
		model:     cfg.Model,
		tools:     cfg.Tools,
		enabled:   enabled,
		streaming: cfg.Streaming,
		buffer:    buffer,
	}, nil
}

// Run starts the upstream call and returns the event channel. The producer
// closes the channel after its terminal event, or without one when the
// context is cancelled mid-stream. Every emit selects on ctx, so an
// abandoned consumer stalls the producer for at most one event.
func (a *ChatAgent) Run(ctx context.Context, messages []model.Message) <-chan event.Event {
	ch := make(chan event.Event, a.buffer)
	go func() {
		defer close(ch)
		em := &emitter{ctx: ctx, out: ch}
		defer func() {
			if r := recover(); r != nil {
				em.send(event.Error{Message: fmt.Sprintf("internal error: %v", r)})
			}
		}()
		if a.streaming {
			a.runStreaming(ctx, messages, em)
		} else {
			a.runBuffered(ctx, messages, em)
		}
	}()
	return ch
}

func (a *ChatAgent) runStreaming(ctx context.Context, messages []model.Message, em *emitter) {
	err := a.model.GenerateStream(ctx, messages, func(res model.StreamResult) error {
		if res.Final {
			// Deltas and finalized calls were already relayed.
			return nil
		}
		if res.Message.Content != "" {
			if err := em.send(event.TextDelta{TextDelta: res.Message.Content}); err != nil {
				return err
			}
		}
		for _, call := range res.Message.ToolCalls {
			if err := a.relayToolCall(ctx, em, call); err != nil {
				return err
			}
		}
		return nil
	})
	a.finish(em, err)
}

func (a *ChatAgent) runBuffered(ctx context.Context, messages []model.Message, em *emitter) {
	msg, err := a.model.Generate(ctx, messages)
	if err != nil {
		a.finish(em, err)
		return
	}
	if msg.Content != "" {
		if err := em.send(event.TextDelta{TextDelta: msg.Content}); err != nil {
			return
		}
	}
	for _, call := range msg.ToolCalls {
		if err := a.relayToolCall(ctx, em, call); err != nil {
			return
		}
	}
	em.send(event.Finish{})
}

// relayToolCall emits the tool-call event and, when the tool is enabled,
// executes it and emits the paired tool-result. An execution failure writes
// the terminal error and returns errHalted.
func (a *ChatAgent) relayToolCall(ctx context.Context, em *emitter, call model.ToolCall) error {
	id := call.ID
	if id == "" {
		id = uuid.NewString()
	}
	args := call.Arguments
	if args == nil {
		args = map[string]any{}
	}
	if err := em.send(event.ToolCall{ToolCallID: id, ToolName: call.Name, Args: args}); err != nil {
		return err
	}
	if a.tools == nil || !a.enabled[call.Name] || !a.tools.Has(call.Name) {
		return nil
	}
	result, err := a.tools.Execute(ctx, call.Name, args)
	if err != nil {
		if sendErr := em.send(event.Error{Message: err.Error()}); sendErr != nil {
			return sendErr
		}
		return errHalted
	}
	output := result.Output
	if output == nil {
		output = map[string]any{}
	}
	return em.send(event.ToolResult{ToolCallID: id, Result: output})
}

// finish writes the terminal event for the upstream outcome. Cancellation
// writes nothing; the consumer is gone and the framer owns disconnects.
func (a *ChatAgent) finish(em *emitter, err error) {
	switch {
	case err == nil:
		em.send(event.Finish{})
	case errors.Is(err, errHalted):
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
	default:
		em.send(event.Error{Message: err.Error()})
	}
}

// emitter delivers events to the consumer channel while honoring
// cancellation on every send.
type emitter struct {
	ctx context.Context
	out chan<- event.Event
}

func (e *emitter) send(evt event.Event) error {
	select {
	case <-e.ctx.Done():
		return e.ctx.Err()
	case e.out <- evt:
		return nil
	}
}
