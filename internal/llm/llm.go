// Package llm implements the LLM Facade: it wraps a ChatProvider,
// assembles streamed Chunks into a complete AssistantOutput, and enforces
// the index-based ToolCallDelta assembly contract.
package llm

import (
	"context"
	"fmt"

	"github.com/coreagent/runtime/internal/model"
)

// ChunkType discriminates the Chunk variants a ChatProvider emits.
type ChunkType string

const (
	ChunkTextDelta     ChunkType = "text_delta"
	ChunkToolCallDelta ChunkType = "tool_call_delta"
	ChunkUsage         ChunkType = "usage"
	ChunkDone          ChunkType = "done"
)

// Chunk is one unit of a streamed completion.
type Chunk struct {
	Type ChunkType

	// TextDelta
	Text string

	// ToolCallDelta. Index identifies which in-progress tool call this
	// fragment belongs to; ID and Name latch on first occurrence for that
	// index, ArgumentsDelta is concatenated across occurrences.
	Index          int
	ID             string
	Name           string
	ArgumentsDelta string

	// Usage
	Tokens int
}

// ChatProvider is the contract a concrete LLM backend implements.
type ChatProvider interface {
	Name() string
	Model() string
	Stream(ctx context.Context, history []model.Message, tools []model.ToolSpec) (<-chan Chunk, error)
}

// AssistantOutput is the Facade's fully-assembled result of one stream.
type AssistantOutput struct {
	Content     []model.ContentPart
	TokenCount  int
	Interrupted bool
}

// inProgressCall tracks one tool call's assembly state, keyed by index.
type inProgressCall struct {
	id, name string
	args     []byte
	started  bool
}

// Facade drives one ChatProvider stream to completion.
type Facade struct {
	provider ChatProvider
}

// NewFacade constructs a Facade over provider.
func NewFacade(provider ChatProvider) *Facade {
	return &Facade{provider: provider}
}

// ProviderName returns the wrapped ChatProvider's name, for metrics/logging
// labels a caller wants without reaching into the provider itself.
func (f *Facade) ProviderName() string { return f.provider.Name() }

// ModelName returns the wrapped ChatProvider's model identifier.
func (f *Facade) ModelName() string { return f.provider.Model() }

// Stream runs the provider's stream and assembles it into an
// AssistantOutput, invoking onPart for every ContentPart (text or a
// completed tool call) in emission order — the hook the Loop Driver uses
// to forward parts to the Event Bus as they are assembled.
//
// On ctx cancellation, Stream returns promptly with a partial output
// marked Interrupted. An out-of-order id/name latch for an already-started
// index is a hard error.
func (f *Facade) Stream(ctx context.Context, history []model.Message, tools []model.ToolSpec, onPart func(model.ContentPart)) (AssistantOutput, error) {
	chunks, err := f.provider.Stream(ctx, history, tools)
	if err != nil {
		return AssistantOutput{}, fmt.Errorf("start stream: %w", err)
	}

	var out AssistantOutput
	var textBuf string
	calls := make(map[int]*inProgressCall)
	var callOrder []int

	flushText := func() {
		if textBuf != "" {
			part := model.TextPart(textBuf)
			out.Content = append(out.Content, part)
			onPart(part)
			textBuf = ""
		}
	}

	finishCall := func(idx int) {
		c := calls[idx]
		if c == nil || !c.started {
			return
		}
		part := model.ToolCallPart(c.id, c.name, string(c.args))
		out.Content = append(out.Content, part)
		onPart(part)
	}

	for {
		select {
		case <-ctx.Done():
			out.Interrupted = true
			return out, nil
		case chunk, ok := <-chunks:
			if !ok {
				out.Interrupted = true
				return out, nil
			}

			switch chunk.Type {
			case ChunkTextDelta:
				textBuf += chunk.Text

			case ChunkToolCallDelta:
				flushText()
				c, exists := calls[chunk.Index]
				if !exists {
					c = &inProgressCall{}
					calls[chunk.Index] = c
					callOrder = append(callOrder, chunk.Index)
				}
				if chunk.ID != "" {
					if c.id != "" && c.id != chunk.ID {
						return out, fmt.Errorf("tool call index %d: id changed from %q to %q out of order", chunk.Index, c.id, chunk.ID)
					}
					c.id = chunk.ID
				}
				if chunk.Name != "" {
					if c.name != "" && c.name != chunk.Name {
						return out, fmt.Errorf("tool call index %d: name changed from %q to %q out of order", chunk.Index, c.name, chunk.Name)
					}
					c.name = chunk.Name
				}
				c.args = append(c.args, chunk.ArgumentsDelta...)
				c.started = true

			case ChunkUsage:
				out.TokenCount = chunk.Tokens

			case ChunkDone:
				flushText()
				for _, idx := range callOrder {
					finishCall(idx)
				}
				return out, nil
			}
		}
	}
}
