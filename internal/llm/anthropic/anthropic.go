// Package anthropic adapts github.com/anthropics/anthropic-sdk-go's
// streaming Messages API to the llm.ChatProvider contract.
package anthropic

import (
	"context"
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/coreagent/runtime/internal/llm"
	"github.com/coreagent/runtime/internal/model"
)

const defaultMaxTokens = 4096

// Provider wraps an Anthropic Messages client.
type Provider struct {
	client    anthropic.Client
	modelName string
	maxTokens int
}

// New constructs a Provider for the given model using apiKey.
func New(apiKey, modelName string) *Provider {
	return &Provider{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		modelName: modelName,
		maxTokens: defaultMaxTokens,
	}
}

func (p *Provider) Name() string  { return "anthropic" }
func (p *Provider) Model() string { return p.modelName }

// Stream starts a streaming message request and translates the SDK's SSE
// event union into llm.Chunk values. Anthropic's content_block_start/delta/
// stop events carry the content block's Index, which becomes the Chunk's
// Index field so tool_use blocks assemble under the Facade's index-keyed
// contract the same way a flat per-block CompletionChunk would, just without
// collapsing the stream into one chunk per block.
func (p *Provider) Stream(ctx context.Context, history []model.Message, tools []model.ToolSpec) (<-chan llm.Chunk, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.modelName),
		MaxTokens: int64(p.maxTokens),
		Messages:  convertMessages(history),
	}
	if len(tools) > 0 {
		params.Tools = convertTools(tools)
	}

	stream := p.client.Messages.NewStreaming(ctx, params)

	out := make(chan llm.Chunk)
	go pump(ctx, stream, out)
	return out, nil
}

func pump(ctx context.Context, stream *ssestream.Stream[anthropic.MessageStreamEventUnion], out chan<- llm.Chunk) {
	defer close(out)

	send := func(c llm.Chunk) bool {
		select {
		case out <- c:
			return true
		case <-ctx.Done():
			return false
		}
	}

	toolIDs := make(map[int64]string)
	outputTokens := 0

	for stream.Next() {
		event := stream.Current()

		switch event.Type {
		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			if block.Type == "tool_use" {
				toolUse := block.AsToolUse()
				toolIDs[event.Index] = toolUse.ID
				if !send(llm.Chunk{Type: llm.ChunkToolCallDelta, Index: int(event.Index), ID: toolUse.ID, Name: toolUse.Name}) {
					return
				}
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					if !send(llm.Chunk{Type: llm.ChunkTextDelta, Text: delta.Text}) {
						return
					}
				}
			case "input_json_delta":
				if delta.PartialJSON != "" {
					if !send(llm.Chunk{Type: llm.ChunkToolCallDelta, Index: int(event.Index), ArgumentsDelta: delta.PartialJSON}) {
						return
					}
				}
			}

		case "message_delta":
			usage := event.AsMessageDelta().Usage
			if usage.OutputTokens > 0 {
				outputTokens = int(usage.OutputTokens)
			}

		case "message_stop":
			if !send(llm.Chunk{Type: llm.ChunkUsage, Tokens: outputTokens}) {
				return
			}
			send(llm.Chunk{Type: llm.ChunkDone})
			return
		}
	}
}

func convertMessages(history []model.Message) []anthropic.MessageParam {
	result := make([]anthropic.MessageParam, 0, len(history))
	for _, msg := range history {
		switch msg.Role {
		case model.RoleUser, model.RoleSystem:
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Text())))

		case model.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			for _, part := range msg.Content {
				switch part.Type {
				case model.PartText:
					if part.Text != "" {
						blocks = append(blocks, anthropic.NewTextBlock(part.Text))
					}
				case model.PartToolCall:
					var input any
					_ = json.Unmarshal([]byte(part.ToolCall.Arguments), &input)
					blocks = append(blocks, anthropic.NewToolUseBlock(part.ToolCall.ID, input, part.ToolCall.Name))
				}
			}
			result = append(result, anthropic.NewAssistantMessage(blocks...))

		case model.RoleTool:
			var blocks []anthropic.ContentBlockParamUnion
			for _, part := range msg.Content {
				if part.Type != model.PartToolResult {
					continue
				}
				r := part.ToolResult
				content := r.Output
				if content == "" {
					content = r.Message
				}
				blocks = append(blocks, anthropic.NewToolResultBlock(r.CallID, content, r.Status == model.ToolResultError))
			}
			result = append(result, anthropic.NewUserMessage(blocks...))
		}
	}
	return result
}

func convertTools(tools []model.ToolSpec) []anthropic.ToolUnionParam {
	result := make([]anthropic.ToolUnionParam, len(tools))
	for i, t := range tools {
		var schema map[string]any
		if err := json.Unmarshal(t.ParameterSchema, &schema); err != nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result[i] = anthropic.ToolUnionParamOfTool(anthropic.ToolInputSchemaParam{
			Properties: schema["properties"],
		}, t.Name)
		result[i].OfTool.Description = anthropic.String(t.Description)
	}
	return result
}
