// Package openai adapts github.com/sashabaranov/go-openai's streaming chat
// completion client to the llm.ChatProvider contract.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	openaisdk "github.com/sashabaranov/go-openai"

	"github.com/coreagent/runtime/internal/llm"
	"github.com/coreagent/runtime/internal/model"
)

// Provider wraps an OpenAI chat completion client.
type Provider struct {
	client *openaisdk.Client
	model  string
}

// New constructs a Provider for the given model using apiKey.
func New(apiKey, modelName string) *Provider {
	return &Provider{client: openaisdk.NewClient(apiKey), model: modelName}
}

func (p *Provider) Name() string  { return "openai" }
func (p *Provider) Model() string { return p.model }

// Stream starts a streaming chat completion and translates the SDK's native
// events into llm.Chunk values on the returned channel. Tool call argument
// fragments carry OpenAI's own delta.ToolCalls[i].Index, which already
// matches the Facade's index-keyed assembly contract.
func (p *Provider) Stream(ctx context.Context, history []model.Message, tools []model.ToolSpec) (<-chan llm.Chunk, error) {
	req := openaisdk.ChatCompletionRequest{
		Model:    p.model,
		Messages: convertMessages(history),
		Stream:   true,
		StreamOptions: &openaisdk.StreamOptions{
			IncludeUsage: true,
		},
	}
	if len(tools) > 0 {
		req.Tools = convertTools(tools)
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai: start stream: %w", err)
	}

	out := make(chan llm.Chunk)
	go p.pump(ctx, stream, out)
	return out, nil
}

func (p *Provider) pump(ctx context.Context, stream *openaisdk.ChatCompletionStream, out chan<- llm.Chunk) {
	defer close(out)
	defer stream.Close()

	send := func(c llm.Chunk) bool {
		select {
		case out <- c:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				send(llm.Chunk{Type: llm.ChunkDone})
				return
			}
			return
		}

		if resp.Usage != nil {
			send(llm.Chunk{Type: llm.ChunkUsage, Tokens: resp.Usage.TotalTokens})
		}

		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta

		if delta.Content != "" {
			if !send(llm.Chunk{Type: llm.ChunkTextDelta, Text: delta.Content}) {
				return
			}
		}

		for _, tc := range delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			chunk := llm.Chunk{Type: llm.ChunkToolCallDelta, Index: index}
			if tc.ID != "" {
				chunk.ID = tc.ID
			}
			if tc.Function.Name != "" {
				chunk.Name = tc.Function.Name
			}
			chunk.ArgumentsDelta = tc.Function.Arguments
			if !send(chunk) {
				return
			}
		}
	}
}

func convertMessages(history []model.Message) []openaisdk.ChatCompletionMessage {
	result := make([]openaisdk.ChatCompletionMessage, 0, len(history))
	for _, msg := range history {
		switch msg.Role {
		case model.RoleTool:
			for _, part := range msg.Content {
				if part.Type != model.PartToolResult {
					continue
				}
				result = append(result, openaisdk.ChatCompletionMessage{
					Role:       openaisdk.ChatMessageRoleTool,
					Content:    toolResultContent(part.ToolResult),
					ToolCallID: part.ToolResult.CallID,
				})
			}
		case model.RoleAssistant:
			oaiMsg := openaisdk.ChatCompletionMessage{Role: openaisdk.ChatMessageRoleAssistant, Content: msg.Text()}
			for _, part := range msg.Content {
				if part.Type != model.PartToolCall {
					continue
				}
				oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openaisdk.ToolCall{
					ID:   part.ToolCall.ID,
					Type: openaisdk.ToolTypeFunction,
					Function: openaisdk.FunctionCall{
						Name:      part.ToolCall.Name,
						Arguments: part.ToolCall.Arguments,
					},
				})
			}
			result = append(result, oaiMsg)
		default:
			role := openaisdk.ChatMessageRoleUser
			if msg.Role == model.RoleSystem {
				role = openaisdk.ChatMessageRoleSystem
			}
			result = append(result, openaisdk.ChatCompletionMessage{Role: role, Content: msg.Text()})
		}
	}
	return result
}

func toolResultContent(r *model.ToolResultPart) string {
	if r.Output != "" {
		return r.Output
	}
	return r.Message
}

func convertTools(tools []model.ToolSpec) []openaisdk.Tool {
	result := make([]openaisdk.Tool, len(tools))
	for i, t := range tools {
		var schema map[string]any
		if err := json.Unmarshal(t.ParameterSchema, &schema); err != nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result[i] = openaisdk.Tool{
			Type: openaisdk.ToolTypeFunction,
			Function: &openaisdk.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schema,
			},
		}
	}
	return result
}
