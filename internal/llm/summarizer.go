package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/coreagent/runtime/internal/model"
)

// Summarizer implements loopctx.SummaryProvider by asking the same
// ChatProvider used for the main loop to summarize a message prefix,
// grounded on the teacher's BuildSummarizationPrompt/SummaryProvider split:
// a provider-agnostic prompt builder in front of whatever ChatProvider is
// wired for the run.
type Summarizer struct {
	facade *Facade
}

// NewSummarizer constructs a Summarizer over the same Facade (and therefore
// the same underlying ChatProvider) driving the loop.
func NewSummarizer(facade *Facade) *Summarizer {
	return &Summarizer{facade: facade}
}

// Summarize asks the provider for a summary of messages, truncated to
// maxLength runes. A failure from the underlying stream is returned
// wrapped; the caller (loopctx.Store.Compact) then returns it as an error
// without changing the history.
func (s *Summarizer) Summarize(ctx context.Context, messages []model.Message, maxLength int) (string, error) {
	prompt := buildSummarizationPrompt(messages, maxLength)
	req := []model.Message{{Role: model.RoleUser, Content: []model.ContentPart{model.TextPart(prompt)}}}

	out, err := s.facade.Stream(ctx, req, nil, func(model.ContentPart) {})
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}

	summary := out.Content
	var text string
	for _, p := range summary {
		if p.Type == model.PartText {
			text += p.Text
		}
	}

	r := []rune(strings.TrimSpace(text))
	if len(r) > maxLength {
		r = r[:maxLength]
	}
	return string(r), nil
}

// buildSummarizationPrompt renders messages into a single instruction
// prompt, matching the teacher's section layout (topics, decisions, pending
// work, tool executions) adapted to this model's Message/ContentPart shape.
func buildSummarizationPrompt(messages []model.Message, maxLength int) string {
	var sb strings.Builder
	sb.WriteString("Summarize the following conversation concisely. ")
	fmt.Fprintf(&sb, "Keep the summary under %d characters. ", maxLength)
	sb.WriteString("Focus on:\n")
	sb.WriteString("- Key topics discussed\n")
	sb.WriteString("- Important decisions or conclusions\n")
	sb.WriteString("- Any pending tasks or questions\n")
	sb.WriteString("- Tool executions and their outcomes\n\n")
	sb.WriteString("Conversation:\n\n")

	for _, m := range messages {
		fmt.Fprintf(&sb, "[%s]: ", m.Role)
		for _, p := range m.Content {
			switch p.Type {
			case model.PartText:
				sb.WriteString(p.Text)
			case model.PartToolCall:
				fmt.Fprintf(&sb, "\n  [called tool: %s]", p.ToolCall.Name)
			case model.PartToolResult:
				content := p.ToolResult.Output
				if content == "" {
					content = p.ToolResult.Message
				}
				if len(content) > 200 {
					content = content[:200] + "..."
				}
				fmt.Fprintf(&sb, "\n  [tool result (%s): %s]", p.ToolResult.Status, content)
			}
		}
		sb.WriteString("\n\n")
	}

	sb.WriteString("---\nProvide a concise summary:")
	return sb.String()
}
