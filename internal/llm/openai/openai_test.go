package openai

import (
	"encoding/json"
	"testing"

	"github.com/coreagent/runtime/internal/model"
)

func TestConvertMessagesAssistantToolCall(t *testing.T) {
	msg := model.Message{
		Role: model.RoleAssistant,
		Content: []model.ContentPart{
			model.TextPart("checking"),
			model.ToolCallPart("t1", "Ls", `{"path":"."}`),
		},
	}
	out := convertMessages([]model.Message{msg})
	if len(out) != 1 {
		t.Fatalf("expected 1 message, got %d", len(out))
	}
	if len(out[0].ToolCalls) != 1 || out[0].ToolCalls[0].Function.Name != "Ls" {
		t.Fatalf("unexpected tool calls: %+v", out[0].ToolCalls)
	}
	if out[0].Content != "checking" {
		t.Fatalf("expected text content preserved, got %q", out[0].Content)
	}
}

func TestConvertMessagesToolResultSplitsPerResult(t *testing.T) {
	msg := model.Message{
		Role: model.RoleTool,
		Content: []model.ContentPart{
			model.ToolResultContentPart("t1", model.ToolResultOK, "", "file contents"),
		},
	}
	out := convertMessages([]model.Message{msg})
	if len(out) != 1 || out[0].ToolCallID != "t1" || out[0].Content != "file contents" {
		t.Fatalf("unexpected tool result message: %+v", out)
	}
}

func TestConvertToolsFallsBackOnInvalidSchema(t *testing.T) {
	tools := []model.ToolSpec{{Name: "Ls", Description: "list files", ParameterSchema: json.RawMessage(`not json`)}}
	out := convertTools(tools)
	if len(out) != 1 || out[0].Function.Name != "Ls" {
		t.Fatalf("unexpected tool conversion: %+v", out)
	}
}
