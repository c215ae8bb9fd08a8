package tool

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/coreagent/runtime/internal/model"
)

type stubTool struct {
	name   string
	schema json.RawMessage
	result *model.ToolResultPart
	err    error
}

func (s stubTool) Name() string               { return s.name }
func (s stubTool) Description() string        { return "stub" }
func (s stubTool) Schema() json.RawMessage     { return s.schema }
func (s stubTool) Execute(ctx context.Context, args json.RawMessage) (*model.ToolResultPart, error) {
	return s.result, s.err
}

func TestRegisterRejectsDuplicateName(t *testing.T) {
	r := NewRegistry()
	tool := stubTool{name: "Ls", schema: json.RawMessage(`{}`), result: &model.ToolResultPart{Status: model.ToolResultOK}}
	if err := r.Register(tool); err != nil {
		t.Fatalf("unexpected error registering: %v", err)
	}
	if err := r.Register(tool); err == nil {
		t.Fatal("expected error registering duplicate name")
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	r := NewRegistry()
	res := r.Dispatch(context.Background(), model.ToolCall{ID: "t1", Name: "Nope", Arguments: "{}"})
	if res.Status != model.ToolResultError {
		t.Fatalf("expected ERROR, got %s", res.Status)
	}
	if res.Message != "unknown tool: Nope" {
		t.Fatalf("unexpected message: %q", res.Message)
	}
}

func TestDispatchInvalidArguments(t *testing.T) {
	r := NewRegistry()
	schema := json.RawMessage(`{"type":"object","required":["path"]}`)
	_ = r.Register(stubTool{name: "Read", schema: schema, result: &model.ToolResultPart{Status: model.ToolResultOK}})

	res := r.Dispatch(context.Background(), model.ToolCall{ID: "t1", Name: "Read", Arguments: "{}"})
	if res.Status != model.ToolResultError {
		t.Fatalf("expected ERROR for missing required field, got %s: %s", res.Status, res.Message)
	}
}

func TestDispatchNormalizesResult(t *testing.T) {
	r := NewRegistry()
	long := make([]byte, 600)
	for i := range long {
		long[i] = 'x'
	}
	_ = r.Register(stubTool{
		name:   "Ls",
		schema: json.RawMessage(`{}`),
		result: &model.ToolResultPart{Status: "bogus", Message: string(long), Output: "ok"},
	})

	res := r.Dispatch(context.Background(), model.ToolCall{ID: "t1", Name: "Ls", Arguments: "{}"})
	if res.Status != model.ToolResultError {
		t.Fatalf("expected bogus status normalized to ERROR, got %s", res.Status)
	}
	if len([]rune(res.Message)) != 501 {
		t.Fatalf("expected truncated message, got length %d", len([]rune(res.Message)))
	}
}
