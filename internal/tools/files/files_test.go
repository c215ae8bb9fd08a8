package files

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/coreagent/runtime/internal/model"
)

func TestResolverRejectsEscape(t *testing.T) {
	root := t.TempDir()
	resolver := NewResolver(model.Session{WorkDir: root})
	_, err := resolver.Resolve("../outside.txt")
	if err == nil {
		t.Fatal("expected escape to be rejected")
	}
}

func TestResolverOrRejectFoldsEscapeIntoToolResult(t *testing.T) {
	root := t.TempDir()
	resolver := NewResolver(model.Session{WorkDir: root})
	_, rejected := resolver.ResolveOrReject("../outside.txt")
	if rejected == nil {
		t.Fatal("expected escape to be rejected")
	}
	if rejected.Status != model.ToolResultError {
		t.Fatalf("expected ERROR status, got %+v", rejected)
	}
}

func TestReadWriteEdit(t *testing.T) {
	root := t.TempDir()
	cfg := Config{Workspace: root, MaxReadBytes: 10}

	writeTool := NewWriteTool(cfg)
	readTool := NewReadTool(cfg)
	editTool := NewEditTool(cfg)

	writeParams, _ := json.Marshal(map[string]interface{}{
		"path":    "notes.txt",
		"content": "hello world",
	})
	if res, err := writeTool.Execute(context.Background(), writeParams); err != nil || res.Status != model.ToolResultOK {
		t.Fatalf("write failed: err=%v res=%+v", err, res)
	}

	readParams, _ := json.Marshal(map[string]interface{}{
		"path": "notes.txt",
	})
	result, err := readTool.Execute(context.Background(), readParams)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !strings.Contains(result.Output, "hello") {
		t.Fatalf("expected content, got %s", result.Output)
	}

	editParams, _ := json.Marshal(map[string]interface{}{
		"path": "notes.txt",
		"edits": []map[string]interface{}{
			{
				"old_text": "world",
				"new_text": "coreagent",
			},
		},
	})
	if res, err := editTool.Execute(context.Background(), editParams); err != nil || res.Status != model.ToolResultOK {
		t.Fatalf("edit failed: err=%v res=%+v", err, res)
	}

	data, err := os.ReadFile(filepath.Join(root, "notes.txt"))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if string(data) != "hello coreagent" {
		t.Fatalf("unexpected content: %s", string(data))
	}
}

func TestApplyPatch(t *testing.T) {
	root := t.TempDir()
	cfg := Config{Workspace: root}
	path := filepath.Join(root, "file.txt")
	if err := os.WriteFile(path, []byte("a\nb\nc\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	tool := NewApplyPatchTool(cfg)
	patch := strings.Join([]string{
		"--- a/file.txt",
		"+++ b/file.txt",
		"@@ -1,3 +1,3 @@",
		" a",
		"-b",
		"+bb",
		" c",
		"",
	}, "\n")

	params, _ := json.Marshal(map[string]interface{}{"patch": patch})
	if res, err := tool.Execute(context.Background(), params); err != nil || res.Status != model.ToolResultOK {
		t.Fatalf("apply patch failed: err=%v res=%+v", err, res)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if string(data) != "a\nbb\nc\n" {
		t.Fatalf("unexpected content: %s", string(data))
	}
}

type rejectingGate struct{}

func (rejectingGate) Request(ctx context.Context, toolName, actionKey, description string) (model.ApprovalDecision, error) {
	return model.Reject, nil
}

type erroringGate struct{}

func (erroringGate) Request(ctx context.Context, toolName, actionKey, description string) (model.ApprovalDecision, error) {
	return "", errors.New("approval channel closed")
}

func TestWriteRejectedByApprovalGate(t *testing.T) {
	root := t.TempDir()
	cfg := Config{Workspace: root, Approval: rejectingGate{}}
	writeTool := NewWriteTool(cfg)

	params, _ := json.Marshal(map[string]interface{}{"path": "notes.txt", "content": "hello"})
	result, err := writeTool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Status != model.ToolResultRejected {
		t.Fatalf("expected REJECTED, got %+v", result)
	}
	if _, statErr := os.Stat(filepath.Join(root, "notes.txt")); !os.IsNotExist(statErr) {
		t.Fatal("expected no file to be written after rejection")
	}
}

func TestWriteApprovalGateError(t *testing.T) {
	root := t.TempDir()
	cfg := Config{Workspace: root, Approval: erroringGate{}}
	writeTool := NewWriteTool(cfg)

	params, _ := json.Marshal(map[string]interface{}{"path": "notes.txt", "content": "hello"})
	result, err := writeTool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Status != model.ToolResultRejected {
		t.Fatalf("expected REJECTED on approval error, got %+v", result)
	}
}
