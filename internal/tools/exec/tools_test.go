package exec

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/coreagent/runtime/internal/model"
)

func TestExecToolRunsCommand(t *testing.T) {
	mgr := NewManager(model.Session{WorkDir: t.TempDir()})
	tool := NewExecTool("exec", mgr, nil)
	params, _ := json.Marshal(map[string]interface{}{
		"command": "echo hello",
	})
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Status != model.ToolResultOK {
		t.Fatalf("expected success: %+v", result)
	}
	if !strings.Contains(result.Output, "hello") {
		t.Fatalf("expected stdout in result: %s", result.Output)
	}
}

func TestProcessToolLifecycle(t *testing.T) {
	mgr := NewManager(model.Session{WorkDir: t.TempDir()})
	execTool := NewExecTool("exec", mgr, nil)
	procTool := NewProcessTool(mgr, nil)

	params, _ := json.Marshal(map[string]interface{}{
		"command":    "echo background",
		"background": true,
	})
	result, err := execTool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Status != model.ToolResultOK {
		t.Fatalf("expected success: %+v", result)
	}

	var payload struct {
		ProcessID string `json:"process_id"`
	}
	if err := json.Unmarshal([]byte(result.Output), &payload); err != nil {
		t.Fatalf("parse result: %v", err)
	}
	if payload.ProcessID == "" {
		t.Fatalf("expected process_id")
	}

	time.Sleep(50 * time.Millisecond)
	statusParams, _ := json.Marshal(map[string]interface{}{
		"action":     "status",
		"process_id": payload.ProcessID,
	})
	statusResult, err := procTool.Execute(context.Background(), statusParams)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if statusResult.Status != model.ToolResultOK {
		t.Fatalf("expected status success: %+v", statusResult)
	}

	removeParams, _ := json.Marshal(map[string]interface{}{
		"action":     "remove",
		"process_id": payload.ProcessID,
	})
	removeResult, err := procTool.Execute(context.Background(), removeParams)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if removeResult.Status != model.ToolResultOK {
		t.Fatalf("expected remove success: %+v", removeResult)
	}
}

func TestProcessKillRequiresApproval(t *testing.T) {
	mgr := NewManager(model.Session{WorkDir: t.TempDir()})
	execTool := NewExecTool("exec", mgr, nil)

	params, _ := json.Marshal(map[string]interface{}{
		"command":    "sleep 5",
		"background": true,
	})
	result, err := execTool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	var payload struct {
		ProcessID string `json:"process_id"`
	}
	if err := json.Unmarshal([]byte(result.Output), &payload); err != nil {
		t.Fatalf("parse result: %v", err)
	}

	procTool := NewProcessTool(mgr, rejectingGate{})
	killParams, _ := json.Marshal(map[string]interface{}{
		"action":     "kill",
		"process_id": payload.ProcessID,
	})
	killResult, err := procTool.Execute(context.Background(), killParams)
	if err != nil {
		t.Fatalf("kill: %v", err)
	}
	if killResult.Status != model.ToolResultRejected {
		t.Fatalf("expected kill to be rejected, got %+v", killResult)
	}

	proc, ok := mgr.get(payload.ProcessID)
	if !ok || proc.cmd.Process == nil {
		t.Fatal("expected the background process to still be tracked and running")
	}
	_ = proc.cmd.Process.Kill()
}

type rejectingGate struct{}

func (rejectingGate) Request(ctx context.Context, toolName, actionKey, description string) (model.ApprovalDecision, error) {
	return model.Reject, nil
}
