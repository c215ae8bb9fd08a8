package exec

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/coreagent/runtime/internal/model"
)

// ApprovalGate is the subset of *approval.Gate a shell tool needs. Declared
// locally, mirroring internal/tools/files, so this package does not import
// internal/approval; *approval.Gate satisfies it directly.
type ApprovalGate interface {
	Request(ctx context.Context, toolName, actionKey, description string) (model.ApprovalDecision, error)
}

// ExecTool runs shell commands. Every invocation is a mutating operation:
// it always consults the Approval Gate before running the command.
type ExecTool struct {
	name     string
	manager  *Manager
	approval ApprovalGate
}

// NewExecTool creates an exec tool with the given name.
func NewExecTool(name string, manager *Manager, approval ApprovalGate) *ExecTool {
	if strings.TrimSpace(name) == "" {
		name = "exec"
	}
	return &ExecTool{name: name, manager: manager, approval: approval}
}

func (t *ExecTool) Name() string { return t.name }

func (t *ExecTool) Description() string {
	return "Run a shell command in the workspace (supports optional background execution)."
}

func (t *ExecTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"command": map[string]interface{}{
				"type":        "string",
				"description": "Shell command to execute.",
			},
			"cwd": map[string]interface{}{
				"type":        "string",
				"description": "Working directory (relative to workspace).",
			},
			"env": map[string]interface{}{
				"type":        "object",
				"description": "Environment overrides (string values).",
			},
			"input": map[string]interface{}{
				"type":        "string",
				"description": "Stdin content to pass to the command.",
			},
			"timeout_seconds": map[string]interface{}{
				"type":        "integer",
				"description": "Timeout in seconds (0 = no timeout).",
				"minimum":     0,
			},
			"background": map[string]interface{}{
				"type":        "boolean",
				"description": "Run in background and return a process id.",
			},
		},
		"required": []string{"command"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *ExecTool) Execute(ctx context.Context, params json.RawMessage) (*model.ToolResultPart, error) {
	if t.manager == nil {
		return toolError("exec manager unavailable"), nil
	}
	var input struct {
		Command        string            `json:"command"`
		Cwd            string            `json:"cwd"`
		Env            map[string]string `json:"env"`
		Input          string            `json:"input"`
		TimeoutSeconds int               `json:"timeout_seconds"`
		Background     bool              `json:"background"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	command := strings.TrimSpace(input.Command)
	if command == "" {
		return toolError("command is required"), nil
	}

	if rejected := requestApproval(ctx, t.approval, t.name, command, fmt.Sprintf("run %q", command)); rejected != nil {
		return rejected, nil
	}

	timeout := time.Duration(input.TimeoutSeconds) * time.Second

	if input.Background {
		proc, rejected := t.manager.startBackground(ctx, command, input.Cwd, input.Env, input.Input, timeout)
		if rejected != nil {
			return rejected, nil
		}
		payload, _ := json.MarshalIndent(map[string]interface{}{
			"status":     "running",
			"process_id": proc.id,
		}, "", "  ")
		return &model.ToolResultPart{Status: model.ToolResultOK, Output: string(payload)}, nil
	}

	result, rejected := t.manager.runSync(ctx, command, input.Cwd, input.Env, input.Input, timeout)
	if rejected != nil {
		return rejected, nil
	}
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return &model.ToolResultPart{Status: model.ToolResultOK, Output: string(payload)}, nil
}

// ProcessTool inspects and manages background exec processes. Only the
// actions that act on a process (write, kill) consult the Approval Gate;
// list, status, and log are read-only, and remove, which only drops an
// exited process from the manager's table, does not consult it either.
type ProcessTool struct {
	manager  *Manager
	approval ApprovalGate
}

// NewProcessTool creates a process tool.
func NewProcessTool(manager *Manager, approval ApprovalGate) *ProcessTool {
	return &ProcessTool{manager: manager, approval: approval}
}

func (t *ProcessTool) Name() string { return "process" }

func (t *ProcessTool) Description() string {
	return "Manage background exec processes (list, status, log, write, kill, remove)."
}

func (t *ProcessTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type":        "string",
				"description": "Action: list, status, log, write, kill, remove.",
			},
			"process_id": map[string]interface{}{
				"type":        "string",
				"description": "Process id for actions that target a process.",
			},
			"input": map[string]interface{}{
				"type":        "string",
				"description": "Input for write action.",
			},
		},
		"required": []string{"action"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *ProcessTool) Execute(ctx context.Context, params json.RawMessage) (*model.ToolResultPart, error) {
	if t.manager == nil {
		return toolError("process manager unavailable"), nil
	}
	var input struct {
		Action    string `json:"action"`
		ProcessID string `json:"process_id"`
		Input     string `json:"input"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	action := strings.ToLower(strings.TrimSpace(input.Action))
	if action == "" {
		return toolError("action is required"), nil
	}

	switch action {
	case "list":
		payload, _ := json.MarshalIndent(map[string]interface{}{"processes": t.manager.list()}, "", "  ")
		return &model.ToolResultPart{Status: model.ToolResultOK, Output: string(payload)}, nil
	case "status", "log", "write", "kill", "remove":
		if strings.TrimSpace(input.ProcessID) == "" {
			return toolError("process_id is required"), nil
		}
		proc, ok := t.manager.get(strings.TrimSpace(input.ProcessID))
		if !ok {
			return toolError("process not found"), nil
		}
		switch action {
		case "status":
			payload, _ := json.MarshalIndent(proc.info(), "", "  ")
			return &model.ToolResultPart{Status: model.ToolResultOK, Output: string(payload)}, nil
		case "log":
			payload, _ := json.MarshalIndent(map[string]interface{}{
				"stdout": proc.stdout.String(),
				"stderr": proc.stderr.String(),
				"status": proc.status(),
			}, "", "  ")
			return &model.ToolResultPart{Status: model.ToolResultOK, Output: string(payload)}, nil
		case "write":
			if rejected := requestApproval(ctx, t.approval, t.Name(), proc.id, fmt.Sprintf("write to process %s", proc.id)); rejected != nil {
				return rejected, nil
			}
			if proc.stdin == nil {
				return toolError("process stdin unavailable"), nil
			}
			if input.Input == "" {
				return toolError("input is required"), nil
			}
			if _, err := proc.stdin.Write([]byte(input.Input)); err != nil {
				return toolError(fmt.Sprintf("write stdin: %v", err)), nil
			}
			payload, _ := json.MarshalIndent(map[string]interface{}{
				"status": "written",
			}, "", "  ")
			return &model.ToolResultPart{Status: model.ToolResultOK, Output: string(payload)}, nil
		case "kill":
			if rejected := requestApproval(ctx, t.approval, t.Name(), proc.id, fmt.Sprintf("kill process %s", proc.id)); rejected != nil {
				return rejected, nil
			}
			if proc.cmd.Process == nil {
				return toolError("process not running"), nil
			}
			if err := proc.cmd.Process.Kill(); err != nil {
				return toolError(fmt.Sprintf("kill process: %v", err)), nil
			}
			payload, _ := json.MarshalIndent(map[string]interface{}{
				"status": "killed",
			}, "", "  ")
			return &model.ToolResultPart{Status: model.ToolResultOK, Output: string(payload)}, nil
		case "remove":
			if proc.status() == "running" {
				return toolError("process still running"), nil
			}
			if !t.manager.remove(proc.id) {
				return toolError("remove failed"), nil
			}
			payload, _ := json.MarshalIndent(map[string]interface{}{
				"status": "removed",
			}, "", "  ")
			return &model.ToolResultPart{Status: model.ToolResultOK, Output: string(payload)}, nil
		}
	}
	return toolError("unsupported action"), nil
}

func toolError(message string) *model.ToolResultPart {
	return &model.ToolResultPart{Status: model.ToolResultError, Message: message}
}

func toolRejected(message string) *model.ToolResultPart {
	return &model.ToolResultPart{Status: model.ToolResultRejected, Message: message}
}

// requestApproval asks gate to approve a mutating exec operation, returning
// a non-nil *model.ToolResultPart only when the caller should stop and
// return that result instead of performing the operation. A nil gate means
// no approval policy is wired (e.g. in tests) and the operation proceeds.
func requestApproval(ctx context.Context, gate ApprovalGate, toolName, actionKey, description string) *model.ToolResultPart {
	if gate == nil {
		return nil
	}
	decision, err := gate.Request(ctx, toolName, actionKey, description)
	if err != nil {
		return toolRejected(fmt.Sprintf("approval error: %v", err))
	}
	if decision == model.Reject {
		return toolRejected("operation rejected")
	}
	return nil
}
