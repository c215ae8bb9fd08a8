// Package model defines the data model shared by the context store, the
// tool registry, the LLM facade, and the loop driver: messages, their
// content parts, tool specs and results, and the records written to a
// history file.
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Role indicates the author of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// ToolResultStatus is the tri-state outcome of a tool invocation.
type ToolResultStatus string

const (
	ToolResultOK       ToolResultStatus = "OK"
	ToolResultError    ToolResultStatus = "ERROR"
	ToolResultRejected ToolResultStatus = "REJECTED"
)

// maxResultMessageLen is the truncation boundary enforced by the dispatcher
// on a ToolResult's Message field.
const maxResultMessageLen = 500

// PartType discriminates the variants of ContentPart.
type PartType string

const (
	PartText       PartType = "text"
	PartToolCall   PartType = "tool_call"
	PartToolResult PartType = "tool_result"
)

// ContentPart is one fragment of a Message: text, a tool call, or a tool
// result. Exactly one of Text, ToolCall, or ToolResult is populated,
// matching Type.
type ContentPart struct {
	Type       PartType
	Text       string
	ToolCall   *ToolCall
	ToolResult *ToolResultPart
}

// ToolCall is the model's request to execute a named tool. Arguments is
// the raw JSON-object string the model produced; it is decoded and
// validated against the tool's parameter schema at dispatch time, not here.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolResultPart is the outcome of dispatching a ToolCall, as it appears
// inside a tool-role Message.
type ToolResultPart struct {
	CallID  string
	Status  ToolResultStatus
	Message string
	Output  string
}

// TextPart constructs a text ContentPart.
func TextPart(text string) ContentPart {
	return ContentPart{Type: PartText, Text: text}
}

// ToolCallPart constructs a tool_call ContentPart.
func ToolCallPart(id, name, arguments string) ContentPart {
	return ContentPart{Type: PartToolCall, ToolCall: &ToolCall{ID: id, Name: name, Arguments: arguments}}
}

// ToolResultContentPart constructs a tool_result ContentPart, truncating
// Message to the 500-character boundary the dispatcher's result
// normalization requires.
func ToolResultContentPart(callID string, status ToolResultStatus, message, output string) ContentPart {
	return ContentPart{
		Type: PartToolResult,
		ToolResult: &ToolResultPart{
			CallID:  callID,
			Status:  NormalizeStatus(status),
			Message: TruncateMessage(message),
			Output:  output,
		},
	}
}

// NormalizeStatus clamps status to one of {OK, ERROR, REJECTED}, defaulting
// to ERROR for anything else.
func NormalizeStatus(s ToolResultStatus) ToolResultStatus {
	switch s {
	case ToolResultOK, ToolResultError, ToolResultRejected:
		return s
	default:
		return ToolResultError
	}
}

// TruncateMessage truncates s to maxResultMessageLen characters, appending
// an ellipsis marker when truncated.
func TruncateMessage(s string) string {
	r := []rune(s)
	if len(r) <= maxResultMessageLen {
		return s
	}
	return string(r[:maxResultMessageLen]) + "…"
}

// Message is one immutable entry in History: a role plus an ordered list
// of content parts.
type Message struct {
	ID        string
	Role      Role
	Content   []ContentPart
	CreatedAt time.Time
}

// ToolCallIDs returns the ids of every tool_call part in the message, in
// order.
func (m Message) ToolCallIDs() []string {
	var ids []string
	for _, p := range m.Content {
		if p.Type == PartToolCall && p.ToolCall != nil {
			ids = append(ids, p.ToolCall.ID)
		}
	}
	return ids
}

// HasToolCalls reports whether the message contains any tool_call parts.
func (m Message) HasToolCalls() bool {
	for _, p := range m.Content {
		if p.Type == PartToolCall {
			return true
		}
	}
	return false
}

// ToolResultIDs returns the call_ids of every tool_result part in the
// message, in order.
func (m Message) ToolResultIDs() []string {
	var ids []string
	for _, p := range m.Content {
		if p.Type == PartToolResult && p.ToolResult != nil {
			ids = append(ids, p.ToolResult.CallID)
		}
	}
	return ids
}

// Text concatenates every text part of the message.
func (m Message) Text() string {
	var s string
	for _, p := range m.Content {
		if p.Type == PartText {
			s += p.Text
		}
	}
	return s
}

// ToolSpec describes a tool's shape for the LLM and the dispatcher:
// its name, a human description, and a JSON Schema for its arguments.
type ToolSpec struct {
	Name            string
	Description     string
	ParameterSchema json.RawMessage
}

// ApprovalDecision is the user's or the session policy's response to an
// approval request.
type ApprovalDecision string

const (
	ApproveOnce       ApprovalDecision = "APPROVE_ONCE"
	ApproveForSession ApprovalDecision = "APPROVE_FOR_SESSION"
	Reject            ApprovalDecision = "REJECT"
)

// ApprovalRecord is a session allow-list entry keyed by (tool name, action
// key), granted by a prior APPROVE_FOR_SESSION response.
type ApprovalRecord struct {
	ToolName  string
	ActionKey string
	Decision  ApprovalDecision
}

// Session identifies the external collaborator's working context: where
// tools resolve relative paths and where the history file lives.
type Session struct {
	ID              string
	WorkDir         string
	HistoryFilePath string
}

func (c ContentPart) String() string {
	switch c.Type {
	case PartText:
		return fmt.Sprintf("text(%q)", c.Text)
	case PartToolCall:
		return fmt.Sprintf("tool_call(%s,%s)", c.ToolCall.ID, c.ToolCall.Name)
	case PartToolResult:
		return fmt.Sprintf("tool_result(%s,%s)", c.ToolResult.CallID, c.ToolResult.Status)
	default:
		return "unknown"
	}
}
