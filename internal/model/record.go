package model

import (
	"encoding/json"
	"fmt"
)

// The "role" values of the two metadata record kinds. A persisted
// HistoryRecord line whose role is a message Role (user, assistant, tool,
// system) is an ordinary message record.
const (
	recordUsage      = "_usage"
	recordCheckpoint = "_checkpoint"
)

// wireContentPart is the on-disk shape of a ContentPart.
type wireContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`

	ID       string `json:"id,omitempty"`
	Function *struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function,omitempty"`

	CallID  string `json:"call_id,omitempty"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
	Output  string `json:"output,omitempty"`
}

func toWirePart(p ContentPart) wireContentPart {
	switch p.Type {
	case PartText:
		return wireContentPart{Type: "text", Text: p.Text}
	case PartToolCall:
		return wireContentPart{
			Type: "tool_call",
			ID:   p.ToolCall.ID,
			Function: &struct {
				Name      string `json:"name"`
				Arguments string `json:"arguments"`
			}{Name: p.ToolCall.Name, Arguments: p.ToolCall.Arguments},
		}
	case PartToolResult:
		return wireContentPart{
			Type:    "tool_result",
			CallID:  p.ToolResult.CallID,
			Status:  string(p.ToolResult.Status),
			Message: p.ToolResult.Message,
			Output:  p.ToolResult.Output,
		}
	default:
		return wireContentPart{}
	}
}

// fromWirePart decodes a wire content part, rejecting unknown "type"
// discriminators, rejecting any unrecognized ContentPart shape.
func fromWirePart(w wireContentPart) (ContentPart, error) {
	switch w.Type {
	case "text":
		return TextPart(w.Text), nil
	case "tool_call":
		if w.Function == nil {
			return ContentPart{}, fmt.Errorf("tool_call part missing function")
		}
		return ToolCallPart(w.ID, w.Function.Name, w.Function.Arguments), nil
	case "tool_result":
		return ContentPart{
			Type: PartToolResult,
			ToolResult: &ToolResultPart{
				CallID:  w.CallID,
				Status:  ToolResultStatus(w.Status),
				Message: w.Message,
				Output:  w.Output,
			},
		}, nil
	default:
		return ContentPart{}, fmt.Errorf("unknown content part type %q", w.Type)
	}
}

// wireMessage is the on-disk shape of a "message" HistoryRecord line.
type wireMessage struct {
	Role    string            `json:"role"`
	Content []wireContentPart `json:"content"`
}

// wireUsage is the on-disk shape of a "_usage" HistoryRecord line.
type wireUsage struct {
	Role       string `json:"role"`
	TokenCount int    `json:"token_count"`
}

// wireCheckpoint is the on-disk shape of a "_checkpoint" HistoryRecord line.
type wireCheckpoint struct {
	Role string `json:"role"`
	ID   int    `json:"id"`
}

// HistoryRecord is one self-delimiting line of the history file: a tagged
// variant over a message, a usage update, or a checkpoint marker.
type HistoryRecord struct {
	Message    *Message
	UsageCount *int
	Checkpoint *int
}

// MarshalLine encodes the record as a single JSON line (no trailing
// newline).
func (r HistoryRecord) MarshalLine() ([]byte, error) {
	switch {
	case r.Message != nil:
		w := wireMessage{Role: string(r.Message.Role)}
		for _, p := range r.Message.Content {
			w.Content = append(w.Content, toWirePart(p))
		}
		return json.Marshal(w)
	case r.UsageCount != nil:
		return json.Marshal(wireUsage{Role: recordUsage, TokenCount: *r.UsageCount})
	case r.Checkpoint != nil:
		return json.Marshal(wireCheckpoint{Role: recordCheckpoint, ID: *r.Checkpoint})
	default:
		return nil, fmt.Errorf("empty history record")
	}
}

// MessageRecord wraps a Message as a HistoryRecord.
func MessageRecord(m Message) HistoryRecord {
	return HistoryRecord{Message: &m}
}

// UsageRecord wraps a token count as a HistoryRecord.
func UsageRecord(n int) HistoryRecord {
	return HistoryRecord{UsageCount: &n}
}

// CheckpointRecord wraps a checkpoint id as a HistoryRecord.
func CheckpointRecord(id int) HistoryRecord {
	return HistoryRecord{Checkpoint: &id}
}

// ParseLine decodes one line of the history file into a HistoryRecord. It
// returns an error for malformed JSON or an unrecognized "role"
// discriminator; callers (the Context Store's restore path) skip such
// lines with a diagnostic rather than failing the whole restore.
func ParseLine(line []byte) (HistoryRecord, error) {
	var probe struct {
		Role string `json:"role"`
	}
	if err := json.Unmarshal(line, &probe); err != nil {
		return HistoryRecord{}, fmt.Errorf("parse history line: %w", err)
	}

	switch probe.Role {
	case recordUsage:
		var w wireUsage
		if err := json.Unmarshal(line, &w); err != nil {
			return HistoryRecord{}, fmt.Errorf("parse usage record: %w", err)
		}
		return UsageRecord(w.TokenCount), nil
	case recordCheckpoint:
		var w wireCheckpoint
		if err := json.Unmarshal(line, &w); err != nil {
			return HistoryRecord{}, fmt.Errorf("parse checkpoint record: %w", err)
		}
		return CheckpointRecord(w.ID), nil
	case string(RoleUser), string(RoleAssistant), string(RoleTool), string(RoleSystem):
		var w wireMessage
		if err := json.Unmarshal(line, &w); err != nil {
			return HistoryRecord{}, fmt.Errorf("parse message record: %w", err)
		}
		msg := Message{Role: Role(w.Role)}
		for _, wp := range w.Content {
			p, err := fromWirePart(wp)
			if err != nil {
				return HistoryRecord{}, fmt.Errorf("parse content part: %w", err)
			}
			msg.Content = append(msg.Content, p)
		}
		return MessageRecord(msg), nil
	default:
		return HistoryRecord{}, fmt.Errorf("unknown record role %q", probe.Role)
	}
}
