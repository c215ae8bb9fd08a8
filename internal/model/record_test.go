package model

import "testing"

func TestHistoryRecordRoundTrip(t *testing.T) {
	cases := []HistoryRecord{
		MessageRecord(Message{Role: RoleUser, Content: []ContentPart{TextPart("hi")}}),
		MessageRecord(Message{Role: RoleAssistant, Content: []ContentPart{
			TextPart("checking"),
			ToolCallPart("t1", "Ls", `{}`),
		}}),
		MessageRecord(Message{Role: RoleTool, Content: []ContentPart{
			ToolResultContentPart("t1", ToolResultOK, "", ".\nfile"),
		}}),
		UsageRecord(42),
		CheckpointRecord(3),
	}

	for i, rec := range cases {
		line, err := rec.MarshalLine()
		if err != nil {
			t.Fatalf("case %d: MarshalLine: %v", i, err)
		}
		got, err := ParseLine(line)
		if err != nil {
			t.Fatalf("case %d: ParseLine: %v", i, err)
		}

		switch {
		case rec.Message != nil:
			if got.Message == nil || got.Message.Role != rec.Message.Role {
				t.Fatalf("case %d: message role mismatch: %+v", i, got)
			}
			if len(got.Message.Content) != len(rec.Message.Content) {
				t.Fatalf("case %d: content length mismatch: got %d want %d", i, len(got.Message.Content), len(rec.Message.Content))
			}
		case rec.UsageCount != nil:
			if got.UsageCount == nil || *got.UsageCount != *rec.UsageCount {
				t.Fatalf("case %d: usage mismatch: %+v", i, got)
			}
		case rec.Checkpoint != nil:
			if got.Checkpoint == nil || *got.Checkpoint != *rec.Checkpoint {
				t.Fatalf("case %d: checkpoint mismatch: %+v", i, got)
			}
		}
	}
}

func TestParseLineRejectsUnknownRole(t *testing.T) {
	if _, err := ParseLine([]byte(`{"role":"bogus"}`)); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestTruncateMessage(t *testing.T) {
	long := make([]byte, 600)
	for i := range long {
		long[i] = 'a'
	}
	got := TruncateMessage(string(long))
	if len([]rune(got)) != 501 {
		t.Fatalf("expected truncated length 501, got %d", len([]rune(got)))
	}
}

func TestNormalizeStatus(t *testing.T) {
	if NormalizeStatus("bogus") != ToolResultError {
		t.Fatal("expected bogus status to normalize to ERROR")
	}
	if NormalizeStatus(ToolResultRejected) != ToolResultRejected {
		t.Fatal("expected REJECTED to pass through")
	}
}
