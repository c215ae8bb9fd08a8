package loopctx

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/coreagent/runtime/internal/model"
)

func textMsg(role model.Role, text string) model.Message {
	return model.Message{Role: role, Content: []model.ContentPart{model.TextPart(text)}}
}

func TestAppendAndRestoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.jsonl")

	s := New(path, nil)
	if err := s.Append(textMsg(model.RoleUser, "hi")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.UpdateTokenCount(5); err != nil {
		t.Fatalf("update token count: %v", err)
	}
	if _, err := s.Checkpoint(false); err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	if err := s.Append(textMsg(model.RoleAssistant, "hello")); err != nil {
		t.Fatalf("append: %v", err)
	}

	fresh := New(path, nil)
	ok, err := fresh.Restore()
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !ok {
		t.Fatal("expected restore to find content")
	}

	if fresh.TokenCount() != s.TokenCount() {
		t.Fatalf("token count mismatch: got %d want %d", fresh.TokenCount(), s.TokenCount())
	}
	if fresh.CheckpointCount() != s.CheckpointCount() {
		t.Fatalf("checkpoint count mismatch: got %d want %d", fresh.CheckpointCount(), s.CheckpointCount())
	}
	wantHistory, gotHistory := s.History(), fresh.History()
	if len(wantHistory) != len(gotHistory) {
		t.Fatalf("history length mismatch: got %d want %d", len(gotHistory), len(wantHistory))
	}
	for i := range wantHistory {
		if wantHistory[i].Text() != gotHistory[i].Text() || wantHistory[i].Role != gotHistory[i].Role {
			t.Fatalf("history[%d] mismatch: got %+v want %+v", i, gotHistory[i], wantHistory[i])
		}
	}
}

func TestRestoreMissingFileReturnsFalse(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "nope.jsonl"), nil)
	ok, err := s.Restore()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected false for a missing file")
	}
}

func TestRestoreSkipsBlankAndMalformedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.jsonl")
	content := "{\"role\":\"user\",\"content\":[{\"type\":\"text\",\"text\":\"hi\"}]}\n\n" +
		"not json\n" +
		"{\"role\":\"_bogus\"}\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	s := New(path, nil)
	ok, err := s.Restore()
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !ok {
		t.Fatal("expected restore to find content")
	}
	history := s.History()
	if len(history) != 1 || history[0].Text() != "hi" {
		t.Fatalf("expected only the valid message to survive, got %+v", history)
	}
}

func TestRevertToPreservesPrefixAndRotates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.jsonl")
	s := New(path, nil)

	_ = s.Append(textMsg(model.RoleUser, "turn0-user"))
	_ = s.Append(textMsg(model.RoleAssistant, "turn0-assistant"))
	_, _ = s.Checkpoint(true) // checkpoint 0

	_ = s.Append(textMsg(model.RoleUser, "turn1-user"))
	_ = s.Append(textMsg(model.RoleAssistant, "turn1-assistant"))
	_, _ = s.Checkpoint(true) // checkpoint 1

	_ = s.Append(textMsg(model.RoleUser, "turn2-user"))
	_ = s.Append(textMsg(model.RoleAssistant, "turn2-assistant"))
	_, _ = s.Checkpoint(true) // checkpoint 2

	if err := s.RevertTo(1); err != nil {
		t.Fatalf("revert_to(1): %v", err)
	}

	history := s.History()
	if len(history) != 4 {
		t.Fatalf("expected 4 messages after revert_to(1), got %d: %+v", len(history), history)
	}
	if history[3].Text() != "turn1-assistant" {
		t.Fatalf("expected prefix to end at turn1-assistant, got %+v", history[3])
	}
	if s.TokenCount() != 0 {
		t.Fatalf("expected token count reset to 0, got %d", s.TokenCount())
	}
	if s.CheckpointCount() != 1 {
		t.Fatalf("expected checkpoint count 1, got %d", s.CheckpointCount())
	}

	rotated := path + ".1"
	rotatedData, err := os.ReadFile(rotated)
	if err != nil {
		t.Fatalf("expected rotated sibling %s: %v", rotated, err)
	}
	currentData, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read current file: %v", err)
	}

	// Property P3: every record ever appended survives in the rotated
	// sibling plus the new current file.
	if !containsLine(rotatedData, "turn2-assistant") {
		t.Fatal("rotated sibling should retain the discarded turn-2 records")
	}
	if !containsLine(currentData, "turn1-assistant") {
		t.Fatal("current file should retain the kept prefix")
	}

	// Property P2: reverting to the same checkpoint again is a no-op
	// modulo rotation.
	beforeHistory := s.History()
	beforeTokens := s.TokenCount()
	if err := s.RevertTo(1); err != nil {
		t.Fatalf("second revert_to(1): %v", err)
	}
	afterHistory := s.History()
	if len(beforeHistory) != len(afterHistory) {
		t.Fatalf("revert idempotence violated: history length changed from %d to %d", len(beforeHistory), len(afterHistory))
	}
	if s.TokenCount() != beforeTokens {
		t.Fatalf("revert idempotence violated: token count changed from %d to %d", beforeTokens, s.TokenCount())
	}
	if _, err := os.Stat(path + ".2"); err != nil {
		t.Fatal("expected a second rotation sibling from the idempotent revert")
	}
}

func TestCheckpointEnsureProgressAvoidsDuplicateWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.jsonl")
	s := New(path, nil)

	_ = s.Append(textMsg(model.RoleUser, "hi"))
	first, err := s.Checkpoint(true)
	if err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	second, err := s.Checkpoint(true)
	if err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	if first != second {
		t.Fatalf("expected ensure-progress checkpoint to return the same id, got %d then %d", first, second)
	}
	if s.CheckpointCount() != 1 {
		t.Fatalf("expected checkpoint count 1, got %d", s.CheckpointCount())
	}
}

type fakeSummaryProvider struct {
	summary string
}

func (f fakeSummaryProvider) Summarize(ctx context.Context, messages []model.Message, maxLength int) (string, error) {
	return f.summary, nil
}

func TestCompactReplacesPrefixWithSummary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.jsonl")
	s := New(path, nil)

	_ = s.Append(textMsg(model.RoleUser, "turn0-user"))
	_ = s.Append(textMsg(model.RoleAssistant, "turn0-assistant"))
	_, _ = s.Checkpoint(true) // checkpoint 0
	_ = s.UpdateTokenCount(600)

	_ = s.Append(textMsg(model.RoleUser, "turn1-user"))

	ok, err := s.Compact(context.Background(), fakeSummaryProvider{summary: "summary of turn 0"}, 2000)
	if err != nil {
		t.Fatalf("compact: %v", err)
	}
	if !ok {
		t.Fatal("expected compaction to occur")
	}

	history := s.History()
	if len(history) != 2 {
		t.Fatalf("expected summary + tail, got %d messages: %+v", len(history), history)
	}
	if history[0].Role != model.RoleAssistant || history[0].Text() != "summary of turn 0" {
		t.Fatalf("expected summary message first, got %+v", history[0])
	}
	if history[1].Text() != "turn1-user" {
		t.Fatalf("expected tail message preserved, got %+v", history[1])
	}
	if s.CheckpointCount() != 1 {
		t.Fatalf("expected the checkpoint boundary to survive compaction, got %d", s.CheckpointCount())
	}
}

func TestCompactRenumbersSurvivingCheckpointToZero(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.jsonl")
	s := New(path, nil)

	_ = s.Append(textMsg(model.RoleUser, "turn0-user"))
	_ = s.Append(textMsg(model.RoleAssistant, "turn0-assistant"))
	_, _ = s.Checkpoint(true) // checkpoint 0

	_ = s.Append(textMsg(model.RoleUser, "turn1-user"))
	_ = s.Append(textMsg(model.RoleAssistant, "turn1-assistant"))
	_, _ = s.Checkpoint(true) // checkpoint 1

	_ = s.Append(textMsg(model.RoleUser, "turn2-user"))
	_ = s.Append(textMsg(model.RoleAssistant, "turn2-assistant"))
	_, _ = s.Checkpoint(true) // checkpoint 2

	_ = s.UpdateTokenCount(600)
	_ = s.Append(textMsg(model.RoleUser, "turn3-user"))

	ok, err := s.Compact(context.Background(), fakeSummaryProvider{summary: "summary of turns 0-2"}, 2000)
	if err != nil {
		t.Fatalf("compact: %v", err)
	}
	if !ok {
		t.Fatal("expected compaction to occur")
	}

	// Property P5: checkpoint ids present in the file must be dense
	// starting at 0. Compaction drops checkpoints 0 and 1 along with the
	// summarized prefix, so the surviving checkpoint (originally id 2) must
	// be renumbered to 0 rather than keeping its pre-compaction id.
	if s.CheckpointCount() != 1 {
		t.Fatalf("expected checkpoint count 1 after compaction, got %d", s.CheckpointCount())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read history file: %v", err)
	}
	if !containsLine(data, `"role":"_checkpoint","id":0`) {
		t.Fatalf("expected surviving checkpoint to be renumbered to id 0, got:\n%s", data)
	}
	if containsLine(data, `"role":"_checkpoint","id":2`) {
		t.Fatalf("expected no stale checkpoint id 2 on disk, got:\n%s", data)
	}

	// RevertTo(0) must now find the renumbered checkpoint and actually
	// rewind, rather than silently no-op because no record carries id 0.
	beforeHistory := s.History()
	if len(beforeHistory) != 2 {
		t.Fatalf("expected summary + tail before revert, got %d messages", len(beforeHistory))
	}
	if err := s.RevertTo(0); err != nil {
		t.Fatalf("revert_to(0): %v", err)
	}
	afterHistory := s.History()
	if len(afterHistory) != 1 || afterHistory[0].Text() != "summary of turns 0-2" {
		t.Fatalf("expected revert_to(0) to leave only the summary message, got %+v", afterHistory)
	}
	if s.CheckpointCount() != 0 {
		t.Fatalf("expected checkpoint count 0 after revert_to(0), got %d", s.CheckpointCount())
	}
}

func TestCompactNoopWithoutCheckpoint(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.jsonl")
	s := New(path, nil)
	_ = s.Append(textMsg(model.RoleUser, "hi"))

	ok, err := s.Compact(context.Background(), fakeSummaryProvider{summary: "x"}, 2000)
	if err != nil {
		t.Fatalf("compact: %v", err)
	}
	if ok {
		t.Fatal("expected no-op compaction before any checkpoint exists")
	}
}

func containsLine(data []byte, substr string) bool {
	return len(data) > 0 && len(substr) > 0 && indexOf(string(data), substr) >= 0
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
