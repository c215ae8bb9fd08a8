// Package loopctx implements the Context Store: an append-only, single-writer
// JSONL history file with checkpoint-based revert ("time travel") and
// in-place compaction. It is the durable half of the runtime's conversation
// state; the Loop Driver is its only caller.
package loopctx

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/coreagent/runtime/internal/model"
	"github.com/coreagent/runtime/internal/observability"
)

// SummaryProvider generates a replacement summary for a prefix of History
// being compacted. Grounded on the teacher's pluggable summarization
// interface, trimmed to the model.Message vocabulary used here.
type SummaryProvider interface {
	Summarize(ctx context.Context, messages []model.Message, maxLength int) (string, error)
}

// Store is the Context Store for one session's history file. It is
// single-writer: concurrent callers must serialize through the Loop Driver.
type Store struct {
	mu     sync.Mutex
	path   string
	logger *observability.Logger

	records         []model.HistoryRecord
	history         []model.Message
	tokenCount      int
	checkpointCount int
}

// New constructs a Store over path without touching the filesystem. Call
// Restore to load any existing content.
func New(path string, logger *observability.Logger) *Store {
	return &Store{path: path, logger: logger}
}

// Append appends message to in-memory History and writes one "message"
// HistoryRecord line. Writes are best-effort line-oriented: a crash may
// lose only the tail line.
func (s *Store) Append(message model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := model.MessageRecord(message)
	if err := s.writeLine(rec); err != nil {
		return err
	}
	s.records = append(s.records, rec)
	s.history = append(s.history, message)
	return nil
}

// UpdateTokenCount sets in-memory TokenCount and appends one "_usage"
// record.
func (s *Store) UpdateTokenCount(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := model.UsageRecord(n)
	if err := s.writeLine(rec); err != nil {
		return err
	}
	s.records = append(s.records, rec)
	s.tokenCount = n
	return nil
}

// Checkpoint marks the current boundary as safe to revert to. When
// ensureProgress is true and the last record already is a checkpoint, it
// returns that checkpoint's id without writing a new one.
func (s *Store) Checkpoint(ensureProgress bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ensureProgress && len(s.records) > 0 {
		if last := s.records[len(s.records)-1]; last.Checkpoint != nil {
			return *last.Checkpoint, nil
		}
	}

	id := s.checkpointCount
	rec := model.CheckpointRecord(id)
	if err := s.writeLine(rec); err != nil {
		return 0, err
	}
	s.records = append(s.records, rec)
	s.checkpointCount++
	return id, nil
}

// RevertTo requires 0 <= k <= checkpoint_count. It rotates the current file
// to a sibling, writes a new current file containing exactly the records
// preceding checkpoint k's boundary, and reloads in-memory state from it.
// token_count is reset to 0 and checkpoint_count becomes k, per the revert
// invariant: a revert discards everything checkpoint k did not yet see.
func (s *Store) RevertTo(k int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if k < 0 || k > s.checkpointCount {
		return fmt.Errorf("revert_to(%d): out of range [0,%d]", k, s.checkpointCount)
	}

	boundary := len(s.records)
	for i, rec := range s.records {
		if rec.Checkpoint != nil && *rec.Checkpoint == k {
			boundary = i
			break
		}
	}

	kept := append([]model.HistoryRecord(nil), s.records[:boundary]...)
	if err := s.rotateAndRewrite(kept); err != nil {
		return err
	}

	s.replay(kept)
	s.tokenCount = 0
	s.checkpointCount = k
	return nil
}

// Compact replaces the prefix of History preceding the most recent
// checkpoint with a single summary assistant Message produced by provider.
// It rotates the file the same way RevertTo does and never splits a
// tool-call/tool-result pair at the boundary, since checkpoints are only
// created at turn boundaries where no such pair straddles the cut. Returns
// false if there is no checkpoint yet, or if the prefix to summarize is
// empty.
func (s *Store) Compact(ctx context.Context, provider SummaryProvider, maxSummaryLength int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.checkpointCount == 0 {
		return false, nil
	}

	lastCheckpointID := s.checkpointCount - 1
	boundary := -1
	for i, rec := range s.records {
		if rec.Checkpoint != nil && *rec.Checkpoint == lastCheckpointID {
			boundary = i
			break
		}
	}
	if boundary <= 0 {
		return false, nil
	}

	var toSummarize []model.Message
	for _, rec := range s.records[:boundary] {
		if rec.Message != nil {
			toSummarize = append(toSummarize, *rec.Message)
		}
	}
	if len(toSummarize) == 0 {
		return false, nil
	}

	summaryText, err := provider.Summarize(ctx, toSummarize, maxSummaryLength)
	if err != nil {
		return false, fmt.Errorf("compaction: summarize: %w", err)
	}

	summaryMsg := model.Message{Role: model.RoleAssistant, Content: []model.ContentPart{model.TextPart(summaryText)}}
	summaryRec := model.MessageRecord(summaryMsg)

	tail := s.records[boundary:]
	kept := make([]model.HistoryRecord, 0, len(tail)+1)
	kept = append(kept, summaryRec)
	kept = append(kept, tail...)
	renumberCheckpoints(kept)

	preservedTokenCount := s.tokenCount
	if err := s.rotateAndRewrite(kept); err != nil {
		return false, err
	}
	s.replay(kept)
	s.tokenCount = preservedTokenCount
	return true, nil
}

// renumberCheckpoints reassigns every _checkpoint record in records to a
// dense, zero-based id in file order, in place. Compaction drops every
// checkpoint before the summarized boundary, so the surviving checkpoints
// must be renumbered to preserve I2/P5 (dense ids starting at 0) — otherwise
// a surviving record keeps its pre-compaction id while checkpointCount
// resets to the number of survivors, and RevertTo/D-Mail addressing by id 0
// silently no-ops because no record carries that id anymore.
func renumberCheckpoints(records []model.HistoryRecord) {
	next := 0
	for i, rec := range records {
		if rec.Checkpoint != nil {
			records[i] = model.CheckpointRecord(next)
			next++
		}
	}
}

// Restore loads an existing history file into memory. It returns false for
// a missing, empty, or all-blank file; lines that fail to parse are skipped
// with a logged diagnostic rather than aborting the restore.
func (s *Store) Restore() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("restore: open: %w", err)
	}
	defer f.Close()

	var records []model.HistoryRecord
	sawContent := false
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<24)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytesTrimSpace(line)) == 0 {
			continue
		}
		sawContent = true
		rec, err := model.ParseLine(line)
		if err != nil {
			if s.logger != nil {
				s.logger.Warn(context.Background(), "skipping malformed history line", "error", err)
			}
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return false, fmt.Errorf("restore: scan: %w", err)
	}
	if !sawContent {
		return false, nil
	}

	s.replay(records)
	return true, nil
}

// Path returns the history file path this Store was constructed with.
func (s *Store) Path() string {
	return s.path
}

// History returns a read-only snapshot of the current in-memory history.
func (s *Store) History() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Message, len(s.history))
	copy(out, s.history)
	return out
}

// CheckpointCount returns the number of checkpoints created so far.
func (s *Store) CheckpointCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkpointCount
}

// TokenCount returns the current in-memory token count.
func (s *Store) TokenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokenCount
}

// replay rebuilds in-memory history/tokenCount/checkpointCount from records.
// Callers hold s.mu.
func (s *Store) replay(records []model.HistoryRecord) {
	s.records = records
	s.history = s.history[:0]
	s.tokenCount = 0
	s.checkpointCount = 0
	for _, rec := range records {
		switch {
		case rec.Message != nil:
			s.history = append(s.history, *rec.Message)
		case rec.UsageCount != nil:
			s.tokenCount = *rec.UsageCount
		case rec.Checkpoint != nil:
			s.checkpointCount++
		}
	}
}

// writeLine appends one record's marshaled line, with a trailing newline,
// to the current history file. Callers hold s.mu.
func (s *Store) writeLine(rec model.HistoryRecord) error {
	line, err := rec.MarshalLine()
	if err != nil {
		return fmt.Errorf("marshal history record: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open history file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write history line: %w", err)
	}
	return nil
}

// rotateAndRewrite renames the current file to the smallest-numbered unused
// sibling, then writes records as the new current file. Callers hold s.mu.
func (s *Store) rotateAndRewrite(records []model.HistoryRecord) error {
	if _, err := os.Stat(s.path); err == nil {
		sibling, err := s.nextRotationPath()
		if err != nil {
			return err
		}
		if err := os.Rename(s.path, sibling); err != nil {
			return fmt.Errorf("rotate history file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat history file: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create history file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, rec := range records {
		line, err := rec.MarshalLine()
		if err != nil {
			return fmt.Errorf("marshal history record: %w", err)
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("write history line: %w", err)
		}
	}
	return w.Flush()
}

// nextRotationPath finds the smallest positive integer R such that
// "<path>.<R>" does not already exist.
func (s *Store) nextRotationPath() (string, error) {
	for r := 1; ; r++ {
		candidate := fmt.Sprintf("%s.%d", s.path, r)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		} else if err != nil {
			return "", fmt.Errorf("stat rotation candidate: %w", err)
		}
	}
}

func bytesTrimSpace(b []byte) []byte {
	start, end := 0, len(b)
	for start < end && isSpace(b[start]) {
		start++
	}
	for end > start && isSpace(b[end-1]) {
		end--
	}
	return b[start:end]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}
