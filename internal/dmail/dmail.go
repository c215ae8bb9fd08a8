// Package dmail implements the single-slot deferred revert-and-inject
// mailbox, consumed by the Loop Driver between steps.
package dmail

import "sync"

// Mail is a pending request to revert to checkpoint_id and inject message
// as the next user input.
type Mail struct {
	CheckpointID int
	Message      string
}

// Box is the one-slot mailbox.
type Box struct {
	mu      sync.Mutex
	pending *Mail
}

// NewBox constructs an empty mailbox.
func NewBox() *Box {
	return &Box{}
}

// Send validates 0 <= checkpointID < checkpointCount and stores the
// request, overwriting any prior pending mail (the slot holds at most
// one instance). Returns false when checkpointID is out of range.
func (b *Box) Send(checkpointID int, message string, checkpointCount int) bool {
	if checkpointID < 0 || checkpointID >= checkpointCount {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = &Mail{CheckpointID: checkpointID, Message: message}
	return true
}

// Fetch atomically removes and returns any pending mail.
func (b *Box) Fetch() (Mail, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending == nil {
		return Mail{}, false
	}
	m := *b.pending
	b.pending = nil
	return m, true
}

// Clear drops any pending mail.
func (b *Box) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = nil
}
