package dmail

import "testing"

func TestSendValidatesCheckpointRange(t *testing.T) {
	b := NewBox()
	if b.Send(-1, "go back", 3) {
		t.Fatal("expected rejection for negative checkpoint id")
	}
	if b.Send(3, "go back", 3) {
		t.Fatal("expected rejection for checkpoint id == checkpoint count")
	}
	if !b.Send(1, "go back", 3) {
		t.Fatal("expected acceptance for valid checkpoint id")
	}
}

func TestFetchIsAtomicAndSingleSlot(t *testing.T) {
	b := NewBox()
	b.Send(0, "first", 2)
	b.Send(1, "second", 2) // overwrites the single slot

	m, ok := b.Fetch()
	if !ok {
		t.Fatal("expected pending mail")
	}
	if m.CheckpointID != 1 || m.Message != "second" {
		t.Fatalf("expected the most recent Send to win, got %+v", m)
	}

	if _, ok := b.Fetch(); ok {
		t.Fatal("expected mailbox empty after Fetch")
	}
}

func TestClearDropsPending(t *testing.T) {
	b := NewBox()
	b.Send(0, "msg", 1)
	b.Clear()
	if _, ok := b.Fetch(); ok {
		t.Fatal("expected mailbox empty after Clear")
	}
}
