// Package wire implements the process-local pub/sub event bus: a
// non-blocking multicast of loop-progress events to every current
// subscriber, each with its own bounded, drop-oldest buffer.
package wire

import (
	"sync"
	"sync/atomic"

	"github.com/coreagent/runtime/internal/model"
)

// EventType discriminates the Event variants published on the bus.
type EventType string

const (
	StepBegin       EventType = "step_begin"
	StepInterrupted EventType = "step_interrupted"
	StepEnd         EventType = "step_end"
	CompactionBegin EventType = "compaction_begin"
	CompactionEnd   EventType = "compaction_end"
	ContentPartEvt  EventType = "content_part"
	ToolCallEvt     EventType = "tool_call"
	ToolResultEvt   EventType = "tool_result"
	StatusUpdate    EventType = "status_update"
)

// Event is one message published on the Bus.
type Event struct {
	Type EventType

	StepNumber int
	Part       *model.ContentPart
	Call       *model.ToolCall
	ResultID   string
	Result     *model.ToolResultPart
	Status     map[string]any
}

// DroppedEventsCounter records events discarded by a subscriber's full
// buffer, keyed by event type. Satisfied directly by *observability.Metrics.
type DroppedEventsCounter interface {
	RecordDroppedEvent(eventType string)
}

// nopCounter discards dropped-event counts when the caller wires no metrics.
type nopCounter struct{}

func (nopCounter) RecordDroppedEvent(string) {}

// defaultBufferSize is the per-subscriber buffer depth used when Subscribe
// is called without an explicit size.
const defaultBufferSize = 256

// Bus multicasts Events to every current Subscription.
type Bus struct {
	mu      sync.Mutex
	subs    map[*Subscription]struct{}
	counter DroppedEventsCounter
}

// NewBus constructs an empty Bus. counter may be nil, in which case
// dropped events are silently discarded.
func NewBus(counter DroppedEventsCounter) *Bus {
	if counter == nil {
		counter = nopCounter{}
	}
	return &Bus{subs: make(map[*Subscription]struct{}), counter: counter}
}

// Publish delivers event to every current subscriber in the order this
// method is called (events published to the Bus observe a total
// order equal to the driver's emission order" within one run). Publish
// never blocks on a slow subscriber.
func (b *Bus) Publish(event Event) {
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.deliver(event, b.counter)
	}
}

// Subscribe registers a new Subscription with the default buffer size.
func (b *Bus) Subscribe() *Subscription {
	return b.SubscribeBuffered(defaultBufferSize)
}

// SubscribeBuffered registers a new Subscription with the given buffer
// size. Returns a Subscription whose Cancel method removes it from the
// Bus.
func (b *Bus) SubscribeBuffered(size int) *Subscription {
	if size <= 0 {
		size = defaultBufferSize
	}
	s := &Subscription{
		bus:    b,
		ch:     make(chan Event, size),
		closed: make(chan struct{}),
	}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
}

// Subscription is a single consumer's bounded view of the Bus. Events
// arrive through Events(); on overflow the oldest buffered event is
// discarded to make room for the newest (drop-oldest), and
// DroppedCount tracks how many events were discarded this way.
//
// This intentionally departs from a design some pub/sub implementations
// use where a full buffer drops the *incoming* event instead; the fresh
// event is what the subscriber is guaranteed to eventually see.
type Subscription struct {
	bus *Bus

	mu      sync.Mutex
	dropped uint64

	ch         chan Event
	closed     chan struct{}
	closedFlag int32
	once       sync.Once
}

func (s *Subscription) deliver(e Event, counter DroppedEventsCounter) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if atomic.LoadInt32(&s.closedFlag) != 0 {
		return
	}

	select {
	case s.ch <- e:
		return
	default:
	}

	// Buffer is full: drop the oldest queued event to make room, recording
	// the drop for diagnostics, then retry the send.
	select {
	case old := <-s.ch:
		s.dropped++
		counter.RecordDroppedEvent(string(old.Type))
	default:
	}

	select {
	case s.ch <- e:
	default:
		// A concurrent receive drained an extra slot; nothing more to do.
	}
}

// Events returns the channel of delivered events.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// DroppedCount returns the number of events discarded by this
// subscription's overflow handling.
func (s *Subscription) DroppedCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Cancel removes the subscription from the Bus and closes its channel.
// Safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.bus.remove(s)
		s.mu.Lock()
		atomic.StoreInt32(&s.closedFlag, 1)
		close(s.ch)
		s.mu.Unlock()
		close(s.closed)
	})
}
