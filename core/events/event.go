package events

import (
	"sync"

	"nmchain/core/types"
)

// Event represents a structured state change emitted by the node.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events. It
// is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Payloader is implemented by events that carry a canonical payload.
type Payloader interface {
	Event() *types.Event
}

// Buffer retains the most recent emitted payloads so read surfaces can serve
// event history without a full indexer.
type Buffer struct {
	mu     sync.RWMutex
	max    int
	events []types.Event
}

// NewBuffer creates a buffer retaining at most max events. A non-positive max
// falls back to a small default.
func NewBuffer(max int) *Buffer {
	if max <= 0 {
		max = 256
	}
	return &Buffer{max: max}
}

// Emit implements the Emitter interface, recording the payload when present.
func (b *Buffer) Emit(evt Event) {
	if b == nil || evt == nil {
		return
	}
	payloader, ok := evt.(Payloader)
	if !ok {
		return
	}
	payload := payloader.Event()
	if payload == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, *payload)
	if len(b.events) > b.max {
		b.events = b.events[len(b.events)-b.max:]
	}
}

// Events returns a copy of the buffered payloads in emission order.
func (b *Buffer) Events() []types.Event {
	if b == nil {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]types.Event, len(b.events))
	copy(out, b.events)
	return out
}
