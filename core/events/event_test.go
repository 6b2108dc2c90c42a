package events

import (
	"fmt"
	"testing"

	"nmchain/core/types"
)

type payloadEvent struct {
	payload *types.Event
}

func (e payloadEvent) EventType() string {
	if e.payload == nil {
		return ""
	}
	return e.payload.Type
}

func (e payloadEvent) Event() *types.Event { return e.payload }

type bareEvent struct{}

func (bareEvent) EventType() string { return "bare" }

func TestBufferRetainsMostRecent(t *testing.T) {
	buffer := NewBuffer(3)
	for i := 0; i < 5; i++ {
		buffer.Emit(payloadEvent{payload: &types.Event{Type: fmt.Sprintf("evt.%d", i)}})
	}

	got := buffer.Events()
	if len(got) != 3 {
		t.Fatalf("buffered = %d, want 3", len(got))
	}
	if got[0].Type != "evt.2" || got[2].Type != "evt.4" {
		t.Fatalf("buffer must keep the newest events, got %v", got)
	}
}

func TestBufferIgnoresEventsWithoutPayload(t *testing.T) {
	buffer := NewBuffer(3)
	buffer.Emit(bareEvent{})
	buffer.Emit(payloadEvent{})
	if got := buffer.Events(); len(got) != 0 {
		t.Fatalf("buffered = %d, want 0", len(got))
	}
}

func TestBufferCopiesOnRead(t *testing.T) {
	buffer := NewBuffer(3)
	buffer.Emit(payloadEvent{payload: &types.Event{Type: "evt.0"}})

	first := buffer.Events()
	first[0].Type = "mutated"
	if got := buffer.Events(); got[0].Type != "evt.0" {
		t.Fatal("readers must not be able to mutate the buffer")
	}
}
