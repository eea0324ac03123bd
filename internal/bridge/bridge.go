// Package bridge carries pipeline events to whoever is listening: the
// capture engine emits named events through the [Emitter] interface and the
// concrete emitters fan them out (websocket clients, logs, tests).
package bridge

import (
	"log/slog"
	"sync"
)

// Emitter delivers a named event with a JSON-serialisable payload.
//
// Emit must never block the caller: the capture loop emits from its hot path
// and a slow listener must not stall audio processing. Implementations drop
// rather than block.
type Emitter interface {
	Emit(event string, payload any)
}

// Multi tees every event to all wrapped emitters in order.
type Multi []Emitter

// Emit delivers the event to each wrapped emitter.
func (m Multi) Emit(event string, payload any) {
	for _, e := range m {
		e.Emit(event, payload)
	}
}

// LogEmitter writes every event to a logger at debug level. Useful as a
// development tap alongside the websocket hub.
type LogEmitter struct {
	Log *slog.Logger
}

// Emit logs the event name and payload.
func (l *LogEmitter) Emit(event string, payload any) {
	log := l.Log
	if log == nil {
		log = slog.Default()
	}
	log.Debug("event", "name", event, "payload", payload)
}

// RecordedEvent is one event captured by a [Recorder].
type RecordedEvent struct {
	Event   string
	Payload any
}

// Recorder is an Emitter that stores every event for later inspection.
// Safe for concurrent use; intended for tests.
type Recorder struct {
	mu     sync.Mutex
	events []RecordedEvent
}

// Emit records the event.
func (r *Recorder) Emit(event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, RecordedEvent{Event: event, Payload: payload})
}

// Events returns a copy of all recorded events in emission order.
func (r *Recorder) Events() []RecordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RecordedEvent, len(r.events))
	copy(out, r.events)
	return out
}

// ByName returns the recorded events with the given name.
func (r *Recorder) ByName(event string) []RecordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []RecordedEvent
	for _, e := range r.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

// Reset clears all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

var (
	_ Emitter = (Multi)(nil)
	_ Emitter = (*LogEmitter)(nil)
	_ Emitter = (*Recorder)(nil)
)
