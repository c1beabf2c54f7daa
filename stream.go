package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// EventKind identifies the kind of streaming event. The set is closed;
// consumers can switch exhaustively.
type EventKind string

const (
	// EventLog carries a progress note (stage started, iteration count).
	EventLog EventKind = "log"
	// EventToken carries an incremental chunk of assistant output.
	EventToken EventKind = "token"
	// EventAnswer carries the final answer text.
	EventAnswer EventKind = "answer"
	// EventSources carries the citations backing the answer.
	EventSources EventKind = "sources"
	// EventReport carries a structured stage artifact (test output, QA verdict).
	EventReport EventKind = "report"
	// EventDone terminates the stream. Exactly one per dispatch.
	EventDone EventKind = "done"
)

// Event is a typed element of a dispatch stream.
type Event struct {
	Kind EventKind `json:"kind"`
	// Text carries token, answer, and log content.
	Text string `json:"text,omitempty"`
	// Status and Reason are set on done events.
	Status Status `json:"status,omitempty"`
	Reason string `json:"reason,omitempty"`
	// Citations is set on sources events.
	Citations []Evidence `json:"citations,omitempty"`
	// Data carries report payloads.
	Data map[string]any `json:"data,omitempty"`
}

// EmitFunc receives events from an engine as a run progresses.
// Engines accept a nil EmitFunc to mean no streaming.
type EmitFunc func(Event)

// Stream is the consumer end of a dispatch: a pull iterator over the
// events of one run. The producer closes the stream after the done event;
// Close releases the run early and triggers cancellation.
type Stream struct {
	ch     chan Event
	cancel context.CancelFunc
}

// Next returns the next event. ok is false when the stream is exhausted
// or ctx is cancelled.
func (s *Stream) Next(ctx context.Context) (ev Event, ok bool) {
	select {
	case <-ctx.Done():
		return Event{}, false
	case ev, ok = <-s.ch:
		return ev, ok
	}
}

// Close abandons the stream and cancels the underlying run. Safe to call
// multiple times and after exhaustion.
func (s *Stream) Close() {
	s.cancel()
	// Drain so the producer's sends do not block until its cancel check.
	go func() {
		for range s.ch {
		}
	}()
}

// Emitter is the producer end of a Stream. It enforces the terminal
// contract: after a done event every further emit is dropped.
type Emitter struct {
	ctx  context.Context
	ch   chan<- Event
	done bool
}

// Emit sends ev unless the stream already terminated. Sends are dropped
// once the run context is cancelled; the dispatcher flushes the terminal
// cancelled event itself.
func (e *Emitter) Emit(ev Event) {
	if e.done {
		return
	}
	select {
	case <-e.ctx.Done():
		return
	case e.ch <- ev:
	}
	if ev.Kind == EventDone {
		e.done = true
	}
}

// Token is shorthand for emitting a token event.
func (e *Emitter) Token(text string) { e.Emit(Event{Kind: EventToken, Text: text}) }

// Log is shorthand for emitting a log event.
func (e *Emitter) Log(text string) { e.Emit(Event{Kind: EventLog, Text: text}) }

// ServeSSE writes the stream to w as Server-Sent Events, one SSE event
// per stream event, flushing after each write. Returns when the stream
// ends or ctx is cancelled.
func ServeSSE(ctx context.Context, w http.ResponseWriter, s *Stream) error {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, _ := w.(http.Flusher)
	for {
		ev, ok := s.Next(ctx)
		if !ok {
			return ctx.Err()
		}
		if err := WriteSSEEvent(w, ev); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		if ev.Kind == EventDone {
			return nil
		}
	}
}

// WriteSSEEvent writes a single event in SSE wire format.
func WriteSSEEvent(w http.ResponseWriter, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
	return err
}
