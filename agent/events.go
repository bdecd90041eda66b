package agent

import (
	"sync"
	"time"

	"github.com/keel-agent/keel/logging"
)

// EventKind identifies the type of a turn event.
type EventKind string

const (
	// EventAssistantStarted fires when a provider response has been
	// received and its handling begins.
	EventAssistantStarted EventKind = "assistant_message_started"
	// EventAssistantText carries an increment of assistant text.
	EventAssistantText EventKind = "assistant_text"
	// EventAssistantDone fires once the assistant message is fully
	// handled and recorded.
	EventAssistantDone EventKind = "assistant_message_finalized"
	// EventProgress carries a transient tool status update.
	EventProgress EventKind = "progress_update"
	// EventToolRequested fires for each tool call the model issued.
	EventToolRequested EventKind = "tool_requested"
	// EventToolResult fires when a tool's result has been recorded.
	EventToolResult EventKind = "tool_result_acknowledged"
	// EventError is terminal: the turn ended on a fatal error.
	EventError EventKind = "error_occurred"
	// EventAborted is terminal: the turn was cancelled by the caller.
	EventAborted EventKind = "aborted"
	// EventTurnIdle is terminal: the turn completed and the engine is
	// ready for the next input.
	EventTurnIdle EventKind = "turn_idle"
)

// Event is a single observable occurrence during a turn. Data holds
// kind-specific payload fields.
type Event struct {
	Kind      EventKind      `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	SessionID string         `json:"session_id"`
	Data      map[string]any `json:"data,omitempty"`
}

// EventEmitter fans turn events out to a consumer channel. Emission
// never blocks the turn: when the consumer falls behind and the buffer
// fills, events are dropped with a warning.
type EventEmitter struct {
	mu     sync.Mutex
	events chan Event
	closed bool
}

const eventBufferSize = 256

// NewEventEmitter creates an emitter with a buffered event channel.
func NewEventEmitter() *EventEmitter {
	return &EventEmitter{events: make(chan Event, eventBufferSize)}
}

// Events returns the channel consumers receive events on. The channel
// is closed when the emitter is closed.
func (e *EventEmitter) Events() <-chan Event {
	return e.events
}

// Emit delivers an event to the consumer channel without blocking.
func (e *EventEmitter) Emit(sessionID string, kind EventKind, data map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	event := Event{
		Kind:      kind,
		Timestamp: time.Now(),
		SessionID: sessionID,
		Data:      data,
	}
	select {
	case e.events <- event:
	default:
		logging.Warn("event dropped, consumer too slow", "kind", kind)
	}
}

// Close closes the event channel. Safe to call more than once.
func (e *EventEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	close(e.events)
}
