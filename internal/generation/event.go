package generation

import (
	"iter"
	"strings"

	"github.com/google/uuid"
)

// EventType names the kinds of stream event.
type EventType string

// Stream event types
const (
	EventToken    EventType = "token"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Event is one message on a generation stream. A well-formed stream is zero
// or more token events followed by exactly one complete or error event.
type Event struct {
	Type    EventType `json:"type"`
	Content string    `json:"content,omitempty"`
	TaskID  string    `json:"task_id,omitempty"`
	Message string    `json:"message,omitempty"`
}

// TokenEvent builds a token event.
func TokenEvent(content string) Event {
	return Event{Type: EventToken, Content: content}
}

// CompleteEvent builds the terminal success event.
func CompleteEvent(taskID uuid.UUID) Event {
	return Event{Type: EventComplete, TaskID: taskID.String()}
}

// ErrorEvent builds the terminal failure event.
func ErrorEvent(message string) Event {
	return Event{Type: EventError, Message: message}
}

// IsTerminal reports whether the event ends the stream.
func (e Event) IsTerminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}

// EventSequence is a lazy, finite, single-use sequence of events.
type EventSequence = iter.Seq[Event]

// StreamState is a reducer's position in a stream.
type StreamState int

// Stream states
const (
	StreamOpen StreamState = iota
	StreamDone
	StreamFailed
)

// Reducer folds stream events into accumulated content and a final outcome.
// Events after the terminal one are ignored. The zero value is ready to use;
// a Reducer must not be copied after the first Apply.
type Reducer struct {
	// OnToken, when set, sees every token as it is applied.
	OnToken func(string)

	state   StreamState
	content strings.Builder
	taskID  string
	message string
}

// Apply folds one event. It reports whether more events are expected.
func (r *Reducer) Apply(ev Event) bool {
	if r.state != StreamOpen {
		return false
	}
	switch ev.Type {
	case EventToken:
		r.content.WriteString(ev.Content)
		if r.OnToken != nil {
			r.OnToken(ev.Content)
		}
		return true
	case EventComplete:
		r.state = StreamDone
		r.taskID = ev.TaskID
	case EventError:
		r.state = StreamFailed
		r.message = ev.Message
		if r.message == "" {
			r.message = "unknown error"
		}
	default:
		return true
	}
	return false
}

// Consume applies events until the terminal one and returns the final
// state. A sequence that ends early leaves the reducer in StreamOpen.
func (r *Reducer) Consume(events EventSequence) StreamState {
	for ev := range events {
		if !r.Apply(ev) {
			break
		}
	}
	return r.state
}

// State returns the current state.
func (r *Reducer) State() StreamState { return r.state }

// Content returns the tokens applied so far.
func (r *Reducer) Content() string { return r.content.String() }

// TaskID returns the id carried by the complete event.
func (r *Reducer) TaskID() string { return r.taskID }

// Message returns the error event's message once the stream failed.
func (r *Reducer) Message() string { return r.message }
