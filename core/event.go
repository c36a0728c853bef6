package core

import (
	"time"

	"github.com/google/uuid"
)

// EventType discriminates the payload of an Event.
type EventType string

const (
	// EventMessage carries a complete text message from an agent.
	EventMessage EventType = "message"
	// EventToken carries one streamed text fragment. A run of token
	// events is always followed by the message event holding the full
	// text they compose.
	EventToken EventType = "token"
	// EventToolCall tracks one tool invocation through its lifecycle
	// (calling, then exactly one of completed or failed).
	EventToolCall EventType = "tool_call"
	// EventHandoff records a control transfer along a declared graph edge.
	EventHandoff EventType = "handoff"
	// EventDone terminates a successful turn. Emitted exactly once.
	EventDone EventType = "done"
	// EventError terminates a failed turn. Emitted exactly once, carrying
	// the taxonomy kind and message.
	EventError EventType = "error"
)

// ToolCallStatus tracks the lifecycle of a single tool invocation.
type ToolCallStatus string

const (
	ToolCalling   ToolCallStatus = "calling"
	ToolCompleted ToolCallStatus = "completed"
	ToolFailed    ToolCallStatus = "failed"
)

// ToolCall is the payload of a tool_call event. CallID correlates the
// calling frame with its completed or failed counterpart; both carry the
// same id, name and args.
type ToolCall struct {
	CallID      string         `json:"call_id"`
	Name        string         `json:"name"`
	DisplayName string         `json:"display_name,omitempty"`
	Args        map[string]any `json:"args,omitempty"`
	Status      ToolCallStatus `json:"status"`
	Result      any            `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// Event is the ordered unit of turn progress flowing from the runner to
// consumers. After emission an Event is immutable. Events for one
// session are observed in exactly the order the runner produced them;
// no cross-session ordering is implied.
//
// Only the fields matching Type are populated: Content for message and
// token, Tool for tool_call, From/To for handoff, ErrKind/ErrMessage
// for error.
type Event struct {
	ID        string    `json:"id"`
	TurnID    string    `json:"turn_id"`
	Agent     string    `json:"agent,omitempty"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	Content    string    `json:"content,omitempty"`
	Tool       *ToolCall `json:"tool,omitempty"`
	From       string    `json:"from,omitempty"`
	To         string    `json:"to,omitempty"`
	ErrKind    ErrorKind `json:"err_kind,omitempty"`
	ErrMessage string    `json:"err_message,omitempty"`
}

// NewID generates a unique identifier for events, turns and tool-call
// correlation.
func NewID() string { return uuid.NewString() }

// NewEvent creates a bare event of the given type. Prefer the typed
// constructors below.
func NewEvent(turnID, agent string, typ EventType) Event {
	return Event{
		ID:        NewID(),
		TurnID:    turnID,
		Agent:     agent,
		Type:      typ,
		Timestamp: time.Now().UTC(),
	}
}

// NewMessageEvent creates a complete-message event authored by agent.
func NewMessageEvent(turnID, agent, content string) Event {
	e := NewEvent(turnID, agent, EventMessage)
	e.Content = content
	return e
}

// NewTokenEvent creates a streamed text fragment event authored by agent.
func NewTokenEvent(turnID, agent, content string) Event {
	e := NewEvent(turnID, agent, EventToken)
	e.Content = content
	return e
}

// NewToolCallEvent creates a tool lifecycle event. The same ToolCall
// value (with updated Status/Result/Error) is used for the calling and
// completed/failed frames so CallID correlation holds.
func NewToolCallEvent(turnID, agent string, call ToolCall) Event {
	e := NewEvent(turnID, agent, EventToolCall)
	e.Tool = &call
	return e
}

// NewHandoffEvent records a control transfer from one role to another.
func NewHandoffEvent(turnID, from, to string) Event {
	e := NewEvent(turnID, from, EventHandoff)
	e.From = from
	e.To = to
	return e
}

// NewDoneEvent creates the terminal success event for a turn.
func NewDoneEvent(turnID string) Event {
	return NewEvent(turnID, "", EventDone)
}

// NewErrorEvent creates the terminal failure event for a turn, deriving
// the wire kind from the error's taxonomy classification. The message
// drops the kind prefix since the kind travels in its own field.
func NewErrorEvent(turnID string, err error) Event {
	e := NewEvent(turnID, "", EventError)
	e.ErrKind = KindOf(err)
	e.ErrMessage = MessageOf(err)
	return e
}

// IsTerminal reports whether the event closes its turn's stream.
func (e Event) IsTerminal() bool {
	return e.Type == EventDone || e.Type == EventError
}
