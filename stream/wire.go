package stream

import (
	"github.com/hupe1980/paymesh/core"
	"github.com/hupe1980/paymesh/tool"
)

// Wire frame types as they appear in the "type" field.
const (
	TypeMessage  = "message"
	TypeToken    = "token"
	TypeToolCall = "tool_call"
	TypeHandoff  = "handoff"
	TypeDone     = "done"
	TypeError    = "error"
)

// WireEvent is one frame of the public chat stream. Only the fields
// matching Type are populated; everything else is omitted from JSON.
type WireEvent struct {
	Type string `json:"type"`

	// message and token frames
	Content string `json:"content,omitempty"`
	Agent   string `json:"agent,omitempty"`

	// tool_call frames
	ToolName        string         `json:"tool_name,omitempty"`
	ToolDisplayName string         `json:"tool_display_name,omitempty"`
	Status          string         `json:"status,omitempty"`
	Arguments       map[string]any `json:"arguments,omitempty"`
	Output          any            `json:"output,omitempty"`
	Error           string         `json:"error,omitempty"`

	// handoff frames
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`

	// error frames
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message,omitempty"`
}

// Encode maps an internal event to its wire frame. The second return is
// false for events with no wire representation: the echoed user message
// and transfer tool calls, which clients observe as handoff frames
// instead.
func Encode(ev core.Event) (WireEvent, bool) {
	switch ev.Type {
	case core.EventMessage:
		if ev.Agent == "" || ev.Agent == "user" {
			return WireEvent{}, false
		}
		return WireEvent{Type: TypeMessage, Content: ev.Content, Agent: ev.Agent}, true

	case core.EventToken:
		return WireEvent{Type: TypeToken, Content: ev.Content, Agent: ev.Agent}, true

	case core.EventToolCall:
		if ev.Tool == nil || tool.IsHandoff(ev.Tool.Name) {
			return WireEvent{}, false
		}
		w := WireEvent{
			Type:            TypeToolCall,
			Agent:           ev.Agent,
			ToolName:        ev.Tool.Name,
			ToolDisplayName: ev.Tool.DisplayName,
			Status:          string(ev.Tool.Status),
		}
		if len(ev.Tool.Args) > 0 {
			w.Arguments = ev.Tool.Args
		}
		switch ev.Tool.Status {
		case core.ToolCompleted:
			w.Output = ev.Tool.Result
		case core.ToolFailed:
			w.Error = ev.Tool.Error
		}
		return w, true

	case core.EventHandoff:
		return WireEvent{Type: TypeHandoff, From: ev.From, To: ev.To}, true

	case core.EventDone:
		return WireEvent{Type: TypeDone}, true

	case core.EventError:
		return WireEvent{Type: TypeError, Kind: string(ev.ErrKind), Message: ev.ErrMessage}, true
	}

	return WireEvent{}, false
}
