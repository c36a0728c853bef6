package stream

import (
	"time"

	"github.com/hupe1980/paymesh/core"
	"github.com/hupe1980/paymesh/tool"
)

// ToolCallSummary condenses one tool invocation for the aggregate
// reply. DurationMs spans the calling frame to its completed or failed
// counterpart.
type ToolCallSummary struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name,omitempty"`
	Agent       string `json:"agent,omitempty"`
	Status      string `json:"status"`
	DurationMs  int64  `json:"duration_ms"`
	Error       string `json:"error,omitempty"`
}

// HandoffStep records one control transfer in turn order.
type HandoffStep struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// WireError mirrors the terminal error frame for the aggregate reply.
type WireError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Aggregate is the buffered outcome of one turn for non-streaming
// chat callers: the final text plus a summary of what happened along
// the way.
type Aggregate struct {
	SessionID string            `json:"session_id"`
	TurnID    string            `json:"turn_id"`
	Agent     string            `json:"agent,omitempty"`
	Content   string            `json:"content"`
	ToolCalls []ToolCallSummary `json:"tool_calls,omitempty"`
	Handoffs  []HandoffStep     `json:"handoffs,omitempty"`
	Error     *WireError        `json:"error,omitempty"`
}

// Collect drains a turn's channels into an Aggregate. It returns when
// both channels are closed, which the runner guarantees happens after
// the terminal event.
func Collect(sessionID, turnID string, events <-chan core.Event, errs <-chan error) Aggregate {
	agg := Aggregate{SessionID: sessionID, TurnID: turnID}

	pending := make(map[string]int)
	started := make(map[string]time.Time)

	for events != nil || errs != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			collectEvent(&agg, ev, pending, started)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil && agg.Error == nil {
				agg.Error = &WireError{Kind: string(core.KindOf(err)), Message: core.MessageOf(err)}
			}
		}
	}

	return agg
}

func collectEvent(agg *Aggregate, ev core.Event, pending map[string]int, started map[string]time.Time) {
	switch ev.Type {
	case core.EventMessage:
		if ev.Agent == "" || ev.Agent == "user" {
			return
		}
		agg.Agent = ev.Agent
		agg.Content = ev.Content

	case core.EventToolCall:
		if ev.Tool == nil || tool.IsHandoff(ev.Tool.Name) {
			return
		}
		call := ev.Tool
		if call.Status == core.ToolCalling {
			pending[call.CallID] = len(agg.ToolCalls)
			started[call.CallID] = ev.Timestamp
			agg.ToolCalls = append(agg.ToolCalls, ToolCallSummary{
				Name:        call.Name,
				DisplayName: call.DisplayName,
				Agent:       ev.Agent,
				Status:      string(call.Status),
			})
			return
		}
		idx, ok := pending[call.CallID]
		if !ok {
			agg.ToolCalls = append(agg.ToolCalls, ToolCallSummary{
				Name:        call.Name,
				DisplayName: call.DisplayName,
				Agent:       ev.Agent,
				Status:      string(call.Status),
				Error:       call.Error,
			})
			return
		}
		agg.ToolCalls[idx].Status = string(call.Status)
		agg.ToolCalls[idx].Error = call.Error
		if start, ok := started[call.CallID]; ok {
			agg.ToolCalls[idx].DurationMs = ev.Timestamp.Sub(start).Milliseconds()
		}

	case core.EventHandoff:
		agg.Handoffs = append(agg.Handoffs, HandoffStep{From: ev.From, To: ev.To})

	case core.EventError:
		agg.Error = &WireError{Kind: string(ev.ErrKind), Message: ev.ErrMessage}
	}
}
