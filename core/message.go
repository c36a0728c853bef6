package core

import "time"

// MessageRole identifies the speaker of a history entry.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// Message is one immutable entry of session history. Order of appended
// messages equals causal turn order; messages are never reordered or
// deleted. Agent carries the producing role identifier and is empty for
// user messages.
type Message struct {
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Agent     string      `json:"agent,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewUserMessage creates a history entry for caller input.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content, Timestamp: time.Now().UTC()}
}

// NewAssistantMessage creates a history entry for text produced by the
// named agent role.
func NewAssistantMessage(agent, content string) Message {
	return Message{Role: RoleAssistant, Content: content, Agent: agent, Timestamp: time.Now().UTC()}
}

// NewToolMessage creates a history entry for a tool result observed by
// the named agent role.
func NewToolMessage(agent, content string) Message {
	return Message{Role: RoleTool, Content: content, Agent: agent, Timestamp: time.Now().UTC()}
}
