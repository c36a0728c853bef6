package core

import (
	"sync"
	"time"
)

// SessionStatus is the lifecycle state of a Session.
type SessionStatus string

const (
	// StatusActive marks a freshly created session that has not run a turn.
	StatusActive SessionStatus = "active"
	// StatusRunning marks a session with a turn in flight. Exactly one
	// runner may hold a session in this state.
	StatusRunning SessionStatus = "running"
	// StatusIdle marks a session between turns.
	StatusIdle SessionStatus = "idle"
	// StatusExpired marks a session past its idle timeout, set by the
	// registry immediately before removal.
	StatusExpired SessionStatus = "expired"
)

// Session is the unit of conversational continuity: append-only history,
// the role currently holding control, lifecycle status and activity
// timestamps. It is safe for concurrent access.
//
// Sessions are owned by the registry. The transition methods (Begin,
// End, Expire) exist for the registry's exclusive use; everything else
// may be read concurrently. History is mutated only by the runner while
// the session is running, which the registry enforces is exclusive.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu           sync.RWMutex
	lastActiveAt time.Time
	currentAgent string
	status       SessionStatus
	history      []Message
}

// NewSession creates an active session with the given id.
func NewSession(id string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:           id,
		CreatedAt:    now,
		lastActiveAt: now,
		status:       StatusActive,
	}
}

// Status returns the current lifecycle state.
func (s *Session) Status() SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// LastActiveAt returns the time of the last completed activity.
func (s *Session) LastActiveAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActiveAt
}

// CurrentAgent returns the role currently holding control, or the empty
// string before the first turn.
func (s *Session) CurrentAgent() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentAgent
}

// SetCurrentAgent records the role holding control after a transition.
func (s *Session) SetCurrentAgent(role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentAgent = role
}

// Touch refreshes the activity timestamp.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActiveAt = time.Now().UTC()
}

// Append adds a message to history. History is append-only; there is no
// removal or reordering operation.
func (s *Session) Append(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, msg)
	s.lastActiveAt = time.Now().UTC()
}

// History returns a copy of the full message sequence; callers may
// mutate the returned slice without affecting the session.
func (s *Session) History() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.history))
	copy(out, s.history)
	return out
}

// Len returns the number of history messages.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}

// Begin atomically transitions active/idle to running. It returns false
// if a turn is already in flight. Registry use only.
func (s *Session) Begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusRunning {
		return false
	}
	s.status = StatusRunning
	s.lastActiveAt = time.Now().UTC()
	return true
}

// End transitions running back to idle and refreshes the activity
// timestamp. Registry use only.
func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusRunning {
		s.status = StatusIdle
	}
	s.lastActiveAt = time.Now().UTC()
}

// Expire transitions a non-running session to expired. It returns false
// for running sessions, which must never be expired mid-turn. Registry
// use only.
func (s *Session) Expire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusRunning {
		return false
	}
	s.status = StatusExpired
	return true
}

// IdleFor reports whether the session has been inactive longer than d
// and is not currently running.
func (s *Session) IdleFor(d time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status != StatusRunning && time.Since(s.lastActiveAt) > d
}

// SessionSnapshot is a point-in-time summary safe to hand to transports.
type SessionSnapshot struct {
	ID           string        `json:"id"`
	Status       SessionStatus `json:"status"`
	CurrentAgent string        `json:"current_agent,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	LastActiveAt time.Time     `json:"last_active_at"`
	Messages     int           `json:"messages"`
}

// Snapshot captures a consistent summary of the session.
func (s *Session) Snapshot() SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SessionSnapshot{
		ID:           s.ID,
		Status:       s.status,
		CurrentAgent: s.currentAgent,
		CreatedAt:    s.CreatedAt,
		LastActiveAt: s.lastActiveAt,
		Messages:     len(s.history),
	}
}
