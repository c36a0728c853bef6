package core

import (
	"context"

	"github.com/hupe1980/paymesh/logging"
)

// RunContext carries the per-turn execution scope through the
// orchestration loop: the ambient cancellation context, identifiers, the
// session being driven, the event emission channel and the hop limiter.
//
// Events emitted through EmitEvent preserve production order; the send
// blocks when the consumer is slow (streaming backpressure) and aborts
// on context cancellation.
type RunContext struct {
	Context   context.Context
	SessionID string
	TurnID    string
	Session   *Session
	Emit      chan<- Event
	Hops      *HopLimiter
	Logger    logging.Logger
}

// NewRunContext constructs a RunContext for one turn.
func NewRunContext(
	ctx context.Context,
	sessionID, turnID string,
	sess *Session,
	emit chan<- Event,
	maxHops int,
	logger logging.Logger,
) *RunContext {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &RunContext{
		Context:   ctx,
		SessionID: sessionID,
		TurnID:    turnID,
		Session:   sess,
		Emit:      emit,
		Hops:      NewHopLimiter(maxHops),
		Logger:    logger,
	}
}

// Done returns a channel closed when the underlying context is cancelled.
func (rc *RunContext) Done() <-chan struct{} { return rc.Context.Done() }

// Err returns the cancellation error (if any) from the underlying context.
func (rc *RunContext) Err() error { return rc.Context.Err() }

// EmitEvent sends an event to the consumer, blocking until it is
// accepted or the context is cancelled.
func (rc *RunContext) EmitEvent(ev Event) error {
	select {
	case <-rc.Context.Done():
		return rc.Context.Err()
	case rc.Emit <- ev:
		return nil
	}
}

// ToolContext carries identifying and ambient state into a tool
// invocation: which session/turn/agent requested it and the correlation
// id of the requesting call. Tools treat it as read-only.
type ToolContext struct {
	ctx       context.Context
	SessionID string
	TurnID    string
	Agent     string
	CallID    string
	Logger    logging.Logger
}

// NewToolContext constructs the context handed to a tool's Call method.
func NewToolContext(ctx context.Context, sessionID, turnID, agent, callID string, logger logging.Logger) *ToolContext {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &ToolContext{
		ctx:       ctx,
		SessionID: sessionID,
		TurnID:    turnID,
		Agent:     agent,
		CallID:    callID,
		Logger:    logger,
	}
}

// Context returns the cancellation context bounding the invocation,
// including any per-call timeout the invoker applied.
func (tc *ToolContext) Context() context.Context {
	if tc.ctx == nil {
		return context.Background()
	}
	return tc.ctx
}
