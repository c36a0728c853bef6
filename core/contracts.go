package core

import (
	"context"
	"time"
)

// Runner drives exactly one user turn against a session, producing an
// ordered event stream. The returned turn id identifies the execution;
// the event channel closes after the terminal done/error event; the
// error channel carries asynchronous failures. A non-nil error return
// means the turn was rejected before any event was produced (unknown
// session, concurrent turn, expired session).
type Runner interface {
	Run(ctx context.Context, sessionID, message string) (string, <-chan Event, <-chan error, error)
}

// SessionRegistry is the slice of the registry contract the runner
// needs: exclusive turn admission and release. BeginTurn atomically
// moves the session to running (rejecting a concurrent turn) and
// EndTurn returns it to idle.
type SessionRegistry interface {
	BeginTurn(id string) (*Session, error)
	EndTurn(id string)
}

// ToolInvoker is the uniform capability boundary to every external
// tool. Invoke must be safe to call concurrently across sessions. The
// supported name set is fixed after construction; graph binding
// verifies every declared capability against it so unknown names are a
// configuration error, never a runtime surprise.
type ToolInvoker interface {
	Invoke(ctx context.Context, name string, args map[string]any, timeout time.Duration) (any, error)
	Has(name string) bool
	Names() []string
	DisplayName(name string) string
}
