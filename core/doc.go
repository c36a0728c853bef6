// Package core contains the shared kernel of paymesh: the internal event
// model, immutable conversation messages, the session type owned by the
// registry, the per-turn execution contexts handed to agents and tools,
// the hop limiter, and the error taxonomy used across every component.
//
// Core intentionally has no dependencies on the orchestration layers
// above it. Components communicate through the types defined here so
// that the runner, the wire encoders and the transports never need to
// know about each other.
package core
