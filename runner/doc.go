// Package runner implements the orchestration loop.
//
// The Runner drives exactly one user turn against a session: it admits
// the turn through the session registry (rejecting concurrent turns),
// then walks the agent graph hop by hop (model call, tool execution in
// request order, optional handoff along a declared edge) while
// streaming ordered events to the caller. Every turn ends with exactly
// one terminal event, done or error, before the channels close, and
// the session returns to idle whatever happened in between.
//
// Failure policy: one failed tool call per turn is folded back into
// the conversation so the active role can react; a second failure ends
// the turn. Capability and handoff violations end the turn immediately
// because they indicate a misconfigured graph or a misbehaving model,
// not a recoverable condition.
//
// See runner.go for the operational implementation details.
package runner
