// Package stream maps internal runner events onto the public wire
// format and implements the two delivery modes of the chat endpoint:
// per-frame server-sent events and a buffered aggregate for
// non-streaming callers. Both consume the same event/error channel pair
// a Runner.Run returns, so the wire view is a pure projection of the
// internal stream.
package stream
