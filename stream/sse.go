package stream

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/hupe1980/paymesh/core"
)

// SSEWriter frames wire events as server-sent events, flushing after
// every frame so clients observe progress in real time. Not safe for
// concurrent use; one writer serves one response.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter prepares the response for event streaming. It fails when
// the underlying writer cannot flush, since an unflushable stream would
// buffer until the turn ends and defeat streaming entirely.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, core.Errorf(core.KindInternal, "response writer does not support streaming")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	return &SSEWriter{w: w, flusher: flusher}, nil
}

// WriteEvent encodes and writes one internal event. Events without a
// wire representation are dropped.
func (s *SSEWriter) WriteEvent(ev core.Event) error {
	frame, ok := Encode(ev)
	if !ok {
		return nil
	}
	return s.WriteFrame(frame)
}

// WriteFrame writes an already encoded frame as `data: <json>\n\n`.
func (s *SSEWriter) WriteFrame(frame WireEvent) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return core.WrapError(core.KindInternal, err, "failed to encode wire frame")
	}

	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()

	return nil
}

// WriteError emits a terminal error frame for failures that arise
// outside the runner's own event stream (for example a rejected turn).
func (s *SSEWriter) WriteError(err error) error {
	return s.WriteFrame(WireEvent{
		Type:    TypeError,
		Kind:    string(core.KindOf(err)),
		Message: core.MessageOf(err),
	})
}
