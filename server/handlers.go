package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/hupe1980/paymesh/core"
	"github.com/hupe1980/paymesh/stream"
)

// chatRequest is the turn submission payload. A missing session id
// allocates a fresh session, optionally seeded with prior messages.
// Streaming is the default; stream=false returns a buffered aggregate.
type chatRequest struct {
	SessionID string        `json:"session_id"`
	Message   string        `json:"message"`
	Messages  []chatMessage `json:"messages,omitempty"`
	Stream    *bool         `json:"stream,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, core.Errorf(core.KindValidation, "invalid request body: %v", err))
		return
	}

	if strings.TrimSpace(req.Message) == "" {
		s.writeError(w, core.Errorf(core.KindValidation, "message is required"))
		return
	}

	streaming := req.Stream == nil || *req.Stream

	if streaming {
		if _, ok := w.(http.Flusher); !ok {
			s.writeError(w, core.Errorf(core.KindInternal, "response writer does not support streaming"))
			return
		}
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sess, err := s.mesh.NewSession(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}

		sessionID = sess.ID
		seedHistory(sess, req.Messages)
	}

	if streaming {
		s.streamChat(w, r, sessionID, req.Message)
		return
	}

	agg, err := s.mesh.ChatSync(r.Context(), sessionID, req.Message)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, agg)
}

// streamChat runs the turn and forwards its events as SSE frames. When
// the client goes away mid-stream the remaining events are drained so
// the turn goroutine can finish.
func (s *Server) streamChat(w http.ResponseWriter, r *http.Request, sessionID, message string) {
	turnID, events, errs, err := s.mesh.Chat(r.Context(), sessionID, message)
	if err != nil {
		s.writeError(w, err)
		return
	}

	sw, err := stream.NewSSEWriter(w)
	if err != nil {
		_ = s.mesh.Cancel(turnID)
		s.drain(events, errs)
		s.writeError(w, err)
		return
	}

	writeFailed := false
	for events != nil || errs != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if writeFailed {
				continue
			}
			if werr := sw.WriteEvent(ev); werr != nil {
				writeFailed = true
				s.logger.Debug("server.chat.stream_write_failed",
					"session_id", sessionID,
					"turn_id", turnID,
					"error", werr.Error(),
				)
			}
		case _, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			// Turn failures already arrive as terminal error events.
		}
	}
}

func (s *Server) drain(events <-chan core.Event, errs <-chan error) {
	go func() {
		for events != nil || errs != nil {
			select {
			case _, ok := <-events:
				if !ok {
					events = nil
				}
			case _, ok := <-errs:
				if !ok {
					errs = nil
				}
			}
		}
	}()
}

// seedHistory preloads a freshly created session with prior
// conversation turns supplied by the caller.
func seedHistory(sess *core.Session, messages []chatMessage) {
	for _, msg := range messages {
		if msg.Content == "" {
			continue
		}
		switch msg.Role {
		case "user":
			sess.Append(core.NewUserMessage(msg.Content))
		case "assistant":
			sess.Append(core.NewAssistantMessage("", msg.Content))
		}
	}
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.mesh.NewSession(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]any{
		"session": sess.Snapshot(),
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"sessions": s.mesh.Sessions(),
		"stats":    s.mesh.SessionStats(),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	sess, err := s.mesh.Session(id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"session": sess.Snapshot(),
		"history": sess.History(),
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	s.mesh.DeleteSession(mux.Vars(r)["id"])
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCleanupSessions(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"removed": s.mesh.Sweep(),
	})
}

func (s *Server) handleSessionStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.mesh.SessionStats())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	stats := s.mesh.SessionStats()
	cfg := s.mesh.Config()

	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"service": "paymesh",
		"version": s.version,
		"sessions": map[string]any{
			"active": stats.Active,
			"max":    stats.MaxSessions,
		},
		"limits": map[string]any{
			"max_hops":     cfg.Runner.MaxHops,
			"tool_timeout": cfg.Runner.ToolTimeout.String(),
			"idle_timeout": cfg.Sessions.IdleTimeout.String(),
		},
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.mesh.Status())
}
