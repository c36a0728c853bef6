package server

import (
	"encoding/json"
	"net/http"

	"github.com/hupe1980/paymesh/core"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// statusForKind maps the error taxonomy onto HTTP statuses. Kinds that
// only arise mid-turn travel the event stream instead and fall through
// to 500 here.
func statusForKind(kind core.ErrorKind) int {
	switch kind {
	case core.KindValidation:
		return http.StatusBadRequest
	case core.KindSessionNotFound:
		return http.StatusNotFound
	case core.KindSessionExpired:
		return http.StatusGone
	case core.KindCapacity:
		return http.StatusServiceUnavailable
	case core.KindConcurrentTurn:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := core.KindOf(err)

	s.writeJSON(w, statusForKind(kind), errorBody{
		Error: errorDetail{
			Kind:    string(kind),
			Message: core.MessageOf(err),
		},
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("server.response.encode_failed", "error", err.Error())
	}
}
