package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/voxcoach/voxcoach/internal/coach"
	"github.com/voxcoach/voxcoach/internal/domain"
)

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// ErrorResponse is the JSON body for failed requests. Message stays
// generic for server faults so internals never leak to callers.
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Version: s.version})
}

// handleCoach accepts a transcribed utterance and returns the assistant
// turn. Replies are per-call state and must never be cached by proxies.
func (s *Server) handleCoach(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")

	var req domain.TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	turn, err := s.coach.Respond(r.Context(), req)
	if err != nil {
		if errors.Is(err, coach.ErrEmptyTranscript) {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "transcript is required"})
			return
		}
		s.log.Error().Err(err).Str("key", req.Key()).Msg("coach request failed")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, turn)
}

// handleNotFound returns a 404 for unknown routes.
func handleNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	json.NewEncoder(w).Encode(map[string]string{
		"error": "not found",
		"path":  r.URL.Path,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
