package api

import (
	"net/http"

	"github.com/nerrad567/mqtt-voice/internal/session"
	"github.com/nerrad567/mqtt-voice/internal/speech"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Session session.Snapshot `json:"session"`
	Speech  *speech.Stats    `json:"speech,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Version: s.version})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.statusResponse())
}

func (s *Server) statusResponse() StatusResponse {
	resp := StatusResponse{Session: s.session.Status()}
	if s.speech != nil {
		stats := s.speech.Stats()
		resp.Speech = &stats
	}
	return resp
}
