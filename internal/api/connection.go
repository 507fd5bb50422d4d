package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/nerrad567/mqtt-voice/internal/infrastructure/config"
	"github.com/nerrad567/mqtt-voice/internal/session"
)

// ConnectionRequest is the body of PUT /connection. Topics is a
// comma-separated list; an empty client_id gets a generated one.
type ConnectionRequest struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Scheme   string `json:"scheme"`
	Topics   string `json:"topics"`
	ClientID string `json:"client_id"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// toConfig converts the request into a session configuration.
func (req ConnectionRequest) toConfig() (session.ConnectionConfig, error) {
	scheme, err := session.ParseScheme(req.Scheme)
	if err != nil {
		return session.ConnectionConfig{}, err
	}

	clientID := strings.TrimSpace(req.ClientID)
	if clientID == "" {
		clientID = config.GenerateClientID()
	}

	return session.ConnectionConfig{
		Host:     req.Host,
		Port:     req.Port,
		Scheme:   scheme,
		ClientID: clientID,
		Topics:   session.ParseTopics(req.Topics),
		Username: req.Username,
		Password: req.Password,
	}, nil
}

// handleStartConnection starts a session with the posted parameters,
// replacing any current one. 202: the connect runs in the background and
// its progress shows up on /status and the event stream.
func (s *Server) handleStartConnection(w http.ResponseWriter, r *http.Request) {
	var req ConnectionRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeBadRequest(w, r, "invalid JSON body")
		return
	}

	cfg, err := req.toConfig()
	if err != nil {
		writeValidationError(w, r, err.Error())
		return
	}

	if err := s.session.Start(cfg); err != nil {
		if errors.Is(err, session.ErrClosed) {
			writeUnavailable(w, r, err.Error())
			return
		}
		writeValidationError(w, r, strings.ReplaceAll(err.Error(), "\n", "; "))
		return
	}

	s.logger.Info("connection requested via API",
		"broker", cfg.BrokerURL(),
		"topics", cfg.Topics,
		"request_id", requestID(r.Context()),
	)
	writeJSON(w, http.StatusAccepted, s.statusResponse())
}

// handleStopConnection stops the session.
func (s *Server) handleStopConnection(w http.ResponseWriter, r *http.Request) {
	s.session.Stop()
	s.logger.Info("disconnect requested via API", "request_id", requestID(r.Context()))
	writeJSON(w, http.StatusAccepted, s.statusResponse())
}
