package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/nerrad567/mqtt-voice/internal/journal"
	"github.com/nerrad567/mqtt-voice/internal/notify"
)

// handleListEvents returns journal entries, newest first.
//
// Query parameters: limit, offset, kind (status|message|command).
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeUnavailable(w, r, "event journal is disabled")
		return
	}

	q := r.URL.Query()
	filter := journal.Filter{Kind: notify.Kind(q.Get("kind"))}

	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeBadRequest(w, r, "limit must be an integer")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeBadRequest(w, r, "offset must be an integer")
		return
	}

	result, err := s.journal.List(r.Context(), filter)
	if err != nil {
		if errors.Is(err, journal.ErrInvalidKind) {
			writeBadRequest(w, r, err.Error())
			return
		}
		s.logger.Error("listing events failed", "error", err, "request_id", requestID(r.Context()))
		writeInternalError(w, r, "failed to list events")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// intParam parses an optional integer query parameter; empty is zero.
func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
