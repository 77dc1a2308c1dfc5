package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"ffexec/internal/logging"
	"ffexec/internal/transcode"
)

// statusClientClosedRequest is the nginx convention for a client that went
// away before the response was ready.
const statusClientClosedRequest = 499

// statusForKind maps a transcode error kind to an HTTP status.
func statusForKind(kind string) int {
	switch kind {
	case transcode.KindInvalidCommand:
		return http.StatusBadRequest
	case transcode.KindInitialization, transcode.KindUnavailable:
		return http.StatusServiceUnavailable
	case transcode.KindExecution:
		return http.StatusUnprocessableEntity
	case transcode.KindContractViolation:
		return http.StatusBadGateway
	case transcode.KindCanceled:
		return statusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, kind, message string) {
	s.writeJSON(w, status, ErrorResponse{Error: message, Kind: kind})
}

// writeTranscodeError classifies err and writes it.
func (s *Server) writeTranscodeError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		s.writeError(w, http.StatusRequestEntityTooLarge, transcode.KindInvalidCommand,
			"input exceeds "+strconv.FormatInt(tooLarge.Limit, 10)+" bytes")
		return
	}
	kind := transcode.Kind(err)
	s.writeError(w, statusForKind(kind), kind, err.Error())
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
