package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"ffexec/internal/logging"
	"ffexec/internal/transcode"
)

const (
	headerJobID      = "X-Job-Id"
	headerDurationMS = "X-Duration-Ms"

	// multipartMemory is held in memory before parts spill to temp files.
	multipartMemory = 32 << 20
	// multipartOverhead covers form fields and part headers on top of the
	// input limit.
	multipartOverhead = 1 << 20
)

func (s *Server) handleTranscode(w http.ResponseWriter, r *http.Request) {
	if s.maxInput > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxInput+multipartOverhead)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeTranscodeError(w, err)
			return
		}
		s.writeError(w, http.StatusBadRequest, transcode.KindInvalidCommand, "invalid multipart body")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	rawCommand := r.FormValue("command")
	if rawCommand == "" {
		s.writeError(w, http.StatusBadRequest, transcode.KindInvalidCommand, "command is required")
		return
	}
	var tokens []string
	if err := json.Unmarshal([]byte(rawCommand), &tokens); err != nil {
		s.writeError(w, http.StatusBadRequest, transcode.KindInvalidCommand, "command must be a JSON array of strings")
		return
	}

	file, header, err := r.FormFile("input")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, transcode.KindInvalidCommand, "input file is required")
		return
	}
	defer file.Close()
	if s.maxInput > 0 && header.Size > s.maxInput {
		s.writeError(w, http.StatusRequestEntityTooLarge, transcode.KindInvalidCommand,
			fmt.Sprintf("input exceeds %d bytes", s.maxInput))
		return
	}

	res, err := s.adapter.TranscodeReader(r.Context(), tokens, file, r.FormValue("ext"))
	if res.JobID != "" {
		w.Header().Set(headerJobID, res.JobID)
		w.Header().Set(headerDurationMS, strconv.FormatInt(res.Duration.Milliseconds(), 10))
	}
	if err != nil {
		s.writeTranscodeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Output)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.Output); err != nil {
		s.logger.Warn("write transcode response", logging.Error(err))
	}
}
