package api

import "net/http"

// handleHealthz always answers 200. The engine loads on first use, so an
// idle engine is not a failure.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, Health{
		Status:         "ok",
		Engine:         s.adapter.EngineState().String(),
		Pending:        s.adapter.Pending(),
		Busy:           s.adapter.Busy(),
		HistoryEnabled: s.history != nil,
	})
}
