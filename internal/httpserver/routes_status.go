package httpserver

import (
	"net/http"
)

// getStatus returns every tracked device keyed by id.
func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.Snapshot())
}

func (s *Server) registerStatusRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /status", s.getStatus)
}
