package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/Rin0913/devicewatch/internal/device"
	"github.com/Rin0913/devicewatch/internal/label"
	"github.com/Rin0913/devicewatch/internal/status"
)

// Monitor is the part of the liveness engine the API talks to.
type Monitor interface {
	Snapshot() map[status.DeviceID]status.Record
	NotifyDeviceRemoved(id status.DeviceID)
}

// Checkers tells which probe methods a device may ask for.
type Checkers interface {
	HasChecker(method string) bool
}

type Server struct {
	deviceRepo device.Repository
	labelRepo  label.Repository
	monitor    Monitor
	checkers   Checkers
	log        zerolog.Logger
}

func NewServer(deviceRepo device.Repository, labelRepo label.Repository, monitor Monitor, checkers Checkers, log zerolog.Logger) *Server {
	return &Server{
		deviceRepo: deviceRepo,
		labelRepo:  labelRepo,
		monitor:    monitor,
		checkers:   checkers,
		log:        log,
	}
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	s.registerHealthRoutes(mux)
	s.registerStatusRoutes(mux)
	s.registerDeviceRoutes(mux)
	s.registerLabelRoutes(mux)
}

// Handler returns the full API with CORS applied for allowedOrigins.
func (s *Server) Handler(allowedOrigins []string) http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(mux)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
