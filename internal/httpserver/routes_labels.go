package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/Rin0913/devicewatch/internal/device"
	"github.com/Rin0913/devicewatch/internal/label"
)

type addLabelRequest struct {
	Name string `json:"name"`
}

func labelField(kind label.Kind) device.LabelField {
	if kind == label.Room {
		return device.RoomField
	}
	return device.TagField
}

func (s *Server) kindFromPath(w http.ResponseWriter, r *http.Request) (label.Kind, bool) {
	kind, err := label.ParseKind(r.PathValue("kind"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Invalid item type")
		return "", false
	}
	return kind, true
}

func (s *Server) listLabels(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.kindFromPath(w, r)
	if !ok {
		return
	}

	labels, err := s.labelRepo.List(r.Context(), kind)
	if err != nil {
		s.log.Error().Err(err).Str("kind", string(kind)).Msg("failed to list labels")
		writeError(w, http.StatusInternalServerError, "failed to list items")
		return
	}

	writeJSON(w, http.StatusOK, labels)
}

func (s *Server) addLabel(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.kindFromPath(w, r)
	if !ok {
		return
	}

	var req addLabelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "Missing name")
		return
	}

	l, err := s.labelRepo.Create(r.Context(), kind, req.Name)
	if err != nil {
		s.log.Error().Err(err).Str("kind", string(kind)).Msg("failed to create label")
		writeError(w, http.StatusInternalServerError, "Could not save item")
		return
	}

	writeJSON(w, http.StatusCreated, l)
}

// deleteLabel removes a tag or room and detaches it from every device.
func (s *Server) deleteLabel(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.kindFromPath(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")

	err := s.labelRepo.Delete(r.Context(), kind, id)
	if errors.Is(err, label.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Item not found")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("kind", string(kind)).Str("id", id).Msg("failed to delete label")
		writeError(w, http.StatusInternalServerError, "Could not delete item")
		return
	}

	n, err := s.deviceRepo.ClearLabel(r.Context(), labelField(kind), id)
	if err != nil {
		s.log.Error().Err(err).Str("kind", string(kind)).Str("id", id).Msg("failed to detach label from devices")
		writeError(w, http.StatusInternalServerError, "Could not update devices")
		return
	}
	if n > 0 {
		s.log.Info().Str("kind", string(kind)).Str("id", id).Int("devices", n).Msg("label detached from devices")
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Item deleted"})
}

func (s *Server) registerLabelRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{kind}", s.listLabels)
	mux.HandleFunc("POST /{kind}", s.addLabel)
	mux.HandleFunc("DELETE /{kind}/{id}", s.deleteLabel)
}
