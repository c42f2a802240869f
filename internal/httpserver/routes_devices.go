package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/Rin0913/devicewatch/internal/device"
)

type addDeviceRequest struct {
	Address      string `json:"address"`
	FriendlyName string `json:"friendlyName"`
	TagID        string `json:"tagId"`
	RoomID       string `json:"roomId"`
	Notes        string `json:"notes"`
	CheckMethod  string `json:"checkMethod"`
}

// editDeviceRequest only touches the fields present in the body.
type editDeviceRequest struct {
	Address      *string `json:"address"`
	FriendlyName *string `json:"friendlyName"`
	TagID        *string `json:"tagId"`
	RoomID       *string `json:"roomId"`
	Notes        *string `json:"notes"`
	CheckMethod  *string `json:"checkMethod"`
}

func (req *editDeviceRequest) apply(d *device.Device) {
	fields := []struct {
		src *string
		dst *string
	}{
		{req.Address, &d.Address},
		{req.FriendlyName, &d.FriendlyName},
		{req.TagID, &d.TagID},
		{req.RoomID, &d.RoomID},
		{req.Notes, &d.Notes},
		{req.CheckMethod, &d.CheckMethod},
	}
	for _, f := range fields {
		if f.src != nil {
			*f.dst = *f.src
		}
	}
}

func (s *Server) addDevice(w http.ResponseWriter, r *http.Request) {
	var req addDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	req.Address = strings.TrimSpace(req.Address)
	if req.Address == "" || strings.TrimSpace(req.FriendlyName) == "" {
		writeError(w, http.StatusBadRequest, "Missing required device data")
		return
	}

	if !s.checkers.HasChecker(req.CheckMethod) {
		writeError(w, http.StatusBadRequest, "Unknown checkMethod")
		return
	}

	d := &device.Device{
		Address:      req.Address,
		FriendlyName: req.FriendlyName,
		TagID:        req.TagID,
		RoomID:       req.RoomID,
		Notes:        req.Notes,
		CheckMethod:  req.CheckMethod,
	}

	if err := s.deviceRepo.Save(r.Context(), d); err != nil {
		s.log.Error().Err(err).Msg("failed to save device")
		writeError(w, http.StatusInternalServerError, "Could not save device")
		return
	}

	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) listDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.deviceRepo.List(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list devices")
		writeError(w, http.StatusInternalServerError, "failed to list devices")
		return
	}

	writeJSON(w, http.StatusOK, devices)
}

func (s *Server) editDevice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req editDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Missing data")
		return
	}

	d, err := s.deviceRepo.GetByID(r.Context(), id)
	if err != nil {
		s.log.Error().Err(err).Str("device_id", id).Msg("failed to get device")
		writeError(w, http.StatusInternalServerError, "failed to get device")
		return
	}
	if d == nil {
		writeError(w, http.StatusNotFound, "Device not found")
		return
	}

	req.apply(d)
	if strings.TrimSpace(d.Address) == "" {
		writeError(w, http.StatusBadRequest, "address cannot be empty")
		return
	}
	if req.CheckMethod != nil && !s.checkers.HasChecker(d.CheckMethod) {
		writeError(w, http.StatusBadRequest, "Unknown checkMethod")
		return
	}

	// an address change is picked up by the next cycle's roster read
	if err := s.deviceRepo.Save(r.Context(), d); err != nil {
		s.log.Error().Err(err).Str("device_id", id).Msg("failed to save device")
		writeError(w, http.StatusInternalServerError, "Could not save device")
		return
	}

	writeJSON(w, http.StatusOK, d)
}

func (s *Server) deleteDevice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	err := s.deviceRepo.DeleteByID(r.Context(), id)
	if errors.Is(err, device.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Item not found")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("device_id", id).Msg("failed to delete device")
		writeError(w, http.StatusInternalServerError, "Could not delete device")
		return
	}

	s.monitor.NotifyDeviceRemoved(id)

	writeJSON(w, http.StatusOK, map[string]string{"message": "Item deleted"})
}

func (s *Server) registerDeviceRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /devices", s.addDevice)
	mux.HandleFunc("GET /devices", s.listDevices)
	mux.HandleFunc("PUT /devices/{id}", s.editDevice)
	mux.HandleFunc("DELETE /devices/{id}", s.deleteDevice)
}
