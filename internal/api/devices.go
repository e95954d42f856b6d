package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/esp-rfid-core/internal/device"
	"github.com/nerrad567/esp-rfid-core/internal/rfid"
	"github.com/nerrad567/esp-rfid-core/internal/store"
)

// handleListDevices returns all known devices.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.registry.List(r.Context())
	if err != nil {
		writeInternalError(w, "failed to list devices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by hostname.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	hostname := chi.URLParam(r, "hostname")

	dev, err := s.registry.Get(r.Context(), hostname)
	if err != nil {
		if errors.Is(err, store.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	writeJSON(w, http.StatusOK, dev)
}

// handleDeleteDevice removes a device and its provisioned users.
// Rejected with 409 while the device is live or within its quiesce period.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	hostname := chi.URLParam(r, "hostname")

	err := s.registry.Delete(r.Context(), hostname, s.quiesce)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrDeviceNotFound):
			writeNotFound(w, "device not found")
		case errors.Is(err, device.ErrDeviceOnline):
			writeConflict(w, "device is online or was seen too recently to delete")
		default:
			writeInternalError(w, "failed to delete device")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"deleted": hostname})
}

// handleListDeviceUsers returns the users provisioned on one device.
func (s *Server) handleListDeviceUsers(w http.ResponseWriter, r *http.Request) {
	hostname := chi.URLParam(r, "hostname")

	users, err := s.users.ListByDevice(r.Context(), hostname)
	if err != nil {
		writeInternalError(w, "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users, "count": len(users)})
}

// handleSyncUsers asks a device to publish its user file back on the bus.
// The router ingests the response asynchronously; this endpoint only
// confirms the request was published.
func (s *Server) handleSyncUsers(w http.ResponseWriter, r *http.Request) {
	if s.dispatcher == nil {
		writeBusFailure(w, "command bus not available")
		return
	}
	hostname := chi.URLParam(r, "hostname")

	err := s.dispatcher.RequestUserList(r.Context(), rfid.Target{Hostname: hostname})
	if err != nil {
		if errors.Is(err, rfid.ErrUnresolvedTarget) {
			writeNotFound(w, "device not found")
			return
		}
		writeBusFailure(w, "failed to publish getuserlist command")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"requested": hostname})
}
