package api

import (
	"errors"
	"net/http"

	"github.com/nerrad567/esp-rfid-core/internal/rfid"
)

// openDoorRequest identifies the target device by hostname or IP.
type openDoorRequest struct {
	Hostname string `json:"hostname"`
	IP       string `json:"ip"`
}

// handleOpenDoor publishes an opendoor command to the target device.
func (s *Server) handleOpenDoor(w http.ResponseWriter, r *http.Request) {
	if s.dispatcher == nil {
		writeBusFailure(w, "command bus not available")
		return
	}

	var req openDoorRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Hostname == "" && req.IP == "" {
		writeBadRequest(w, "hostname or ip is required")
		return
	}

	err := s.dispatcher.OpenDoor(r.Context(), rfid.Target{Hostname: req.Hostname, IP: req.IP})
	if err != nil {
		if errors.Is(err, rfid.ErrUnresolvedTarget) {
			writeNotFound(w, "device not found")
			return
		}
		writeBusFailure(w, "failed to publish opendoor command")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"opened":   true,
		"hostname": req.Hostname,
		"ip":       req.IP,
	})
}
