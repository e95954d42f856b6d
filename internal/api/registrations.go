package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/esp-rfid-core/internal/rfid"
	"github.com/nerrad567/esp-rfid-core/internal/store"
)

// completeRegistrationRequest is the body for completing a registration.
type completeRegistrationRequest struct {
	Username   string `json:"username"`
	AccType    int    `json:"acctype"`
	ValidSince int64  `json:"valid_since"`
	ValidUntil int64  `json:"valid_until"`
}

// detectionStopRequest carries the session token being closed.
type detectionStopRequest struct {
	SessionID string `json:"session_id"`
}

// registrationID parses the {id} URL parameter.
func registrationID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil
}

// handleListRegistrations returns the pending card registrations.
func (s *Server) handleListRegistrations(w http.ResponseWriter, r *http.Request) {
	if s.registration == nil {
		writeNotFound(w, "registration workflow not enabled")
		return
	}

	regs, err := s.registration.ListPending(r.Context())
	if err != nil {
		writeInternalError(w, "failed to list registrations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"registrations": regs, "count": len(regs)})
}

// handleCompleteRegistration assigns a username to a pending registration
// and provisions the card on its device.
func (s *Server) handleCompleteRegistration(w http.ResponseWriter, r *http.Request) {
	if s.registration == nil {
		writeNotFound(w, "registration workflow not enabled")
		return
	}
	id, ok := registrationID(r)
	if !ok {
		writeBadRequest(w, "invalid registration id")
		return
	}

	var req completeRegistrationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Username == "" {
		writeBadRequest(w, "username is required")
		return
	}

	err := s.registration.Complete(r.Context(), id, req.Username, req.AccType, req.ValidSince, req.ValidUntil)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrRegistrationNotFound):
			writeNotFound(w, "registration not found")
		case errors.Is(err, store.ErrRegistrationNotPending):
			writeConflict(w, "registration already resolved")
		case errors.Is(err, rfid.ErrUnresolvedTarget):
			writeNotFound(w, "device not found")
		case errors.Is(err, rfid.ErrPublish):
			writeBusFailure(w, "failed to publish adduser command; registration still pending")
		default:
			writeInternalError(w, "failed to complete registration")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"completed": id, "username": req.Username})
}

// handleCancelRegistration discards a pending registration.
func (s *Server) handleCancelRegistration(w http.ResponseWriter, r *http.Request) {
	if s.registration == nil {
		writeNotFound(w, "registration workflow not enabled")
		return
	}
	id, ok := registrationID(r)
	if !ok {
		writeBadRequest(w, "invalid registration id")
		return
	}

	if err := s.registration.Cancel(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, store.ErrRegistrationNotFound):
			writeNotFound(w, "registration not found")
		case errors.Is(err, store.ErrRegistrationNotPending):
			writeConflict(w, "registration already resolved")
		default:
			writeInternalError(w, "failed to cancel registration")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"cancelled": id})
}

// handleDetectionStart opens a card-detection session and returns its token.
func (s *Server) handleDetectionStart(w http.ResponseWriter, _ *http.Request) {
	if s.registration == nil {
		writeNotFound(w, "registration workflow not enabled")
		return
	}

	sessionID := s.registration.Detector().Start()
	writeJSON(w, http.StatusOK, map[string]any{"session_id": sessionID})
}

// handleDetectionStop closes a card-detection session by token.
func (s *Server) handleDetectionStop(w http.ResponseWriter, r *http.Request) {
	if s.registration == nil {
		writeNotFound(w, "registration workflow not enabled")
		return
	}

	var req detectionStopRequest
	if err := decodeJSON(r, &req); err != nil || req.SessionID == "" {
		writeBadRequest(w, "session_id is required")
		return
	}

	if !s.registration.Detector().Stop(req.SessionID) {
		writeNotFound(w, "session not found or already expired")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"stopped": req.SessionID})
}

// handleDetectionStatus reports whether card detection is currently active.
func (s *Server) handleDetectionStatus(w http.ResponseWriter, _ *http.Request) {
	if s.registration == nil {
		writeNotFound(w, "registration workflow not enabled")
		return
	}

	detector := s.registration.Detector()
	writeJSON(w, http.StatusOK, map[string]any{
		"active":   detector.Active(),
		"sessions": detector.SessionCount(),
	})
}
