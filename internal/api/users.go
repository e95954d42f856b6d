package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/esp-rfid-core/internal/rfid"
	"github.com/nerrad567/esp-rfid-core/internal/store"
)

// createUserRequest is the body for POST /api/users.
type createUserRequest struct {
	UID        string `json:"uid"`
	Username   string `json:"username"`
	Hostname   string `json:"hostname"`
	AccType    int    `json:"acctype"`
	ValidSince int64  `json:"valid_since"`
	ValidUntil int64  `json:"valid_until"`
}

// handleListUsers returns all users, optionally filtered by hostname.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if hostname := r.URL.Query().Get("hostname"); hostname != "" {
		users, err := s.users.ListByDevice(ctx, hostname)
		if err != nil {
			writeInternalError(w, "failed to list users")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": users, "count": len(users)})
		return
	}

	users, err := s.users.List(ctx)
	if err != nil {
		writeInternalError(w, "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users, "count": len(users)})
}

// handleCreateUser provisions a card onto a device and records the user.
//
// The adduser command must reach the bus first; the local record is only
// written once the publish succeeds, mirroring the registration workflow.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.UID == "" || req.Username == "" || req.Hostname == "" {
		writeBadRequest(w, "uid, username and hostname are required")
		return
	}

	ctx := r.Context()

	if s.dispatcher == nil {
		writeBusFailure(w, "command bus not available")
		return
	}
	err := s.dispatcher.AddUser(ctx, rfid.Target{Hostname: req.Hostname},
		req.UID, req.Username, req.AccType, req.ValidSince, req.ValidUntil)
	if err != nil {
		if errors.Is(err, rfid.ErrUnresolvedTarget) {
			writeNotFound(w, "device not found")
			return
		}
		writeBusFailure(w, "failed to publish adduser command")
		return
	}

	user := &store.User{
		UID:            req.UID,
		Username:       req.Username,
		DeviceHostname: req.Hostname,
		AccType:        req.AccType,
		ValidSince:     req.ValidSince,
		ValidUntil:     req.ValidUntil,
	}
	if err := s.users.Upsert(ctx, user); err != nil {
		writeInternalError(w, "failed to record user")
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// handleDeleteUser removes a card from a device and the local record.
// The hostname query parameter selects which device binding to remove.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	hostname := r.URL.Query().Get("hostname")
	if hostname == "" {
		writeBadRequest(w, "hostname query parameter is required")
		return
	}

	ctx := r.Context()

	if _, err := s.users.Get(ctx, uid, hostname); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		writeInternalError(w, "failed to get user")
		return
	}

	if s.dispatcher == nil {
		writeBusFailure(w, "command bus not available")
		return
	}
	err := s.dispatcher.DeleteUser(ctx, rfid.Target{Hostname: hostname}, uid)
	if err != nil && !errors.Is(err, rfid.ErrUnresolvedTarget) {
		// An unresolvable device has likely been deleted already; removing
		// the stale record is still the right outcome. Publish failures
		// keep the record so the operator can retry.
		writeBusFailure(w, "failed to publish deletuid command")
		return
	}

	if err := s.users.Delete(ctx, uid, hostname); err != nil {
		writeInternalError(w, "failed to delete user")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"deleted": uid, "hostname": hostname})
}
