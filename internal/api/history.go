package api

import (
	"net/http"
	"strconv"
)

// parseLimit reads the limit query parameter, returning 0 (repository
// default) when absent or unparsable.
func parseLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}

// handleListAccessLogs returns recent access attempts, newest first.
//
// Query parameters:
//   - hostname: filter by device
//   - limit: maximum rows (default 100)
func (s *Server) handleListAccessLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := parseLimit(r)

	if hostname := r.URL.Query().Get("hostname"); hostname != "" {
		logs, err := s.logs.ListAccessLogsByDevice(ctx, hostname, limit)
		if err != nil {
			writeInternalError(w, "failed to list access logs")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"access_logs": logs, "count": len(logs)})
		return
	}

	logs, err := s.logs.ListAccessLogs(ctx, limit)
	if err != nil {
		writeInternalError(w, "failed to list access logs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"access_logs": logs, "count": len(logs)})
}

// handleListEvents returns recent system events, newest first.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.logs.ListEvents(r.Context(), parseLimit(r))
	if err != nil {
		writeInternalError(w, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}
