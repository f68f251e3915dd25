package api

import (
	"net/http"
	"time"
)

// handleLogs handles GET /api/v1/logs. Admin only; see requiredPermission.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if s.logs == nil {
		s.respondError(w, http.StatusServiceUnavailable, "Logging not configured")
		return
	}

	q := r.URL.Query()
	var since, until time.Time
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "Invalid since timestamp")
			return
		}
		since = t
	}
	if v := q.Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "Invalid until timestamp")
			return
		}
		until = t
	}

	entries, err := s.logs.Query(queryLimit(r), q.Get("level"), q.Get("source"), q.Get("owner_id"), since, until)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "Failed to query logs")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{"logs": entries})
}
