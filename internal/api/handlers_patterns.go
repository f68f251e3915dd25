package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/keysplatform/moat/internal/patterns"
	"github.com/keysplatform/moat/pkg/models"
)

// handleRecordFailure handles POST /api/v1/patterns/failures
func (s *Server) handleRecordFailure(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	ownerID := s.ownerID(r)
	if ownerID == "" {
		s.respondError(w, http.StatusBadRequest, "Owner ID is required")
		return
	}

	var report patterns.FailureReport
	if err := s.parseJSON(r, &report); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if report.Description == "" || report.FailureReason == "" {
		s.respondError(w, http.StatusBadRequest, "Pattern description and failure reason are required")
		return
	}

	pattern, err := s.patterns.RecordFailure(r.Context(), ownerID, report)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	s.respondJSON(w, http.StatusCreated, pattern)
}

// handleFailure handles PATCH /api/v1/patterns/failures/{id}/resolve
func (s *Server) handleFailure(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch || !strings.HasSuffix(r.URL.Path, "/resolve") {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	ownerID := s.ownerID(r)
	if ownerID == "" {
		s.respondError(w, http.StatusBadRequest, "Owner ID is required")
		return
	}

	id := s.extractID(r.URL.Path, "/api/v1/patterns/failures")
	if id == "" {
		s.respondError(w, http.StatusBadRequest, "Pattern ID is required")
		return
	}

	pattern, err := s.patterns.ResolveFailure(r.Context(), ownerID, id)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, pattern)
}

// handleSuccesses handles POST and GET /api/v1/patterns/successes
func (s *Server) handleSuccesses(w http.ResponseWriter, r *http.Request) {
	ownerID := s.ownerID(r)
	if ownerID == "" {
		s.respondError(w, http.StatusBadRequest, "Owner ID is required")
		return
	}

	switch r.Method {
	case http.MethodPost:
		var report patterns.SuccessReport
		if err := s.parseJSON(r, &report); err != nil {
			s.respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if report.Description == "" {
			s.respondError(w, http.StatusBadRequest, "Pattern description is required")
			return
		}

		pattern, err := s.patterns.RecordSuccess(r.Context(), ownerID, report)
		if err != nil {
			s.respondServiceError(w, err)
			return
		}
		s.respondJSON(w, http.StatusCreated, pattern)

	case http.MethodGet:
		found, err := s.patterns.GetSuccessPatterns(r.Context(), ownerID, queryLimit(r))
		if err != nil {
			s.respondServiceError(w, err)
			return
		}
		if found == nil {
			found = []*models.SuccessPattern{}
		}
		s.respondJSON(w, http.StatusOK, map[string]any{"patterns": found})

	default:
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handlePreventionRules handles GET /api/v1/patterns/prevention-rules
func (s *Server) handlePreventionRules(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	ownerID := s.ownerID(r)
	if ownerID == "" {
		s.respondError(w, http.StatusBadRequest, "Owner ID is required")
		return
	}

	rules, err := s.patterns.GetPreventionRules(r.Context(), ownerID, queryLimit(r))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	if rules == nil {
		rules = []string{}
	}

	s.respondJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

// PatternCheckRequest asks whether an output resembles known failures.
type PatternCheckRequest struct {
	Output          string         `json:"output"`
	ContextSnapshot map[string]any `json:"context_snapshot,omitempty"`
}

// handlePatternCheck handles POST /api/v1/patterns/check
func (s *Server) handlePatternCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	ownerID := s.ownerID(r)
	if ownerID == "" {
		s.respondError(w, http.StatusBadRequest, "Owner ID is required")
		return
	}

	var req PatternCheckRequest
	if err := s.parseJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Output == "" {
		s.respondError(w, http.StatusBadRequest, "Output is required")
		return
	}

	matches, err := s.patterns.CheckForSimilarFailures(r.Context(), ownerID, req.Output, req.ContextSnapshot)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	if matches == nil {
		matches = []models.PatternMatch{}
	}

	s.respondJSON(w, http.StatusOK, map[string]any{"matches": matches})
}

// queryLimit reads the limit query parameter; 0 lets the service apply
// its default.
func queryLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}
