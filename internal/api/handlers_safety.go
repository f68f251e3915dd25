package api

import (
	"net/http"
)

// SafetyCheckRequest is one artifact to scan.
type SafetyCheckRequest struct {
	Output     string `json:"output"`
	OutputType string `json:"output_type,omitempty"`
}

// handleSafetyCheck handles POST /api/v1/safety/check
func (s *Server) handleSafetyCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req SafetyCheckRequest
	if err := s.parseJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Output == "" {
		s.respondError(w, http.StatusBadRequest, "Output is required")
		return
	}

	// Scanning works without an owner; the run ledger and guarantee
	// tracking only engage when one is present.
	result := s.safety.CheckOutput(r.Context(), s.ownerID(r), req.Output, req.OutputType)

	s.respondJSON(w, http.StatusOK, result)
}
