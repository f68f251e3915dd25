package api

import (
	"context"
	"net/http"
)

// handleLockIn handles GET /api/v1/moat/lock-in
func (s *Server) handleLockIn(w http.ResponseWriter, r *http.Request) {
	s.handleMoatScore(w, r, func(ctx context.Context, ownerID string) (any, error) {
		return s.moat.LockInMetrics(ctx, ownerID)
	})
}

// handleChurn handles GET /api/v1/moat/churn
func (s *Server) handleChurn(w http.ResponseWriter, r *http.Request) {
	s.handleMoatScore(w, r, func(ctx context.Context, ownerID string) (any, error) {
		return s.moat.ChurnPrediction(ctx, ownerID)
	})
}

// handleInfrastructure handles GET /api/v1/moat/infrastructure
func (s *Server) handleInfrastructure(w http.ResponseWriter, r *http.Request) {
	s.handleMoatScore(w, r, func(ctx context.Context, ownerID string) (any, error) {
		return s.moat.InfrastructureSignals(ctx, ownerID)
	})
}

// handleMemoryValue handles GET /api/v1/moat/memory-value
func (s *Server) handleMemoryValue(w http.ResponseWriter, r *http.Request) {
	s.handleMoatScore(w, r, func(ctx context.Context, ownerID string) (any, error) {
		return s.moat.MemoryValue(ctx, ownerID)
	})
}

// handleMoatScore is the shared shape of the four analytics endpoints:
// GET only, owner required, straight passthrough of the computed score.
func (s *Server) handleMoatScore(w http.ResponseWriter, r *http.Request, compute func(context.Context, string) (any, error)) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	ownerID := s.ownerID(r)
	if ownerID == "" {
		s.respondError(w, http.StatusBadRequest, "Owner ID is required")
		return
	}

	result, err := compute(r.Context(), ownerID)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, result)
}
