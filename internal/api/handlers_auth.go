package api

import (
	"net/http"

	"github.com/keysplatform/moat/internal/auth"
)

// handleLogin handles POST /api/v1/auth/login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req auth.LoginRequest
	if err := s.parseJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		s.respondError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	resp, err := s.auth.Login(req.Username, req.Password)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	s.respondJSON(w, http.StatusOK, resp)
}

// handleChangePassword handles POST /api/v1/auth/change-password
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	claims := claimsFrom(r)
	if claims == nil {
		s.respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req auth.ChangePasswordRequest
	if err := s.parseJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		s.respondError(w, http.StatusBadRequest, "Current password and new password are required")
		return
	}
	if req.NewPassword == req.CurrentPassword {
		s.respondError(w, http.StatusBadRequest, "New password must be different from current password")
		return
	}
	if len(req.NewPassword) < 8 {
		s.respondError(w, http.StatusBadRequest, "New password must be at least 8 characters")
		return
	}

	if err := s.auth.ChangePassword(claims.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		// Don't leak whether the user exists or the password was wrong.
		s.respondError(w, http.StatusUnauthorized, "Failed to change password")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]string{"message": "Password changed successfully"})
}

// handleAPIKeys handles POST and GET /api/v1/auth/api-keys
func (s *Server) handleAPIKeys(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	if claims == nil {
		s.respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req auth.CreateAPIKeyRequest
		if err := s.parseJSON(r, &req); err != nil {
			s.respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.Name == "" {
			s.respondError(w, http.StatusBadRequest, "Key name is required")
			return
		}

		resp, err := s.auth.CreateAPIKey(claims.UserID, req)
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.respondJSON(w, http.StatusCreated, resp)

	case http.MethodGet:
		s.respondJSON(w, http.StatusOK, map[string]any{"keys": s.auth.ListAPIKeys(claims.UserID)})

	default:
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleAPIKey handles DELETE /api/v1/auth/api-keys/{id}
func (s *Server) handleAPIKey(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	claims := claimsFrom(r)
	if claims == nil {
		s.respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	keyID := s.extractID(r.URL.Path, "/api/v1/auth/api-keys")
	if keyID == "" {
		s.respondError(w, http.StatusBadRequest, "Key ID is required")
		return
	}

	if err := s.auth.RevokeAPIKey(keyID, claims.UserID); err != nil {
		s.respondError(w, http.StatusNotFound, "API key not found")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]string{"message": "API key revoked"})
}
