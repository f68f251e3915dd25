// Package api is the HTTP surface of the moat service. Routing uses the
// standard mux with prefix handlers; authentication, CORS, and request
// metrics are layered as middleware.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keysplatform/moat/internal/auth"
	"github.com/keysplatform/moat/internal/logging"
	"github.com/keysplatform/moat/internal/metrics"
	"github.com/keysplatform/moat/internal/patterns"
	"github.com/keysplatform/moat/pkg/config"
	"github.com/keysplatform/moat/pkg/models"
)

// PatternService is the institutional-memory surface the API exposes.
// Implemented by *patterns.Service.
type PatternService interface {
	RecordFailure(ctx context.Context, ownerID string, report patterns.FailureReport) (*models.FailurePattern, error)
	RecordSuccess(ctx context.Context, ownerID string, report patterns.SuccessReport) (*models.SuccessPattern, error)
	CheckForSimilarFailures(ctx context.Context, ownerID, candidate string, contextSnapshot map[string]any) ([]models.PatternMatch, error)
	GetPreventionRules(ctx context.Context, ownerID string, limit int) ([]string, error)
	GetSuccessPatterns(ctx context.Context, ownerID string, limit int) ([]*models.SuccessPattern, error)
	ResolveFailure(ctx context.Context, ownerID, patternID string) (*models.FailurePattern, error)
}

// SafetyService scans outputs. Implemented by *safety.Service.
type SafetyService interface {
	CheckOutput(ctx context.Context, ownerID, output, outputType string) models.SafetyCheckResult
}

// MoatService serves the derived analytics. Implemented by *moat.Service.
type MoatService interface {
	LockInMetrics(ctx context.Context, ownerID string) (*models.LockInMetrics, error)
	ChurnPrediction(ctx context.Context, ownerID string) (*models.ChurnPredictionMetrics, error)
	InfrastructureSignals(ctx context.Context, ownerID string) (*models.InfrastructureSignals, error)
	MemoryValue(ctx context.Context, ownerID string) (*models.MemoryValue, error)
}

// Server represents the HTTP API server
type Server struct {
	patterns PatternService
	safety   SafetyService
	moat     MoatService
	auth     *auth.Manager
	logs     *logging.Manager
	metrics  *metrics.Metrics
	config   *config.Config
}

// NewServer creates a new API server
func NewServer(p PatternService, s SafetyService, m MoatService, am *auth.Manager, logs *logging.Manager, cfg *config.Config) *Server {
	return &Server{
		patterns: p,
		safety:   s,
		moat:     m,
		auth:     am,
		logs:     logs,
		metrics:  metrics.NewMetrics(),
		config:   cfg,
	}
}

// SetupRoutes configures HTTP routes
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/api/v1/health", s.handleHealth)

	// Prometheus scrape endpoint
	mux.Handle("/metrics", promhttp.Handler())

	// Auth
	mux.HandleFunc("/api/v1/auth/login", s.handleLogin)
	mux.HandleFunc("/api/v1/auth/change-password", s.handleChangePassword)
	mux.HandleFunc("/api/v1/auth/api-keys", s.handleAPIKeys)
	mux.HandleFunc("/api/v1/auth/api-keys/", s.handleAPIKey)

	// Patterns
	mux.HandleFunc("/api/v1/patterns/failures", s.handleRecordFailure)
	mux.HandleFunc("/api/v1/patterns/failures/", s.handleFailure)
	mux.HandleFunc("/api/v1/patterns/successes", s.handleSuccesses)
	mux.HandleFunc("/api/v1/patterns/prevention-rules", s.handlePreventionRules)
	mux.HandleFunc("/api/v1/patterns/check", s.handlePatternCheck)

	// Safety
	mux.HandleFunc("/api/v1/safety/check", s.handleSafetyCheck)

	// Moat analytics
	mux.HandleFunc("/api/v1/moat/lock-in", s.handleLockIn)
	mux.HandleFunc("/api/v1/moat/churn", s.handleChurn)
	mux.HandleFunc("/api/v1/moat/infrastructure", s.handleInfrastructure)
	mux.HandleFunc("/api/v1/moat/memory-value", s.handleMemoryValue)

	// Logs (admin only)
	mux.HandleFunc("/api/v1/logs", s.handleLogs)

	// Apply middleware
	handler := s.metricsMiddleware(mux)
	handler = s.corsMiddleware(handler)
	handler = s.authMiddleware(handler)

	return handler
}

// Middleware

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// metricsMiddleware records request counts and latency
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		s.metrics.RecordHTTPRequest(r.Method, routeLabel(r.URL.Path), strconv.Itoa(rec.status), time.Since(start).Seconds())
	})
}

// routeLabel collapses ID-bearing paths to a bounded label set.
func routeLabel(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) > 3 {
		parts = parts[:3]
	}
	return "/" + strings.Join(parts, "/")
}

// corsMiddleware handles CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.config.Security.AllowedOrigins) > 0 {
			origin := r.Header.Get("Origin")
			for _, allowedOrigin := range s.config.Security.AllowedOrigins {
				if allowedOrigin == "*" || allowedOrigin == origin {
					w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
					break
				}
			}
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")

		// Handle preflight
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type contextKey string

const claimsKey contextKey = "claims"

// authMiddleware validates the bearer token or API key and enforces the
// route's permission.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Preflight requests never carry credentials.
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		// Health, metrics, and login stay open.
		if r.URL.Path == "/api/v1/health" ||
			r.URL.Path == "/metrics" ||
			r.URL.Path == "/api/v1/auth/login" {
			next.ServeHTTP(w, r)
			return
		}

		if !s.config.Security.EnableAuth {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := s.authenticate(r)
		if err != nil {
			s.respondError(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		if perm := requiredPermission(r.Method, r.URL.Path); perm != "" && !s.auth.HasPermission(claims, perm) {
			s.respondError(w, http.StatusForbidden, "Insufficient permissions")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	})
}

// authenticate resolves credentials from the Authorization header
// (Bearer JWT) or the X-API-Key header.
func (s *Server) authenticate(r *http.Request) (*auth.Claims, error) {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return s.auth.ValidateToken(strings.TrimPrefix(header, "Bearer "))
	}

	apiKey := r.Header.Get("X-API-Key")
	if apiKey == "" {
		return nil, errMissingCredentials
	}

	userID, permissions, err := s.auth.ValidateAPIKey(apiKey)
	if err != nil {
		return nil, err
	}
	return &auth.Claims{UserID: userID, Permissions: permissions}, nil
}

// requiredPermission maps a route to the permission it needs. An empty
// string means "any authenticated caller".
func requiredPermission(method, path string) string {
	switch {
	case strings.HasPrefix(path, "/api/v1/logs"):
		return "*:*"
	case path == "/api/v1/patterns/check":
		return "patterns:read"
	case strings.HasPrefix(path, "/api/v1/patterns"):
		if method == http.MethodGet {
			return "patterns:read"
		}
		return "patterns:write"
	case strings.HasPrefix(path, "/api/v1/safety"):
		return "safety:check"
	case strings.HasPrefix(path, "/api/v1/moat"):
		return "moat:read"
	}
	return ""
}

// Helper functions

// claimsFrom returns the authenticated claims, if any.
func claimsFrom(r *http.Request) *auth.Claims {
	claims, _ := r.Context().Value(claimsKey).(*auth.Claims)
	return claims
}

// ownerID resolves the tenant for a request: the authenticated user when
// auth is on, the owner_id query parameter otherwise.
func (s *Server) ownerID(r *http.Request) string {
	if claims := claimsFrom(r); claims != nil {
		return claims.UserID
	}
	return r.URL.Query().Get("owner_id")
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes an error response
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// parseJSON parses JSON request body
func (s *Server) parseJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// extractID extracts ID from URL path
func (s *Server) extractID(path, prefix string) string {
	id := strings.TrimPrefix(path, prefix)
	id = strings.TrimPrefix(id, "/")
	id = strings.TrimSuffix(id, "/")

	parts := strings.Split(id, "/")
	if len(parts) > 0 {
		return parts[0]
	}

	return id
}
