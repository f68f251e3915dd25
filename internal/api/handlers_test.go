package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keysplatform/moat/internal/auth"
	"github.com/keysplatform/moat/internal/database"
	"github.com/keysplatform/moat/internal/patterns"
	"github.com/keysplatform/moat/pkg/config"
	"github.com/keysplatform/moat/pkg/models"
)

type fakePatternService struct {
	failures  map[string]*models.FailurePattern
	rules     []string
	matches   []models.PatternMatch
	lastOwner string
	err       error
}

func (f *fakePatternService) RecordFailure(_ context.Context, ownerID string, report patterns.FailureReport) (*models.FailurePattern, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.lastOwner = ownerID
	p := &models.FailurePattern{
		ID:            "fp-1",
		OwnerID:       ownerID,
		Category:      report.Category,
		Description:   report.Description,
		FailureReason: report.FailureReason,
	}
	if f.failures == nil {
		f.failures = map[string]*models.FailurePattern{}
	}
	f.failures[p.ID] = p
	return p, nil
}

func (f *fakePatternService) RecordSuccess(_ context.Context, ownerID string, report patterns.SuccessReport) (*models.SuccessPattern, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.lastOwner = ownerID
	return &models.SuccessPattern{ID: "sp-1", OwnerID: ownerID, Description: report.Description}, nil
}

func (f *fakePatternService) CheckForSimilarFailures(_ context.Context, ownerID, _ string, _ map[string]any) ([]models.PatternMatch, error) {
	f.lastOwner = ownerID
	return f.matches, f.err
}

func (f *fakePatternService) GetPreventionRules(_ context.Context, ownerID string, _ int) ([]string, error) {
	f.lastOwner = ownerID
	return f.rules, f.err
}

func (f *fakePatternService) GetSuccessPatterns(_ context.Context, ownerID string, _ int) ([]*models.SuccessPattern, error) {
	f.lastOwner = ownerID
	return nil, f.err
}

func (f *fakePatternService) ResolveFailure(_ context.Context, ownerID, patternID string) (*models.FailurePattern, error) {
	p, ok := f.failures[patternID]
	if !ok || p.OwnerID != ownerID {
		return nil, fmt.Errorf("resolve: %w", database.ErrNotFound)
	}
	p.Resolved = true
	return p, nil
}

type fakeSafetyService struct {
	result models.SafetyCheckResult
	owner  string
}

func (f *fakeSafetyService) CheckOutput(_ context.Context, ownerID, _, _ string) models.SafetyCheckResult {
	f.owner = ownerID
	return f.result
}

type fakeMoatService struct{}

func (f *fakeMoatService) LockInMetrics(_ context.Context, ownerID string) (*models.LockInMetrics, error) {
	return &models.LockInMetrics{OwnerID: ownerID, LockInScore: 85, LockInLevel: models.LockInStrong}, nil
}

func (f *fakeMoatService) ChurnPrediction(_ context.Context, ownerID string) (*models.ChurnPredictionMetrics, error) {
	return &models.ChurnPredictionMetrics{OwnerID: ownerID, ChurnRiskScore: 10, ChurnRiskLevel: models.ChurnLow}, nil
}

func (f *fakeMoatService) InfrastructureSignals(_ context.Context, ownerID string) (*models.InfrastructureSignals, error) {
	return &models.InfrastructureSignals{OwnerID: ownerID, InfrastructureStatus: models.InfraModerate}, nil
}

func (f *fakeMoatService) MemoryValue(_ context.Context, ownerID string) (*models.MemoryValue, error) {
	return &models.MemoryValue{OwnerID: ownerID, TotalValue: 125}, nil
}

func newTestServer(t *testing.T, enableAuth bool) (*Server, http.Handler, *fakePatternService, *fakeSafetyService) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Security.EnableAuth = enableAuth
	cfg.Security.JWTSecret = "test-secret"

	pats := &fakePatternService{}
	saf := &fakeSafetyService{result: models.SafetyCheckResult{Passed: true}}
	srv := NewServer(pats, saf, &fakeMoatService{}, auth.NewManager(cfg.Security.JWTSecret), nil, cfg)
	return srv, srv.SetupRoutes(), pats, saf
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	_, handler, _, _ := newTestServer(t, true)

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestRecordFailureEndpoint(t *testing.T) {
	_, handler, pats, _ := newTestServer(t, false)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/patterns/failures?owner_id=user-1", map[string]any{
		"pattern_type":        "security",
		"pattern_description": "sql injection in query builder",
		"failure_reason":      "string concatenation",
	}, nil)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "user-1", pats.lastOwner)

	var pattern models.FailurePattern
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pattern))
	assert.Equal(t, "fp-1", pattern.ID)
}

func TestRecordFailureRequiresOwner(t *testing.T) {
	_, handler, _, _ := newTestServer(t, false)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/patterns/failures", map[string]any{
		"pattern_type":        "security",
		"pattern_description": "x",
		"failure_reason":      "y",
	}, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecordFailureInvalidCategory(t *testing.T) {
	_, handler, pats, _ := newTestServer(t, false)
	pats.err = fmt.Errorf("%w: %q", patterns.ErrInvalidCategory, "bogus")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/patterns/failures?owner_id=user-1", map[string]any{
		"pattern_type":        "bogus",
		"pattern_description": "x",
		"failure_reason":      "y",
	}, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResolveFailureNotFound(t *testing.T) {
	_, handler, _, _ := newTestServer(t, false)

	rec := doJSON(t, handler, http.MethodPatch, "/api/v1/patterns/failures/missing/resolve?owner_id=user-1", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResolveFailureEndpoint(t *testing.T) {
	_, handler, pats, _ := newTestServer(t, false)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/patterns/failures?owner_id=user-1", map[string]any{
		"pattern_type":        "quality",
		"pattern_description": "x",
		"failure_reason":      "y",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, handler, http.MethodPatch, "/api/v1/patterns/failures/fp-1/resolve?owner_id=user-1", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, pats.failures["fp-1"].Resolved)
}

func TestPreventionRulesEndpoint(t *testing.T) {
	_, handler, pats, _ := newTestServer(t, false)
	pats.rules = []string{"Prevent security failures: x. Reason: y"}

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/patterns/prevention-rules?owner_id=user-1", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Rules []string `json:"rules"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Rules, 1)
}

func TestPreventionRulesEmptyIsArray(t *testing.T) {
	_, handler, _, _ := newTestServer(t, false)

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/patterns/prevention-rules?owner_id=user-1", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"rules":[]`)
}

func TestPatternCheckEndpoint(t *testing.T) {
	_, handler, pats, _ := newTestServer(t, false)
	pats.matches = []models.PatternMatch{
		{PatternID: "fp-1", Kind: models.MatchKindFailure, Class: models.MatchExact, Confidence: 0.95},
	}

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/patterns/check?owner_id=user-1", map[string]any{
		"output": "some candidate output",
	}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Matches []models.PatternMatch `json:"matches"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Matches, 1)
	assert.Equal(t, models.MatchExact, body.Matches[0].Class)
}

func TestSafetyCheckEndpoint(t *testing.T) {
	_, handler, _, saf := newTestServer(t, false)
	saf.result = models.SafetyCheckResult{Passed: false, Blocked: true}

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/safety/check?owner_id=user-1", map[string]any{
		"output": "SELECT * FROM users WHERE id = ' + id",
	}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", saf.owner)

	var result models.SafetyCheckResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Blocked)
	assert.False(t, result.Passed)
}

func TestSafetyCheckWithoutOwner(t *testing.T) {
	_, handler, _, _ := newTestServer(t, false)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/safety/check", map[string]any{
		"output": "clean output",
	}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMoatEndpoints(t *testing.T) {
	_, handler, _, _ := newTestServer(t, false)

	for _, path := range []string{
		"/api/v1/moat/lock-in",
		"/api/v1/moat/churn",
		"/api/v1/moat/infrastructure",
		"/api/v1/moat/memory-value",
	} {
		rec := doJSON(t, handler, http.MethodGet, path+"?owner_id=user-1", nil, nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "user-1", body["user_id"], path)
	}

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/moat/lock-in", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthMiddlewareRejectsAnonymous(t *testing.T) {
	_, handler, _, _ := newTestServer(t, true)

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/moat/lock-in", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddlewareTokenFlow(t *testing.T) {
	_, handler, pats, _ := newTestServer(t, true)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"username": "admin",
		"password": "admin",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var login auth.LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))

	headers := map[string]string{"Authorization": "Bearer " + login.Token}
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/patterns/failures", map[string]any{
		"pattern_type":        "security",
		"pattern_description": "x",
		"failure_reason":      "y",
	}, headers)
	assert.Equal(t, http.StatusCreated, rec.Code)

	// Owner comes from the token, not a query parameter.
	assert.Equal(t, "user-admin", pats.lastOwner)
}

func TestAuthMiddlewareEnforcesPermissions(t *testing.T) {
	srv, handler, _, _ := newTestServer(t, true)

	_, err := srv.auth.CreateUser("reader", "r@example.com", "viewer", "password123")
	require.NoError(t, err)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"username": "reader",
		"password": "password123",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var login auth.LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))
	headers := map[string]string{"Authorization": "Bearer " + login.Token}

	// Viewers can read analytics but not record failures.
	rec = doJSON(t, handler, http.MethodGet, "/api/v1/moat/lock-in", nil, headers)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/patterns/failures", map[string]any{
		"pattern_type":        "security",
		"pattern_description": "x",
		"failure_reason":      "y",
	}, headers)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAuthMiddlewareAPIKeyFlow(t *testing.T) {
	srv, handler, _, _ := newTestServer(t, true)

	created, err := srv.auth.CreateAPIKey("user-admin", auth.CreateAPIKeyRequest{
		Name:        "ci",
		Permissions: []string{"safety:check"},
	})
	require.NoError(t, err)

	headers := map[string]string{"X-API-Key": created.Key}
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/safety/check", map[string]any{
		"output": "clean",
	}, headers)
	assert.Equal(t, http.StatusOK, rec.Code)

	// The key's permissions do not cover analytics.
	rec = doJSON(t, handler, http.MethodGet, "/api/v1/moat/lock-in", nil, headers)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	_, handler, _, _ := newTestServer(t, true)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/patterns/failures", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
