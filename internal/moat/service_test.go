package moat

import (
	"context"
	"testing"
	"time"

	"github.com/keysplatform/moat/internal/database"
	"github.com/keysplatform/moat/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMoatStore struct {
	failurePatterns int
	successPatterns int
	patternMatches  int
	matchProjects   int
	totalRuns       int
	monthRuns       int
	safetyRuns      int
	blockedRuns     int
	activeDays      int
	profile         *models.UserProfile

	lastSince time.Time
}

func (f *fakeMoatStore) CountFailurePatterns(context.Context, string) (int, error) {
	return f.failurePatterns, nil
}
func (f *fakeMoatStore) CountSuccessPatterns(context.Context, string) (int, error) {
	return f.successPatterns, nil
}
func (f *fakeMoatStore) CountPatternMatchesSince(_ context.Context, _ string, since time.Time) (int, error) {
	f.lastSince = since
	return f.patternMatches, nil
}
func (f *fakeMoatStore) CountMatchProjectsSince(context.Context, string, time.Time) (int, error) {
	return f.matchProjects, nil
}
func (f *fakeMoatStore) CountRuns(context.Context, string) (int, error) {
	return f.totalRuns, nil
}
func (f *fakeMoatStore) CountRunsSince(context.Context, string, time.Time) (int, error) {
	return f.monthRuns, nil
}
func (f *fakeMoatStore) CountSafetyCheckedRunsSince(context.Context, string, time.Time) (int, error) {
	return f.safetyRuns, nil
}
func (f *fakeMoatStore) CountBlockedRunsSince(context.Context, string, time.Time) (int, error) {
	return f.blockedRuns, nil
}
func (f *fakeMoatStore) CountActiveDaysSince(context.Context, string, time.Time) (int, error) {
	return f.activeDays, nil
}
func (f *fakeMoatStore) GetUserProfile(context.Context, string) (*models.UserProfile, error) {
	if f.profile == nil {
		return nil, database.ErrNotFound
	}
	return f.profile, nil
}

func newTestService(store *fakeMoatStore) *Service {
	svc := NewService(store, nil)
	svc.now = func() time.Time {
		return time.Date(2026, time.March, 15, 12, 30, 0, 0, time.UTC)
	}
	return svc
}

func TestLockInZeroActivity(t *testing.T) {
	svc := newTestService(&fakeMoatStore{})

	m, err := svc.LockInMetrics(context.Background(), "user-1")
	require.NoError(t, err)

	assert.Equal(t, 0, m.LockInScore)
	assert.Equal(t, models.LockInNone, m.LockInLevel)
	assert.Equal(t, 0, m.IDEIntegrationUsage)
	assert.Equal(t, 0, m.CICDIntegrationUsage)
}

func TestLockInWindowIsCalendarMonth(t *testing.T) {
	store := &fakeMoatStore{}
	svc := newTestService(store)

	_, err := svc.LockInMetrics(context.Background(), "user-1")
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), store.lastSince)
}

func TestLockInLadders(t *testing.T) {
	tests := []struct {
		name      string
		store     *fakeMoatStore
		wantScore int
		wantLevel models.LockInLevel
	}{
		{
			name:      "pattern threshold edges",
			store:     &fakeMoatStore{failurePatterns: 10},
			wantScore: 10,
			wantLevel: models.LockInNone,
		},
		{
			name:      "just below pattern threshold",
			store:     &fakeMoatStore{failurePatterns: 9},
			wantScore: 0,
			wantLevel: models.LockInNone,
		},
		{
			name: "moderate engagement",
			// 50 patterns (20) + 20 matches (15) + 10 days (10) = 45
			store:     &fakeMoatStore{failurePatterns: 50, patternMatches: 20, activeDays: 10},
			wantScore: 45,
			wantLevel: models.LockInModerate,
		},
		{
			name: "full ladder",
			// 30 + 20 + 20 + 15 + 15 = 100
			store: &fakeMoatStore{
				failurePatterns: 150,
				patternMatches:  60,
				activeDays:      28,
				safetyRuns:      600,
				profile: &models.UserProfile{
					IntegrationAccess: []string{"ide", "cicd"},
				},
			},
			wantScore: 100,
			wantLevel: models.LockInStrong,
		},
		{
			name: "strong threshold",
			// 20 + 20 + 20 + 10 = 70: ide usage 20 days * 10 = 200
			store: &fakeMoatStore{
				failurePatterns: 50,
				patternMatches:  50,
				activeDays:      25,
				safetyRuns:      100,
				profile:         &models.UserProfile{IntegrationAccess: []string{"ide"}},
			},
			wantScore: 20 + 20 + 20 + 15 + 10,
			wantLevel: models.LockInStrong,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(tt.store)
			m, err := svc.LockInMetrics(context.Background(), "user-1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantScore, m.LockInScore)
			assert.Equal(t, tt.wantLevel, m.LockInLevel)
		})
	}
}

func TestLockInIntegrationUsageEstimates(t *testing.T) {
	svc := newTestService(&fakeMoatStore{
		activeDays: 12,
		profile:    &models.UserProfile{IntegrationAccess: []string{"ide", "cicd"}},
	})

	m, err := svc.LockInMetrics(context.Background(), "user-1")
	require.NoError(t, err)

	assert.Equal(t, 120, m.IDEIntegrationUsage)
	assert.Equal(t, 24, m.CICDIntegrationUsage)
}

func TestChurnZeroActivityIsHighRisk(t *testing.T) {
	svc := newTestService(&fakeMoatStore{})

	m, err := svc.ChurnPrediction(context.Background(), "user-1")
	require.NoError(t, err)

	assert.Equal(t, 100, m.ChurnRiskScore)
	assert.Equal(t, models.ChurnHigh, m.ChurnRiskLevel)
	assert.True(t, m.Indicators.LowUsage)
	assert.True(t, m.Indicators.NoGuaranteeDependency)
	assert.True(t, m.Indicators.NoIntegrationUsage)
	assert.True(t, m.Indicators.LowPatternAccumulation)
}

func TestChurnFullEngagementIsLowRisk(t *testing.T) {
	svc := newTestService(&fakeMoatStore{
		failurePatterns: 150,
		activeDays:      28,
		safetyRuns:      600,
		profile:         &models.UserProfile{IntegrationAccess: []string{"ide", "cicd"}},
	})

	m, err := svc.ChurnPrediction(context.Background(), "user-1")
	require.NoError(t, err)

	// 100 - 30 - 25 - 20 - 15 = 10
	assert.Equal(t, 10, m.ChurnRiskScore)
	assert.Equal(t, models.ChurnLow, m.ChurnRiskLevel)
	assert.False(t, m.Indicators.LowUsage)
	assert.False(t, m.Indicators.NoGuaranteeDependency)
	assert.False(t, m.Indicators.NoIntegrationUsage)
	assert.False(t, m.Indicators.LowPatternAccumulation)
}

func TestChurnMonotonicInEngagement(t *testing.T) {
	low := newTestService(&fakeMoatStore{failurePatterns: 10})
	high := newTestService(&fakeMoatStore{failurePatterns: 60, activeDays: 15})

	lowRisk, err := low.ChurnPrediction(context.Background(), "user-1")
	require.NoError(t, err)
	highEngagement, err := high.ChurnPrediction(context.Background(), "user-1")
	require.NoError(t, err)

	assert.Greater(t, lowRisk.ChurnRiskScore, highEngagement.ChurnRiskScore)
}

func TestInfrastructureSignals(t *testing.T) {
	tests := []struct {
		name       string
		store      *fakeMoatStore
		wantRate   int
		wantStatus models.InfrastructureStatus
	}{
		{
			name:       "no runs",
			store:      &fakeMoatStore{},
			wantRate:   0,
			wantStatus: models.InfraNone,
		},
		{
			name:       "strong blocking",
			store:      &fakeMoatStore{blockedRuns: 8, monthRuns: 10, safetyRuns: 10},
			wantRate:   80,
			wantStatus: models.InfraStrong,
		},
		{
			name:       "moderate blocking",
			store:      &fakeMoatStore{blockedRuns: 1, monthRuns: 2, safetyRuns: 2},
			wantRate:   50,
			wantStatus: models.InfraModerate,
		},
		{
			name:       "high volume low rate",
			store:      &fakeMoatStore{blockedRuns: 6, monthRuns: 100, safetyRuns: 100},
			wantRate:   6,
			wantStatus: models.InfraNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(tt.store)
			m, err := svc.InfrastructureSignals(context.Background(), "user-1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantRate, m.FailurePreventionRate)
			assert.Equal(t, tt.wantStatus, m.InfrastructureStatus)
		})
	}
}

func TestInfrastructureAuditEstimate(t *testing.T) {
	svc := newTestService(&fakeMoatStore{safetyRuns: 47, monthRuns: 47})

	m, err := svc.InfrastructureSignals(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 4, m.AuditLogQueries)
}

func TestMemoryValue(t *testing.T) {
	svc := newTestService(&fakeMoatStore{
		failurePatterns: 7,
		successPatterns: 3,
		totalRuns:       40,
	})

	m, err := svc.MemoryValue(context.Background(), "user-1")
	require.NoError(t, err)

	assert.Equal(t, 70, m.FailurePatternsValue)
	assert.Equal(t, 15, m.SuccessPatternsValue)
	assert.Equal(t, 40, m.AuditTrailsValue)
	assert.Equal(t, 125, m.TotalValue)
	assert.Equal(t, 125+700, m.EstimatedSwitchingCost)
}

func TestMemoryValueEmpty(t *testing.T) {
	svc := newTestService(&fakeMoatStore{})

	m, err := svc.MemoryValue(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, m.TotalValue)
	assert.Equal(t, 0, m.EstimatedSwitchingCost)
}
