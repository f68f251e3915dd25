// Package moat computes the retention analytics derived from the
// pattern store and run ledger: lock-in depth, churn risk, blocking
// infrastructure signals, and the dollar value of accumulated memory.
// All scores are recomputed on demand; nothing here is persisted.
package moat

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/keysplatform/moat/internal/cache"
	"github.com/keysplatform/moat/internal/database"
	"github.com/keysplatform/moat/internal/metrics"
	"github.com/keysplatform/moat/pkg/models"
)

// Estimated integration traffic per active day. Real per-call tracking
// lives in the integrations themselves; the moat only sees days.
const (
	ideUsesPerActiveDay  = 10
	cicdUsesPerActiveDay = 2
)

// Store is the aggregate surface the scorers read from.
type Store interface {
	CountFailurePatterns(ctx context.Context, ownerID string) (int, error)
	CountSuccessPatterns(ctx context.Context, ownerID string) (int, error)
	CountPatternMatchesSince(ctx context.Context, ownerID string, since time.Time) (int, error)
	CountMatchProjectsSince(ctx context.Context, ownerID string, since time.Time) (int, error)
	CountRuns(ctx context.Context, ownerID string) (int, error)
	CountRunsSince(ctx context.Context, ownerID string, since time.Time) (int, error)
	CountSafetyCheckedRunsSince(ctx context.Context, ownerID string, since time.Time) (int, error)
	CountBlockedRunsSince(ctx context.Context, ownerID string, since time.Time) (int, error)
	CountActiveDaysSince(ctx context.Context, ownerID string, since time.Time) (int, error)
	GetUserProfile(ctx context.Context, ownerID string) (*models.UserProfile, error)
}

// Service computes moat scores. The cache is optional; scores are cheap
// enough to recompute but hot dashboards hammer them.
type Service struct {
	store   Store
	cache   *cache.Cache
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewService builds a scoring service.
func NewService(store Store, scoreCache *cache.Cache) *Service {
	return &Service{
		store:   store,
		cache:   scoreCache,
		metrics: metrics.NewMetrics(),
		now:     time.Now,
	}
}

// monthStart returns the first instant of the current calendar month in
// UTC. Monthly aggregates reset at month boundaries: the scores measure
// current engagement, not lifetime totals.
func (s *Service) monthStart() time.Time {
	now := s.now().UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// LockInMetrics scores how embedded an owner is, 0-100.
func (s *Service) LockInMetrics(ctx context.Context, ownerID string) (*models.LockInMetrics, error) {
	s.metrics.RecordScoreRequest("lock_in")

	key := "moat:lockin:" + ownerID
	cached := &models.LockInMetrics{}
	if s.cache.GetJSON(ctx, key, cached) {
		return cached, nil
	}

	m, err := s.computeLockIn(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	s.cache.SetJSON(ctx, key, m)
	return m, nil
}

func (s *Service) computeLockIn(ctx context.Context, ownerID string) (*models.LockInMetrics, error) {
	since := s.monthStart()

	failureCount, err := s.store.CountFailurePatterns(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to count failure patterns: %w", err)
	}
	matches, err := s.store.CountPatternMatchesSince(ctx, ownerID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count pattern matches: %w", err)
	}
	safetyRuns, err := s.store.CountSafetyCheckedRunsSince(ctx, ownerID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count safety-checked runs: %w", err)
	}
	crossProject, err := s.store.CountMatchProjectsSince(ctx, ownerID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count match projects: %w", err)
	}
	activeDays, err := s.store.CountActiveDaysSince(ctx, ownerID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count active days: %w", err)
	}

	hasIDE, hasCICD := false, false
	profile, err := s.store.GetUserProfile(ctx, ownerID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	if profile != nil {
		for _, integration := range profile.IntegrationAccess {
			switch integration {
			case "ide":
				hasIDE = true
			case "cicd":
				hasCICD = true
			}
		}
	}

	ideUsage, cicdUsage := 0, 0
	if hasIDE {
		ideUsage = activeDays * ideUsesPerActiveDay
	}
	if hasCICD {
		cicdUsage = activeDays * cicdUsesPerActiveDay
	}

	score := 0
	score += ladder(failureCount, 100, 50, 10, 30, 20, 10)
	score += ladder(matches, 50, 20, 10, 20, 15, 10)
	score += ladder(activeDays, 25, 20, 10, 20, 15, 10)

	// Integration usage: either channel can earn the points.
	switch {
	case ideUsage >= 200 || cicdUsage >= 50:
		score += 15
	case ideUsage >= 100 || cicdUsage >= 25:
		score += 10
	case ideUsage >= 50 || cicdUsage >= 10:
		score += 5
	}

	score += ladder(safetyRuns, 500, 100, 50, 15, 10, 5)

	level := models.LockInNone
	switch {
	case score >= 70:
		level = models.LockInStrong
	case score >= 40:
		level = models.LockInModerate
	}

	return &models.LockInMetrics{
		OwnerID:                  ownerID,
		FailurePatternCount:      failureCount,
		PatternMatchFrequency:    matches,
		PreventionRuleApplies:    safetyRuns,
		CrossProjectPatternUsage: crossProject,
		DailyUsageFrequency:      activeDays,
		IDEIntegrationUsage:      ideUsage,
		CICDIntegrationUsage:     cicdUsage,
		GuaranteeDependency:      safetyRuns,
		LockInScore:              score,
		LockInLevel:              level,
	}, nil
}

// ChurnPrediction inverts the lock-in signals: risk starts at 100 and
// each engagement signal subtracts from it.
func (s *Service) ChurnPrediction(ctx context.Context, ownerID string) (*models.ChurnPredictionMetrics, error) {
	s.metrics.RecordScoreRequest("churn")

	lockIn, err := s.computeLockIn(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	risk := 100
	risk -= ladder(lockIn.FailurePatternCount, 100, 50, 10, 30, 20, 10)
	risk -= ladder(lockIn.DailyUsageFrequency, 25, 20, 10, 25, 15, 10)

	switch {
	case lockIn.IDEIntegrationUsage >= 200 || lockIn.CICDIntegrationUsage >= 50:
		risk -= 20
	case lockIn.IDEIntegrationUsage >= 100 || lockIn.CICDIntegrationUsage >= 25:
		risk -= 10
	}

	switch {
	case lockIn.GuaranteeDependency >= 500:
		risk -= 15
	case lockIn.GuaranteeDependency >= 100:
		risk -= 10
	}

	if risk < 0 {
		risk = 0
	}
	if risk > 100 {
		risk = 100
	}

	level := models.ChurnHigh
	switch {
	case risk <= 30:
		level = models.ChurnLow
	case risk <= 60:
		level = models.ChurnMedium
	}

	return &models.ChurnPredictionMetrics{
		OwnerID:        ownerID,
		ChurnRiskScore: risk,
		ChurnRiskLevel: level,
		Indicators: models.ChurnIndicators{
			LowUsage:               lockIn.DailyUsageFrequency < 10,
			NoGuaranteeDependency:  lockIn.GuaranteeDependency < 50,
			NoIntegrationUsage:     lockIn.IDEIntegrationUsage == 0 && lockIn.CICDIntegrationUsage == 0,
			LowPatternAccumulation: lockIn.FailurePatternCount < 50,
		},
	}, nil
}

// InfrastructureSignals reports how load-bearing the safety gate has
// become this month.
func (s *Service) InfrastructureSignals(ctx context.Context, ownerID string) (*models.InfrastructureSignals, error) {
	s.metrics.RecordScoreRequest("infrastructure")
	since := s.monthStart()

	blocked, err := s.store.CountBlockedRunsSince(ctx, ownerID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count blocked runs: %w", err)
	}
	total, err := s.store.CountRunsSince(ctx, ownerID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}
	safetyRuns, err := s.store.CountSafetyCheckedRunsSince(ctx, ownerID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count safety-checked runs: %w", err)
	}

	rate := 0
	if total > 0 {
		rate = int(math.Round(float64(blocked) / float64(total) * 100))
	}

	status := models.InfraNone
	switch {
	case blocked >= 5 && rate >= 80:
		status = models.InfraStrong
	case blocked >= 1 && rate >= 50:
		status = models.InfraModerate
	}

	return &models.InfrastructureSignals{
		OwnerID:               ownerID,
		DeploymentBlocks:      blocked,
		FailurePreventionRate: rate,
		ComplianceChecks:      safetyRuns,
		AuditLogQueries:       safetyRuns / 10,
		InfrastructureStatus:  status,
	}, nil
}

// MemoryValue prices the accumulated memory: $10 per failure pattern,
// $5 per success pattern, $1 per run record. The switching cost adds a
// $100-per-failure-pattern rebuild estimate on top.
func (s *Service) MemoryValue(ctx context.Context, ownerID string) (*models.MemoryValue, error) {
	s.metrics.RecordScoreRequest("memory_value")

	failureCount, err := s.store.CountFailurePatterns(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to count failure patterns: %w", err)
	}
	successCount, err := s.store.CountSuccessPatterns(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to count success patterns: %w", err)
	}
	runCount, err := s.store.CountRuns(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}

	failureValue := failureCount * 10
	successValue := successCount * 5
	auditValue := runCount * 1
	total := failureValue + successValue + auditValue

	return &models.MemoryValue{
		OwnerID:                ownerID,
		FailurePatternsValue:   failureValue,
		SuccessPatternsValue:   successValue,
		AuditTrailsValue:       auditValue,
		TotalValue:             total,
		EstimatedSwitchingCost: total + failureCount*100,
	}, nil
}

// ladder maps a count onto a three-step point scale: points1 at or
// above threshold1, and so on down. Thresholds must be descending.
func ladder(value, threshold1, threshold2, threshold3, points1, points2, points3 int) int {
	switch {
	case value >= threshold1:
		return points1
	case value >= threshold2:
		return points2
	case value >= threshold3:
		return points3
	}
	return 0
}
