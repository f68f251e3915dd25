package safety

import (
	"context"
	"errors"
	"time"

	"github.com/keysplatform/moat/internal/database"
	"github.com/keysplatform/moat/internal/logging"
	"github.com/keysplatform/moat/internal/metrics"
	"github.com/keysplatform/moat/pkg/models"
)

// guaranteeTiers are the subscription tiers whose scans count toward
// the output guarantee. Free-tier scans still run; they just aren't
// tracked for billing.
var guaranteeTiers = map[string]bool{
	"pro":        true,
	"pro+":       true,
	"enterprise": true,
}

// Store is the persistence surface the safety service needs.
type Store interface {
	GetUserProfile(ctx context.Context, ownerID string) (*models.UserProfile, error)
	IncrementPreventedFailures(ctx context.Context, ownerID string) error
	InsertRun(ctx context.Context, run *models.AgentRun) error
}

// Service wraps the scanner with the bookkeeping side effects: every
// scan appends to the run ledger, and guarantee-tier scans update the
// owner's guarantee metrics. All bookkeeping is fire-and-forget; a
// scan verdict never waits on the store.
type Service struct {
	scanner *Scanner
	store   Store
	logs    *logging.Manager
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewService builds a safety service around the given scanner.
func NewService(scanner *Scanner, store Store, logs *logging.Manager) *Service {
	return &Service{
		scanner: scanner,
		store:   store,
		logs:    logs,
		metrics: metrics.NewMetrics(),
		now:     time.Now,
	}
}

// Scanner exposes the underlying scanner, mainly for the rule reloader.
func (s *Service) Scanner() *Scanner {
	return s.scanner
}

// CheckOutput scans an artifact and returns the verdict. When ownerID
// is set the scan is recorded in the run ledger and, for guarantee
// tiers, in the owner's guarantee metrics.
func (s *Service) CheckOutput(_ context.Context, ownerID, output, outputType string) models.SafetyCheckResult {
	result := s.scanner.Scan(output, outputType)

	s.metrics.RecordSafetyCheck(result.Passed, result.Blocked,
		result.Checks.Security.Score, result.Checks.Quality.Score)

	if ownerID != "" {
		s.trackAsync(ownerID, result)
	}

	return result
}

// trackAsync records the run and guarantee metrics in the background.
func (s *Service) trackAsync(ownerID string, result models.SafetyCheckResult) {
	at := s.now().UTC()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.store.InsertRun(ctx, &models.AgentRun{
			OwnerID:       ownerID,
			SafetyChecked: true,
			SafetyPassed:  result.Passed,
			CreatedAt:     at,
		}); err != nil {
			s.warn("failed to record safety run", map[string]any{
				"owner_id": ownerID, "error": err.Error(),
			})
		}

		s.trackGuarantee(ctx, ownerID, result)
	}()
}

// trackGuarantee updates guarantee metrics for paying tiers. Errors are
// logged and dropped: guarantee accounting must never surface to the
// scan caller.
func (s *Service) trackGuarantee(ctx context.Context, ownerID string, result models.SafetyCheckResult) {
	profile, err := s.store.GetUserProfile(ctx, ownerID)
	if errors.Is(err, database.ErrNotFound) {
		return
	}
	if err != nil {
		s.warn("failed to load profile for guarantee tracking", map[string]any{
			"owner_id": ownerID, "error": err.Error(),
		})
		return
	}

	tier := profile.SubscriptionTier
	if tier == "" {
		tier = "free"
	}
	if !guaranteeTiers[tier] {
		return
	}

	if result.Blocked {
		if err := s.store.IncrementPreventedFailures(ctx, ownerID); err != nil {
			s.warn("failed to increment prevented failures", map[string]any{
				"owner_id": ownerID, "error": err.Error(),
			})
		}
	}

	usage := map[string]any{}
	for _, coverage := range profile.GuaranteeCoverage {
		switch coverage {
		case "security":
			usage["security_checks"] = 1
			usage["security_vulnerabilities_found"] = len(result.Checks.Security.Vulnerabilities)
			usage["security_vulnerabilities_blocked"] = countCritical(result.Checks.Security.Vulnerabilities)
		case "compliance":
			usage["compliance_checks"] = 1
			usage["compliance_violations_found"] = len(result.Checks.Compliance.Violations)
			usage["compliance_violations_blocked"] = countCriticalViolations(result.Checks.Compliance.Violations)
		case "quality":
			usage["quality_checks"] = 1
			usage["quality_issues_found"] = len(result.Checks.Quality.Issues)
			usage["quality_score"] = result.Checks.Quality.Score
		}
	}

	s.info("guarantee metrics tracked", map[string]any{
		"owner_id":           ownerID,
		"tier":               tier,
		"guarantee_coverage": profile.GuaranteeCoverage,
		"prevented_failures": profile.PreventedFailuresCount,
		"guarantee_usage":    usage,
	})
}

func countCritical(vulns []models.SecurityVulnerability) int {
	n := 0
	for _, v := range vulns {
		if v.Severity == models.SeverityCritical {
			n++
		}
	}
	return n
}

func countCriticalViolations(violations []models.ComplianceViolation) int {
	n := 0
	for _, v := range violations {
		if v.Severity == models.SeverityCritical {
			n++
		}
	}
	return n
}

func (s *Service) info(message string, metadata map[string]any) {
	if s.logs != nil {
		s.logs.Info("safety", message, metadata)
	}
}

func (s *Service) warn(message string, metadata map[string]any) {
	if s.logs != nil {
		s.logs.Warn("safety", message, metadata)
	}
}
