// Package patterns is the institutional-memory core: it records failure
// and success patterns per owner, deduplicates repeat reports by
// signature similarity, and serves the derived prevention guidance.
package patterns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/keysplatform/moat/internal/logging"
	"github.com/keysplatform/moat/internal/metrics"
	"github.com/keysplatform/moat/internal/signature"
	"github.com/keysplatform/moat/pkg/models"
)

// Similarity thresholds. 0.7 means "same pattern, update in place";
// 0.6 is the warn floor for match reporting; 0.9 is the exact band
// within the warn regime. Frozen business rules, not tunables.
const (
	matchThreshold = 0.7
	warnThreshold  = 0.6
	exactThreshold = 0.9
)

const (
	defaultRuleLimit    = 10
	defaultSuccessLimit = 5
)

var (
	// ErrInvalidCategory rejects a category outside the accepted enum
	// before any store access.
	ErrInvalidCategory = errors.New("invalid pattern category")

	// ErrInvalidSeverity rejects a severity outside the accepted enum.
	ErrInvalidSeverity = errors.New("invalid severity")
)

// Store is the record-store surface the service needs. Implemented by
// *database.Database.
type Store interface {
	InsertFailurePattern(ctx context.Context, p *models.FailurePattern) error
	ListUnresolvedFailures(ctx context.Context, ownerID string) ([]*models.FailurePattern, error)
	UpdateFailureOccurrence(ctx context.Context, id, reason string, at time.Time) (*models.FailurePattern, error)
	ResolveFailurePattern(ctx context.Context, ownerID, id string, at time.Time) (*models.FailurePattern, error)
	ListPreventionHints(ctx context.Context, ownerID string, limit int) ([]string, error)

	InsertSuccessPattern(ctx context.Context, p *models.SuccessPattern) error
	ListSuccessPatterns(ctx context.Context, ownerID string) ([]*models.SuccessPattern, error)
	TopSuccessPatterns(ctx context.Context, ownerID string, limit int) ([]*models.SuccessPattern, error)
	UpdateSuccessUsage(ctx context.Context, id string, usageCount int, successRate float64, at time.Time) (*models.SuccessPattern, error)

	InsertPatternMatch(ctx context.Context, ownerID string, m models.PatternMatch, at time.Time) error
}

// Publisher emits fire-and-forget domain events. May be nil.
type Publisher interface {
	Publish(subject string, payload any)
}

// Service records and retrieves patterns for a single deployment.
// Stateless between calls; all state lives in the store.
type Service struct {
	store   Store
	logs    *logging.Manager
	events  Publisher
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewService builds a pattern service. The logging manager and
// publisher may be nil.
func NewService(store Store, logs *logging.Manager, events Publisher) *Service {
	return &Service{
		store:   store,
		logs:    logs,
		events:  events,
		metrics: metrics.NewMetrics(),
		now:     time.Now,
	}
}

// FailureReport is one inbound failure observation.
type FailureReport struct {
	Category        models.PatternCategory `json:"pattern_type"`
	Description     string                 `json:"pattern_description"`
	OriginalOutput  string                 `json:"original_output"`
	FailureReason   string                 `json:"failure_reason"`
	DetectedIn      string                 `json:"detected_in,omitempty"`
	ContextSnapshot map[string]any         `json:"context_snapshot,omitempty"`
	TemplateID      string                 `json:"template_id,omitempty"`
	ConfigSnapshot  map[string]any         `json:"config_snapshot,omitempty"`
	Severity        models.Severity        `json:"severity,omitempty"`
}

// SuccessReport is one inbound success observation.
type SuccessReport struct {
	Category        models.PatternCategory `json:"pattern_type"`
	Description     string                 `json:"pattern_description"`
	Context         string                 `json:"context"`
	Outcome         string                 `json:"outcome"`
	SuccessFactors  []string               `json:"success_factors"`
	TemplateID      string                 `json:"template_id,omitempty"`
	ConfigSnapshot  map[string]any         `json:"config_snapshot,omitempty"`
	ContextSnapshot map[string]any         `json:"context_snapshot,omitempty"`
	OutputExample   string                 `json:"output_example,omitempty"`
}

// RecordFailure stores a failure report, folding it into an existing
// pattern when one matches above the update threshold. Matching uses
// the first unresolved pattern above 0.7; the candidate list is fetched
// ordered by severity and occurrence count, so "first" is stable.
func (s *Service) RecordFailure(ctx context.Context, ownerID string, report FailureReport) (*models.FailurePattern, error) {
	if !validCategory(report.Category, models.FailureCategories) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCategory, report.Category)
	}
	severity := report.Severity
	if severity == "" {
		severity = models.SeverityMedium
	}
	if models.SeverityRank(severity) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSeverity, report.Severity)
	}

	sig := signature.GenerateFromContext(report.Description, report.OriginalOutput, report.ContextSnapshot)

	// A failed read here degrades to "no existing pattern": losing a
	// dedup is cheaper than losing the recording.
	existing, err := s.store.ListUnresolvedFailures(ctx, ownerID)
	if err != nil {
		s.warn("failed to fetch failure patterns for matching, treating as new", map[string]any{
			"owner_id": ownerID, "error": err.Error(),
		})
		existing = nil
	}

	for _, candidate := range existing {
		if signature.Similarity(sig, candidate.Signature) > matchThreshold {
			updated, err := s.store.UpdateFailureOccurrence(ctx, candidate.ID, report.FailureReason, s.now().UTC())
			if err != nil {
				return nil, fmt.Errorf("failed to update failure pattern: %w", err)
			}
			s.info("updated existing failure pattern", map[string]any{
				"owner_id":         ownerID,
				"pattern_id":       updated.ID,
				"occurrence_count": updated.OccurrenceCount,
			})
			s.publish("moat.pattern.failure.repeated", updated)
			s.metrics.RecordPattern("failure", "updated")
			return updated, nil
		}
	}

	pattern := &models.FailurePattern{
		ID:              uuid.NewString(),
		OwnerID:         ownerID,
		Category:        report.Category,
		Description:     report.Description,
		Signature:       sig,
		DetectedIn:      report.DetectedIn,
		OriginalOutput:  report.OriginalOutput,
		FailureReason:   report.FailureReason,
		PreventionRule:  PreventionRule(report.Category, report.Description, report.FailureReason),
		PreventionHint:  PreventionPrompt(report.Category, report.Description, report.FailureReason),
		ContextSnapshot: marshalSnapshot(report.ContextSnapshot),
		TemplateID:      report.TemplateID,
		ConfigSnapshot:  marshalSnapshot(report.ConfigSnapshot),
		Severity:        severity,
		Resolved:        false,
		OccurrenceCount: 1,
		LastOccurrence:  s.now().UTC(),
	}

	if err := s.store.InsertFailurePattern(ctx, pattern); err != nil {
		return nil, fmt.Errorf("failed to create failure pattern: %w", err)
	}

	s.info("created new failure pattern", map[string]any{
		"owner_id":   ownerID,
		"pattern_id": pattern.ID,
		"category":   string(pattern.Category),
	})
	s.publish("moat.pattern.failure.recorded", pattern)
	s.metrics.RecordPattern("failure", "created")

	return pattern, nil
}

// RecordSuccess stores a success report; repeat matches bump the usage
// count and fold a fresh win into the running success rate.
func (s *Service) RecordSuccess(ctx context.Context, ownerID string, report SuccessReport) (*models.SuccessPattern, error) {
	if !validCategory(report.Category, models.SuccessCategories) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCategory, report.Category)
	}

	sig := signature.GenerateFromContext(report.Description, report.OutputExample, report.ContextSnapshot)

	existing, err := s.store.ListSuccessPatterns(ctx, ownerID)
	if err != nil {
		s.warn("failed to fetch success patterns for matching, treating as new", map[string]any{
			"owner_id": ownerID, "error": err.Error(),
		})
		existing = nil
	}

	for _, candidate := range existing {
		if signature.Similarity(sig, candidate.Signature) > matchThreshold {
			// Weighted incremental average: this call contributes one
			// success to the running rate.
			newCount := candidate.UsageCount + 1
			newRate := (candidate.SuccessRate*float64(candidate.UsageCount) + 1) / float64(newCount)

			updated, err := s.store.UpdateSuccessUsage(ctx, candidate.ID, newCount, newRate, s.now().UTC())
			if err != nil {
				return nil, fmt.Errorf("failed to update success pattern: %w", err)
			}
			s.publish("moat.pattern.success.repeated", updated)
			s.metrics.RecordPattern("success", "updated")
			return updated, nil
		}
	}

	pattern := &models.SuccessPattern{
		ID:              uuid.NewString(),
		OwnerID:         ownerID,
		Category:        report.Category,
		Description:     report.Description,
		Signature:       sig,
		Context:         report.Context,
		Outcome:         report.Outcome,
		SuccessFactors:  report.SuccessFactors,
		TemplateID:      report.TemplateID,
		ConfigSnapshot:  marshalSnapshot(report.ConfigSnapshot),
		ContextSnapshot: marshalSnapshot(report.ContextSnapshot),
		OutputExample:   report.OutputExample,
		UsageCount:      1,
		SuccessRate:     1.0,
		LastUsed:        s.now().UTC(),
	}

	if err := s.store.InsertSuccessPattern(ctx, pattern); err != nil {
		return nil, fmt.Errorf("failed to create success pattern: %w", err)
	}

	s.publish("moat.pattern.success.recorded", pattern)
	s.metrics.RecordPattern("success", "created")
	return pattern, nil
}

// CheckForSimilarFailures compares a candidate artifact against every
// unresolved failure pattern for the owner and returns all matches
// above the warn threshold. Matches are also appended to the match
// ledger in the background for the monthly frequency aggregates.
func (s *Service) CheckForSimilarFailures(ctx context.Context, ownerID, candidate string, contextSnapshot map[string]any) ([]models.PatternMatch, error) {
	sig := signature.GenerateFromContext("", candidate, contextSnapshot)

	patterns, err := s.store.ListUnresolvedFailures(ctx, ownerID)
	if err != nil {
		s.warn("failed to fetch failure patterns, returning no matches", map[string]any{
			"owner_id": ownerID, "error": err.Error(),
		})
		return nil, nil
	}

	var matches []models.PatternMatch
	for _, pattern := range patterns {
		score := signature.Similarity(sig, pattern.Signature)
		if score <= warnThreshold {
			continue
		}

		class := models.MatchSimilar
		if score > exactThreshold {
			class = models.MatchExact
		}

		matches = append(matches, models.PatternMatch{
			PatternID:  pattern.ID,
			Kind:       models.MatchKindFailure,
			Class:      class,
			Confidence: score,
			DetectedIn: pattern.DetectedIn,
		})
		s.metrics.RecordPatternMatch(string(class))
	}

	if len(matches) > 0 {
		s.recordMatches(ownerID, matches)
	}

	return matches, nil
}

// GetPreventionRules returns the prompt additions of the owner's top
// unresolved failure patterns, highest severity and occurrence first.
func (s *Service) GetPreventionRules(ctx context.Context, ownerID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = defaultRuleLimit
	}
	s.metrics.PreventionRules.Inc()
	hints, err := s.store.ListPreventionHints(ctx, ownerID, limit)
	if err != nil {
		s.warn("failed to fetch prevention rules", map[string]any{
			"owner_id": ownerID, "error": err.Error(),
		})
		return nil, nil
	}
	return hints, nil
}

// GetSuccessPatterns returns the owner's most successful patterns.
func (s *Service) GetSuccessPatterns(ctx context.Context, ownerID string, limit int) ([]*models.SuccessPattern, error) {
	if limit <= 0 {
		limit = defaultSuccessLimit
	}
	patterns, err := s.store.TopSuccessPatterns(ctx, ownerID, limit)
	if err != nil {
		s.warn("failed to fetch success patterns", map[string]any{
			"owner_id": ownerID, "error": err.Error(),
		})
		return nil, nil
	}
	return patterns, nil
}

// ResolveFailure marks a failure pattern resolved; resolved patterns
// stop participating in matching and prevention rules.
func (s *Service) ResolveFailure(ctx context.Context, ownerID, patternID string) (*models.FailurePattern, error) {
	return s.store.ResolveFailurePattern(ctx, ownerID, patternID, s.now().UTC())
}

// recordMatches appends match events to the ledger without blocking the
// caller; ledger failures are logged and dropped.
func (s *Service) recordMatches(ownerID string, matches []models.PatternMatch) {
	at := s.now().UTC()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, m := range matches {
			if err := s.store.InsertPatternMatch(ctx, ownerID, m, at); err != nil {
				s.warn("failed to record pattern match", map[string]any{
					"owner_id": ownerID, "pattern_id": m.PatternID, "error": err.Error(),
				})
			}
		}
	}()
}

func (s *Service) publish(subject string, payload any) {
	if s.events != nil {
		s.events.Publish(subject, payload)
	}
}

func (s *Service) info(message string, metadata map[string]any) {
	if s.logs != nil {
		s.logs.Info("patterns", message, metadata)
	}
}

func (s *Service) warn(message string, metadata map[string]any) {
	if s.logs != nil {
		s.logs.Warn("patterns", message, metadata)
	}
}

func validCategory(c models.PatternCategory, accepted []models.PatternCategory) bool {
	for _, candidate := range accepted {
		if c == candidate {
			return true
		}
	}
	return false
}

func marshalSnapshot(snapshot map[string]any) string {
	if snapshot == nil {
		return ""
	}
	b, err := json.Marshal(snapshot)
	if err != nil {
		return ""
	}
	return string(b)
}
