package models

import "time"

// PatternCategory classifies what kind of mistake or win a pattern records.
type PatternCategory string

const (
	CategorySecurity     PatternCategory = "security"
	CategoryQuality      PatternCategory = "quality"
	CategoryCompliance   PatternCategory = "compliance"
	CategoryPerformance  PatternCategory = "performance"
	CategoryArchitecture PatternCategory = "architecture"
	CategoryBestPractice PatternCategory = "best_practice"
	CategoryRejection    PatternCategory = "user_rejection"
	CategoryRevision     PatternCategory = "user_revision"

	// Success-only categories
	CategoryApproval        PatternCategory = "user_approval"
	CategoryProductionReady PatternCategory = "production_ready"
)

// FailureCategories lists the categories accepted when recording a failure.
var FailureCategories = []PatternCategory{
	CategorySecurity, CategoryQuality, CategoryCompliance, CategoryPerformance,
	CategoryArchitecture, CategoryBestPractice, CategoryRejection, CategoryRevision,
}

// SuccessCategories lists the categories accepted when recording a success.
var SuccessCategories = []PatternCategory{
	CategorySecurity, CategoryQuality, CategoryCompliance, CategoryPerformance,
	CategoryArchitecture, CategoryBestPractice, CategoryApproval, CategoryProductionReady,
}

// Severity grades how bad a recorded failure or finding is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// SeverityRank orders severities for sorting, highest first.
func SeverityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// FailurePattern is one recorded mistake for an owner. The signature
// clusters repeated reports of the same mistake; the occurrence count
// grows each time a matching report arrives and never resets.
type FailurePattern struct {
	ID             string          `json:"id"`
	OwnerID        string          `json:"owner_id"`
	Category       PatternCategory `json:"category"`
	Description    string          `json:"description"`
	Signature      string          `json:"signature"`
	DetectedIn     string          `json:"detected_in,omitempty"`
	OriginalOutput string          `json:"original_output,omitempty"`
	FailureReason  string          `json:"failure_reason"`
	PreventionRule string          `json:"prevention_rule"`
	PreventionHint string          `json:"prevention_prompt_addition"`
	// Context and config snapshots are opaque JSON blobs; nothing in the
	// core inspects their fields.
	ContextSnapshot string     `json:"context_snapshot,omitempty"`
	TemplateID      string     `json:"template_id,omitempty"`
	ConfigSnapshot  string     `json:"config_snapshot,omitempty"`
	Severity        Severity   `json:"severity"`
	Resolved        bool       `json:"resolved"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	OccurrenceCount int        `json:"occurrence_count"`
	LastOccurrence  time.Time  `json:"last_occurrence"`
	CreatedAt       time.Time  `json:"created_at"`
}

// SuccessPattern mirrors FailurePattern for approved or
// production-validated outputs.
type SuccessPattern struct {
	ID              string          `json:"id"`
	OwnerID         string          `json:"owner_id"`
	Category        PatternCategory `json:"category"`
	Description     string          `json:"description"`
	Signature       string          `json:"signature"`
	Context         string          `json:"context"`
	Outcome         string          `json:"outcome"`
	SuccessFactors  []string        `json:"success_factors"`
	TemplateID      string          `json:"template_id,omitempty"`
	ConfigSnapshot  string          `json:"config_snapshot,omitempty"`
	ContextSnapshot string          `json:"context_snapshot,omitempty"`
	OutputExample   string          `json:"output_example,omitempty"`
	UsageCount      int             `json:"usage_count"`
	SuccessRate     float64         `json:"success_rate"`
	LastUsed        time.Time       `json:"last_used"`
	CreatedAt       time.Time       `json:"created_at"`
}

// MatchKind says which ledger a match came from.
type MatchKind string

const (
	MatchKindFailure MatchKind = "failure"
	MatchKindSuccess MatchKind = "success"
)

// MatchClass buckets a match by confidence: "exact" at >= 0.9
// similarity, "similar" between the warn threshold and 0.9.
type MatchClass string

const (
	MatchExact   MatchClass = "exact"
	MatchSimilar MatchClass = "similar"
)

// PatternMatch is an ephemeral comparison result against a stored pattern.
type PatternMatch struct {
	PatternID  string     `json:"pattern_id"`
	Kind       MatchKind  `json:"pattern_type"`
	Class      MatchClass `json:"match_type"`
	Confidence float64    `json:"match_confidence"`
	DetectedIn string     `json:"detected_in,omitempty"`
}

// AgentRun is one entry in the run/activity ledger. Monthly aggregates
// for lock-in and infrastructure scoring are computed over these rows.
type AgentRun struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"owner_id"`
	SafetyChecked bool      `json:"safety_checked"`
	SafetyPassed  bool      `json:"safety_passed"`
	CreatedAt     time.Time `json:"created_at"`
}

// UserProfile carries the billing attributes the guarantee tracker needs.
type UserProfile struct {
	OwnerID                string   `json:"owner_id"`
	SubscriptionTier       string   `json:"subscription_tier"`
	GuaranteeCoverage      []string `json:"guarantee_coverage"`
	IntegrationAccess      []string `json:"integration_access"`
	PreventedFailuresCount int      `json:"prevented_failures_count"`
}
