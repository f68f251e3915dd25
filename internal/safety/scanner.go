package safety

import (
	"strings"
	"sync"

	"github.com/keysplatform/moat/pkg/models"
)

// Scanner runs the three detector families over an artifact. Safe for
// concurrent use; extra rules loaded from an override file are swapped
// atomically under the mutex.
type Scanner struct {
	mu            sync.RWMutex
	securityRules []securityRule
}

// NewScanner builds a scanner with the built-in rule set.
func NewScanner() *Scanner {
	return &Scanner{securityRules: defaultSecurityRules}
}

// setExtraRules replaces the override rules appended after the built-in
// security set. Used by the rule reloader.
func (s *Scanner) setExtraRules(extra []securityRule) {
	merged := make([]securityRule, 0, len(defaultSecurityRules)+len(extra))
	merged = append(merged, defaultSecurityRules...)
	merged = append(merged, extra...)

	s.mu.Lock()
	s.securityRules = merged
	s.mu.Unlock()
}

// Scan runs every detector over the artifact and aggregates the
// verdict. outputType hints at the artifact's domain; "health" output
// types pull in the HIPAA rules even without health keywords in the
// text.
func (s *Scanner) Scan(output, outputType string) models.SafetyCheckResult {
	security := s.checkSecurity(output)
	compliance := s.checkCompliance(output, outputType)
	quality := s.checkQuality(output)

	warnings := make([]models.SafetyWarning, 0,
		len(security.Vulnerabilities)+len(compliance.Violations)+len(quality.Issues))

	for _, v := range security.Vulnerabilities {
		warnings = append(warnings, models.SafetyWarning{
			Type:       models.WarningSecurity,
			Severity:   v.Severity,
			Message:    v.Description,
			Pattern:    v.Pattern,
			Suggestion: v.Fix,
		})
	}
	for _, v := range compliance.Violations {
		warnings = append(warnings, models.SafetyWarning{
			Type:       models.WarningCompliance,
			Severity:   v.Severity,
			Message:    v.Description,
			Suggestion: v.Fix,
		})
	}
	for _, i := range quality.Issues {
		warnings = append(warnings, models.SafetyWarning{
			Type:       models.WarningQuality,
			Severity:   i.Severity,
			Message:    i.Description,
			Pattern:    i.Pattern,
			Suggestion: i.Suggestion,
		})
	}

	// Only critical security or compliance findings block; quality never
	// does, however bad the score.
	blocked := false
	for _, w := range warnings {
		if w.Severity == models.SeverityCritical &&
			(w.Type == models.WarningSecurity || w.Type == models.WarningCompliance) {
			blocked = true
			break
		}
	}

	passed := !blocked && security.Passed && compliance.Passed && quality.Passed

	return models.SafetyCheckResult{
		Passed:   passed,
		Blocked:  blocked,
		Warnings: warnings,
		Checks: models.SafetyChecks{
			Security:   security,
			Compliance: compliance,
			Quality:    quality,
		},
	}
}

func (s *Scanner) checkSecurity(output string) models.SecurityCheckResult {
	s.mu.RLock()
	rules := s.securityRules
	s.mu.RUnlock()

	var vulns []models.SecurityVulnerability
	for _, rule := range rules {
		for _, match := range rule.re.FindAllString(output, -1) {
			vulns = append(vulns, models.SecurityVulnerability{
				Type:        rule.kind,
				Severity:    rule.severity,
				Pattern:     rule.patternOf(match),
				Description: rule.describe(match),
				Fix:         rule.fix,
			})
		}
	}

	return models.SecurityCheckResult{
		Passed:          len(vulns) == 0,
		Vulnerabilities: vulns,
		Score:           scoreFrom(severityCounts(vulns), 30, 15),
	}
}

func (s *Scanner) checkCompliance(output, outputType string) models.ComplianceCheckResult {
	rules := defaultComplianceRules
	if healthContext(output, outputType) {
		rules = append(append([]complianceRule{}, rules...), hipaaRules...)
	}

	var violations []models.ComplianceViolation
	for _, rule := range rules {
		hits := rule.trigger.FindAllString(output, -1)
		if len(hits) == 0 || guardsSatisfied(rule, output) {
			continue
		}
		for range hits {
			violations = append(violations, models.ComplianceViolation{
				Standard:    rule.standard,
				Violation:   rule.violation,
				Severity:    rule.severity,
				Description: rule.desc,
				Fix:         rule.fix,
			})
		}
	}

	standards := models.StandardsPassed{GDPR: true, SOC2: true, HIPAA: true}
	for _, v := range violations {
		switch v.Standard {
		case models.StandardGDPR:
			standards.GDPR = false
		case models.StandardSOC2:
			standards.SOC2 = false
		case models.StandardHIPAA:
			standards.HIPAA = false
		}
	}

	return models.ComplianceCheckResult{
		Passed:     len(violations) == 0,
		Violations: violations,
		Standards:  standards,
	}
}

func (s *Scanner) checkQuality(output string) models.QualityCheckResult {
	var issues []models.QualityIssue
	for _, rule := range defaultQualityRules {
		hits := rule.trigger.FindAllString(output, -1)
		if len(hits) == 0 {
			continue
		}
		if rule.guard != nil && rule.guard.MatchString(output) {
			continue
		}
		for range hits {
			issues = append(issues, rule.issue)
		}
	}

	counts := qualitySeverityCounts(issues)
	return models.QualityCheckResult{
		// Low and medium noise is tolerated; critical or high fails.
		Passed: counts[models.SeverityCritical] == 0 && counts[models.SeverityHigh] == 0,
		Issues: issues,
		Score:  scoreFrom(counts, 20, 10),
	}
}

func guardsSatisfied(rule complianceRule, output string) bool {
	if rule.requireAll {
		for _, g := range rule.guards {
			if !g.MatchString(output) {
				return false
			}
		}
		return true
	}
	for _, g := range rule.guards {
		if g.MatchString(output) {
			return true
		}
	}
	return false
}

func healthContext(output, outputType string) bool {
	return strings.Contains(outputType, "health") || healthContextRe.MatchString(output)
}

func severityCounts(vulns []models.SecurityVulnerability) map[models.Severity]int {
	counts := map[models.Severity]int{}
	for _, v := range vulns {
		counts[v.Severity]++
	}
	return counts
}

func qualitySeverityCounts(issues []models.QualityIssue) map[models.Severity]int {
	counts := map[models.Severity]int{}
	for _, i := range issues {
		counts[i.Severity]++
	}
	return counts
}

// scoreFrom deducts per finding from a perfect 100, clamped at zero.
// Medium costs 5 and low costs 2 in both scoring families.
func scoreFrom(counts map[models.Severity]int, criticalWeight, highWeight int) int {
	score := 100 -
		counts[models.SeverityCritical]*criticalWeight -
		counts[models.SeverityHigh]*highWeight -
		counts[models.SeverityMedium]*5 -
		counts[models.SeverityLow]*2
	if score < 0 {
		return 0
	}
	return score
}
