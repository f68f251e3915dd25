package patterns

import (
	"fmt"

	"github.com/keysplatform/moat/pkg/models"
)

// categoryGuidance maps a failure category to the fixed prompt guidance
// injected ahead of future generations. Wording is part of the product
// contract; do not edit casually.
var categoryGuidance = map[models.PatternCategory]string{
	models.CategorySecurity:     "Ensure all security best practices are followed. Scan for vulnerabilities.",
	models.CategoryQuality:      "Ensure code quality standards are met. Follow best practices.",
	models.CategoryCompliance:   "Ensure compliance with GDPR, SOC 2, and other relevant standards.",
	models.CategoryPerformance:  "Optimize for performance. Avoid performance anti-patterns.",
	models.CategoryArchitecture: "Follow architectural best practices. Avoid anti-patterns.",
	models.CategoryBestPractice: "Follow industry best practices.",
}

// PreventionRule builds the human-readable rule stored alongside a new
// failure pattern.
func PreventionRule(category models.PatternCategory, description, reason string) string {
	return fmt.Sprintf("Prevent %s failures: %s. Reason: %s", category, description, reason)
}

// PreventionPrompt builds the prompt addition for a new failure
// pattern. Known categories get fixed guidance; rejection and revision
// feedback echo the report itself; anything else falls back to the
// reason.
func PreventionPrompt(category models.PatternCategory, description, reason string) string {
	if guidance, ok := categoryGuidance[category]; ok {
		return guidance
	}
	switch category {
	case models.CategoryRejection:
		return fmt.Sprintf("Avoid: %s", reason)
	case models.CategoryRevision:
		return fmt.Sprintf("Ensure: %s", description)
	default:
		return fmt.Sprintf("Avoid: %s", reason)
	}
}
