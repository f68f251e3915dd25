package models

// WarningType says which detector produced a safety warning.
type WarningType string

const (
	WarningSecurity   WarningType = "security"
	WarningCompliance WarningType = "compliance"
	WarningQuality    WarningType = "quality"
)

// SafetyWarning is a single finding surfaced by the safety scanner.
type SafetyWarning struct {
	Type       WarningType `json:"type"`
	Severity   Severity    `json:"severity"`
	Message    string      `json:"message"`
	Pattern    string      `json:"pattern,omitempty"`
	Suggestion string      `json:"suggestion,omitempty"`
}

// VulnerabilityType classifies a security finding.
type VulnerabilityType string

const (
	VulnSQLInjection   VulnerabilityType = "sql_injection"
	VulnXSS            VulnerabilityType = "xss"
	VulnAuthBypass     VulnerabilityType = "auth_bypass"
	VulnSecretExposure VulnerabilityType = "secret_exposure"
)

// SecurityVulnerability is one security detector finding.
type SecurityVulnerability struct {
	Type        VulnerabilityType `json:"type"`
	Severity    Severity          `json:"severity"`
	Pattern     string            `json:"pattern"`
	Description string            `json:"description"`
	Fix         string            `json:"fix"`
}

// SecurityCheckResult aggregates the security detector's findings.
// Score is 0-100; the check passes only with zero findings.
type SecurityCheckResult struct {
	Passed          bool                    `json:"passed"`
	Vulnerabilities []SecurityVulnerability `json:"vulnerabilities"`
	Score           int                     `json:"score"`
}

// ComplianceStandard names a regulatory standard the compliance
// detector evaluates.
type ComplianceStandard string

const (
	StandardGDPR  ComplianceStandard = "gdpr"
	StandardSOC2  ComplianceStandard = "soc2"
	StandardHIPAA ComplianceStandard = "hipaa"
)

// ComplianceViolation is one compliance detector finding.
type ComplianceViolation struct {
	Standard    ComplianceStandard `json:"standard"`
	Violation   string             `json:"violation"`
	Severity    Severity           `json:"severity"`
	Description string             `json:"description"`
	Fix         string             `json:"fix"`
}

// ComplianceCheckResult aggregates the compliance detector's findings.
// Each standard's pass flag is computed independently: true when no
// violation is tagged to that standard.
type ComplianceCheckResult struct {
	Passed     bool                  `json:"passed"`
	Violations []ComplianceViolation `json:"violations"`
	Standards  StandardsPassed       `json:"standards"`
}

// StandardsPassed carries per-standard pass flags.
type StandardsPassed struct {
	GDPR  bool `json:"gdpr"`
	SOC2  bool `json:"soc2"`
	HIPAA bool `json:"hipaa"`
}

// QualityIssueType classifies a quality finding.
type QualityIssueType string

const (
	IssueCodeSmell    QualityIssueType = "code_smell"
	IssueAntiPattern  QualityIssueType = "anti_pattern"
	IssueBestPractice QualityIssueType = "best_practice"
)

// QualityIssue is one quality detector finding.
type QualityIssue struct {
	Type        QualityIssueType `json:"type"`
	Severity    Severity         `json:"severity"`
	Pattern     string           `json:"pattern"`
	Description string           `json:"description"`
	Suggestion  string           `json:"suggestion"`
}

// QualityCheckResult aggregates the quality detector's findings. Unlike
// security and compliance, quality tolerates low and medium severity
// noise: it passes when no issue is critical or high.
type QualityCheckResult struct {
	Passed bool           `json:"passed"`
	Issues []QualityIssue `json:"issues"`
	Score  int            `json:"score"`
}

// SafetyCheckResult is the verdict for one scanned artifact. Blocked is
// set when any security or compliance finding is critical; quality
// findings never block.
type SafetyCheckResult struct {
	Passed   bool            `json:"passed"`
	Blocked  bool            `json:"blocked"`
	Warnings []SafetyWarning `json:"warnings"`
	Checks   SafetyChecks    `json:"checks"`
}

// SafetyChecks carries the three sub-check results.
type SafetyChecks struct {
	Security   SecurityCheckResult   `json:"security"`
	Compliance ComplianceCheckResult `json:"compliance"`
	Quality    QualityCheckResult    `json:"quality"`
}
