// Package safety scans generated artifacts for security, compliance,
// and quality problems before they reach the caller. Detection is
// regex-based and intentionally conservative: a false warning costs a
// review, a missed critical costs a guarantee claim.
package safety

import (
	"regexp"

	"github.com/keysplatform/moat/pkg/models"
)

// securityRule pairs one detector regex with the finding it emits.
// Every occurrence in the scanned text produces its own finding.
type securityRule struct {
	re       *regexp.Regexp
	kind     models.VulnerabilityType
	severity models.Severity
	// describe and patternOf shape the finding from the raw match text.
	describe  func(match string) string
	patternOf func(match string) string
	fix       string
}

// complianceRule emits a violation per trigger match unless the guards
// are satisfied. With requireAll unset, any guard match suppresses the
// violation; with it set, every guard must match.
type complianceRule struct {
	trigger    *regexp.Regexp
	guards     []*regexp.Regexp
	requireAll bool
	standard   models.ComplianceStandard
	violation  string
	severity   models.Severity
	desc       string
	fix        string
}

// qualityRule emits a fixed issue per trigger match; an optional guard
// suppresses it when present anywhere in the text.
type qualityRule struct {
	trigger *regexp.Regexp
	guard   *regexp.Regexp
	issue   models.QualityIssue
}

const matchEcho = 50

func echo(match string) string {
	if len(match) > matchEcho {
		return match[:matchEcho]
	}
	return match
}

const (
	fixParameterize = "Use parameterized queries or prepared statements. Never concatenate user input into SQL queries."
	fixSanitize     = "Sanitize user input and use Content Security Policy (CSP). Escape HTML entities."
	fixSecrets      = "Never hardcode secrets. Use environment variables or secret management systems."
	fixAuth         = "Always verify authentication and authorization. Never skip security checks."
)

func sqlInjectionRule(re *regexp.Regexp) securityRule {
	return securityRule{
		re:       re,
		kind:     models.VulnSQLInjection,
		severity: models.SeverityCritical,
		describe: func(m string) string {
			return "Potential SQL injection detected: " + echo(m)
		},
		patternOf: func(m string) string { return m },
		fix:       fixParameterize,
	}
}

func xssRule(re *regexp.Regexp) securityRule {
	return securityRule{
		re:       re,
		kind:     models.VulnXSS,
		severity: models.SeverityHigh,
		describe: func(m string) string {
			return "Potential XSS vulnerability detected: " + echo(m)
		},
		patternOf: func(m string) string { return m },
		fix:       fixSanitize,
	}
}

func secretRule(re *regexp.Regexp) securityRule {
	return securityRule{
		re:       re,
		kind:     models.VulnSecretExposure,
		severity: models.SeverityCritical,
		describe: func(string) string {
			return "Potential secret/credential exposure detected"
		},
		// The matched text may itself be a secret; keep only a stub.
		patternOf: func(m string) string { return echo(m) + "..." },
		fix:       fixSecrets,
	}
}

func authBypassRule(re *regexp.Regexp) securityRule {
	return securityRule{
		re:       re,
		kind:     models.VulnAuthBypass,
		severity: models.SeverityCritical,
		describe: func(m string) string {
			return "Potential authentication bypass detected: " + m
		},
		patternOf: func(m string) string { return m },
		fix:       fixAuth,
	}
}

var defaultSecurityRules = []securityRule{
	// SQL injection
	sqlInjectionRule(regexp.MustCompile(`(?i)\b(SELECT|INSERT|UPDATE|DELETE|DROP|CREATE|ALTER|EXEC|EXECUTE)\b[^;]*;`)),
	sqlInjectionRule(regexp.MustCompile(`(?i)\b(UNION|OR|AND)\s+\d+\s*=\s*\d+`)),
	sqlInjectionRule(regexp.MustCompile(`(?i)'[^']*\b(or|and)\b[^']*'`)),
	sqlInjectionRule(regexp.MustCompile("(?i)\"[^\"]*\\b(or|and)\\b[^\"]*\"")),
	sqlInjectionRule(regexp.MustCompile("(?i)`[^`]*\\b(or|and)\\b[^`]*`")),
	sqlInjectionRule(regexp.MustCompile(`\$\{[^}]+\}`)), // template injection

	// XSS
	xssRule(regexp.MustCompile(`(?i)<script[^>]*>.*?</script>`)),
	xssRule(regexp.MustCompile(`(?i)javascript:`)),
	xssRule(regexp.MustCompile(`(?i)on\w+\s*=\s*["'][^"']*["']`)), // inline event handlers
	xssRule(regexp.MustCompile(`(?i)<iframe[^>]*>`)),

	// Secret exposure
	secretRule(regexp.MustCompile(`(?i)(api[_-]?key|secret|password|token|credential)\s*[=:]\s*["']?([a-zA-Z0-9]{20,})["']?`)),
	secretRule(regexp.MustCompile(`(?i)(BEGIN\s+(RSA\s+)?PRIVATE\s+KEY|-----BEGIN)`)),
	secretRule(regexp.MustCompile(`(?i)(aws[_-]?access[_-]?key[_-]?id|aws[_-]?secret[_-]?access[_-]?key)`)),
	secretRule(regexp.MustCompile(`(ghp_[a-zA-Z0-9]{36}|gho_[a-zA-Z0-9]{36})`)), // GitHub tokens

	// Auth bypass
	authBypassRule(regexp.MustCompile(`(?i)(if\s*\(\s*true\s*\)|if\s*\(\s*1\s*==\s*1\s*\))`)),
	authBypassRule(regexp.MustCompile(`(?i)(bypass|skip|ignore)[_-]?auth`)),
	authBypassRule(regexp.MustCompile(`(?i)(admin|root)[_-]?mode`)),
}

var (
	consentGuard    = regexp.MustCompile(`(?i)(consent|opt[_-]?in|permission)`)
	gdprCryptoGuard = regexp.MustCompile(`(?i)(encrypt|hash|secure)`)
	hashingGuard    = regexp.MustCompile(`(?i)(hash|bcrypt|argon2|scrypt|pbkdf2)`)
	cipherGuard     = regexp.MustCompile(`(?i)(encrypt|aes|rsa)`)
	auditTrailGuard = regexp.MustCompile(`(?i)(audit[_-]?log|log[_-]?audit|audit[_-]?trail)`)
	phiCryptoGuard  = regexp.MustCompile(`(?i)(encrypt|tls|ssl|aes)`)
	accessCtlGuard  = regexp.MustCompile(`(?i)(auth|authorize|permission|role)`)
)

var defaultComplianceRules = []complianceRule{
	{
		trigger:   regexp.MustCompile(`(?i)(personal\s+data|pii|personally\s+identifiable)`),
		guards:    []*regexp.Regexp{consentGuard, gdprCryptoGuard},
		standard:  models.StandardGDPR,
		violation: "Personal data processing without explicit consent or encryption",
		severity:  models.SeverityHigh,
		desc:      "GDPR requires explicit consent for personal data processing and encryption for storage",
		fix:       "Add explicit consent mechanism and encrypt personal data at rest and in transit.",
	},
	{
		trigger:   regexp.MustCompile(`(?i)(log|store|save).*email`),
		guards:    []*regexp.Regexp{consentGuard},
		standard:  models.StandardGDPR,
		violation: "Email storage without consent",
		severity:  models.SeverityMedium,
		desc:      "GDPR requires consent before storing email addresses",
		fix:       "Add explicit consent before storing email addresses.",
	},
	{
		trigger:   regexp.MustCompile(`(?i)(password|credential|secret)`),
		guards:    []*regexp.Regexp{hashingGuard, cipherGuard},
		standard:  models.StandardSOC2,
		violation: "Passwords/secrets stored without hashing or encryption",
		severity:  models.SeverityCritical,
		desc:      "SOC 2 requires passwords and secrets to be hashed or encrypted",
		fix:       "Use strong hashing algorithms (bcrypt, argon2) for passwords. Encrypt secrets.",
	},
	{
		trigger:   regexp.MustCompile(`(?i)(audit|log)`),
		guards:    []*regexp.Regexp{auditTrailGuard},
		standard:  models.StandardSOC2,
		violation: "Missing audit logging for sensitive operations",
		severity:  models.SeverityMedium,
		desc:      "SOC 2 requires audit logging for all sensitive operations",
		fix:       "Add audit logging for authentication, authorization, and data access operations.",
	},
}

// hipaaRules only run for health-flavored artifacts; see healthContext.
var hipaaRules = []complianceRule{
	{
		trigger:    regexp.MustCompile(`(?i)(patient|health|medical)`),
		guards:     []*regexp.Regexp{phiCryptoGuard, accessCtlGuard},
		requireAll: true,
		standard:   models.StandardHIPAA,
		violation:  "PHI handling without encryption and access controls",
		severity:   models.SeverityCritical,
		desc:       "HIPAA requires encryption and access controls for PHI",
		fix:        "Encrypt PHI at rest and in transit. Implement role-based access control.",
	},
}

var healthContextRe = regexp.MustCompile(`(?i)(patient|health|medical|phi)`)

var defaultQualityRules = []qualityRule{
	{
		trigger: regexp.MustCompile(`function\s+\w+\s*\([^)]*\)\s*\{[^}]{500,}\}`),
		issue: models.QualityIssue{
			Type:        models.IssueCodeSmell,
			Severity:    models.SeverityMedium,
			Pattern:     "Long function",
			Description: "Function exceeds recommended length (500+ characters)",
			Suggestion:  "Break down into smaller, focused functions. Follow single responsibility principle.",
		},
	},
	{
		trigger: regexp.MustCompile(`(?i)if\s*\([^)]+\)\s*\{[^}]*\}\s*else\s*if\s*\([^)]+\)\s*\{[^}]*\}\s*else\s*if`),
		issue: models.QualityIssue{
			Type:        models.IssueCodeSmell,
			Severity:    models.SeverityLow,
			Pattern:     "Deep nesting",
			Description: "Deeply nested conditionals reduce readability",
			Suggestion:  "Use early returns, guard clauses, or strategy pattern to reduce nesting.",
		},
	},
	{
		trigger: regexp.MustCompile(`(?i)(TODO|FIXME|HACK|XXX)`),
		issue: models.QualityIssue{
			Type:        models.IssueCodeSmell,
			Severity:    models.SeverityLow,
			Pattern:     "Technical debt markers",
			Description: "Code contains TODO/FIXME comments indicating incomplete work",
			Suggestion:  "Address technical debt before production deployment.",
		},
	},
	{
		trigger: regexp.MustCompile(`(?i)(eval\s*\(|Function\s*\(|new\s+Function)`),
		issue: models.QualityIssue{
			Type:        models.IssueAntiPattern,
			Severity:    models.SeverityHigh,
			Pattern:     "eval() usage",
			Description: "Use of eval() is a security and performance anti-pattern",
			Suggestion:  "Avoid eval(). Use safer alternatives like JSON.parse() or function factories.",
		},
	},
	{
		trigger: regexp.MustCompile(`var\s+\w+`),
		issue: models.QualityIssue{
			Type:        models.IssueAntiPattern,
			Severity:    models.SeverityLow,
			Pattern:     "var keyword",
			Description: "Use of var instead of const/let",
			Suggestion:  "Use const for immutable values, let for mutable values. Avoid var.",
		},
	},
	{
		trigger: regexp.MustCompile(`(?i)(async\s+function|async\s+\()`),
		guard:   regexp.MustCompile(`(?i)(try\s*\{|catch\s*\(|\.catch\s*\()`),
		issue: models.QualityIssue{
			Type:        models.IssueBestPractice,
			Severity:    models.SeverityMedium,
			Pattern:     "Missing error handling",
			Description: "Async functions should have error handling",
			Suggestion:  "Add try-catch blocks or .catch() handlers for async operations.",
		},
	},
}
