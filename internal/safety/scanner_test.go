package safety

import (
	"testing"

	"github.com/keysplatform/moat/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanCleanOutputPasses(t *testing.T) {
	s := NewScanner()

	result := s.Scan("func Add(a, b int) int { return a + b }", "")

	assert.True(t, result.Passed)
	assert.False(t, result.Blocked)
	assert.Empty(t, result.Warnings)
	assert.Equal(t, 100, result.Checks.Security.Score)
	assert.Equal(t, 100, result.Checks.Quality.Score)
	assert.True(t, result.Checks.Compliance.Standards.GDPR)
	assert.True(t, result.Checks.Compliance.Standards.SOC2)
	assert.True(t, result.Checks.Compliance.Standards.HIPAA)
}

func TestScanSQLStatementBlocks(t *testing.T) {
	s := NewScanner()

	result := s.Scan("SELECT * FROM users WHERE id = 1;", "")

	assert.True(t, result.Blocked)
	assert.False(t, result.Passed)
	require.Len(t, result.Checks.Security.Vulnerabilities, 1)

	vuln := result.Checks.Security.Vulnerabilities[0]
	assert.Equal(t, models.VulnSQLInjection, vuln.Type)
	assert.Equal(t, models.SeverityCritical, vuln.Severity)
	assert.Contains(t, vuln.Description, "Potential SQL injection detected")
	assert.Equal(t, 70, result.Checks.Security.Score)
}

func TestScanSecurityScoreClampsAtZero(t *testing.T) {
	s := NewScanner()

	output := "DROP TABLE a; DELETE FROM b; UPDATE c SET x = y; INSERT INTO d VALUES (z);"
	result := s.Scan(output, "")

	require.Len(t, result.Checks.Security.Vulnerabilities, 4)
	assert.Equal(t, 0, result.Checks.Security.Score)
	assert.True(t, result.Blocked)
}

func TestScanXSSFailsWithoutBlocking(t *testing.T) {
	s := NewScanner()

	result := s.Scan(`<iframe src.of target>`, "")

	assert.False(t, result.Blocked) // high severity, not critical
	assert.False(t, result.Passed)  // security check still fails
	require.Len(t, result.Checks.Security.Vulnerabilities, 1)
	assert.Equal(t, models.VulnXSS, result.Checks.Security.Vulnerabilities[0].Type)
	assert.Equal(t, 85, result.Checks.Security.Score)
}

func TestScanSecretExposureMasksPattern(t *testing.T) {
	s := NewScanner()

	result := s.Scan(`api_key = "abcdefghijklmnopqrstuvwxyz123456"`, "")

	assert.True(t, result.Blocked)
	require.Len(t, result.Checks.Security.Vulnerabilities, 1)

	vuln := result.Checks.Security.Vulnerabilities[0]
	assert.Equal(t, models.VulnSecretExposure, vuln.Type)
	assert.Equal(t, "Potential secret/credential exposure detected", vuln.Description)
	// The echoed pattern is truncated so the finding can't leak the
	// full secret.
	assert.Contains(t, vuln.Pattern, "...")
	assert.LessOrEqual(t, len(vuln.Pattern), matchEcho+3)
}

func TestScanAuthBypass(t *testing.T) {
	s := NewScanner()

	result := s.Scan("set skip_auth for local testing", "")

	assert.True(t, result.Blocked)
	require.Len(t, result.Checks.Security.Vulnerabilities, 1)
	assert.Equal(t, models.VulnAuthBypass, result.Checks.Security.Vulnerabilities[0].Type)
}

func TestScanGDPRPersonalData(t *testing.T) {
	s := NewScanner()

	t.Run("without consent or encryption", func(t *testing.T) {
		result := s.Scan("This endpoint collects personal data from visitors.", "")

		assert.False(t, result.Blocked) // high, not critical
		assert.False(t, result.Passed)
		require.Len(t, result.Checks.Compliance.Violations, 1)

		v := result.Checks.Compliance.Violations[0]
		assert.Equal(t, models.StandardGDPR, v.Standard)
		assert.Equal(t, models.SeverityHigh, v.Severity)
		assert.False(t, result.Checks.Compliance.Standards.GDPR)
		assert.True(t, result.Checks.Compliance.Standards.SOC2)
	})

	t.Run("with consent mechanism", func(t *testing.T) {
		result := s.Scan("This endpoint collects personal data from visitors after explicit consent.", "")

		assert.Empty(t, result.Checks.Compliance.Violations)
		assert.True(t, result.Passed)
	})
}

func TestScanSOC2PlaintextPassword(t *testing.T) {
	s := NewScanner()

	t.Run("without hashing", func(t *testing.T) {
		result := s.Scan("write the password to the users table", "")

		assert.True(t, result.Blocked)
		require.Len(t, result.Checks.Compliance.Violations, 1)

		v := result.Checks.Compliance.Violations[0]
		assert.Equal(t, models.StandardSOC2, v.Standard)
		assert.Equal(t, models.SeverityCritical, v.Severity)
	})

	t.Run("with bcrypt", func(t *testing.T) {
		result := s.Scan("bcrypt the password before writing it to the users table", "")

		assert.False(t, result.Blocked)
		assert.Empty(t, result.Checks.Compliance.Violations)
	})
}

func TestScanHIPAA(t *testing.T) {
	s := NewScanner()

	t.Run("patient data without safeguards", func(t *testing.T) {
		result := s.Scan("Fetch patient records for the medical dashboard.", "")

		assert.True(t, result.Blocked)
		assert.False(t, result.Checks.Compliance.Standards.HIPAA)
		// One violation per trigger hit: "patient" and "medical".
		assert.Len(t, result.Checks.Compliance.Violations, 2)
	})

	t.Run("patient data with encryption and access control", func(t *testing.T) {
		result := s.Scan("Fetch patient records over TLS; authorize by role first.", "")

		assert.Empty(t, result.Checks.Compliance.Violations)
		assert.True(t, result.Checks.Compliance.Standards.HIPAA)
	})

	t.Run("health output type without health keywords", func(t *testing.T) {
		result := s.Scan("Deploy the billing worker.", "healthcare_api")

		assert.Empty(t, result.Checks.Compliance.Violations)
	})
}

func TestScanQualityEvalFailsWithoutBlocking(t *testing.T) {
	s := NewScanner()

	result := s.Scan("result = eval(expression)", "")

	assert.False(t, result.Blocked)
	assert.False(t, result.Passed)
	require.Len(t, result.Checks.Quality.Issues, 1)
	assert.Equal(t, models.IssueAntiPattern, result.Checks.Quality.Issues[0].Type)
	assert.Equal(t, models.SeverityHigh, result.Checks.Quality.Issues[0].Severity)
	assert.Equal(t, 90, result.Checks.Quality.Score)
	assert.False(t, result.Checks.Quality.Passed)
}

func TestScanQualityToleratesLowSeverityNoise(t *testing.T) {
	s := NewScanner()

	result := s.Scan("// TODO: add pagination", "")

	assert.True(t, result.Passed)
	assert.False(t, result.Blocked)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, models.WarningQuality, result.Warnings[0].Type)
	assert.Equal(t, models.SeverityLow, result.Warnings[0].Severity)
	assert.Equal(t, 98, result.Checks.Quality.Score)
}

func TestScanQualityVarKeywordCountsPerUse(t *testing.T) {
	s := NewScanner()

	result := s.Scan("var first = 1\nvar second = 2", "")

	assert.Len(t, result.Checks.Quality.Issues, 2)
	assert.Equal(t, 96, result.Checks.Quality.Score)
	assert.True(t, result.Checks.Quality.Passed)
}

func TestScanAsyncWithoutErrorHandling(t *testing.T) {
	s := NewScanner()

	t.Run("missing handler", func(t *testing.T) {
		result := s.Scan("async function load() { return fetch(url) }", "")

		require.Len(t, result.Checks.Quality.Issues, 1)
		assert.Equal(t, models.IssueBestPractice, result.Checks.Quality.Issues[0].Type)
	})

	t.Run("with catch", func(t *testing.T) {
		result := s.Scan("async function load() { return fetch(url).catch(report) }", "")

		assert.Empty(t, result.Checks.Quality.Issues)
	})
}

func TestScanWarningOrdering(t *testing.T) {
	s := NewScanner()

	// One security, one compliance, one quality finding in a single
	// artifact; warnings must come out grouped in that order.
	output := "skip_auth; log the email silently // TODO later"
	result := s.Scan(output, "")

	require.GreaterOrEqual(t, len(result.Warnings), 3)
	var types []models.WarningType
	for _, w := range result.Warnings {
		types = append(types, w.Type)
	}
	assert.IsNonDecreasing(t, warningOrder(types))
}

func warningOrder(types []models.WarningType) []int {
	order := map[models.WarningType]int{
		models.WarningSecurity:   0,
		models.WarningCompliance: 1,
		models.WarningQuality:    2,
	}
	out := make([]int, len(types))
	for i, t := range types {
		out[i] = order[t]
	}
	return out
}
