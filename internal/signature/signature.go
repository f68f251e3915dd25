// Package signature derives coarse fingerprints from pattern reports and
// scores their similarity. Signatures are lossy: they cluster "the same
// mistake" reported with small wording differences, and the similarity
// scorer resolves collisions between unrelated inputs.
package signature

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

const (
	// sampleWindow bounds how much of the raw output and serialized
	// context feed the fingerprint.
	sampleWindow = 200

	// signatureLength is the fixed length of the printable token.
	signatureLength = 64

	// delimiter joins the fingerprint elements; not expected in
	// natural text.
	delimiter = "|"
)

// Generate derives a fingerprint from a description, an output sample,
// and an optional opaque context blob (already-serialized JSON).
// Deterministic for identical input; not a cryptographic hash.
func Generate(description, sample, contextJSON string) string {
	elements := []string{
		strings.ToLower(description),
		strings.ToLower(truncate(sample, sampleWindow)),
		truncate(contextJSON, sampleWindow),
	}

	encoded := base64.StdEncoding.EncodeToString([]byte(strings.Join(elements, delimiter)))
	return truncate(encoded, signatureLength)
}

// GenerateFromContext serializes an arbitrary context map before
// fingerprinting. A nil context contributes an empty element, matching
// the behavior of passing no context at all.
func GenerateFromContext(description, sample string, context map[string]any) string {
	contextJSON := ""
	if context != nil {
		if b, err := json.Marshal(context); err == nil {
			contextJSON = string(b)
		}
	}
	return Generate(description, sample, contextJSON)
}

// Similarity scores two signatures in [0, 1]. Identical strings score
// 1.0; otherwise the score is the Jaccard similarity of the distinct
// character sets of the two strings. The pattern store thresholds
// (0.6 warn, 0.7 same, 0.9 exact) were tuned against this metric.
func Similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}

	setA := charSet(a)
	setB := charSet(b)

	intersection := 0
	union := len(setB)
	for ch := range setA {
		if setB[ch] {
			intersection++
		} else {
			union++
		}
	}
	if union == 0 {
		return 1.0
	}

	return float64(intersection) / float64(union)
}

func charSet(s string) map[rune]bool {
	set := make(map[rune]bool, len(s))
	for _, ch := range s {
		set[ch] = true
	}
	return set
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
