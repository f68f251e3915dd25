package signature

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerate_Deterministic(t *testing.T) {
	ctx := map[string]any{"template": "saas-landing", "step": 3}

	first := GenerateFromContext("SQL injection in login", "SELECT * FROM users", ctx)
	second := GenerateFromContext("SQL injection in login", "SELECT * FROM users", ctx)

	assert.Equal(t, first, second)
	assert.NotEmpty(t, first)
}

func TestGenerate_FixedLength(t *testing.T) {
	long := make([]byte, 5000)
	for i := range long {
		long[i] = 'a'
	}

	sig := Generate("description", string(long), string(long))
	assert.LessOrEqual(t, len(sig), 64)
}

func TestGenerate_CaseInsensitive(t *testing.T) {
	a := Generate("SQL Injection", "SELECT * FROM users", "")
	b := Generate("sql injection", "select * from users", "")
	assert.Equal(t, a, b)
}

func TestGenerate_ContextChangesSignature(t *testing.T) {
	plain := Generate("desc", "output", "")
	withCtx := Generate("desc", "output", `{"template":"blog"}`)
	assert.NotEqual(t, plain, withCtx)
}

func TestGenerate_TruncatesSampleWindow(t *testing.T) {
	base := make([]byte, 200)
	for i := range base {
		base[i] = 'x'
	}

	// Differences past the 200-char window must not affect the signature.
	a := Generate("desc", string(base)+"tail-one", "")
	b := Generate("desc", string(base)+"completely different tail", "")
	assert.Equal(t, a, b)
}

func TestSimilarity_Identity(t *testing.T) {
	for _, s := range []string{"", "a", "abc", "ZXhhbXBsZQ==", "🦀🦀🦀"} {
		assert.Equal(t, 1.0, Similarity(s, s), "identity failed for %q", s)
	}
}

func TestSimilarity_Symmetry(t *testing.T) {
	pairs := [][2]string{
		{"abcdef", "abcxyz"},
		{"", "abc"},
		{"hello world", "world hello"},
		{"ZXhhbXBsZQ", "c2FtcGxl"},
	}
	for _, p := range pairs {
		assert.Equal(t, Similarity(p[0], p[1]), Similarity(p[1], p[0]),
			"asymmetric for %q / %q", p[0], p[1])
	}
}

func TestSimilarity_Bounds(t *testing.T) {
	score := Similarity("abcd", "wxyz")
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)
	assert.Equal(t, 0.0, score) // disjoint character sets
}

func TestSimilarity_CharacterSetJaccard(t *testing.T) {
	// sets {a,b,c} and {b,c,d}: intersection 2, union 4.
	assert.InDelta(t, 0.5, Similarity("abc", "bcd"), 1e-9)

	// Anagrams share the full character set but differ as strings.
	assert.InDelta(t, 1.0, Similarity("listen", "silent"), 1e-9)
}

func TestSimilarity_MonotonicOrdering(t *testing.T) {
	base := "abcdefgh"
	closer := "abcdefgx"  // 7 shared chars
	farther := "abcxyzuv" // 3 shared chars

	assert.Greater(t, Similarity(base, closer), Similarity(base, farther))
}
