package crypto

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var apiKeyPattern = regexp.MustCompile(`^sk_[A-Za-z0-9_-]{32}$`)

func TestGenerateAPIKey(t *testing.T) {
	seen := make(map[string]bool)

	for i := 0; i < 200; i++ {
		key, err := GenerateAPIKey()
		require.NoError(t, err)

		assert.Len(t, key, 35)
		assert.Regexp(t, apiKeyPattern, key)
		assert.False(t, seen[key], "duplicate key generated")
		seen[key] = true
	}
}

func TestAPIKeyAlphabet(t *testing.T) {
	assert.Len(t, apiKeyAlphabet, 64)

	chars := make(map[rune]bool)
	for _, r := range apiKeyAlphabet {
		assert.False(t, chars[r], "duplicate symbol %q", r)
		chars[r] = true
	}
}
