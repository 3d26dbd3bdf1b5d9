package license

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKey_Format(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	assert.Regexp(t, KeyPattern, key)
	assert.Len(t, key, 19)
}

func TestGenerateKey_CoversFullAlphabet(t *testing.T) {
	// 200 keys = 3200 character draws; a character missing from a uniform
	// sample of that size is beyond improbable, while a truncated or skewed
	// alphabet shows up immediately.
	seen := make(map[rune]struct{})
	for i := 0; i < 200; i++ {
		key, err := GenerateKey()
		require.NoError(t, err)
		for _, r := range key {
			if r != '-' {
				seen[r] = struct{}{}
			}
		}
	}
	assert.Len(t, seen, len(keyAlphabet))
}

func TestGenerateKey_PairwiseDistinct(t *testing.T) {
	seen := make(map[string]struct{}, 100)
	for i := 0; i < 100; i++ {
		key, err := GenerateKey()
		require.NoError(t, err)
		_, dup := seen[key]
		require.False(t, dup, "duplicate key generated: %s", key)
		seen[key] = struct{}{}
	}
}
