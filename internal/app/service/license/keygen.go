package license

import (
	"crypto/rand"
	"fmt"
	"regexp"
	"strings"
)

const (
	keyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	keyGroups   = 4
	keyGroupLen = 4
)

// KeyPattern matches well-formed license keys, e.g. "AB3D-9XQ1-77ZK-M0PL".
var KeyPattern = regexp.MustCompile(`^[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}$`)

// GenerateKey produces a human-typeable license key: 4 groups of 4 characters
// from [A-Z0-9], joined by '-', each character drawn uniformly from
// crypto/rand. Uniqueness is enforced by the store's unique index, not here;
// with a 36^16 keyspace a collision retry is the caller's concern.
func GenerateKey() (string, error) {
	const total = keyGroups * keyGroupLen
	// Rejection sampling keeps the distribution uniform: 252 is the largest
	// multiple of 36 below 256, so bytes past it are discarded instead of
	// wrapping unevenly onto the alphabet.
	const limit = 252

	chars := make([]byte, 0, total)
	buf := make([]byte, total)
	for len(chars) < total {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			chars = append(chars, keyAlphabet[int(b)%len(keyAlphabet)])
			if len(chars) == total {
				break
			}
		}
	}

	groups := make([]string, keyGroups)
	for g := 0; g < keyGroups; g++ {
		groups[g] = string(chars[g*keyGroupLen : (g+1)*keyGroupLen])
	}
	return strings.Join(groups, "-"), nil
}
