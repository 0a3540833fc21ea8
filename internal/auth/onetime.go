package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// NewOneTimeToken returns a random token for email links and the hash to persist.
func NewOneTimeToken() (raw, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("read random bytes: %w", err)
	}
	raw = hex.EncodeToString(buf)
	return raw, HashOneTimeToken(raw), nil
}

// HashOneTimeToken is the lookup key stored for a raw token.
func HashOneTimeToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
