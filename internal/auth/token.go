// Package auth checks operator bearer tokens against a stored digest.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// Digest returns the hex SHA-256 of token, ignoring surrounding whitespace.
func Digest(token string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(token)))
	return hex.EncodeToString(sum[:])
}

// Matches reports whether presented hashes to digest. The comparison runs in constant time.
func Matches(digest, presented string) bool {
	if presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(Digest(presented)), []byte(digest)) == 1
}
