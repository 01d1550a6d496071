// Package auth handles API bearer tokens. Only SHA-256 digests of tokens are
// ever configured or stored.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

// TokenPrefix marks tokens minted by GenerateToken.
const TokenPrefix = "rp_"

// HashKey returns a SHA-256 hash of the key.
func HashKey(key string) string {
	key = strings.TrimSpace(key)

	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// GenerateToken returns a random bearer token and its digest.
func GenerateToken() (token, hash string, err error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	token = TokenPrefix + hex.EncodeToString(buf)
	return token, HashKey(token), nil
}

// VerifyToken reports whether token hashes to expectedHash.
func VerifyToken(token, expectedHash string) bool {
	got := HashKey(token)
	want := strings.ToLower(strings.TrimSpace(expectedHash))
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
