// Package token holds the credential primitives shared by the vault: random
// token generation, one-way hashing for storage, and constant-time
// verification. Raw tokens exist only in flight; stores only ever see the
// digest.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// entropyBytes gives 256 bits per token, drawn from crypto/rand only. A token
// is never derived from any attribute of the holder.
const entropyBytes = 32

// New creates a cryptographically secure random token, URL-safe base64.
func New() (string, error) {
	buf := make([]byte, entropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("could not generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Hash returns the hex-encoded SHA-256 digest of a raw token, the only form
// a token is persisted in.
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Verify compares a presented raw token against a stored digest in constant
// time. Both sides are fixed-length digests, so comparison time carries no
// information about partial matches.
func Verify(raw, storedHash string) bool {
	presented := sha256.Sum256([]byte(raw))
	stored, err := hex.DecodeString(storedHash)
	if err != nil || len(stored) != sha256.Size {
		return false
	}
	return subtle.ConstantTimeCompare(presented[:], stored) == 1
}
