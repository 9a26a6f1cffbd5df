// Package auth implements credential hashing for storefront accounts:
// HMAC-SHA256 with a server-side pepper and constant-time comparison.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// HashPassword returns the hex HMAC-SHA256 digest of password under pepper.
func HashPassword(password string, pepper []byte) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(password))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyPassword reports whether password hashes to storedHash under pepper.
// The comparison is constant-time to avoid timing side-channels.
func VerifyPassword(password, storedHash string, pepper []byte) bool {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(password))
	computed := mac.Sum(nil)

	stored, err := hex.DecodeString(storedHash)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(computed, stored) == 1
}
