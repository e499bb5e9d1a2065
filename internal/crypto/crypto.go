// Package crypto provides cryptographic utility functions.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign returns the lowercase hex encoded HMAC-SHA256 of a message.
func Sign(secret, message []byte) string {
	mac := hmac.New(sha256.New, secret)
	// hash.Hash writes never fail.
	_, _ = mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether a hex encoded signature matches a message.
// Comparison is constant time.
func Verify(secret, message []byte, signature string) bool {
	expected := Sign(secret, message)
	return hmac.Equal([]byte(expected), []byte(signature))
}
