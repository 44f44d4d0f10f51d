// Package hashing computes the content fingerprints used for change
// detection across re-ingestions.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
)

// Bytes returns the hex-encoded SHA-256 digest of raw bytes.
func Bytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Text returns the hex-encoded SHA-256 digest of a UTF-8 string.
func Text(text string) string {
	return Bytes([]byte(text))
}
