// Package hash derives deterministic identifiers from scoresheet content.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Short returns the first n characters of the digest, or the whole digest
// when n exceeds its length.
func Short(data []byte, n int) string {
	h := Sum(data)
	if n > len(h) {
		return h
	}
	return h[:n]
}

// Key derives a 16-character identifier from the given parts. Used for
// scoresheet fingerprints and cache keys.
func Key(parts ...string) string {
	return Short([]byte(strings.Join(parts, ":")), 16)
}
