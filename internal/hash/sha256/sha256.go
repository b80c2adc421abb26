// Package sha256 derives stable keys and checksums for batch output.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher implements SHA-256 hashing.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Key returns the storage key of a record, derived from its canonical link.
func (h *Hasher) Key(canonicalLink string) string {
	return h.Hash([]byte(canonicalLink))
}
