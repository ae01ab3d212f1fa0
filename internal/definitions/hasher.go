package definitions

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher fingerprints definition payloads. Implementations must be deterministic.
type Hasher interface {
	Hash(xml string) Hash
}

// HasherFunc adapts a function to the Hasher interface.
type HasherFunc func(xml string) Hash

// Hash calls f(xml).
func (f HasherFunc) Hash(xml string) Hash {
	return f(xml)
}

// HashContent returns the lowercase hex SHA-256 digest of the exact payload bytes.
// The digest is an equality key, not a secret.
func HashContent(xml string) Hash {
	sum := sha256.Sum256([]byte(xml))
	return Hash(hex.EncodeToString(sum[:]))
}

// NewSHA256Hasher returns the default content hasher.
func NewSHA256Hasher() Hasher {
	return HasherFunc(HashContent)
}
