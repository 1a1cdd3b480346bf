// Package crypto wraps the hashing and ed25519 primitives used for call
// signatures, request identifiers, and randomness seeds.
package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Hash returns the SHA-256 hash of data as a lowercase hex string.
func Hash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// HashBytes returns the raw SHA-256 bytes of data.
func HashBytes(data []byte) []byte {
	h := sha256.Sum256(data)
	return h[:]
}

// DeriveID hashes colon-joined parts into a stable identifier, e.g.
// DeriveID(txID, "swap").
func DeriveID(parts ...string) string {
	return Hash([]byte(strings.Join(parts, ":")))
}
