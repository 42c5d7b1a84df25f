// Package fingerprint computes SHA-256 digests over canonical encodings,
// used for cache keys, idempotency keys, and result checksums.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/proposalcore/pricing-engine/internal/canonical"
)

// Of returns the lowercase hex SHA-256 digest of v's canonical encoding.
func Of(v interface{}) string {
	sum := sha256.Sum256(canonical.Encode(v))
	return hex.EncodeToString(sum[:])
}

// OfBytes returns the lowercase hex SHA-256 digest of already-canonical
// bytes, for callers that encoded once and need both the bytes and the
// digest.
func OfBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
