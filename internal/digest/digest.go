// Package digest provides the content-addressing primitive shared by image
// deduplication and query fingerprinting.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the lowercase hex SHA-256 of data. Digests double as dedup and
// cache keys, so the hash must stay collision resistant, not just a checksum.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
