package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// ETag wraps a digest in quotes for use as a strong ETag header value,
// matching what If-Match carries back.
func ETag(sum string) string {
	return `"` + sum + `"`
}
