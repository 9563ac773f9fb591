package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// VerdictKey builds the cache key for an operation applied to an input by an
// engine with the given fingerprint. The input is hashed so arbitrary bytes
// never reach the backend.
func VerdictKey(op, fingerprint, input string) string {
	h := sha256.New()
	h.Write([]byte(fingerprint))
	h.Write([]byte{0})
	h.Write([]byte(input))
	sum := h.Sum(nil)
	// 16 bytes is still 128 bits of collision resistance
	return op + ":" + hex.EncodeToString(sum[:16])
}
