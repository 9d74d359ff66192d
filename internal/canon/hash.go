package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Hash computes a SHA-256 digest with domain separation and returns it as
// lowercase hex. Format: SHA256(domain || 0x00 || data). The null byte
// prevents domain/data boundary ambiguity: without it,
// ("grove/a", "b"+data) and ("grove/ab", data) would collide.
func Hash(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// HashValue canonically marshals v and hashes it under the given domain.
// Returns an error if v cannot be canonically encoded.
func HashValue(domain string, v Value) (string, error) {
	data, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", domain, err)
	}
	return Hash(domain, data), nil
}
