package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// HashRequest fingerprints a request payload so a reused key carrying a
// different body is rejected instead of replayed.
func HashRequest(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
