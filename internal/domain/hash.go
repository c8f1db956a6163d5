package domain

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// HashPayload computes the canonical hash of a request payload: SHA-256 over
// the exact payload bytes, base64url-encoded without padding. Idempotency
// reconciliation and signature verification both operate on these bytes, so
// operationally-identical retries always produce the same hash.
func HashPayload(payload []byte) string {
	sum := sha256.Sum256(payload)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// HashIdentity hashes an identity string (for example a payee IBAN) after
// trimming and uppercasing, so consent payee bindings are insensitive to
// incidental formatting.
func HashIdentity(identity string) string {
	normalized := strings.ToUpper(strings.TrimSpace(identity))
	return HashPayload([]byte(normalized))
}
