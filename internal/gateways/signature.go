// Package gateways holds the outbound adapters that front external systems:
// request signature verification, risk assessment and quote pricing.
package gateways

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// HMACSignatureValidator verifies detached request signatures computed as
// HMAC-SHA256 over the exact payload bytes, base64 URL-encoded without
// padding.
type HMACSignatureValidator struct {
	secret []byte
}

// NewHMACSignatureValidator creates a validator with the shared secret.
func NewHMACSignatureValidator(secret string) *HMACSignatureValidator {
	return &HMACSignatureValidator{secret: []byte(secret)}
}

// IsValid reports whether the detached signature matches the payload. A
// malformed signature is invalid, not an error.
func (v *HMACSignatureValidator) IsValid(ctx context.Context, detachedSignature string, payload []byte) (bool, error) {
	provided, err := base64.RawURLEncoding.DecodeString(detachedSignature)
	if err != nil {
		return false, nil
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(payload)
	return hmac.Equal(provided, mac.Sum(nil)), nil
}

// Sign computes the detached signature for a payload. Used by tests and
// local tooling to produce valid requests.
func (v *HMACSignatureValidator) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(payload)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
