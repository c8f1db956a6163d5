// Package masking reduces response precision based on the consent's
// entitlement tier. Masking is a view concern applied before cache
// population, so cache keys must be tier-qualified.
package masking

import (
	"github.com/shopspring/decimal"

	"openfinance/internal/consent"
)

// Marker replaces masked monetary values in responses.
const Marker = "****"

// Required reports whether results for the given tier must be masked. The
// tier set is closed; anything outside it fails closed and is masked.
func Required(tier consent.EntitlementTier) bool {
	switch tier {
	case consent.TierFull:
		return false
	case consent.TierRestricted:
		return true
	default:
		return true
	}
}

// Amount renders a monetary amount for the given tier: the exact value for
// FULL, the mask marker for RESTRICTED.
func Amount(tier consent.EntitlementTier, value decimal.Decimal) string {
	if Required(tier) {
		return Marker
	}
	return value.StringFixed(2)
}
