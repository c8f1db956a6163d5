// Package consent validates a caller's consent record against the specific
// resource requested. Authorization is never inferred from resource ownership
// alone, only from the consent's declared resource set.
package consent

import (
	"strings"
	"time"
)

// EntitlementTier classifies a consent for response masking purposes. It is a
// closed set: downstream masking switches exhaustively over these values and
// fails closed on anything else.
type EntitlementTier string

const (
	TierFull       EntitlementTier = "FULL"
	TierRestricted EntitlementTier = "RESTRICTED"
)

// Context is an immutable snapshot of a consent record, fetched once per
// request. This core never mutates it.
type Context struct {
	ConsentID   string          `json:"consent_id" db:"consent_id"`
	TPPID       string          `json:"tpp_id" db:"tpp_id"`
	SubjectID   string          `json:"subject_id" db:"subject_id"`
	Tier        EntitlementTier `json:"tier" db:"tier"`
	Scopes      []string        `json:"scopes" db:"scopes"`
	ResourceIDs []string        `json:"resource_ids" db:"resource_ids"`
	ExpiresAt   time.Time       `json:"expires_at" db:"expires_at"`
}

// HasScope reports whether the consent grants the given scope. Comparison is
// case-insensitive since consent records store scopes uppercased while API
// surfaces use mixed case.
func (c *Context) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if strings.EqualFold(s, scope) {
			return true
		}
	}
	return false
}

// LinksResource reports whether resourceID is in the consent's declared
// resource set.
func (c *Context) LinksResource(resourceID string) bool {
	for _, id := range c.ResourceIDs {
		if id == resourceID {
			return true
		}
	}
	return false
}

// Active reports whether the consent has not expired at the given instant.
func (c *Context) Active(now time.Time) bool {
	return now.Before(c.ExpiresAt)
}
