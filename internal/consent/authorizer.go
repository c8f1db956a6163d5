package consent

import (
	"context"
	"log/slog"

	"openfinance/internal/clock"
	"openfinance/internal/domain"
)

// Port loads consent snapshots from the system of record. A nil snapshot with
// a nil error means the consent does not exist.
type Port interface {
	FindByID(ctx context.Context, consentID string) (*Context, error)
}

// Request describes a single authorization check.
type Request struct {
	ConsentID     string
	CallerTPPID   string
	RequiredScope string
	// ResourceID, when set, must be present in the consent's linked resource
	// set. This is the object-level (BOLA) check.
	ResourceID string
}

// Authorizer performs pure consent validation. It has no side effects and is
// safe to call repeatedly.
type Authorizer struct {
	port   Port
	clock  clock.Clock
	logger *slog.Logger
}

// NewAuthorizer creates a consent authorizer.
func NewAuthorizer(port Port, clk clock.Clock, logger *slog.Logger) *Authorizer {
	return &Authorizer{port: port, clock: clk, logger: logger}
}

// Authorize validates existence, expiry, TPP ownership, scope, and (when a
// resource id is supplied) resource linkage. The returned context carries the
// entitlement tier for downstream masking; the tier is not enforced here.
func (a *Authorizer) Authorize(ctx context.Context, req Request) (*Context, error) {
	snapshot, err := a.port.FindByID(ctx, req.ConsentID)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, domain.Forbidden("Consent not found")
	}

	if snapshot.TPPID != req.CallerTPPID {
		a.logger.Warn("consent participant mismatch",
			"consent_id", req.ConsentID,
			"caller_tpp_id", req.CallerTPPID)
		return nil, domain.Forbidden("Consent participant mismatch")
	}

	if !snapshot.Active(a.clock.Now()) {
		return nil, domain.Forbidden("Consent expired")
	}

	if req.RequiredScope != "" && !snapshot.HasScope(req.RequiredScope) {
		return nil, domain.Forbiddenf("Required scope missing: %s", req.RequiredScope)
	}

	if req.ResourceID != "" && !snapshot.LinksResource(req.ResourceID) {
		a.logger.Warn("object-level authorization rejected",
			"consent_id", req.ConsentID,
			"resource_id", req.ResourceID)
		return nil, domain.Forbidden("Resource not linked to consent")
	}

	return snapshot, nil
}
