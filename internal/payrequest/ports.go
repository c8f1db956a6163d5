package payrequest

import (
	"context"

	"github.com/shopspring/decimal"
)

// ConsentPort persists consents. FindByID returns nil with a nil error when
// the consent does not exist.
type ConsentPort interface {
	Save(ctx context.Context, consent *Consent) error
	FindByID(ctx context.Context, consentID string) (*Consent, error)
}

// PaymentPort persists accepted collections.
type PaymentPort interface {
	Save(ctx context.Context, payment *Payment) error
	FindByID(ctx context.Context, paymentID string) (*Payment, error)
}

// UsagePort tracks cumulative accepted amounts per consent and period. The
// reserve is a single atomic conditional add: it succeeds only when the
// period's consumed total plus amount stays within cap, so two concurrent
// collections cannot jointly exceed the cap even across processes.
type UsagePort interface {
	Reserve(ctx context.Context, consentID, periodKey string, amount, cap decimal.Decimal) (bool, error)
	Release(ctx context.Context, consentID, periodKey string, amount decimal.Decimal) error
}

// EventPort publishes consent and payment lifecycle events.
type EventPort interface {
	PublishPaymentCollected(ctx context.Context, payment *Payment) error
	PublishConsentRevoked(ctx context.Context, consent *Consent) error
}
