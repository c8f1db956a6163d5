package payments

import (
	"context"

	"github.com/shopspring/decimal"
)

// ConsentPort loads payment consent snapshots. Nil with a nil error means the
// consent does not exist.
type ConsentPort interface {
	FindByID(ctx context.Context, consentID string) (*Consent, error)
}

// SignatureValidationPort verifies a detached signature over the exact
// payload bytes.
type SignatureValidationPort interface {
	IsValid(ctx context.Context, detachedSignature string, payload []byte) (bool, error)
}

// RiskAssessmentPort consults the external risk engine.
type RiskAssessmentPort interface {
	Assess(ctx context.Context, initiation Initiation, tppID string) (RiskDecision, error)
}

// FundsReservationPort reserves funds on the debtor account. A false return
// means insufficient funds.
type FundsReservationPort interface {
	Reserve(ctx context.Context, accountID string, amount decimal.Decimal, currency, reference string) (bool, error)
}

// TransactionPort persists payment transactions.
type TransactionPort interface {
	Save(ctx context.Context, txn *Transaction) error
	FindByPaymentID(ctx context.Context, paymentID string) (*Transaction, error)
}

// EventPort publishes the payment-submitted domain event, at least once,
// called exactly once per terminal transition.
type EventPort interface {
	PublishPaymentSubmitted(ctx context.Context, txn *Transaction) error
}
