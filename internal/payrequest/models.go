package payrequest

import (
	"time"

	"github.com/shopspring/decimal"
)

// ConsentStatus is the lifecycle state of a variable-recurring-payment
// consent.
type ConsentStatus string

const (
	ConsentAuthorised ConsentStatus = "AUTHORISED"
	ConsentRevoked    ConsentStatus = "REVOKED"
)

// PaymentStatus is the terminal state of a collected payment.
type PaymentStatus string

const PaymentAccepted PaymentStatus = "ACCEPTED"

// Consent authorizes a payee to pull variable recurring payments. Limit
// bounds both any single payment and the cumulative accepted amount per
// period.
type Consent struct {
	ConsentID    string          `json:"consent_id" db:"consent_id"`
	TPPID        string          `json:"tpp_id" db:"tpp_id"`
	PSUID        string          `json:"psu_id" db:"psu_id"`
	Limit        decimal.Decimal `json:"limit" db:"limit_amount"`
	Currency     string          `json:"currency" db:"currency"`
	Status       ConsentStatus   `json:"status" db:"status"`
	ExpiresAt    time.Time       `json:"expires_at" db:"expires_at"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	RevokedAt    *time.Time      `json:"revoked_at,omitempty" db:"revoked_at"`
	RevokeReason string          `json:"revoke_reason,omitempty" db:"revoke_reason"`
}

// Active reports whether the consent can authorize new collections at now.
func (c *Consent) Active(now time.Time) bool {
	return c.Status == ConsentAuthorised && c.ExpiresAt.After(now)
}

// Payment is one accepted collection under a consent. PeriodKey buckets the
// payment into the cumulative-limit window it consumed.
type Payment struct {
	PaymentID string          `json:"payment_id" db:"payment_id"`
	ConsentID string          `json:"consent_id" db:"consent_id"`
	TPPID     string          `json:"tpp_id" db:"tpp_id"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	Currency  string          `json:"currency" db:"currency"`
	Status    PaymentStatus   `json:"status" db:"status"`
	PeriodKey string          `json:"period_key" db:"period_key"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// CreateConsentCommand opens a new consent with a combined per-payment and
// cumulative limit.
type CreateConsentCommand struct {
	TPPID         string
	PSUID         string
	Limit         decimal.Decimal
	Currency      string
	ExpiresAt     time.Time
	InteractionID string
}

type SubmitPaymentCommand struct {
	TPPID          string
	ConsentID      string
	IdempotencyKey string
	Amount         decimal.Decimal
	Currency       string
	InteractionID  string
}

type RevokeConsentCommand struct {
	ConsentID     string
	TPPID         string
	InteractionID string
	Reason        string
}

// CollectionResult is the synchronous response to a payment submission.
type CollectionResult struct {
	PaymentID     string        `json:"payment_id"`
	Status        PaymentStatus `json:"status"`
	InteractionID string        `json:"interaction_id"`
	Replayed      bool          `json:"replayed"`
	CreatedAt     time.Time     `json:"created_at"`
}
