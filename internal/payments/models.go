// Package payments implements single-payment initiation: signature check,
// consent binding, risk assessment, funds reservation, persistence, and
// event publication, deduplicated by idempotency key.
package payments

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the terminal state of a payment submission.
type Status string

const (
	StatusAcceptedSettlementInProcess Status = "ACCEPTED_SETTLEMENT_IN_PROCESS"
	StatusPending                     Status = "PENDING"
	StatusRejected                    Status = "REJECTED"
)

// ConsentStatus is the lifecycle state of a payment consent.
type ConsentStatus string

const (
	ConsentAuthorized ConsentStatus = "AUTHORIZED"
	ConsentRevoked    ConsentStatus = "REVOKED"
	ConsentExpired    ConsentStatus = "EXPIRED"
)

// Consent is the payment-specific consent snapshot: a ceiling amount, a
// currency, and a bound payee identity hash. The submitted payment must stay
// within all three.
type Consent struct {
	ConsentID        string          `json:"consent_id" db:"consent_id"`
	TPPID            string          `json:"tpp_id" db:"tpp_id"`
	Status           ConsentStatus   `json:"status" db:"status"`
	AuthorizedAmount decimal.Decimal `json:"authorized_amount" db:"authorized_amount"`
	Currency         string          `json:"currency" db:"currency"`
	PayeeHash        string          `json:"payee_hash" db:"payee_hash"`
	ExpiresAt        time.Time       `json:"expires_at" db:"expires_at"`
}

// Initiation is the payment instruction supplied by the TPP.
type Initiation struct {
	InstructionID   string          `json:"instruction_id"`
	EndToEndID      string          `json:"end_to_end_id"`
	DebtorAccountID string          `json:"debtor_account_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	PayeeScheme     string          `json:"payee_scheme"`
	PayeeID         string          `json:"payee_id"`
	PayeeName       string          `json:"payee_name"`
	// ExecutionDate, when set to a day after the submission date, defers
	// settlement: the payment parks at PENDING and no funds are reserved.
	ExecutionDate *time.Time `json:"execution_date,omitempty"`
}

// SubmitCommand carries one payment submission.
type SubmitCommand struct {
	TPPID          string
	IdempotencyKey string
	ConsentID      string
	Initiation     Initiation
	InteractionID  string
	// Payload holds the exact request bytes; both the detached signature
	// and the idempotency hash are computed over these bytes.
	Payload   []byte
	Signature string
}

// Transaction is the persisted payment record. It is immutable after its
// terminal status is written.
type Transaction struct {
	PaymentID       string          `json:"payment_id" db:"payment_id"`
	ConsentID       string          `json:"consent_id" db:"consent_id"`
	TPPID           string          `json:"tpp_id" db:"tpp_id"`
	InstructionID   string          `json:"instruction_id" db:"instruction_id"`
	EndToEndID      string          `json:"end_to_end_id" db:"end_to_end_id"`
	DebtorAccountID string          `json:"debtor_account_id" db:"debtor_account_id"`
	Amount          decimal.Decimal `json:"amount" db:"amount"`
	Currency        string          `json:"currency" db:"currency"`
	PayeeHash       string          `json:"payee_hash" db:"payee_hash"`
	Status          Status          `json:"status" db:"status"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

// Result is the submission outcome returned to the boundary layer.
type Result struct {
	PaymentID     string    `json:"payment_id"`
	Status        Status    `json:"status"`
	InteractionID string    `json:"interaction_id"`
	Replayed      bool      `json:"replayed"`
	CreatedAt     time.Time `json:"created_at"`
}

// RiskDecision is the outcome of the external risk assessment.
type RiskDecision string

const (
	RiskPass   RiskDecision = "PASS"
	RiskReject RiskDecision = "REJECT"
)
