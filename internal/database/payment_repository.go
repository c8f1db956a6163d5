package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"openfinance/internal/payments"
)

// PaymentConsentRepository loads payment consents bound at submission.
type PaymentConsentRepository struct {
	BaseRepository
	logger *slog.Logger
}

// NewPaymentConsentRepository creates a new payment consent repository
func NewPaymentConsentRepository(db *sqlx.DB, logger *slog.Logger) *PaymentConsentRepository {
	return &PaymentConsentRepository{
		BaseRepository: BaseRepository{db: db},
		logger:         logger,
	}
}

// FindByID retrieves a payment consent by ID, nil when absent.
func (r *PaymentConsentRepository) FindByID(ctx context.Context, consentID string) (*payments.Consent, error) {
	query := `
		SELECT consent_id, tpp_id, status, authorized_amount, currency, payee_hash, expires_at
		FROM payment_consents
		WHERE consent_id = $1`

	var c payments.Consent
	err := r.db.GetContext(ctx, &c, query, consentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get payment consent", "consent_id", consentID, "error", err)
		return nil, fmt.Errorf("failed to get payment consent: %w", err)
	}

	return &c, nil
}

// Save inserts or replaces a payment consent.
func (r *PaymentConsentRepository) Save(ctx context.Context, c *payments.Consent) error {
	query := `
		INSERT INTO payment_consents (consent_id, tpp_id, status, authorized_amount, currency, payee_hash, expires_at)
		VALUES (:consent_id, :tpp_id, :status, :authorized_amount, :currency, :payee_hash, :expires_at)
		ON CONFLICT (consent_id) DO UPDATE SET
			status = EXCLUDED.status,
			authorized_amount = EXCLUDED.authorized_amount,
			currency = EXCLUDED.currency,
			payee_hash = EXCLUDED.payee_hash,
			expires_at = EXCLUDED.expires_at`

	_, err := r.db.NamedExecContext(ctx, query, c)
	if err != nil {
		r.logger.Error("Failed to save payment consent", "consent_id", c.ConsentID, "error", err)
		return fmt.Errorf("failed to save payment consent: %w", err)
	}

	return nil
}

// PaymentTransactionRepository persists submitted payment transactions.
type PaymentTransactionRepository struct {
	BaseRepository
	logger *slog.Logger
}

// NewPaymentTransactionRepository creates a new payment transaction repository
func NewPaymentTransactionRepository(db *sqlx.DB, logger *slog.Logger) *PaymentTransactionRepository {
	return &PaymentTransactionRepository{
		BaseRepository: BaseRepository{db: db},
		logger:         logger,
	}
}

// Save inserts a payment transaction.
func (r *PaymentTransactionRepository) Save(ctx context.Context, txn *payments.Transaction) error {
	query := `
		INSERT INTO payment_transactions (
			payment_id, consent_id, tpp_id, instruction_id, end_to_end_id,
			debtor_account_id, amount, currency, payee_hash, status, created_at
		) VALUES (
			:payment_id, :consent_id, :tpp_id, :instruction_id, :end_to_end_id,
			:debtor_account_id, :amount, :currency, :payee_hash, :status, :created_at
		)`

	_, err := r.db.NamedExecContext(ctx, query, txn)
	if err != nil {
		r.logger.Error("Failed to save payment transaction", "payment_id", txn.PaymentID, "error", err)
		return fmt.Errorf("failed to save payment transaction: %w", err)
	}

	r.logger.Info("Payment transaction saved", "payment_id", txn.PaymentID, "status", txn.Status)
	return nil
}

// FindByPaymentID retrieves a payment transaction, nil when absent.
func (r *PaymentTransactionRepository) FindByPaymentID(ctx context.Context, paymentID string) (*payments.Transaction, error) {
	query := `
		SELECT payment_id, consent_id, tpp_id, instruction_id, end_to_end_id,
		       debtor_account_id, amount, currency, payee_hash, status, created_at
		FROM payment_transactions
		WHERE payment_id = $1`

	var txn payments.Transaction
	err := r.db.GetContext(ctx, &txn, query, paymentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get payment transaction", "payment_id", paymentID, "error", err)
		return nil, fmt.Errorf("failed to get payment transaction: %w", err)
	}

	return &txn, nil
}
