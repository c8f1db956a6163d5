package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"openfinance/internal/payrequest"
)

// VRPConsentRepository persists variable recurring payment consents.
type VRPConsentRepository struct {
	BaseRepository
	logger *slog.Logger
}

// NewVRPConsentRepository creates a new VRP consent repository
func NewVRPConsentRepository(db *sqlx.DB, logger *slog.Logger) *VRPConsentRepository {
	return &VRPConsentRepository{
		BaseRepository: BaseRepository{db: db},
		logger:         logger,
	}
}

// Save inserts or replaces a VRP consent. Revocation rewrites the same row.
func (r *VRPConsentRepository) Save(ctx context.Context, consent *payrequest.Consent) error {
	query := `
		INSERT INTO vrp_consents (
			consent_id, tpp_id, psu_id, limit_amount, currency, status,
			expires_at, created_at, revoked_at, revoke_reason
		) VALUES (
			:consent_id, :tpp_id, :psu_id, :limit_amount, :currency, :status,
			:expires_at, :created_at, :revoked_at, :revoke_reason
		)
		ON CONFLICT (consent_id) DO UPDATE SET
			status = EXCLUDED.status,
			revoked_at = EXCLUDED.revoked_at,
			revoke_reason = EXCLUDED.revoke_reason`

	_, err := r.db.NamedExecContext(ctx, query, consent)
	if err != nil {
		r.logger.Error("Failed to save VRP consent", "consent_id", consent.ConsentID, "error", err)
		return fmt.Errorf("failed to save VRP consent: %w", err)
	}

	return nil
}

// FindByID retrieves a VRP consent, nil when absent.
func (r *VRPConsentRepository) FindByID(ctx context.Context, consentID string) (*payrequest.Consent, error) {
	query := `
		SELECT consent_id, tpp_id, psu_id, limit_amount, currency, status,
		       expires_at, created_at, revoked_at, revoke_reason
		FROM vrp_consents
		WHERE consent_id = $1`

	var consent payrequest.Consent
	err := r.db.GetContext(ctx, &consent, query, consentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get VRP consent", "consent_id", consentID, "error", err)
		return nil, fmt.Errorf("failed to get VRP consent: %w", err)
	}

	return &consent, nil
}

// VRPPaymentRepository persists accepted VRP collections.
type VRPPaymentRepository struct {
	BaseRepository
	logger *slog.Logger
}

// NewVRPPaymentRepository creates a new VRP payment repository
func NewVRPPaymentRepository(db *sqlx.DB, logger *slog.Logger) *VRPPaymentRepository {
	return &VRPPaymentRepository{
		BaseRepository: BaseRepository{db: db},
		logger:         logger,
	}
}

// Save inserts a VRP payment.
func (r *VRPPaymentRepository) Save(ctx context.Context, payment *payrequest.Payment) error {
	query := `
		INSERT INTO vrp_payments (payment_id, consent_id, tpp_id, amount, currency, status, period_key, created_at)
		VALUES (:payment_id, :consent_id, :tpp_id, :amount, :currency, :status, :period_key, :created_at)`

	_, err := r.db.NamedExecContext(ctx, query, payment)
	if err != nil {
		r.logger.Error("Failed to save VRP payment", "payment_id", payment.PaymentID, "error", err)
		return fmt.Errorf("failed to save VRP payment: %w", err)
	}

	r.logger.Info("VRP payment saved", "payment_id", payment.PaymentID, "consent_id", payment.ConsentID)
	return nil
}

// FindByID retrieves a VRP payment, nil when absent.
func (r *VRPPaymentRepository) FindByID(ctx context.Context, paymentID string) (*payrequest.Payment, error) {
	query := `
		SELECT payment_id, consent_id, tpp_id, amount, currency, status, period_key, created_at
		FROM vrp_payments
		WHERE payment_id = $1`

	var payment payrequest.Payment
	err := r.db.GetContext(ctx, &payment, query, paymentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get VRP payment", "payment_id", paymentID, "error", err)
		return nil, fmt.Errorf("failed to get VRP payment: %w", err)
	}

	return &payment, nil
}

// VRPUsageRepository tracks cumulative consumed amounts per consent and
// period. The reserve is a single conditional upsert, so two concurrent
// collections cannot jointly exceed the cap.
type VRPUsageRepository struct {
	BaseRepository
	logger *slog.Logger
}

// NewVRPUsageRepository creates a new VRP usage repository
func NewVRPUsageRepository(db *sqlx.DB, logger *slog.Logger) *VRPUsageRepository {
	return &VRPUsageRepository{
		BaseRepository: BaseRepository{db: db},
		logger:         logger,
	}
}

// Reserve atomically adds amount to the period's consumed total when the new
// total stays within cap. A zero-row result means the cap would be exceeded.
func (r *VRPUsageRepository) Reserve(ctx context.Context, consentID, periodKey string, amount, cap decimal.Decimal) (bool, error) {
	if amount.GreaterThan(cap) {
		return false, nil
	}

	query := `
		INSERT INTO vrp_usage (consent_id, period_key, consumed)
		VALUES ($1, $2, $3)
		ON CONFLICT (consent_id, period_key) DO UPDATE
		SET consumed = vrp_usage.consumed + EXCLUDED.consumed
		WHERE vrp_usage.consumed + EXCLUDED.consumed <= $4`

	result, err := r.db.ExecContext(ctx, query, consentID, periodKey, amount, cap)
	if err != nil {
		r.logger.Error("Failed to reserve VRP usage", "consent_id", consentID, "period", periodKey, "error", err)
		return false, fmt.Errorf("failed to reserve VRP usage: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// Release subtracts a previously reserved amount, flooring at zero.
func (r *VRPUsageRepository) Release(ctx context.Context, consentID, periodKey string, amount decimal.Decimal) error {
	query := `
		UPDATE vrp_usage
		SET consumed = GREATEST(consumed - $3, 0)
		WHERE consent_id = $1 AND period_key = $2`

	_, err := r.db.ExecContext(ctx, query, consentID, periodKey, amount)
	if err != nil {
		r.logger.Error("Failed to release VRP usage", "consent_id", consentID, "period", periodKey, "error", err)
		return fmt.Errorf("failed to release VRP usage: %w", err)
	}

	return nil
}
