package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// FundsRepository reserves funds against the available balance of the debtor
// account. The debit is a single conditional update, so concurrent
// reservations cannot jointly overdraw the account.
type FundsRepository struct {
	BaseRepository
	logger *slog.Logger
}

// NewFundsRepository creates a new funds repository
func NewFundsRepository(db *sqlx.DB, logger *slog.Logger) *FundsRepository {
	return &FundsRepository{
		BaseRepository: BaseRepository{db: db},
		logger:         logger,
	}
}

// Reserve debits amount from the account's available balance when it covers
// the amount in the same currency. A zero-row update means insufficient
// funds. Each successful reservation is recorded in the ledger under its
// payment reference.
func (r *FundsRepository) Reserve(ctx context.Context, accountID string, amount decimal.Decimal, currency, reference string) (bool, error) {
	reserved := false
	err := r.Transaction(func(tx *sqlx.Tx) error {
		updateQuery := `
			UPDATE balances
			SET amount = amount - $3
			WHERE account_id = $1 AND type = 'AVAILABLE' AND currency = $2 AND amount >= $3`

		result, err := tx.ExecContext(ctx, updateQuery, accountID, currency, amount)
		if err != nil {
			return fmt.Errorf("failed to debit available balance: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return nil
		}

		ledgerQuery := `
			INSERT INTO funds_reservations (reference, account_id, amount, currency, created_at)
			VALUES ($1, $2, $3, $4, $5)`

		if _, err := tx.ExecContext(ctx, ledgerQuery, reference, accountID, amount, currency, time.Now().UTC()); err != nil {
			return fmt.Errorf("failed to record funds reservation: %w", err)
		}

		reserved = true
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to reserve funds", "account_id", accountID, "reference", reference, "error", err)
		return false, err
	}

	return reserved, nil
}
