package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"openfinance/internal/treasury"
)

// TreasuryRepository serves the treasury read ports from the system of
// record. All three reads return empty slices rather than errors when
// nothing matches.
type TreasuryRepository struct {
	BaseRepository
	logger *slog.Logger
}

// NewTreasuryRepository creates a new treasury repository
func NewTreasuryRepository(db *sqlx.DB, logger *slog.Logger) *TreasuryRepository {
	return &TreasuryRepository{
		BaseRepository: BaseRepository{db: db},
		logger:         logger,
	}
}

// FindByCorporateID retrieves all accounts for a corporate, masters and
// virtuals alike.
func (r *TreasuryRepository) FindByCorporateID(ctx context.Context, corporateID string) ([]treasury.Account, error) {
	query := `
		SELECT account_id, corporate_id, master_account_id, iban, currency, status, account_type, virtual
		FROM accounts
		WHERE corporate_id = $1
		ORDER BY account_id`

	accounts := []treasury.Account{}
	if err := r.db.SelectContext(ctx, &accounts, query, corporateID); err != nil {
		r.logger.Error("Failed to list accounts", "corporate_id", corporateID, "error", err)
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	return accounts, nil
}

// FindByAccountID retrieves the balance rows of one account.
func (r *TreasuryRepository) FindByAccountID(ctx context.Context, accountID string) ([]treasury.Balance, error) {
	query := `
		SELECT account_id, type, amount, currency, as_of
		FROM balances
		WHERE account_id = $1
		ORDER BY type`

	balances := []treasury.Balance{}
	if err := r.db.SelectContext(ctx, &balances, query, accountID); err != nil {
		r.logger.Error("Failed to list balances", "account_id", accountID, "error", err)
		return nil, fmt.Errorf("failed to list balances: %w", err)
	}

	return balances, nil
}

// FindByAccountIDs retrieves booked transactions across a set of accounts.
func (r *TreasuryRepository) FindByAccountIDs(ctx context.Context, accountIDs []string) ([]treasury.Transaction, error) {
	if len(accountIDs) == 0 {
		return []treasury.Transaction{}, nil
	}

	query := `
		SELECT transaction_id, account_id, amount, currency, booking_date,
		       transaction_code, proprietary_code, description
		FROM transactions
		WHERE account_id = ANY($1)`

	transactions := []treasury.Transaction{}
	if err := r.db.SelectContext(ctx, &transactions, query, pq.StringArray(accountIDs)); err != nil {
		r.logger.Error("Failed to list transactions", "accounts", len(accountIDs), "error", err)
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	return transactions, nil
}
