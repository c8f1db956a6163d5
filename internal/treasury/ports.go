package treasury

import "context"

// AccountReadPort loads accounts from the system of record.
type AccountReadPort interface {
	FindByCorporateID(ctx context.Context, corporateID string) ([]Account, error)
}

// BalanceReadPort loads balances for one account. An empty slice means the
// account has no balance rows.
type BalanceReadPort interface {
	FindByAccountID(ctx context.Context, accountID string) ([]Balance, error)
}

// TransactionReadPort loads transactions for a set of accounts.
type TransactionReadPort interface {
	FindByAccountIDs(ctx context.Context, accountIDs []string) ([]Transaction, error)
}
