package treasury

import (
	"time"

	"github.com/shopspring/decimal"
)

// Consent scopes gating treasury reads.
const (
	ScopeReadAccounts     = "ReadAccounts"
	ScopeReadBalances     = "ReadBalances"
	ScopeReadTransactions = "ReadTransactions"
)

// Account is one corporate account as held by the system of record. Virtual
// accounts reference their master through MasterAccountID.
type Account struct {
	AccountID       string `json:"account_id" db:"account_id"`
	CorporateID     string `json:"corporate_id" db:"corporate_id"`
	MasterAccountID string `json:"master_account_id,omitempty" db:"master_account_id"`
	IBAN            string `json:"iban" db:"iban"`
	Currency        string `json:"currency" db:"currency"`
	Status          string `json:"status" db:"status"`
	AccountType     string `json:"account_type" db:"account_type"`
	Virtual         bool   `json:"virtual" db:"virtual"`
}

// Balance is one balance row from the system of record.
type Balance struct {
	AccountID string          `json:"account_id" db:"account_id"`
	Type      string          `json:"type" db:"type"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	Currency  string          `json:"currency" db:"currency"`
	AsOf      time.Time       `json:"as_of" db:"as_of"`
}

// BalanceSnapshot is the response view of a balance. Amount is rendered
// through the entitlement masker, so it may be the mask marker.
type BalanceSnapshot struct {
	AccountID string    `json:"account_id"`
	Type      string    `json:"type"`
	Amount    string    `json:"amount"`
	Currency  string    `json:"currency"`
	AsOf      time.Time `json:"as_of"`
}

// Transaction is one booked transaction from the system of record.
type Transaction struct {
	TransactionID   string          `json:"transaction_id" db:"transaction_id"`
	AccountID       string          `json:"account_id" db:"account_id"`
	Amount          decimal.Decimal `json:"amount" db:"amount"`
	Currency        string          `json:"currency" db:"currency"`
	BookingDate     time.Time       `json:"booking_date" db:"booking_date"`
	TransactionCode string          `json:"transaction_code" db:"transaction_code"`
	ProprietaryCode string          `json:"proprietary_code,omitempty" db:"proprietary_code"`
	Description     string          `json:"description" db:"description"`
}

// TransactionSnapshot is the response view of a transaction. IsSweeping marks
// liquidity sweeps between master and virtual accounts.
type TransactionSnapshot struct {
	TransactionID   string    `json:"transaction_id"`
	AccountID       string    `json:"account_id"`
	Amount          string    `json:"amount"`
	Currency        string    `json:"currency"`
	BookingDate     time.Time `json:"booking_date"`
	TransactionCode string    `json:"transaction_code"`
	IsSweeping      bool      `json:"is_sweeping"`
	Description     string    `json:"description"`
}

// AccountListResult carries the account listing plus the cache-hit flag.
type AccountListResult struct {
	Accounts []Account `json:"accounts"`
	CacheHit bool      `json:"cache_hit"`
}

// BalanceListResult carries masked-or-full balances plus the cache-hit flag.
type BalanceListResult struct {
	Balances []BalanceSnapshot `json:"balances"`
	Masked   bool              `json:"masked"`
	CacheHit bool              `json:"cache_hit"`
}

// TransactionPage is one page of filtered transactions, newest first.
type TransactionPage struct {
	Items        []TransactionSnapshot `json:"items"`
	TotalRecords int                   `json:"total_records"`
	Page         int                   `json:"page"`
	PageSize     int                   `json:"page_size"`
	HasNext      bool                  `json:"has_next"`
	CacheHit     bool                  `json:"cache_hit"`
}

// ListAccountsQuery selects master accounts by default; IncludeVirtual with
// MasterAccountID expands to the master plus its virtual accounts.
type ListAccountsQuery struct {
	ConsentID       string
	TPPID           string
	InteractionID   string
	IncludeVirtual  bool
	MasterAccountID string
}

type GetBalancesQuery struct {
	ConsentID     string
	TPPID         string
	AccountID     string
	InteractionID string
}

// GetTransactionsQuery filters by an optional single account and an optional
// booking-date range, both ends inclusive.
type GetTransactionsQuery struct {
	ConsentID     string
	TPPID         string
	InteractionID string
	AccountID     string
	From          *time.Time
	To            *time.Time
	Page          int
	PageSize      int
}
