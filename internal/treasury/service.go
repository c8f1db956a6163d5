package treasury

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"openfinance/internal/cache"
	"openfinance/internal/clock"
	"openfinance/internal/consent"
	"openfinance/internal/domain"
	"openfinance/internal/masking"
	"openfinance/internal/metrics"
)

const (
	accountsOperation     = "treasury.accounts"
	balancesOperation     = "treasury.balances"
	transactionsOperation = "treasury.transactions"
)

// Settings bounds treasury pagination. Cache TTLs live on the injected
// caches.
type Settings struct {
	DefaultPageSize int
	MaxPageSize     int
}

// Service serves corporate treasury reads: accounts, balances, and
// transactions, each consent-gated and cached. Balances and transaction
// amounts are masked for RESTRICTED consents before cache population, so
// every cache key carries the entitlement tier.
type Service struct {
	authorizer       *consent.Authorizer
	accounts         AccountReadPort
	balances         BalanceReadPort
	transactions     TransactionReadPort
	accountCache     *cache.Cache[[]Account]
	balanceCache     *cache.Cache[[]BalanceSnapshot]
	transactionCache *cache.Cache[TransactionPage]
	settings         Settings
	clock            clock.Clock
	metrics          *metrics.Collector
	logger           *slog.Logger
}

func NewService(
	authorizer *consent.Authorizer,
	accounts AccountReadPort,
	balances BalanceReadPort,
	transactions TransactionReadPort,
	accountCache *cache.Cache[[]Account],
	balanceCache *cache.Cache[[]BalanceSnapshot],
	transactionCache *cache.Cache[TransactionPage],
	settings Settings,
	clk clock.Clock,
	collector *metrics.Collector,
	logger *slog.Logger,
) *Service {
	return &Service{
		authorizer:       authorizer,
		accounts:         accounts,
		balances:         balances,
		transactions:     transactions,
		accountCache:     accountCache,
		balanceCache:     balanceCache,
		transactionCache: transactionCache,
		settings:         settings,
		clock:            clk,
		metrics:          collector,
		logger:           logger,
	}
}

// ListAccounts returns the consented corporate's master accounts, or one
// master plus its virtual accounts when the query asks for the expansion.
func (s *Service) ListAccounts(ctx context.Context, q ListAccountsQuery) (*AccountListResult, error) {
	start := s.clock.Now()
	s.metrics.IncrementRequests(accountsOperation)
	defer s.metrics.ObserveDuration(accountsOperation, start)

	cc, err := s.authorizer.Authorize(ctx, consent.Request{
		ConsentID:     q.ConsentID,
		CallerTPPID:   q.TPPID,
		RequiredScope: ScopeReadAccounts,
	})
	if err != nil {
		s.metrics.IncrementErrors(accountsOperation)
		return nil, err
	}

	key := cache.NormalizedKey(
		[]string{"treasury", "accounts", cc.SubjectID},
		strconv.FormatBool(q.IncludeVirtual),
		q.MasterAccountID,
	)
	cached, hit, err := s.accountCache.Get(ctx, key)
	if err != nil {
		s.metrics.IncrementErrors(accountsOperation)
		return nil, err
	}
	s.metrics.RecordCacheRead(accountsOperation, hit)
	if hit {
		return &AccountListResult{Accounts: cached, CacheHit: true}, nil
	}

	all, err := s.accounts.FindByCorporateID(ctx, cc.SubjectID)
	if err != nil {
		s.metrics.IncrementErrors(accountsOperation)
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}

	selected := make([]Account, 0, len(all))
	for _, acct := range all {
		if q.IncludeVirtual && q.MasterAccountID != "" {
			if acct.AccountID == q.MasterAccountID || acct.MasterAccountID == q.MasterAccountID {
				selected = append(selected, acct)
			}
			continue
		}
		if !acct.Virtual {
			selected = append(selected, acct)
		}
	}

	if err := s.accountCache.Put(ctx, key, selected); err != nil {
		return nil, err
	}
	return &AccountListResult{Accounts: selected}, nil
}

// GetBalances returns balances for one consent-linked account.
func (s *Service) GetBalances(ctx context.Context, q GetBalancesQuery) (*BalanceListResult, error) {
	start := s.clock.Now()
	s.metrics.IncrementRequests(balancesOperation)
	defer s.metrics.ObserveDuration(balancesOperation, start)

	cc, err := s.authorizer.Authorize(ctx, consent.Request{
		ConsentID:     q.ConsentID,
		CallerTPPID:   q.TPPID,
		RequiredScope: ScopeReadBalances,
		ResourceID:    q.AccountID,
	})
	if err != nil {
		s.metrics.IncrementErrors(balancesOperation)
		return nil, err
	}
	masked := masking.Required(cc.Tier)

	key := cache.Key("treasury", "balances", q.AccountID, string(cc.Tier))
	cached, hit, err := s.balanceCache.Get(ctx, key)
	if err != nil {
		s.metrics.IncrementErrors(balancesOperation)
		return nil, err
	}
	s.metrics.RecordCacheRead(balancesOperation, hit)
	if hit {
		return &BalanceListResult{Balances: cached, Masked: masked, CacheHit: true}, nil
	}

	rows, err := s.balances.FindByAccountID(ctx, q.AccountID)
	if err != nil {
		s.metrics.IncrementErrors(balancesOperation)
		return nil, fmt.Errorf("failed to load balances: %w", err)
	}
	if len(rows) == 0 {
		s.metrics.IncrementErrors(balancesOperation)
		return nil, domain.NotFound("Balances not found")
	}

	snapshots := make([]BalanceSnapshot, 0, len(rows))
	for _, row := range rows {
		snapshots = append(snapshots, BalanceSnapshot{
			AccountID: row.AccountID,
			Type:      row.Type,
			Amount:    masking.Amount(cc.Tier, row.Amount),
			Currency:  row.Currency,
			AsOf:      row.AsOf,
		})
	}

	if err := s.balanceCache.Put(ctx, key, snapshots); err != nil {
		return nil, err
	}
	return &BalanceListResult{Balances: snapshots, Masked: masked}, nil
}

// GetTransactions returns one page of booked transactions across the
// consent-linked accounts, or a single account when the query names one.
func (s *Service) GetTransactions(ctx context.Context, q GetTransactionsQuery) (*TransactionPage, error) {
	start := s.clock.Now()
	s.metrics.IncrementRequests(transactionsOperation)
	defer s.metrics.ObserveDuration(transactionsOperation, start)

	req := consent.Request{
		ConsentID:     q.ConsentID,
		CallerTPPID:   q.TPPID,
		RequiredScope: ScopeReadTransactions,
	}
	if q.AccountID != "" {
		req.ResourceID = q.AccountID
	}
	cc, err := s.authorizer.Authorize(ctx, req)
	if err != nil {
		s.metrics.IncrementErrors(transactionsOperation)
		return nil, err
	}

	accountIDs := cc.ResourceIDs
	if q.AccountID != "" {
		accountIDs = []string{q.AccountID}
	}

	page, pageSize := s.normalizePage(q.Page, q.PageSize)

	var fromFilter, toFilter string
	if q.From != nil {
		fromFilter = q.From.UTC().Format("2006-01-02T15:04:05Z")
	}
	if q.To != nil {
		toFilter = q.To.UTC().Format("2006-01-02T15:04:05Z")
	}
	key := cache.NormalizedKey(
		[]string{"treasury", "transactions", q.ConsentID, string(cc.Tier)},
		q.AccountID,
		fromFilter,
		toFilter,
		strconv.Itoa(page),
		strconv.Itoa(pageSize),
	)
	cached, hit, err := s.transactionCache.Get(ctx, key)
	if err != nil {
		s.metrics.IncrementErrors(transactionsOperation)
		return nil, err
	}
	s.metrics.RecordCacheRead(transactionsOperation, hit)
	if hit {
		cached.CacheHit = true
		return &cached, nil
	}

	rows, err := s.transactions.FindByAccountIDs(ctx, accountIDs)
	if err != nil {
		s.metrics.IncrementErrors(transactionsOperation)
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}

	filtered := rows[:0:0]
	for _, row := range rows {
		if q.From != nil && row.BookingDate.Before(*q.From) {
			continue
		}
		if q.To != nil && row.BookingDate.After(*q.To) {
			continue
		}
		filtered = append(filtered, row)
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].BookingDate.After(filtered[j].BookingDate)
	})

	total := len(filtered)
	offset := (page - 1) * pageSize
	if offset > total {
		offset = total
	}
	end := offset + pageSize
	if end > total {
		end = total
	}

	items := make([]TransactionSnapshot, 0, end-offset)
	for _, row := range filtered[offset:end] {
		items = append(items, TransactionSnapshot{
			TransactionID:   row.TransactionID,
			AccountID:       row.AccountID,
			Amount:          masking.Amount(cc.Tier, row.Amount),
			Currency:        row.Currency,
			BookingDate:     row.BookingDate,
			TransactionCode: row.TransactionCode,
			IsSweeping:      sweeping(row),
			Description:     row.Description,
		})
	}

	result := TransactionPage{
		Items:        items,
		TotalRecords: total,
		Page:         page,
		PageSize:     pageSize,
		HasNext:      end < total,
	}
	if err := s.transactionCache.Put(ctx, key, result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *Service) normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = s.settings.DefaultPageSize
	}
	if pageSize > s.settings.MaxPageSize {
		pageSize = s.settings.MaxPageSize
	}
	return page, pageSize
}

// sweeping marks liquidity movements generated by sweep or zero-balancing
// arrangements between master and virtual accounts.
func sweeping(t Transaction) bool {
	return t.TransactionCode == "SWEEP" || t.ProprietaryCode == "ZBA"
}
