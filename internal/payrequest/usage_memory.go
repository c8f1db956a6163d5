package payrequest

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

// MemoryUsage is an in-process UsagePort for tests and single-node setups.
type MemoryUsage struct {
	mu       sync.Mutex
	consumed map[string]decimal.Decimal
}

func NewMemoryUsage() *MemoryUsage {
	return &MemoryUsage{consumed: make(map[string]decimal.Decimal)}
}

func usageKey(consentID, periodKey string) string {
	return consentID + ":" + periodKey
}

func (u *MemoryUsage) Reserve(_ context.Context, consentID, periodKey string, amount, cap decimal.Decimal) (bool, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	key := usageKey(consentID, periodKey)
	next := u.consumed[key].Add(amount)
	if next.GreaterThan(cap) {
		return false, nil
	}
	u.consumed[key] = next
	return true, nil
}

func (u *MemoryUsage) Release(_ context.Context, consentID, periodKey string, amount decimal.Decimal) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	key := usageKey(consentID, periodKey)
	u.consumed[key] = u.consumed[key].Sub(amount)
	return nil
}
