package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openfinance/internal/clock"
)

var testNow = time.Date(2026, 2, 9, 10, 0, 0, 0, time.UTC)

type payload struct {
	Name   string `json:"name"`
	Amount string `json:"amount"`
}

func TestCacheMissPopulateHitExpire(t *testing.T) {
	clk := clock.Fixed(testNow)
	c := New[payload](NewMemoryStore(), clk, 30*time.Second)
	ctx := context.Background()

	_, hit, err := c.Get(ctx, "balances:ACC-001:FULL")
	require.NoError(t, err)
	assert.False(t, hit, "first read must miss")

	require.NoError(t, c.Put(ctx, "balances:ACC-001:FULL", payload{Name: "interim", Amount: "100.00"}))

	value, hit, err := c.Get(ctx, "balances:ACC-001:FULL")
	require.NoError(t, err)
	assert.True(t, hit, "read with unchanged now must hit")
	assert.Equal(t, "100.00", value.Amount)

	// Exactly at expiry the entry is already stale.
	clk.Advance(30 * time.Second)
	_, hit, err = c.Get(ctx, "balances:ACC-001:FULL")
	require.NoError(t, err)
	assert.False(t, hit, "read at expiresAt must miss")
}

func TestCacheLastWriteWins(t *testing.T) {
	clk := clock.Fixed(testNow)
	c := New[payload](NewMemoryStore(), clk, 30*time.Second)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "k", payload{Amount: "1.00"}))
	require.NoError(t, c.Put(ctx, "k", payload{Amount: "2.00"}))

	value, hit, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, "2.00", value.Amount)
}

func TestKeyComposition(t *testing.T) {
	assert.Equal(t, "report:FILE-1:TPP-001", Key("report", "FILE-1", "TPP-001"))
}

func TestNormalizedKeyEquivalence(t *testing.T) {
	a := NormalizedKey([]string{"catalog", "products"}, "Savings", "aed")
	b := NormalizedKey([]string{"catalog", "products"}, " AED ", "SAVINGS")
	assert.Equal(t, a, b, "filter order and formatting must not change the key")

	c := NormalizedKey([]string{"catalog", "products"}, "", "")
	assert.Equal(t, "catalog:products:-:-", c, "empty filters keep key positions")
}
