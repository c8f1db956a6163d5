package idempotency

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openfinance/internal/clock"
	"openfinance/internal/domain"
)

var testNow = time.Date(2026, 2, 9, 10, 0, 0, 0, time.UTC)

func record(key, hash, resourceID string) *Record {
	return &Record{
		Key:         key,
		CallerID:    "TPP-001",
		PayloadHash: hash,
		ResourceID:  resourceID,
		Status:      "ACCEPTED",
		ExpiresAt:   testNow.Add(24 * time.Hour),
	}
}

func newCoordinator(t *testing.T, clk clock.Clock) (*Coordinator, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	return NewCoordinator(store, clk, logger), store
}

func TestReconcileFirstUse(t *testing.T) {
	c, _ := newCoordinator(t, clock.Fixed(testNow))

	outcome, err := c.Reconcile(context.Background(), "IDEMP-001", "TPP-001", "hash-a")
	require.NoError(t, err)
	assert.False(t, outcome.Replayed)
	assert.Nil(t, outcome.Record)
}

func TestReconcileReplayAndConflict(t *testing.T) {
	c, store := newCoordinator(t, clock.Fixed(testNow))
	ctx := context.Background()
	_, _, err := store.PutIfAbsent(ctx, record("IDEMP-001", "hash-a", "PAY-001"))
	require.NoError(t, err)

	outcome, err := c.Reconcile(ctx, "IDEMP-001", "TPP-001", "hash-a")
	require.NoError(t, err)
	assert.True(t, outcome.Replayed)
	assert.Equal(t, "PAY-001", outcome.Record.ResourceID)

	_, err = c.Reconcile(ctx, "IDEMP-001", "TPP-001", "hash-b")
	require.Error(t, err)
	assert.True(t, domain.IsConflict(err))
	assert.EqualError(t, err, "Idempotency conflict")
}

// Records are scoped per caller: the same key from another TPP is unrelated.
func TestReconcileScopedByCaller(t *testing.T) {
	c, store := newCoordinator(t, clock.Fixed(testNow))
	ctx := context.Background()
	_, _, err := store.PutIfAbsent(ctx, record("IDEMP-001", "hash-a", "PAY-001"))
	require.NoError(t, err)

	outcome, err := c.Reconcile(ctx, "IDEMP-001", "TPP-OTHER", "hash-a")
	require.NoError(t, err)
	assert.False(t, outcome.Replayed)
}

func TestReconcileExpiredRecordTreatedAsAbsent(t *testing.T) {
	clk := clock.Fixed(testNow)
	c, store := newCoordinator(t, clk)
	ctx := context.Background()
	_, _, err := store.PutIfAbsent(ctx, record("IDEMP-001", "hash-a", "PAY-001"))
	require.NoError(t, err)

	clk.Advance(24*time.Hour + time.Second)

	outcome, err := c.Reconcile(ctx, "IDEMP-001", "TPP-001", "hash-b")
	require.NoError(t, err)
	assert.False(t, outcome.Replayed, "expired window must not raise a conflict")
}

func TestCommitInsertsWhenAbsent(t *testing.T) {
	c, _ := newCoordinator(t, clock.Fixed(testNow))

	canonical, replayed, err := c.Commit(context.Background(), record("IDEMP-001", "hash-a", "PAY-001"))
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, "PAY-001", canonical.ResourceID)
}

func TestCommitLostRace(t *testing.T) {
	c, store := newCoordinator(t, clock.Fixed(testNow))
	ctx := context.Background()
	_, _, err := store.PutIfAbsent(ctx, record("IDEMP-001", "hash-a", "PAY-winner"))
	require.NoError(t, err)

	canonical, replayed, err := c.Commit(ctx, record("IDEMP-001", "hash-a", "PAY-loser"))
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, "PAY-winner", canonical.ResourceID)

	_, _, err = c.Commit(ctx, record("IDEMP-001", "hash-b", "PAY-other"))
	require.Error(t, err)
	assert.True(t, domain.IsConflict(err))
}

// The store-level insert must admit exactly one writer per (key, caller)
// regardless of how many race.
func TestPutIfAbsentAdmitsExactlyOneWriter(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	const writers = 16
	var wg sync.WaitGroup
	inserts := make([]bool, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, inserted, err := store.PutIfAbsent(ctx, record("IDEMP-RACE", "hash-a", "PAY-001"))
			assert.NoError(t, err)
			inserts[i] = inserted
		}(i)
	}
	wg.Wait()

	var winners int
	for _, inserted := range inserts {
		if inserted {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
}

type testWriter struct {
	t *testing.T
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}
