// Package idempotency deduplicates retried write operations. A record is
// unique per (key, caller); its payload hash is immutable once stored.
// Commit is an atomic insert-if-absent so that when two concurrent callers
// race on the same key, exactly one result becomes canonical.
package idempotency

import (
	"context"
	"log/slog"
	"time"

	"openfinance/internal/clock"
	"openfinance/internal/domain"
)

// Record captures the outcome of a write operation keyed by an idempotency
// key. Subsequent identical payloads replay the stored result.
type Record struct {
	Key         string    `json:"key" db:"idempotency_key"`
	CallerID    string    `json:"caller_id" db:"caller_id"`
	PayloadHash string    `json:"payload_hash" db:"payload_hash"`
	ResourceID  string    `json:"resource_id" db:"resource_id"`
	Status      string    `json:"status" db:"status"`
	ExpiresAt   time.Time `json:"expires_at" db:"expires_at"`
}

// Expired reports whether the record's deduplication window has passed.
func (r *Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// Store persists idempotency records. Implementations must make PutIfAbsent a
// single atomic conditional write: callers may be separate processes, so
// application-level locking cannot provide the §5 race guarantee.
type Store interface {
	// Find returns the record for (key, callerID) or nil when absent.
	Find(ctx context.Context, key, callerID string) (*Record, error)
	// PutIfAbsent inserts rec only when no live record exists for its
	// (key, caller). When the insert loses a race, the already-present
	// record is returned with inserted=false.
	PutIfAbsent(ctx context.Context, rec *Record) (existing *Record, inserted bool, err error)
}

// Outcome is the result of reconciling an idempotency key against the store.
type Outcome struct {
	// Replayed is true when a prior record with a matching payload hash was
	// found; Record then carries the stored result.
	Replayed bool
	Record   *Record
}

// Coordinator maps an idempotency key and caller to a prior result and
// detects payload-mismatch conflicts. Expiry is lazy: records past their
// window are treated as absent, never actively swept.
type Coordinator struct {
	store  Store
	clock  clock.Clock
	logger *slog.Logger
}

// NewCoordinator creates an idempotency coordinator.
func NewCoordinator(store Store, clk clock.Clock, logger *slog.Logger) *Coordinator {
	return &Coordinator{store: store, clock: clk, logger: logger}
}

// Reconcile checks for a prior record. First use returns a zero Outcome and
// the caller proceeds; a repeat with the same payload hash returns a replay;
// a repeat with a different hash is a conflict.
func (c *Coordinator) Reconcile(ctx context.Context, key, callerID, payloadHash string) (Outcome, error) {
	rec, err := c.store.Find(ctx, key, callerID)
	if err != nil {
		return Outcome{}, err
	}
	if rec == nil || rec.Expired(c.clock.Now()) {
		return Outcome{}, nil
	}
	if rec.PayloadHash != payloadHash {
		c.logger.Warn("idempotency key reused with different payload",
			"idempotency_key", key,
			"caller_id", callerID)
		return Outcome{}, domain.Conflict("Idempotency conflict")
	}
	return Outcome{Replayed: true, Record: rec}, nil
}

// Commit stores the outcome of a completed write. When a concurrent caller
// already committed the same key, the canonical stored record is returned
// with replayed=true if its payload hash matches, or a conflict error
// otherwise. The caller must surface the canonical result and must not
// re-execute side effects.
func (c *Coordinator) Commit(ctx context.Context, rec *Record) (canonical *Record, replayed bool, err error) {
	existing, inserted, err := c.store.PutIfAbsent(ctx, rec)
	if err != nil {
		return nil, false, err
	}
	if inserted {
		return rec, false, nil
	}
	if existing.PayloadHash != rec.PayloadHash {
		return nil, false, domain.Conflict("Idempotency conflict")
	}
	c.logger.Info("lost idempotency race, returning canonical result",
		"idempotency_key", rec.Key,
		"caller_id", rec.CallerID,
		"resource_id", existing.ResourceID)
	return existing, true, nil
}
