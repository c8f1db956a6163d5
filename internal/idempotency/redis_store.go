package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"openfinance/internal/clock"
)

const keyPrefix = "idempotency:"

// RedisStore backs the coordinator with Redis. SET NX provides the atomic
// insert-if-absent the §5 race property requires; the key TTL mirrors the
// record expiry so Redis reclaims records once the deduplication window ends.
type RedisStore struct {
	client *redis.Client
	clock  clock.Clock
}

// NewRedisStore creates a Redis-backed idempotency store.
func NewRedisStore(client *redis.Client, clk clock.Clock) *RedisStore {
	return &RedisStore{client: client, clock: clk}
}

func storeKey(key, callerID string) string {
	return keyPrefix + callerID + ":" + key
}

// Find returns the live record for (key, callerID) or nil when absent. A
// record past its recorded expiry is treated as absent even if Redis has not
// evicted it yet.
func (s *RedisStore) Find(ctx context.Context, key, callerID string) (*Record, error) {
	raw, err := s.client.Get(ctx, storeKey(key, callerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read idempotency record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode idempotency record: %w", err)
	}
	if rec.Expired(s.clock.Now()) {
		s.client.Del(ctx, storeKey(key, callerID))
		return nil, nil
	}
	return &rec, nil
}

// PutIfAbsent inserts rec with SET NX. On a lost race the present record is
// fetched and returned so the caller can replay or reject it.
func (s *RedisStore) PutIfAbsent(ctx context.Context, rec *Record) (*Record, bool, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode idempotency record: %w", err)
	}

	ttl := rec.ExpiresAt.Sub(s.clock.Now())
	if ttl <= 0 {
		// Already past its window; nothing to deduplicate against.
		return rec, true, nil
	}

	ok, err := s.client.SetNX(ctx, storeKey(rec.Key, rec.CallerID), raw, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to store idempotency record: %w", err)
	}
	if ok {
		return rec, true, nil
	}

	existing, err := s.Find(ctx, rec.Key, rec.CallerID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		// The competing record expired between SETNX and GET; retry once.
		return s.PutIfAbsent(ctx, rec)
	}
	return existing, false, nil
}
