package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// envelope wraps a cached payload with its recorded expiry instant. Expiry is
// judged against the injected clock, not Redis's own TTL, so tests with a
// manual clock observe the same behavior as production. The Redis TTL is a
// backstop that reclaims memory.
type envelope struct {
	Payload   json.RawMessage `json:"payload"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// RedisStore is the production cache store.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed cache store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string, now time.Time) ([]byte, bool, error) {
	raw, err := s.client.Get(ctx, "cache:"+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache entry: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, false, fmt.Errorf("failed to decode cache envelope: %w", err)
	}
	if !env.ExpiresAt.After(now) {
		s.client.Del(ctx, "cache:"+key)
		return nil, false, nil
	}
	return env.Payload, true, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, payload []byte, expiresAt time.Time) error {
	raw, err := json.Marshal(envelope{Payload: payload, ExpiresAt: expiresAt})
	if err != nil {
		return fmt.Errorf("failed to encode cache envelope: %w", err)
	}

	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	// Backstop TTL: double the logical window so clock skew between the
	// injected clock and Redis never evicts a live entry early.
	if err := s.client.Set(ctx, "cache:"+key, raw, 2*ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}
