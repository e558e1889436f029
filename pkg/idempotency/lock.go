// Package idempotency serializes concurrent requests that share an
// idempotency key.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrHeld is returned by Acquire when another request holds the key.
var ErrHeld = errors.New("idempotency key in flight")

// releaseScript deletes the lock only if it still carries our token, so a
// holder whose TTL lapsed cannot release a lock taken over by someone else.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Store{rdb: rdb, ttl: ttl}
}

func (s *Store) Key(merchantID, key string) string {
	return fmt.Sprintf("idem:%s:%s", merchantID, key)
}

// Acquire takes the in-flight lock for (merchantID, key). The returned
// release func is safe to call more than once.
func (s *Store) Acquire(ctx context.Context, merchantID, key string) (func(context.Context), error) {
	k := s.Key(merchantID, key)
	token := uuid.NewString()

	ok, err := s.rdb.SetNX(ctx, k, token, s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", k, err)
	}
	if !ok {
		return nil, ErrHeld
	}

	return func(ctx context.Context) {
		_ = releaseScript.Run(ctx, s.rdb, []string{k}, token).Err()
	}, nil
}
