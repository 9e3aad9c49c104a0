package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SamuelSilva2021/opamenu-ecosistema-sub006/internal/usecase"
)

// RedisIdempotencyStore backs two concerns: duplicate CreateOrder requests
// (scope = tenant id, key = client idempotency key) and webhook event dedupe
// (scope = "webhook", key = provider:event id). Entries expire; the
// state-machine guards remain the durable line of defense.
type RedisIdempotencyStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisIdempotencyStore(rdb *redis.Client, ttl time.Duration) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{rdb: rdb, ttl: ttl}
}

func (s *RedisIdempotencyStore) TryLock(ctx context.Context, scope, key string) (bool, error) {
	return s.rdb.SetNX(ctx, "idemp:"+scope+":"+key, "1", s.ttl).Result()
}

func (s *RedisIdempotencyStore) Remember(ctx context.Context, scope, key, value string) error {
	return s.rdb.Set(ctx, "idemp:map:"+scope+":"+key, value, s.ttl).Err()
}

func (s *RedisIdempotencyStore) Recall(ctx context.Context, scope, key string) (string, bool, error) {
	val, err := s.rdb.Get(ctx, "idemp:map:"+scope+":"+key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

var _ usecase.IdempotencyStore = (*RedisIdempotencyStore)(nil)
