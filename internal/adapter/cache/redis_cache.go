package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SamuelSilva2021/opamenu-ecosistema-sub006/internal/usecase"
)

// RedisOrderCache mirrors order status for cheap dashboard polling. Writes
// are best-effort; the database row is always authoritative.
type RedisOrderCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisOrderCache(rdb *redis.Client, ttl time.Duration) *RedisOrderCache {
	return &RedisOrderCache{rdb: rdb, ttl: ttl}
}

func statusKey(tenantID, orderID string) string {
	return "order:status:" + tenantID + ":" + orderID
}

func (r *RedisOrderCache) SetStatus(ctx context.Context, tenantID, orderID, status string) error {
	return r.rdb.Set(ctx, statusKey(tenantID, orderID), status, r.ttl).Err()
}

func (r *RedisOrderCache) GetStatus(ctx context.Context, tenantID, orderID string) (string, error) {
	val, err := r.rdb.Get(ctx, statusKey(tenantID, orderID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

var _ usecase.OrderCache = (*RedisOrderCache)(nil)
