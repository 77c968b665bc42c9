package ledger

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSpendStore keeps spend counters in Redis so every worker process
// books against the same budget. IncrByFloat gives the required atomicity.
type RedisSpendStore struct {
	rdb *redis.Client
}

func NewRedisSpendStore(rdb *redis.Client) *RedisSpendStore {
	return &RedisSpendStore{rdb: rdb}
}

func (s *RedisSpendStore) IncrBy(ctx context.Context, key string, usd float64, ttl time.Duration) (float64, error) {
	val, err := s.rdb.IncrByFloat(ctx, key, usd).Result()
	if err != nil {
		return 0, err
	}
	// Set expiration only while the key is fresh; counters are date-keyed
	// so a missed expiry is harmless.
	s.rdb.ExpireNX(ctx, key, ttl)
	return val, nil
}

func (s *RedisSpendStore) Get(ctx context.Context, key string) (float64, error) {
	val, err := s.rdb.Get(ctx, key).Float64()
	if err == redis.Nil {
		return 0, nil
	}
	return val, err
}
