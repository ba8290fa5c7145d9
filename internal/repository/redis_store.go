package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"cart-service/internal/models"
)

// DefaultRedisKeyPrefix namespaces cart documents in a shared Redis
const DefaultRedisKeyPrefix = "tesseract:carts:"

// RedisStore keeps each cart as a JSON string. Expiry is left to Redis key TTLs,
// refreshed on every save.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a store over a connected client. A zero ttl keeps carts
// until they are deleted.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) redisKey(key string) string {
	return s.prefix + key
}

// Load returns the cart stored under key
func (s *RedisStore) Load(ctx context.Context, key string) (*models.CartState, error) {
	val, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read cart from redis: %w", err)
	}
	return decodeState(val)
}

// Save replaces the cart stored under key and resets its TTL
func (s *RedisStore) Save(ctx context.Context, key string, state *models.CartState) error {
	data, err := encodeState(state)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.redisKey(key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cart to redis: %w", err)
	}
	return nil
}

// Delete removes the cart stored under key
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.redisKey(key)).Err()
}

// Ping checks the Redis connection
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
