package idempotency

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

var _ Store = (*RedisStore)(nil)

// RedisStore implements Store on a shared Redis instance so multiple
// API instances observe the same handled-event set. Expiry is delegated to
// Redis key TTLs; no sweep is needed.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a RedisStore from a redis:// URL.
func NewRedisStore(url, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	if prefix == "" {
		prefix = "cartsync:idem:"
	}
	return &RedisStore{
		client: redis.NewClient(opts),
		prefix: prefix,
	}, nil
}

// Ping verifies connectivity; wired into the readiness probe.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(key string) string {
	return s.prefix + key
}

// Has reports whether the key exists and has not expired.
func (s *RedisStore) Has(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(key)).Result()
	if err != nil {
		return false, errors.Wrap(err, "redis exists")
	}
	return n > 0, nil
}

// Get returns the stored value for the key.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "redis get")
	}
	return v, true, nil
}

// Set records the key with the given TTL.
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return errors.Wrap(err, "redis set")
	}
	return nil
}
