package challenge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is a Cache shared between processes. Expiry is delegated to the
// key TTL and consumption uses GETDEL, so only one caller can win a token.
type RedisCache struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisCache creates a RedisCache whose keys are namespaced by prefix.
func NewRedisCache(client redis.Cmdable, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, ttl: ttl, now: time.Now}
}

// NewRedisClient builds a client from either a redis:// URL or a host:port.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	var opts *redis.Options
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: addr}
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

func (c *RedisCache) key(key string) string {
	return c.prefix + NormalizeKey(key)
}

// Issue implements Cache.
func (c *RedisCache) Issue(ctx context.Context, key string) (string, error) {
	token := NewToken()
	if err := c.Put(ctx, key, token); err != nil {
		return "", err
	}
	return token, nil
}

// Put implements Cache.
func (c *RedisCache) Put(ctx context.Context, key, value string) error {
	if err := c.client.Set(ctx, c.key(key), value, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store challenge: %w", err)
	}
	return nil
}

// Consume implements Cache.
func (c *RedisCache) Consume(ctx context.Context, key string) (string, error) {
	value, err := c.client.GetDel(ctx, c.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to consume challenge: %w", err)
	}
	return value, nil
}

// PeekExpire implements Cache.
func (c *RedisCache) PeekExpire(ctx context.Context, key string) (time.Time, error) {
	remaining, err := c.client.PTTL(ctx, c.key(key)).Result()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read challenge ttl: %w", err)
	}
	// -2: no key, -1: no expiry (never written by this cache).
	if remaining < 0 {
		return time.Time{}, ErrNotFound
	}
	return c.now().Add(remaining), nil
}
