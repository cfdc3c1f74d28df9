// Package cache is a thin JSON cache over redis, plus the redis-backed
// session store for multi-instance deployments.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned when a key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Cache stores JSON values under a common key prefix with a default TTL.
type Cache struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// Options configures the redis connection and cache behavior.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

func New(opts Options) *Cache {
	if opts.Prefix == "" {
		opts.Prefix = "stackpad"
	}
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Minute
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return &Cache{rdb: rdb, prefix: opts.Prefix, ttl: opts.TTL}
}

func (c *Cache) Close() error { return c.rdb.Close() }

func (c *Cache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Key namespaces a cache key under the configured prefix.
func (c *Cache) Key(parts ...string) string {
	key := c.prefix
	for _, p := range parts {
		key += ":" + p
	}
	return key
}

// Set marshals v as JSON under the default TTL.
func (c *Cache) Set(ctx context.Context, key string, v any) error {
	return c.SetTTL(ctx, key, v, c.ttl)
}

// SetTTL marshals v as JSON with an explicit TTL.
func (c *Cache) SetTTL(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: marshal %s: %w", key, err)
	}
	if err := c.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("cache: set %s: %w", key, err)
	}
	return nil
}

// Get unmarshals the value at key into out. A missing key is ErrMiss.
func (c *Cache) Get(ctx context.Context, key string, out any) error {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return fmt.Errorf("cache: get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		// A decode failure means a stale shape; treat it as a miss and
		// drop the entry.
		_ = c.rdb.Del(ctx, key).Err()
		return ErrMiss
	}
	return nil
}

// DeleteByPrefix removes every key under prefix using SCAN, so it stays
// safe against large keyspaces.
func (c *Cache) DeleteByPrefix(ctx context.Context, prefix string) error {
	iter := c.rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= 100 {
			if err := c.Delete(ctx, keys...); err != nil {
				return err
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache: scan %s: %w", prefix, err)
	}
	return c.Delete(ctx, keys...)
}

// Delete removes keys. Missing keys are not an error.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache: delete: %w", err)
	}
	return nil
}
