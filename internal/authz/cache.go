package authz

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores resolved permission codes per role name.
type Cache interface {
	Get(ctx context.Context, role string) ([]string, bool, error)
	Set(ctx context.Context, role string, codes []string, ttl time.Duration) error
	Delete(ctx context.Context, role string) error
}

const redisKeyPrefix = "procurement:perms:"

type RedisCache struct {
	rdb *redis.Client
}

func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func (c *RedisCache) Get(ctx context.Context, role string) ([]string, bool, error) {
	raw, err := c.rdb.Get(ctx, redisKeyPrefix+role).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var codes []string
	if err := json.Unmarshal([]byte(raw), &codes); err != nil {
		return nil, false, err
	}
	return codes, true, nil
}

func (c *RedisCache) Set(ctx context.Context, role string, codes []string, ttl time.Duration) error {
	raw, err := json.Marshal(codes)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, redisKeyPrefix+role, raw, ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, role string) error {
	return c.rdb.Del(ctx, redisKeyPrefix+role).Err()
}

type memoryEntry struct {
	codes     []string
	expiresAt time.Time
}

// MemoryCache is the in-process fallback used when no redis is configured.
type MemoryCache struct {
	entries sync.Map // role -> memoryEntry
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

func (c *MemoryCache) Get(_ context.Context, role string) ([]string, bool, error) {
	v, ok := c.entries.Load(role)
	if !ok {
		return nil, false, nil
	}
	entry := v.(memoryEntry)
	if time.Now().After(entry.expiresAt) {
		c.entries.Delete(role)
		return nil, false, nil
	}
	return entry.codes, true, nil
}

func (c *MemoryCache) Set(_ context.Context, role string, codes []string, ttl time.Duration) error {
	c.entries.Store(role, memoryEntry{codes: codes, expiresAt: time.Now().Add(ttl)})
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, role string) error {
	c.entries.Delete(role)
	return nil
}
