package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheVersionKey = "rbac:version"

// Cache stores resolved permission sets in Redis under versioned keys. Any grant
// write bumps the version, orphaning every previous entry until it expires.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil
}

func (c *Cache) version(ctx context.Context) (int64, error) {
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return ver, err
}

// Key captures the current version for scope. Reads and the write-back of one
// resolution must share a key so a concurrent bump is never masked.
func (c *Cache) Key(ctx context.Context, scope Scope) (string, error) {
	if !c.enabled() {
		return "", nil
	}
	ver, err := c.version(ctx)
	if err != nil {
		return "", err
	}
	location := scope.LocationID
	if location == "" {
		location = "*"
	}
	return fmt.Sprintf("rbac:perms:%d:%s", ver, strings.Join([]string{scope.UserID, location}, ":")), nil
}

// Get returns the cached names under key. ok is false on a miss.
func (c *Cache) Get(ctx context.Context, key string) (names []string, ok bool, err error) {
	if !c.enabled() || key == "" {
		return nil, false, nil
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if err := json.Unmarshal(payload, &names); err != nil {
		return nil, false, err
	}
	return names, true, nil
}

// Set stores names under key.
func (c *Cache) Set(ctx context.Context, key string, names []string) error {
	if !c.enabled() || key == "" {
		return nil
	}
	if names == nil {
		names = []string{}
	}
	raw, err := json.Marshal(names)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, c.ttl).Err()
}

// Invalidate bumps the cache version.
func (c *Cache) Invalidate(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	return c.client.Incr(ctx, cacheVersionKey).Err()
}
