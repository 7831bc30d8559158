package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// Cache key prefixes
	cacheKeySubscriber = "easyisp:subscriber:"

	// Cache TTLs
	CacheTTLSubscriber = 5 * time.Minute
)

// SubscriberCache is a Redis read-through cache for the RADIUS hot path.
// Keys are tenant-qualified so two tenants can reuse a username.
type SubscriberCache struct {
	rdb *redis.Client
}

func NewSubscriberCache(rdb *redis.Client) *SubscriberCache {
	return &SubscriberCache{rdb: rdb}
}

func subscriberKey(tenantID uint, username string) string {
	return fmt.Sprintf("%s%d:%s", cacheKeySubscriber, tenantID, username)
}

// Get unmarshals the cached subscriber into dest; returns false on miss
func (c *SubscriberCache) Get(ctx context.Context, tenantID uint, username string, dest interface{}) bool {
	if c == nil || c.rdb == nil {
		return false
	}
	data, err := c.rdb.Get(ctx, subscriberKey(tenantID, username)).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dest) == nil
}

// Set stores the subscriber with the standard TTL
func (c *SubscriberCache) Set(ctx context.Context, tenantID uint, username string, value interface{}) {
	if c == nil || c.rdb == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	c.rdb.Set(ctx, subscriberKey(tenantID, username), data, CacheTTLSubscriber)
}

// Invalidate removes a subscriber from the cache; call on update
func (c *SubscriberCache) Invalidate(ctx context.Context, tenantID uint, username string) {
	if c == nil || c.rdb == nil {
		return
	}
	c.rdb.Del(ctx, subscriberKey(tenantID, username))
}
