package radius

import (
	"context"
	"sync"
	"time"

	"github.com/easyisp/backend/internal/models"
	"github.com/easyisp/backend/internal/store"
)

const nasCacheTTL = 5 * time.Minute

// nasCacheEntry holds one resolved NAS; entries are replaced atomically by
// per-key Store, never mutated in place
type nasCacheEntry struct {
	nas     *models.Nas
	expires time.Time
}

// nasCache resolves shared secrets by source address with a short TTL so a
// secret rotation propagates without a restart.
type nasCache struct {
	st      store.Store
	entries sync.Map // source address -> *nasCacheEntry
	events  *EventLog
}

func newNasCache(st store.Store, events *EventLog) *nasCache {
	return &nasCache{st: st, events: events}
}

// Lookup resolves the NAS for a source address, consulting the store on miss.
// Returns store.ErrNotFound when no NAS matches.
func (c *nasCache) Lookup(ctx context.Context, host string) (*models.Nas, error) {
	if v, ok := c.entries.Load(host); ok {
		entry := v.(*nasCacheEntry)
		if time.Now().Before(entry.expires) {
			c.events.CacheHit()
			return entry.nas, nil
		}
		c.entries.Delete(host)
	}
	c.events.CacheMiss()

	nas, err := c.st.FindNasByAddress(ctx, host)
	if err != nil {
		return nil, err
	}

	c.entries.Store(host, &nasCacheEntry{nas: nas, expires: time.Now().Add(nasCacheTTL)})
	return nas, nil
}

// Invalidate drops one source address; the admin layer calls this on NAS edits
func (c *nasCache) Invalidate(host string) {
	c.entries.Delete(host)
}

// Sweep evicts expired entries
func (c *nasCache) Sweep() {
	now := time.Now()
	c.entries.Range(func(key, value interface{}) bool {
		if now.After(value.(*nasCacheEntry).expires) {
			c.entries.Delete(key)
		}
		return true
	})
}
