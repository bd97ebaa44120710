package cache

import (
	"context"
	"sync"
	"time"

	"github.com/lyzr/agentchain/common/logger"
)

// Cache stores serialized node execution results under content-addressed
// keys. Entries expire after their TTL; Delete invalidates a key early.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

const sweepInterval = time.Minute

// MemoryCache keeps entries in-process. It serves tests and single-node
// deployments; shared deployments use RedisCache so identical node keys hit
// across instances.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	log     *logger.Logger

	stop sync.Once
	done chan struct{}
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryCache creates an in-process cache and starts its expiry sweeper.
func NewMemoryCache(log *logger.Logger) *MemoryCache {
	c := &MemoryCache{
		entries: make(map[string]entry),
		log:     log,
		done:    make(chan struct{}),
	}
	go c.sweep()
	return c
}

// Get returns the value for key. Expired entries read as misses; the sweeper
// reclaims them.
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ent, exists := c.entries[key]
	if !exists || time.Now().After(ent.expiresAt) {
		return nil, false, nil
	}
	return ent.value, true, nil
}

// Set stores value under key for ttl.
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entries == nil {
		return nil
	}
	c.entries[key] = entry{value: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

// Delete invalidates key.
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
	return nil
}

// Close stops the sweeper and drops all entries. Subsequent Gets miss.
func (c *MemoryCache) Close() error {
	c.stop.Do(func() { close(c.done) })

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = nil
	return nil
}

func (c *MemoryCache) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			removed := 0
			c.mu.Lock()
			for key, ent := range c.entries {
				if now.After(ent.expiresAt) {
					delete(c.entries, key)
					removed++
				}
			}
			c.mu.Unlock()
			if removed > 0 {
				c.log.Debug("cache sweep", "removed", removed)
			}
		case <-c.done:
			return
		}
	}
}
