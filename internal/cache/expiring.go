package cache

import (
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Expiring is a size bounded map whose entries are dropped after the fixed ttl since they were written.
// Entries are replaced as a whole, so it's safe to share it between goroutines without extra locking
type Expiring[K comparable, V any] struct {
	cache *ttlcache.Cache[K, V]
	once  sync.Once
}

// New creates a cache. A zero ttl disables the expiration and a zero capacity disables the size limit
func New[K comparable, V any](ttl time.Duration, capacity uint64) *Expiring[K, V] {
	opts := []ttlcache.Option[K, V]{
		ttlcache.WithTTL[K, V](ttl),
		ttlcache.WithDisableTouchOnHit[K, V](),
	}
	if capacity > 0 {
		opts = append(opts, ttlcache.WithCapacity[K, V](capacity))
	}

	return &Expiring[K, V]{
		cache: ttlcache.New[K, V](opts...),
	}
}

func (c *Expiring[K, V]) Get(key K) (V, bool) {
	item := c.cache.Get(key)
	// Get already skips expired items
	if item == nil {
		var empty V
		return empty, false
	}

	return item.Value(), true
}

func (c *Expiring[K, V]) Has(key K) bool {
	return c.cache.Get(key) != nil
}

func (c *Expiring[K, V]) Set(key K, value V) {
	c.cache.Set(key, value, ttlcache.DefaultTTL)
	// Call it only after first set so GC will work more often
	c.startGcOnce()
}

func (c *Expiring[K, V]) Delete(key K) {
	c.cache.Delete(key)
}

func (c *Expiring[K, V]) Len() int {
	return c.cache.Len()
}

func (c *Expiring[K, V]) Clear() {
	c.cache.DeleteAll()
}

// Stop terminates the background expiration loop. The cache remains usable, but expired entries
// are only dropped on access after that
func (c *Expiring[K, V]) Stop() {
	// If you call the Stop() on a non-started GC, the process will hang trying to close the uninitialized channel
	c.startGcOnce()
	c.cache.Stop()
}

func (c *Expiring[K, V]) startGcOnce() {
	c.once.Do(func() {
		go c.cache.Start()
	})
}
