package skins

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
)

// Cooldown limits how often a player can change skins
type Cooldown struct {
	duration time.Duration
	cache    *ttlcache.Cache[uuid.UUID, time.Time]
	once     sync.Once
	now      func() time.Time
}

// NewCooldown creates a cooldown. A zero duration disables it
func NewCooldown(duration time.Duration) *Cooldown {
	return &Cooldown{
		duration: duration,
		cache: ttlcache.New[uuid.UUID, time.Time](
			ttlcache.WithTTL[uuid.UUID, time.Time](duration),
			ttlcache.WithDisableTouchOnHit[uuid.UUID, time.Time](),
		),
		now: time.Now,
	}
}

// TryStart starts the cooldown for the player unless it's already running.
// When it's running, the time left is returned
func (c *Cooldown) TryStart(playerId uuid.UUID) (bool, time.Duration) {
	if c.duration <= 0 {
		return true, 0
	}

	c.startGcOnce()

	now := c.now()
	item, found := c.cache.GetOrSet(playerId, now)
	if !found {
		return true, 0
	}

	left := c.duration - now.Sub(item.Value())
	if left <= 0 {
		// The gc hasn't evicted the entry yet
		c.cache.Set(playerId, now, ttlcache.DefaultTTL)
		return true, 0
	}

	return false, left
}

func (c *Cooldown) Reset(playerId uuid.UUID) {
	c.cache.Delete(playerId)
}

func (c *Cooldown) Stop() {
	// Stop blocks on a non-started gc
	c.startGcOnce()
	c.cache.Stop()
}

func (c *Cooldown) startGcOnce() {
	c.once.Do(func() {
		go c.cache.Start()
	})
}
