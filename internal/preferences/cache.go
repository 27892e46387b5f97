package preferences

import (
	"context"
	"sync"
	"time"

	"notifyengine/internal/model"
)

// entry is one cached preferences value with its expiry.
type entry struct {
	prefs     *model.UserPreferences
	expiresAt time.Time
}

// Cache is a process-local read-through TTL cache in front of Store. It
// holds no lock across the underlying store call: a cache miss loads from
// Store outside the lock, then stores the result under a brief write lock.
type Cache struct {
	store *Store
	ttl   time.Duration

	mu      sync.RWMutex
	entries map[int64]entry
}

func NewCache(store *Store, ttl time.Duration) *Cache {
	return &Cache{
		store:   store,
		ttl:     ttl,
		entries: make(map[int64]entry),
	}
}

// Get returns the cached preferences for userID, loading (and caching) from
// Store on a miss or expiry.
func (c *Cache) Get(ctx context.Context, userID int64) (*model.UserPreferences, error) {
	c.mu.RLock()
	e, ok := c.entries[userID]
	c.mu.RUnlock()

	if ok && time.Now().Before(e.expiresAt) {
		return e.prefs, nil
	}

	prefs, err := c.store.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[userID] = entry{prefs: prefs, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()

	return prefs, nil
}

// Invalidate drops any cached entry for userID, forcing the next Get to
// reload from Store. Callers must invalidate after every preferences write.
func (c *Cache) Invalidate(userID int64) {
	c.mu.Lock()
	delete(c.entries, userID)
	c.mu.Unlock()
}
