package cache

import (
	"sync"
	"time"
)

// MemoryCache is the in-process fallback used when Redis is unavailable.
type MemoryCache struct {
	store sync.Map
	done  chan struct{}
	once  sync.Once
}

type cacheItem struct {
	value      interface{}
	expiration time.Time
}

func NewMemoryCache() *MemoryCache {
	cache := &MemoryCache{done: make(chan struct{})}

	go cache.cleanup()

	return cache
}

func (c *MemoryCache) Set(key string, value interface{}, ttl time.Duration) error {
	c.store.Store(key, &cacheItem{
		value:      value,
		expiration: time.Now().Add(ttl),
	})
	return nil
}

func (c *MemoryCache) Get(key string, dest interface{}) error {
	item, exists := c.store.Load(key)
	if !exists {
		return ErrCacheMiss
	}

	cached := item.(*cacheItem)
	if time.Now().After(cached.expiration) {
		c.store.Delete(key)
		return ErrCacheMiss
	}

	return copyValueViaJSON(cached.value, dest)
}

func (c *MemoryCache) Exists(key string) (bool, error) {
	item, exists := c.store.Load(key)
	if !exists {
		return false, nil
	}
	if time.Now().After(item.(*cacheItem).expiration) {
		c.store.Delete(key)
		return false, nil
	}
	return true, nil
}

func (c *MemoryCache) Delete(key string) error {
	c.store.Delete(key)
	return nil
}

func (c *MemoryCache) DeletePattern(pattern string) error {
	c.store.Range(func(key, value interface{}) bool {
		if matchPattern(key.(string), pattern) {
			c.store.Delete(key)
		}
		return true
	})
	return nil
}

func (c *MemoryCache) Stats() map[string]interface{} {
	count := 0
	c.store.Range(func(_, _ interface{}) bool {
		count++
		return true
	})

	return map[string]interface{}{
		"items": count,
		"type":  "memory",
	}
}

func (c *MemoryCache) Health() error {
	return nil
}

func (c *MemoryCache) cleanup() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			c.store.Range(func(key, value interface{}) bool {
				if now.After(value.(*cacheItem).expiration) {
					c.store.Delete(key)
				}
				return true
			})
		case <-c.done:
			return
		}
	}
}

func (c *MemoryCache) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}
