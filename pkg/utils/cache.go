package utils

import (
	"sync"
	"time"
)

// cacheItem 内部结构，包含值和过期时间
type cacheItem[V any] struct {
	value      V
	expiration time.Time
}

// MemoryCache 进程内 TTL 缓存，并发安全
// 过期条目不会在读取时删除，由 DeleteExpired 统一清理
type MemoryCache[V any] struct {
	mu    sync.RWMutex
	items map[string]cacheItem[V]
}

func NewMemoryCache[V any]() *MemoryCache[V] {
	return &MemoryCache[V]{items: make(map[string]cacheItem[V])}
}

// Set 设置缓存 (覆盖同 key)
func (c *MemoryCache[V]) Set(key string, value V, expiration time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = cacheItem[V]{value: value, expiration: expiration}
}

// Modify 对未过期条目原子地执行 fn，返回修改后的值
func (c *MemoryCache[V]) Modify(key string, now time.Time, fn func(v *V)) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	item, ok := c.items[key]
	if !ok || !now.Before(item.expiration) {
		return zero, false
	}
	fn(&item.value)
	c.items[key] = item
	return item.value, true
}

// DeleteExpired 删除在 cutoff 之前已过期的条目，返回删除数量
func (c *MemoryCache[V]) DeleteExpired(cutoff time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, item := range c.items {
		if item.expiration.Before(cutoff) {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

// Len 当前条目数 (含已过期未清理的)
func (c *MemoryCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
