package market

import (
	"container/list"
	"sync"
)

// BoundedLRUCache is a thread-safe LRU cache holding at most maxSize entries.
type BoundedLRUCache[K comparable, V any] struct {
	mu      sync.Mutex
	items   map[K]*list.Element
	order   *list.List
	maxSize int
}

type lruEntry[K comparable, V any] struct {
	key   K
	value V
}

func NewBoundedLRUCache[K comparable, V any](maxSize int) *BoundedLRUCache[K, V] {
	if maxSize < 1 {
		maxSize = 1
	}
	return &BoundedLRUCache[K, V]{
		items:   make(map[K]*list.Element, maxSize),
		order:   list.New(),
		maxSize: maxSize,
	}
}

// Get returns the value for key and marks it most recently used.
func (c *BoundedLRUCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*lruEntry[K, V]).value, true
}

// Set adds or replaces key. It reports whether an older entry was evicted to make room.
func (c *BoundedLRUCache[K, V]) Set(key K, value V) (evicted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		elem.Value.(*lruEntry[K, V]).value = value
		return false
	}

	for len(c.items) >= c.maxSize {
		back := c.order.Back()
		if back == nil {
			break
		}
		c.order.Remove(back)
		delete(c.items, back.Value.(*lruEntry[K, V]).key)
		evicted = true
	}

	c.items[key] = c.order.PushFront(&lruEntry[K, V]{key: key, value: value})
	return evicted
}

func (c *BoundedLRUCache[K, V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
