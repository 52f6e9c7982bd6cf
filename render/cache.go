package render

import (
	"container/list"
	"sync"
)

type cacheKey struct {
	page  int
	scale float64
}

type cacheEntry struct {
	key cacheKey
	png []byte
}

// bitmapCache holds encoded bitmaps keyed by (page, scale) with a byte
// budget. Eviction is least-recently-used, but entries for retained pages
// (the current extended viewport) are never evicted.
type bitmapCache struct {
	mu     sync.Mutex
	budget int64
	used   int64
	lru    *list.List // front = most recent; values are *cacheEntry
	index  map[cacheKey]*list.Element

	evicted func(n int) // eviction callback for metrics, may be nil
}

func newBitmapCache(budget int64) *bitmapCache {
	return &bitmapCache{
		budget: budget,
		lru:    list.New(),
		index:  make(map[cacheKey]*list.Element),
	}
}

func (c *bitmapCache) get(key cacheKey) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.index[key]
	if !ok {
		return nil, false
	}
	c.lru.MoveToFront(elem)
	return elem.Value.(*cacheEntry).png, true
}

// put stores an entry and evicts over-budget entries whose page is not
// retained. The fresh entry itself is never evicted by its own insertion.
func (c *bitmapCache) put(key cacheKey, png []byte, retained func(page int) bool) {
	c.mu.Lock()
	if elem, ok := c.index[key]; ok {
		entry := elem.Value.(*cacheEntry)
		c.used += int64(len(png)) - int64(len(entry.png))
		entry.png = png
		c.lru.MoveToFront(elem)
	} else {
		elem := c.lru.PushFront(&cacheEntry{key: key, png: png})
		c.index[key] = elem
		c.used += int64(len(png))
	}
	dropped := 0
	if c.budget > 0 {
		for c.used > c.budget {
			victim := c.oldestEvictable(key, retained)
			if victim == nil {
				break
			}
			c.removeElement(victim)
			dropped++
		}
	}
	evicted := c.evicted
	c.mu.Unlock()
	if dropped > 0 && evicted != nil {
		evicted(dropped)
	}
}

func (c *bitmapCache) oldestEvictable(fresh cacheKey, retained func(page int) bool) *list.Element {
	for elem := c.lru.Back(); elem != nil; elem = elem.Prev() {
		entry := elem.Value.(*cacheEntry)
		if entry.key == fresh {
			continue
		}
		if retained != nil && retained(entry.key.page) {
			continue
		}
		return elem
	}
	return nil
}

// dropPage removes the entries for every scale of the given page.
func (c *bitmapCache) dropPage(page int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, elem := range c.index {
		if key.page == page {
			c.removeElement(elem)
		}
	}
}

func (c *bitmapCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Init()
	c.index = make(map[cacheKey]*list.Element)
	c.used = 0
}

func (c *bitmapCache) removeElement(elem *list.Element) {
	entry := elem.Value.(*cacheEntry)
	c.lru.Remove(elem)
	delete(c.index, entry.key)
	c.used -= int64(len(entry.png))
}

func (c *bitmapCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index)
}

func (c *bitmapCache) bytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used
}
