package render

import (
	"bytes"
	"testing"
)

func TestBitmapCachePutGet(t *testing.T) {
	c := newBitmapCache(0)
	key := cacheKey{page: 1, scale: 1.5}
	c.put(key, []byte("abc"), nil)
	got, ok := c.get(key)
	if !ok || !bytes.Equal(got, []byte("abc")) {
		t.Fatalf("get = %q, %v", got, ok)
	}
	if _, ok := c.get(cacheKey{page: 1, scale: 2.0}); ok {
		t.Fatal("different scale must be a distinct key")
	}
}

func TestBitmapCacheReplaceSameKey(t *testing.T) {
	c := newBitmapCache(0)
	key := cacheKey{page: 1, scale: 1.0}
	c.put(key, []byte("aaaa"), nil)
	c.put(key, []byte("bb"), nil)
	if c.len() != 1 {
		t.Fatalf("len = %d, want 1", c.len())
	}
	if c.bytes() != 2 {
		t.Fatalf("bytes = %d, want 2", c.bytes())
	}
}

func TestBitmapCacheBudgetEviction(t *testing.T) {
	c := newBitmapCache(10)
	c.put(cacheKey{page: 1, scale: 1}, make([]byte, 4), nil)
	c.put(cacheKey{page: 2, scale: 1}, make([]byte, 4), nil)
	c.put(cacheKey{page: 3, scale: 1}, make([]byte, 4), nil)
	if _, ok := c.get(cacheKey{page: 1, scale: 1}); ok {
		t.Fatal("oldest entry should have been evicted")
	}
	if _, ok := c.get(cacheKey{page: 3, scale: 1}); !ok {
		t.Fatal("freshest entry must survive")
	}
	if c.bytes() > 10 {
		t.Fatalf("bytes = %d, want <= budget", c.bytes())
	}
}

func TestBitmapCacheRetainedPagesSurvive(t *testing.T) {
	retained := func(page int) bool { return page == 1 }
	c := newBitmapCache(10)
	c.put(cacheKey{page: 1, scale: 1}, make([]byte, 4), retained)
	c.put(cacheKey{page: 2, scale: 1}, make([]byte, 4), retained)
	c.put(cacheKey{page: 3, scale: 1}, make([]byte, 4), retained)
	if _, ok := c.get(cacheKey{page: 1, scale: 1}); !ok {
		t.Fatal("retained page must not be evicted")
	}
	if _, ok := c.get(cacheKey{page: 2, scale: 1}); ok {
		t.Fatal("unretained page should have been evicted")
	}
}

func TestBitmapCacheDropPageAllScales(t *testing.T) {
	c := newBitmapCache(0)
	c.put(cacheKey{page: 1, scale: 1.0}, []byte("a"), nil)
	c.put(cacheKey{page: 1, scale: 2.0}, []byte("b"), nil)
	c.put(cacheKey{page: 2, scale: 1.0}, []byte("c"), nil)
	c.dropPage(1)
	if c.len() != 1 {
		t.Fatalf("len = %d, want 1", c.len())
	}
	if _, ok := c.get(cacheKey{page: 2, scale: 1.0}); !ok {
		t.Fatal("other pages must be untouched")
	}
	if c.bytes() != 1 {
		t.Fatalf("bytes = %d, want 1", c.bytes())
	}
}
