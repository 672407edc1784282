package rules

import (
	"strings"
	"sync"
)

// Cache builds each distinct set of rule directories into a Tree at most
// once. Concurrent first requests for the same set wait for one build.
type Cache struct {
	loader *Loader

	mu      sync.Mutex
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	once sync.Once
	tree *Tree
	err  error
}

// NewCache creates an empty cache over loader.
func NewCache(loader *Loader) *Cache {
	return &Cache{
		loader:  loader,
		entries: make(map[string]*cacheEntry),
	}
}

func cacheKey(dirs []string) string {
	return strings.Join(dirs, "\x00")
}

// Tree returns the tree for dirs, loading and building it on first use.
// A failed build is cached too; call Invalidate to retry.
func (c *Cache) Tree(dirs ...string) (*Tree, error) {
	key := cacheKey(dirs)

	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		e = &cacheEntry{}
		c.entries[key] = e
	}
	c.mu.Unlock()

	e.once.Do(func() {
		records, err := c.loader.Load(dirs...)
		if err != nil {
			e.err = err
			return
		}
		e.tree, e.err = Build(records)
	})
	return e.tree, e.err
}

// Invalidate drops the entry for dirs so the next Tree call rebuilds it.
func (c *Cache) Invalidate(dirs ...string) {
	c.mu.Lock()
	delete(c.entries, cacheKey(dirs))
	c.mu.Unlock()
}
