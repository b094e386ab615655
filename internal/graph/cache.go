package graph

import (
	"log/slog"
	"sync"
)

// DefaultCacheCapacity bounds how many repository graphs are held in
// memory at once.
const DefaultCacheCapacity = 16

// Cache memoizes built graphs per repository root for the life of the
// process. Graph content is never refreshed automatically; callers that
// change files on disk must call Invalidate before querying again.
type Cache struct {
	mu       sync.Mutex
	builder  *Builder
	graphs   map[string]*Graph
	order    []string
	capacity int
}

// NewCache creates a graph cache with the given capacity. A capacity of
// zero or less uses DefaultCacheCapacity.
func NewCache(builder *Builder, capacity int) *Cache {
	if builder == nil {
		builder = NewBuilder(0, slog.Default())
	}
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &Cache{
		builder:  builder,
		graphs:   make(map[string]*Graph),
		capacity: capacity,
	}
}

// Get returns the memoized graph for repoRoot, building it on first
// use. Concurrent callers for the same root see a single build win.
func (c *Cache) Get(repoRoot string) (*Graph, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if g, ok := c.graphs[repoRoot]; ok {
		return g, nil
	}

	g, err := c.builder.Build(repoRoot)
	if err != nil {
		return nil, err
	}

	// Evict the oldest entry once the capacity bound is reached.
	if len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.graphs, oldest)
	}
	c.graphs[repoRoot] = g
	c.order = append(c.order, repoRoot)
	return g, nil
}

// Invalidate drops the cached graph for repoRoot so the next Get
// rebuilds from current disk state.
func (c *Cache) Invalidate(repoRoot string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.graphs[repoRoot]; !ok {
		return
	}
	delete(c.graphs, repoRoot)
	for i, root := range c.order {
		if root == repoRoot {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
