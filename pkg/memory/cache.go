// Package memory implements the buffer pool: a bounded cache of pages that
// every page access goes through, together with its eviction policies and
// the table catalog it reads pages from.
package memory

import (
	"slices"

	"heapstore/pkg/dberror"
	"heapstore/pkg/primitives"
	"heapstore/pkg/storage/page"
)

// PageCache stores pages in memory. It knows nothing about transactions,
// locks or eviction order; it only refuses to grow past its capacity.
//
// PageCache is not safe for concurrent use on its own. The buffer pool
// guards it with its mutex.
type PageCache struct {
	maxSize int
	pages   map[primitives.PageID]page.Page
}

func NewPageCache(maxSize int) *PageCache {
	return &PageCache{
		maxSize: maxSize,
		pages:   make(map[primitives.PageID]page.Page, maxSize),
	}
}

func (c *PageCache) Get(pid primitives.PageID) (page.Page, bool) {
	p, exists := c.pages[pid]
	return p, exists
}

// Put stores p under pid, replacing any page already cached there. Adding a
// new page to a full cache fails with a capacity-exhausted error.
func (c *PageCache) Put(pid primitives.PageID, p page.Page) error {
	if _, exists := c.pages[pid]; !exists && len(c.pages) >= c.maxSize {
		return dberror.NewCapacityExhausted("page cache is full")
	}
	c.pages[pid] = p
	return nil
}

func (c *PageCache) Remove(pid primitives.PageID) {
	delete(c.pages, pid)
}

func (c *PageCache) Contains(pid primitives.PageID) bool {
	_, exists := c.pages[pid]
	return exists
}

func (c *PageCache) Size() int {
	return len(c.pages)
}

func (c *PageCache) Capacity() int {
	return c.maxSize
}

func (c *PageCache) IsFull() bool {
	return len(c.pages) >= c.maxSize
}

func (c *PageCache) Clear() {
	clear(c.pages)
}

// GetAll returns the cached page IDs ordered by table and page number.
func (c *PageCache) GetAll() []primitives.PageID {
	pids := make([]primitives.PageID, 0, len(c.pages))
	for pid := range c.pages {
		pids = append(pids, pid)
	}
	slices.SortFunc(pids, primitives.ComparePageIDs)
	return pids
}
