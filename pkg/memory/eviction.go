package memory

import (
	"fmt"
	"strings"

	"heapstore/pkg/primitives"
)

// EvictionPolicy decides which cached page leaves the buffer pool when room
// is needed. It only tracks page IDs; the pool owns the pages themselves.
//
// Implementations are not safe for concurrent use. The buffer pool calls
// them with its own mutex held.
type EvictionPolicy interface {
	// OnInsert registers a page that was just added to the cache.
	OnInsert(pid primitives.PageID)

	// OnAccess records a cache hit on pid.
	OnAccess(pid primitives.PageID)

	// Remove forgets pid. Unknown pages are ignored.
	Remove(pid primitives.PageID)

	// SelectVictim walks the tracked pages in eviction order and returns the
	// first one for which evictable returns true. It does not remove it.
	SelectVictim(evictable func(primitives.PageID) bool) (primitives.PageID, bool)

	Len() int
}

const (
	PolicyFIFO = "fifo"
	PolicyLRU  = "lru"
)

// NewEvictionPolicy returns the policy registered under name. An empty name
// selects FIFO.
func NewEvictionPolicy(name string) (EvictionPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", PolicyFIFO:
		return NewFIFOPolicy(), nil
	case PolicyLRU:
		return NewLRUPolicy(), nil
	default:
		return nil, fmt.Errorf("unknown eviction policy %q (want %q or %q)", name, PolicyFIFO, PolicyLRU)
	}
}

// node is an entry of pageList.
type node struct {
	pid  primitives.PageID
	prev *node
	next *node
}

// pageList is a doubly linked list of page IDs with O(1) lookup. The oldest
// entry sits right after head, the newest right before tail.
type pageList struct {
	nodes map[primitives.PageID]*node
	head  *node
	tail  *node
}

func newPageList() pageList {
	head := &node{}
	tail := &node{}
	head.next = tail
	tail.prev = head

	return pageList{
		nodes: make(map[primitives.PageID]*node),
		head:  head,
		tail:  tail,
	}
}

func (l *pageList) pushBack(pid primitives.PageID) {
	if _, exists := l.nodes[pid]; exists {
		return
	}
	n := &node{pid: pid}
	l.link(n)
	l.nodes[pid] = n
}

func (l *pageList) link(n *node) {
	n.prev = l.tail.prev
	n.next = l.tail
	l.tail.prev.next = n
	l.tail.prev = n
}

func (l *pageList) unlink(n *node) {
	n.prev.next = n.next
	n.next.prev = n.prev
}

func (l *pageList) moveToBack(pid primitives.PageID) {
	if n, exists := l.nodes[pid]; exists {
		l.unlink(n)
		l.link(n)
	}
}

func (l *pageList) remove(pid primitives.PageID) {
	if n, exists := l.nodes[pid]; exists {
		l.unlink(n)
		delete(l.nodes, pid)
	}
}

func (l *pageList) firstMatching(evictable func(primitives.PageID) bool) (primitives.PageID, bool) {
	for n := l.head.next; n != l.tail; n = n.next {
		if evictable == nil || evictable(n.pid) {
			return n.pid, true
		}
	}
	return primitives.PageID{}, false
}

// order returns the tracked pages, next victim first.
func (l *pageList) order() []primitives.PageID {
	pids := make([]primitives.PageID, 0, len(l.nodes))
	for n := l.head.next; n != l.tail; n = n.next {
		pids = append(pids, n.pid)
	}
	return pids
}

// FIFOPolicy evicts pages in the order they entered the cache. Hits do not
// change the order.
type FIFOPolicy struct {
	pages pageList
}

func NewFIFOPolicy() *FIFOPolicy {
	return &FIFOPolicy{pages: newPageList()}
}

func (p *FIFOPolicy) OnInsert(pid primitives.PageID) {
	p.pages.pushBack(pid)
}

func (p *FIFOPolicy) OnAccess(primitives.PageID) {}

func (p *FIFOPolicy) Remove(pid primitives.PageID) {
	p.pages.remove(pid)
}

func (p *FIFOPolicy) Len() int {
	return len(p.pages.nodes)
}

func (p *FIFOPolicy) Order() []primitives.PageID {
	return p.pages.order()
}

func (p *FIFOPolicy) SelectVictim(evictable func(primitives.PageID) bool) (primitives.PageID, bool) {
	return p.pages.firstMatching(evictable)
}

// LRUPolicy evicts the least recently accessed page.
type LRUPolicy struct {
	pages pageList
}

func NewLRUPolicy() *LRUPolicy {
	return &LRUPolicy{pages: newPageList()}
}

func (p *LRUPolicy) OnInsert(pid primitives.PageID) {
	p.pages.pushBack(pid)
}

func (p *LRUPolicy) OnAccess(pid primitives.PageID) {
	p.pages.moveToBack(pid)
}

func (p *LRUPolicy) Remove(pid primitives.PageID) {
	p.pages.remove(pid)
}

func (p *LRUPolicy) Len() int {
	return len(p.pages.nodes)
}

func (p *LRUPolicy) Order() []primitives.PageID {
	return p.pages.order()
}

func (p *LRUPolicy) SelectVictim(evictable func(primitives.PageID) bool) (primitives.PageID, bool) {
	return p.pages.firstMatching(evictable)
}
