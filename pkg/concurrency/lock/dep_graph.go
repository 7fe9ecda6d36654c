package lock

import (
	"sync"

	"heapstore/pkg/concurrency/transaction"
)

// DependencyGraph tracks wait-for relationships between transactions.
// An edge A→B means A is waiting for a lock held by B; a cycle is a deadlock.
type DependencyGraph struct {
	edges      map[transaction.TransactionID]map[transaction.TransactionID]bool
	mutex      sync.RWMutex
	cacheValid bool
	lastResult bool
}

func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		edges: make(map[transaction.TransactionID]map[transaction.TransactionID]bool),
	}
}

// AddEdge records that waiter is blocked on a lock held by holder.
func (dg *DependencyGraph) AddEdge(waiter, holder transaction.TransactionID) {
	dg.mutex.Lock()
	defer dg.mutex.Unlock()

	if dg.edges[waiter] == nil {
		dg.edges[waiter] = make(map[transaction.TransactionID]bool)
	}
	dg.edges[waiter][holder] = true
	dg.cacheValid = false
}

// RemoveWaiter drops the outgoing edges of tid, for when it stops waiting.
// Edges pointing at tid stay, since tid still holds its locks.
func (dg *DependencyGraph) RemoveWaiter(tid transaction.TransactionID) {
	dg.mutex.Lock()
	defer dg.mutex.Unlock()

	if _, ok := dg.edges[tid]; ok {
		delete(dg.edges, tid)
		dg.cacheValid = false
	}
}

// RemoveTransaction removes every edge in which tid takes part.
func (dg *DependencyGraph) RemoveTransaction(tid transaction.TransactionID) {
	dg.mutex.Lock()
	defer dg.mutex.Unlock()

	delete(dg.edges, tid)
	for waiter, holders := range dg.edges {
		delete(holders, tid)
		if len(holders) == 0 {
			delete(dg.edges, waiter)
		}
	}
	dg.cacheValid = false
}

// HasCycle reports whether the graph contains a cycle. The result is cached
// until the next structural change.
func (dg *DependencyGraph) HasCycle() bool {
	dg.mutex.Lock()
	defer dg.mutex.Unlock()

	if dg.cacheValid {
		return dg.lastResult
	}

	visited := make(map[transaction.TransactionID]bool)
	recStack := make(map[transaction.TransactionID]bool)

	dg.lastResult = false
	for tid := range dg.edges {
		if !visited[tid] && dg.hasCycleDFS(tid, visited, recStack) {
			dg.lastResult = true
			break
		}
	}
	dg.cacheValid = true
	return dg.lastResult
}

func (dg *DependencyGraph) hasCycleDFS(tid transaction.TransactionID, visited, recStack map[transaction.TransactionID]bool) bool {
	visited[tid] = true
	recStack[tid] = true

	for neighbor := range dg.edges[tid] {
		if !visited[neighbor] {
			if dg.hasCycleDFS(neighbor, visited, recStack) {
				return true
			}
		} else if recStack[neighbor] {
			return true
		}
	}

	recStack[tid] = false
	return false
}

// GetWaitingTransactions returns the transactions that have outgoing edges.
func (dg *DependencyGraph) GetWaitingTransactions() []transaction.TransactionID {
	dg.mutex.RLock()
	defer dg.mutex.RUnlock()

	waiters := make([]transaction.TransactionID, 0, len(dg.edges))
	for tid := range dg.edges {
		waiters = append(waiters, tid)
	}
	return waiters
}
