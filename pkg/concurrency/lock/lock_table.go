package lock

import (
	"slices"

	"heapstore/pkg/concurrency/transaction"
	"heapstore/pkg/primitives"
)

// LockTable tracks granted locks from both sides: which transactions hold
// each page, and which pages each transaction holds.
//
// LockTable is not safe for concurrent use; the LockManager serialises access.
type LockTable struct {
	pageLocks        map[primitives.PageID][]*Lock
	transactionLocks map[transaction.TransactionID]map[primitives.PageID]LockType
}

func NewLockTable() *LockTable {
	return &LockTable{
		pageLocks:        make(map[primitives.PageID][]*Lock),
		transactionLocks: make(map[transaction.TransactionID]map[primitives.PageID]LockType),
	}
}

// LockTypeOf returns the lock tid holds on pid, if any.
func (lt *LockTable) LockTypeOf(tid transaction.TransactionID, pid primitives.PageID) (LockType, bool) {
	pages, ok := lt.transactionLocks[tid]
	if !ok {
		return 0, false
	}
	lockType, ok := pages[pid]
	return lockType, ok
}

// HasSufficientLock reports whether tid's current lock on pid already covers
// a request for reqLockType.
func (lt *LockTable) HasSufficientLock(tid transaction.TransactionID, pid primitives.PageID, reqLockType LockType) bool {
	held, ok := lt.LockTypeOf(tid, pid)
	if !ok {
		return false
	}
	return held.Covers(reqLockType)
}

// GetPageLocks returns the locks held on pid. The slice must not be modified.
func (lt *LockTable) GetPageLocks(pid primitives.PageID) []*Lock {
	return lt.pageLocks[pid]
}

// AddLock records a new grant. The caller has checked compatibility.
func (lt *LockTable) AddLock(tid transaction.TransactionID, pid primitives.PageID, lockType LockType) {
	lt.pageLocks[pid] = append(lt.pageLocks[pid], NewLock(tid, lockType))

	if lt.transactionLocks[tid] == nil {
		lt.transactionLocks[tid] = make(map[primitives.PageID]LockType)
	}
	lt.transactionLocks[tid][pid] = lockType
}

// UpgradeLock turns tid's shared lock on pid into an exclusive one.
func (lt *LockTable) UpgradeLock(tid transaction.TransactionID, pid primitives.PageID) {
	for _, lock := range lt.pageLocks[pid] {
		if lock.TID == tid {
			lock.LockType = ExclusiveLock
			break
		}
	}
	if pages, ok := lt.transactionLocks[tid]; ok {
		pages[pid] = ExclusiveLock
	}
}

// ReleaseLock drops tid's lock on pid. It reports whether a lock was held.
func (lt *LockTable) ReleaseLock(tid transaction.TransactionID, pid primitives.PageID) bool {
	pages, ok := lt.transactionLocks[tid]
	if !ok {
		return false
	}
	if _, held := pages[pid]; !held {
		return false
	}

	delete(pages, pid)
	if len(pages) == 0 {
		delete(lt.transactionLocks, tid)
	}

	remaining := slices.DeleteFunc(lt.pageLocks[pid], func(l *Lock) bool {
		return l.TID == tid
	})
	updateOrDelete(lt.pageLocks, pid, remaining)
	return true
}

// ReleaseAllLocks drops every lock held by tid and returns the affected pages.
func (lt *LockTable) ReleaseAllLocks(tid transaction.TransactionID) []primitives.PageID {
	pages, ok := lt.transactionLocks[tid]
	if !ok {
		return nil
	}

	released := make([]primitives.PageID, 0, len(pages))
	for pid := range pages {
		remaining := slices.DeleteFunc(lt.pageLocks[pid], func(l *Lock) bool {
			return l.TID == tid
		})
		updateOrDelete(lt.pageLocks, pid, remaining)
		released = append(released, pid)
	}

	delete(lt.transactionLocks, tid)
	return released
}

func (lt *LockTable) IsPageLocked(pid primitives.PageID) bool {
	return len(lt.pageLocks[pid]) > 0
}

// PagesHeldBy returns the pages tid holds, ordered by table then page number.
func (lt *LockTable) PagesHeldBy(tid transaction.TransactionID) []primitives.PageID {
	pages := make([]primitives.PageID, 0, len(lt.transactionLocks[tid]))
	for pid := range lt.transactionLocks[tid] {
		pages = append(pages, pid)
	}
	slices.SortFunc(pages, primitives.ComparePageIDs)
	return pages
}

func updateOrDelete[K comparable, V any](m map[K][]V, key K, values []V) {
	if len(values) == 0 {
		delete(m, key)
		return
	}
	m[key] = values
}
