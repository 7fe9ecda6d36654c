package lock

import (
	"heapstore/pkg/concurrency/transaction"
	"heapstore/pkg/primitives"
)

// grantDecision is the outcome of evaluating a lock request against the table.
type grantDecision int

const (
	// alreadyHeld: the transaction's current lock covers the request.
	alreadyHeld grantDecision = iota
	// grantNew: no conflicting holder; add a new lock.
	grantNew
	// grantUpgrade: sole shared holder asking for exclusive.
	grantUpgrade
	// mustWait: conflicts with another holder.
	mustWait
)

func (d grantDecision) granted() bool {
	return d != mustWait
}

// evaluate applies the grant rules to a request of tid for pid in mode requested:
//
//   - holding EXCLUSIVE, or holding SHARED and asking SHARED: already held
//   - holding SHARED, asking EXCLUSIVE: upgrade if sole holder, else wait
//   - holding nothing, page unlocked: grant
//   - holding nothing, asking SHARED, all holders SHARED: grant
//   - anything else: wait
func evaluate(lt *LockTable, tid transaction.TransactionID, pid primitives.PageID, requested LockType) grantDecision {
	if held, ok := lt.LockTypeOf(tid, pid); ok {
		if held.Covers(requested) {
			return alreadyHeld
		}
		if isSoleHolder(lt, tid, pid) {
			return grantUpgrade
		}
		return mustWait
	}

	locks := lt.GetPageLocks(pid)
	for _, l := range locks {
		if !requested.CompatibleWith(l.LockType) {
			return mustWait
		}
	}
	return grantNew
}

func isSoleHolder(lt *LockTable, tid transaction.TransactionID, pid primitives.PageID) bool {
	for _, l := range lt.GetPageLocks(pid) {
		if l.TID != tid {
			return false
		}
	}
	return true
}

// apply records a granted decision in the table.
func apply(lt *LockTable, d grantDecision, tid transaction.TransactionID, pid primitives.PageID, requested LockType) {
	switch d {
	case grantNew:
		lt.AddLock(tid, pid, requested)
	case grantUpgrade:
		lt.UpgradeLock(tid, pid)
	}
}

// blockers returns the transactions whose locks on pid conflict with the request.
func blockers(lt *LockTable, tid transaction.TransactionID, pid primitives.PageID, requested LockType) []transaction.TransactionID {
	var out []transaction.TransactionID
	for _, l := range lt.GetPageLocks(pid) {
		if l.TID == tid {
			continue
		}
		if !requested.CompatibleWith(l.LockType) {
			out = append(out, l.TID)
		}
	}
	return out
}
