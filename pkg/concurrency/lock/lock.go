package lock

import (
	"time"

	"heapstore/pkg/concurrency/transaction"
)

// LockType is the mode of a page lock. Any number of transactions may share
// a page; an exclusive lock admits no other holder.
type LockType int

const (
	SharedLock LockType = iota
	ExclusiveLock
)

func (lt LockType) String() string {
	if lt == ExclusiveLock {
		return "EXCLUSIVE"
	}
	return "SHARED"
}

// Covers reports whether holding lt satisfies a request for requested.
func (lt LockType) Covers(requested LockType) bool {
	return lt == ExclusiveLock || requested == SharedLock
}

// CompatibleWith reports whether lt may be held alongside another
// transaction's lock of type other.
func (lt LockType) CompatibleWith(other LockType) bool {
	return lt == SharedLock && other == SharedLock
}

// Lock is one granted lock on a page.
type Lock struct {
	TID       transaction.TransactionID
	LockType  LockType
	GrantTime time.Time
}

func NewLock(tid transaction.TransactionID, lockType LockType) *Lock {
	return &Lock{
		TID:       tid,
		LockType:  lockType,
		GrantTime: time.Now(),
	}
}

// LockTypeFor maps a page access mode to the lock it needs.
func LockTypeFor(perm transaction.Permissions) LockType {
	if perm == transaction.ReadWrite {
		return ExclusiveLock
	}
	return SharedLock
}
