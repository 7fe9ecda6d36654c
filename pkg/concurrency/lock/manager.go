package lock

import (
	"fmt"
	"sync"
	"time"

	"heapstore/pkg/concurrency/transaction"
	"heapstore/pkg/dberror"
	"heapstore/pkg/logging"
	"heapstore/pkg/primitives"

	"github.com/sirupsen/logrus"
)

// DefaultTimeout bounds how long a request waits before the transaction is aborted.
const DefaultTimeout = 3000 * time.Millisecond

// LockManager grants page locks to transactions.
// All state is guarded by one mutex, so a sweep like ReleaseAll is never
// observed half done.
type LockManager struct {
	mutex     sync.Mutex
	lockTable *LockTable
	depGraph  *DependencyGraph

	// released is closed (and replaced) whenever locks are released, waking
	// every waiter to re-evaluate its request.
	released chan struct{}

	timeout         time.Duration
	detectDeadlocks bool
	log             *logrus.Entry
}

// Option configures a LockManager.
type Option func(*LockManager)

// WithTimeout sets the maximum time a request may wait. Non-positive values
// keep the default.
func WithTimeout(d time.Duration) Option {
	return func(lm *LockManager) {
		if d > 0 {
			lm.timeout = d
		}
	}
}

// WithDeadlockDetection enables the wait-for graph, failing a request as soon
// as waiting would close a cycle instead of letting it run into the timeout.
func WithDeadlockDetection(enabled bool) Option {
	return func(lm *LockManager) {
		lm.detectDeadlocks = enabled
	}
}

func NewLockManager(opts ...Option) *LockManager {
	lm := &LockManager{
		lockTable: NewLockTable(),
		depGraph:  NewDependencyGraph(),
		released:  make(chan struct{}),
		timeout:   DefaultTimeout,
		log:       logging.WithComponent("LockManager"),
	}
	for _, opt := range opts {
		opt(lm)
	}
	return lm
}

func (lm *LockManager) Timeout() time.Duration {
	return lm.timeout
}

// TryAcquire grants the lock if the rules allow it right now and reports
// whether the transaction holds a sufficient lock afterwards. It never blocks.
func (lm *LockManager) TryAcquire(tid transaction.TransactionID, pid primitives.PageID, lockType LockType) bool {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()
	return lm.tryGrant(tid, pid, lockType)
}

// Acquire obtains a lock on pid for tid, waiting for conflicting holders to
// release. It fails with a transaction-aborted error once the wait exceeds
// the timeout, or with a deadlock error when detection is enabled and
// waiting would close a cycle.
func (lm *LockManager) Acquire(tid transaction.TransactionID, pid primitives.PageID, lockType LockType) error {
	if !tid.IsValid() {
		return fmt.Errorf("lock request for %s without a transaction", pid)
	}

	timer := time.NewTimer(lm.timeout)
	defer timer.Stop()

	for {
		lm.mutex.Lock()
		if lm.tryGrant(tid, pid, lockType) {
			lm.depGraph.RemoveWaiter(tid)
			lm.mutex.Unlock()
			return nil
		}

		if lm.detectDeadlocks && lm.recordWait(tid, pid, lockType) {
			lm.depGraph.RemoveWaiter(tid)
			lm.mutex.Unlock()
			logging.WithLock(tid.ID(), pid, lockType.String()).Warn("deadlock detected, aborting requester")
			return dberror.NewDeadlock(
				fmt.Sprintf("%s waiting for %s lock on %s", tid, lockType, pid)).In("Acquire", "LockManager")
		}

		released := lm.released
		lm.mutex.Unlock()

		select {
		case <-released:
		case <-timer.C:
			return lm.expire(tid, pid, lockType)
		}
	}
}

// expire makes a final attempt after the timeout fired, so that a release
// racing with the timer is not lost.
func (lm *LockManager) expire(tid transaction.TransactionID, pid primitives.PageID, lockType LockType) error {
	lm.mutex.Lock()
	granted := lm.tryGrant(tid, pid, lockType)
	lm.depGraph.RemoveWaiter(tid)
	lm.mutex.Unlock()

	if granted {
		return nil
	}

	logging.WithLock(tid.ID(), pid, lockType.String()).
		WithField("timeout", lm.timeout).
		Warn("lock wait timed out")
	return dberror.NewTransactionAborted(
		fmt.Sprintf("%s timed out after %s waiting for %s lock on %s", tid, lm.timeout, lockType, pid)).
		In("Acquire", "LockManager")
}

// tryGrant must be called with lm.mutex held.
func (lm *LockManager) tryGrant(tid transaction.TransactionID, pid primitives.PageID, lockType LockType) bool {
	decision := evaluate(lm.lockTable, tid, pid, lockType)
	if !decision.granted() {
		return false
	}

	apply(lm.lockTable, decision, tid, pid, lockType)
	if decision != alreadyHeld {
		lm.log.WithFields(logging.PageFields(pid)).
			WithField("tx_id", tid.ID()).
			WithField("lock_type", lockType.String()).
			Debug("lock granted")
	}
	return true
}

// recordWait refreshes tid's wait-for edges and reports whether they close a
// cycle. Must be called with lm.mutex held.
func (lm *LockManager) recordWait(tid transaction.TransactionID, pid primitives.PageID, lockType LockType) bool {
	lm.depGraph.RemoveWaiter(tid)
	for _, holder := range blockers(lm.lockTable, tid, pid, lockType) {
		lm.depGraph.AddEdge(tid, holder)
	}
	return lm.depGraph.HasCycle()
}

// Release drops tid's lock on pid. Releasing a lock that is not held is a no-op.
func (lm *LockManager) Release(tid transaction.TransactionID, pid primitives.PageID) {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	if lm.lockTable.ReleaseLock(tid, pid) {
		lm.notifyWaiters()
	}
}

// ReleaseAll drops every lock tid holds in one critical section.
func (lm *LockManager) ReleaseAll(tid transaction.TransactionID) {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	pages := lm.lockTable.ReleaseAllLocks(tid)
	lm.depGraph.RemoveTransaction(tid)
	if len(pages) > 0 {
		lm.notifyWaiters()
		lm.log.WithField("tx_id", tid.ID()).WithField("pages", len(pages)).Debug("released all locks")
	}
}

func (lm *LockManager) notifyWaiters() {
	close(lm.released)
	lm.released = make(chan struct{})
}

// Holds reports whether tid holds any lock on pid.
func (lm *LockManager) Holds(tid transaction.TransactionID, pid primitives.PageID) bool {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	_, ok := lm.lockTable.LockTypeOf(tid, pid)
	return ok
}

// HoldsType returns the mode of tid's lock on pid.
func (lm *LockManager) HoldsType(tid transaction.TransactionID, pid primitives.PageID) (LockType, bool) {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()
	return lm.lockTable.LockTypeOf(tid, pid)
}

func (lm *LockManager) IsPageLocked(pid primitives.PageID) bool {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()
	return lm.lockTable.IsPageLocked(pid)
}

// LockedPages returns the pages tid holds locks on.
func (lm *LockManager) LockedPages(tid transaction.TransactionID) []primitives.PageID {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()
	return lm.lockTable.PagesHeldBy(tid)
}

// Holders returns a snapshot of the locks granted on pid.
func (lm *LockManager) Holders(pid primitives.PageID) []Lock {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	locks := lm.lockTable.GetPageLocks(pid)
	out := make([]Lock, len(locks))
	for i, l := range locks {
		out[i] = *l
	}
	return out
}
