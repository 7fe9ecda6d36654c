// Package lock implements page-level shared/exclusive locking for the buffer pool.
//
// # Overview
//
// Transactions lock pages through [LockManager.Acquire] and keep every lock
// until they finish, when [LockManager.ReleaseAll] drops them in a single
// critical section (strict two-phase locking). Two lock modes exist:
//
//   - [SharedLock]: needed to read a page; compatible with other shared locks.
//   - [ExclusiveLock]: needed to write a page; incompatible with every other lock.
//
// A transaction that holds a shared lock may upgrade it to exclusive when it
// is the only holder of the page. A transaction holding an exclusive lock is
// granted any further request on that page without change.
//
// # Components
//
//   - [LockTable]: dual index of page → locks and transaction → pages.
//   - grant rules (lock_grant.go): decide, from the table alone, whether a
//     request is already satisfied, can be granted, can be upgraded, or must wait.
//   - [DependencyGraph]: wait-for graph, consulted only when deadlock
//     detection is enabled.
//   - [LockManager]: the public entry point, serialising all of the above
//     behind one mutex.
//
// # Waiting and deadlocks
//
// A request that cannot be granted waits for the next release and then
// re-evaluates the grant rules. Waiting is bounded by the manager's timeout
// (3 seconds unless configured otherwise); when it expires the request fails
// with a transaction-aborted error and the caller is expected to abort. This
// also resolves deadlocks, at the cost of sometimes aborting a transaction
// that was merely slow.
//
// With [WithDeadlockDetection] the manager additionally records wait-for
// edges and fails a request immediately with a deadlock error when the new
// edges close a cycle. The deadlock error matches the transaction-aborted
// sentinel, so callers handle both the same way.
package lock
