package memory

import (
	"fmt"
	"sync"

	"heapstore/pkg/concurrency/lock"
	"heapstore/pkg/concurrency/transaction"
	"heapstore/pkg/dberror"
	"heapstore/pkg/log"
	"heapstore/pkg/logging"
	"heapstore/pkg/primitives"
	"heapstore/pkg/storage/page"
	"heapstore/pkg/tuple"

	"github.com/sirupsen/logrus"
)

// DefaultCapacity is the number of pages a buffer pool holds by default.
const DefaultCapacity = 50

// BufferPool caches pages read from table files and mediates every page
// access of a transaction.
//
// Each access first takes a page lock through the lock manager (shared for
// ReadOnly, exclusive for ReadWrite) and only then enters the cache under the
// pool mutex. Locks are held until the transaction completes (strict
// two-phase locking).
//
// Dirty pages are never evicted. A page is written to disk only when its
// transaction commits or when it is flushed explicitly; abort restores the
// on-disk version. When the cache is full and every cached page is dirty,
// the request fails with a capacity-exhausted error and the pool stays
// within its capacity.
type BufferPool struct {
	mutex       sync.Mutex
	cache       *PageCache
	policy      EvictionPolicy
	catalog     Catalog
	lockManager *lock.LockManager
	logFile     log.LogFile
	stats       counters
	log         *logrus.Entry
}

// NewBufferPool creates a pool of capacity pages. logFile may be nil, in which
// case page flushes are not logged; policy may be nil, selecting FIFO.
func NewBufferPool(capacity int, catalog Catalog, lockManager *lock.LockManager, logFile log.LogFile, policy EvictionPolicy) (*BufferPool, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("buffer pool capacity must be positive, got %d", capacity)
	}
	if catalog == nil {
		return nil, fmt.Errorf("buffer pool needs a catalog")
	}
	if lockManager == nil {
		lockManager = lock.NewLockManager()
	}
	if policy == nil {
		policy = NewFIFOPolicy()
	}

	return &BufferPool{
		cache:       NewPageCache(capacity),
		policy:      policy,
		catalog:     catalog,
		lockManager: lockManager,
		logFile:     logFile,
		log:         logging.WithComponent("BufferPool"),
	}, nil
}

// GetPage returns page pid for tid, locking it according to perm. It blocks
// while a conflicting lock is held and fails with a transaction-aborted error
// when the lock cannot be obtained in time.
func (bp *BufferPool) GetPage(tid transaction.TransactionID, pid primitives.PageID, perm transaction.Permissions) (page.Page, error) {
	if err := bp.lockManager.Acquire(tid, pid, lock.LockTypeFor(perm)); err != nil {
		bp.log.WithFields(logrus.Fields{"tx_id": tid.ID(), "perm": perm.String()}).
			WithFields(logging.PageFields(pid)).Debug("lock not granted")
		return nil, err
	}

	bp.mutex.Lock()
	defer bp.mutex.Unlock()

	if p, exists := bp.cache.Get(pid); exists {
		bp.policy.OnAccess(pid)
		bp.stats.hits++
		return p, nil
	}
	bp.stats.misses++

	if err := bp.makeRoomLocked(); err != nil {
		return nil, err
	}

	dbFile, err := bp.catalog.GetDbFile(pid.TableID)
	if err != nil {
		return nil, err
	}
	p, err := dbFile.ReadPage(pid)
	if err != nil {
		return nil, err
	}

	if err := bp.cache.Put(pid, p); err != nil {
		return nil, err
	}
	bp.policy.OnInsert(pid)
	bp.stats.reads++

	bp.log.WithField("tx_id", tid.ID()).WithFields(logging.PageFields(pid)).Debug("page read into cache")
	return p, nil
}

// HoldsLock reports whether tid holds any lock on pid.
func (bp *BufferPool) HoldsLock(tid transaction.TransactionID, pid primitives.PageID) bool {
	return bp.lockManager.Holds(tid, pid)
}

// UnsafeReleasePage releases tid's lock on pid before tid completes. Only
// safe for pages tid has read but not modified.
func (bp *BufferPool) UnsafeReleasePage(tid transaction.TransactionID, pid primitives.PageID) {
	bp.lockManager.Release(tid, pid)
}

// InsertTuple adds t to table tableID on behalf of tid. The pages the table
// file modifies are marked dirty by tid and kept in the cache.
func (bp *BufferPool) InsertTuple(tid transaction.TransactionID, tableID primitives.TableID, t *tuple.Tuple) error {
	if t == nil {
		return fmt.Errorf("tuple cannot be nil")
	}
	dbFile, err := bp.catalog.GetDbFile(tableID)
	if err != nil {
		return err
	}

	modified, err := dbFile.InsertTuple(bp, tid, t)
	if err != nil {
		return err
	}
	return bp.markDirty(tid, modified)
}

// DeleteTuple removes t from the table its record ID points into.
func (bp *BufferPool) DeleteTuple(tid transaction.TransactionID, t *tuple.Tuple) error {
	if t == nil {
		return fmt.Errorf("tuple cannot be nil")
	}
	if t.RecordID == nil {
		return dberror.NewTupleNotFound("tuple has no record ID").In("DeleteTuple", "BufferPool")
	}
	dbFile, err := bp.catalog.GetDbFile(t.RecordID.PageID.TableID)
	if err != nil {
		return err
	}

	modified, err := dbFile.DeleteTuple(bp, tid, t)
	if err != nil {
		return err
	}
	return bp.markDirty(tid, modified)
}

// UpdateTuple replaces oldTuple with newTuple within tid. The new version is
// placed first-fit and may land on a different page.
func (bp *BufferPool) UpdateTuple(tid transaction.TransactionID, oldTuple, newTuple *tuple.Tuple) error {
	if oldTuple == nil || oldTuple.RecordID == nil {
		return dberror.NewTupleNotFound("tuple has no record ID").In("UpdateTuple", "BufferPool")
	}
	tableID := oldTuple.RecordID.PageID.TableID

	if err := bp.DeleteTuple(tid, oldTuple); err != nil {
		return err
	}
	return bp.InsertTuple(tid, tableID, newTuple)
}

// markDirty tags the modified pages with tid and makes sure each of them is
// cached, evicting clean pages where needed.
func (bp *BufferPool) markDirty(tid transaction.TransactionID, pages []page.Page) error {
	bp.mutex.Lock()
	defer bp.mutex.Unlock()

	for _, p := range pages {
		pid := p.GetID()
		p.MarkDirty(true, tid)

		if bp.cache.Contains(pid) {
			_ = bp.cache.Put(pid, p)
			continue
		}
		if err := bp.makeRoomLocked(); err != nil {
			return err
		}
		if err := bp.cache.Put(pid, p); err != nil {
			return err
		}
		bp.policy.OnInsert(pid)
	}
	return nil
}

// makeRoomLocked evicts clean pages until one more page fits.
func (bp *BufferPool) makeRoomLocked() error {
	for bp.cache.IsFull() {
		if err := bp.evictLocked(); err != nil {
			return err
		}
	}
	return nil
}

// evictLocked drops the first clean page in policy order. Dirty pages are
// never chosen.
func (bp *BufferPool) evictLocked() error {
	victim, found := bp.policy.SelectVictim(func(pid primitives.PageID) bool {
		p, exists := bp.cache.Get(pid)
		if !exists {
			return true
		}
		_, dirty := p.IsDirty()
		return !dirty
	})
	if !found {
		bp.log.WithField("cached", bp.cache.Size()).Warn("cannot evict: every cached page is dirty")
		return dberror.NewCapacityExhausted(
			fmt.Sprintf("all %d cached pages are dirty", bp.cache.Size())).In("evict", "BufferPool")
	}

	bp.cache.Remove(victim)
	bp.policy.Remove(victim)
	bp.stats.evictions++
	bp.log.WithFields(logging.PageFields(victim)).Debug("evicted page")
	return nil
}

// FlushAllPages writes every dirty cached page to disk. Uncommitted changes
// are written too, so this is meant for shutdown and tooling.
func (bp *BufferPool) FlushAllPages() error {
	bp.mutex.Lock()
	defer bp.mutex.Unlock()

	for _, pid := range bp.cache.GetAll() {
		if err := bp.flushPageLocked(pid); err != nil {
			return err
		}
	}
	return nil
}

// FlushPage writes pid to disk if it is cached and dirty. The page is clean
// afterwards, its before-image matches disk, and it may be evicted.
func (bp *BufferPool) FlushPage(pid primitives.PageID) error {
	bp.mutex.Lock()
	defer bp.mutex.Unlock()
	return bp.flushPageLocked(pid)
}

// FlushPages writes every page dirtied by tid and makes the written version
// the page's new before-image.
func (bp *BufferPool) FlushPages(tid transaction.TransactionID) error {
	bp.mutex.Lock()
	defer bp.mutex.Unlock()
	return bp.flushTransactionLocked(tid)
}

func (bp *BufferPool) flushTransactionLocked(tid transaction.TransactionID) error {
	for _, pid := range bp.dirtiedByLocked(tid) {
		if err := bp.flushPageLocked(pid); err != nil {
			return err
		}
	}
	return nil
}

// flushPageLocked logs and forces the page's images, writes it, marks it
// clean and makes the written version its before-image.
func (bp *BufferPool) flushPageLocked(pid primitives.PageID) error {
	p, exists := bp.cache.Get(pid)
	if !exists {
		return nil
	}
	dirtier, dirty := p.IsDirty()
	if !dirty {
		return nil
	}
	entry := bp.log.WithField("tx_id", dirtier.ID()).WithFields(logging.PageFields(pid))

	if bp.logFile != nil {
		if err := bp.logFile.LogWrite(dirtier, p.GetBeforeImage(), p); err != nil {
			entry.WithError(err).Error("failed to log page before flush")
			return dberror.Wrap(err, dberror.CodeIO, "FlushPage", "BufferPool")
		}
		if err := bp.logFile.Force(); err != nil {
			entry.WithError(err).Error("failed to force log before flush")
			return dberror.Wrap(err, dberror.CodeIO, "FlushPage", "BufferPool")
		}
	}

	dbFile, err := bp.catalog.GetDbFile(pid.TableID)
	if err != nil {
		return err
	}
	if err := dbFile.WritePage(p); err != nil {
		entry.WithError(err).Error("failed to write page")
		return dberror.Wrap(err, dberror.CodeIO, "FlushPage", "BufferPool")
	}

	p.MarkDirty(false, transaction.TransactionID{})
	p.SetBeforeImage()
	bp.stats.flushes++
	entry.Debug("flushed page")
	return nil
}

// DiscardPage drops pid from the cache without writing it.
func (bp *BufferPool) DiscardPage(pid primitives.PageID) {
	bp.mutex.Lock()
	defer bp.mutex.Unlock()

	bp.cache.Remove(pid)
	bp.policy.Remove(pid)
}

// TransactionComplete commits or aborts tid.
func (bp *BufferPool) TransactionComplete(tid transaction.TransactionID, commit bool) error {
	if commit {
		return bp.CommitTransaction(tid)
	}
	return bp.AbortTransaction(tid)
}

// CommitTransaction flushes every page tid dirtied, appends a commit record
// and releases tid's locks. If a flush fails the locks are kept and the
// caller is expected to abort.
func (bp *BufferPool) CommitTransaction(tid transaction.TransactionID) error {
	bp.mutex.Lock()
	err := bp.flushTransactionLocked(tid)
	bp.mutex.Unlock()
	if err != nil {
		return err
	}

	if bp.logFile != nil {
		if err := bp.logFile.LogCommit(tid); err != nil {
			return dberror.Wrap(err, dberror.CodeIO, "CommitTransaction", "BufferPool")
		}
	}

	bp.lockManager.ReleaseAll(tid)
	bp.log.WithField("tx_id", tid.ID()).Debug("transaction committed")
	return nil
}

// AbortTransaction replaces every page tid dirtied with its on-disk version,
// appends an abort record and releases tid's locks. The locks are released
// even when restoring a page fails.
func (bp *BufferPool) AbortTransaction(tid transaction.TransactionID) error {
	bp.mutex.Lock()
	restoreErr := bp.restoreLocked(tid)
	bp.mutex.Unlock()

	var logErr error
	if bp.logFile != nil {
		logErr = bp.logFile.LogAbort(tid)
	}

	bp.lockManager.ReleaseAll(tid)
	bp.log.WithField("tx_id", tid.ID()).Debug("transaction aborted")

	if restoreErr != nil {
		return restoreErr
	}
	if logErr != nil {
		return dberror.Wrap(logErr, dberror.CodeIO, "AbortTransaction", "BufferPool")
	}
	return nil
}

// restoreLocked re-reads the pages dirtied by tid. The eviction order is left
// alone; a page that cannot be re-read is dropped from the cache.
func (bp *BufferPool) restoreLocked(tid transaction.TransactionID) error {
	var firstErr error
	for _, pid := range bp.dirtiedByLocked(tid) {
		restored, err := bp.readFromDisk(pid)
		if err != nil {
			bp.log.WithField("tx_id", tid.ID()).WithFields(logging.PageFields(pid)).
				WithError(err).Error("failed to restore page on abort, dropping it")
			bp.cache.Remove(pid)
			bp.policy.Remove(pid)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		_ = bp.cache.Put(pid, restored)
	}
	return firstErr
}

func (bp *BufferPool) readFromDisk(pid primitives.PageID) (page.Page, error) {
	dbFile, err := bp.catalog.GetDbFile(pid.TableID)
	if err != nil {
		return nil, err
	}
	return dbFile.ReadPage(pid)
}

// dirtiedByLocked returns the cached pages whose dirtier is tid.
func (bp *BufferPool) dirtiedByLocked(tid transaction.TransactionID) []primitives.PageID {
	var pids []primitives.PageID
	for _, pid := range bp.cache.GetAll() {
		p, _ := bp.cache.Get(pid)
		if dirtier, dirty := p.IsDirty(); dirty && dirtier == tid {
			pids = append(pids, pid)
		}
	}
	return pids
}

func (bp *BufferPool) Capacity() int {
	return bp.cache.Capacity()
}

func (bp *BufferPool) Size() int {
	bp.mutex.Lock()
	defer bp.mutex.Unlock()
	return bp.cache.Size()
}

// CachedPageIDs returns the IDs of the cached pages ordered by table and page.
func (bp *BufferPool) CachedPageIDs() []primitives.PageID {
	bp.mutex.Lock()
	defer bp.mutex.Unlock()
	return bp.cache.GetAll()
}

func (bp *BufferPool) LockManager() *lock.LockManager {
	return bp.lockManager
}

// Close empties the cache without writing anything. Callers that want dirty
// pages on disk flush or complete their transactions first.
func (bp *BufferPool) Close() error {
	bp.mutex.Lock()
	defer bp.mutex.Unlock()

	for _, pid := range bp.cache.GetAll() {
		bp.policy.Remove(pid)
	}
	bp.cache.Clear()
	return nil
}
