package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"heapstore/pkg/concurrency/lock"
	"heapstore/pkg/concurrency/transaction"
	"heapstore/pkg/dberror"
	"heapstore/pkg/primitives"
	"heapstore/pkg/storage/heap"
	"heapstore/pkg/tuple"
	"heapstore/pkg/types"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestNewBufferPool_Validation(t *testing.T) {
	_, err := NewBufferPool(0, NewTableManager(), nil, nil, nil)
	assert.Error(t, err)
	_, err = NewBufferPool(1, nil, nil, nil, nil)
	assert.Error(t, err)

	bp, err := NewBufferPool(3, NewTableManager(), nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, bp.Capacity())
	assert.NotNil(t, bp.LockManager())
}

func TestGetPage_CachesAndCountsHits(t *testing.T) {
	f := newFixture(t, 4, nil)
	f.writePages(t, 1, 1)
	tid := transaction.NewTransactionID()

	first := f.cachedPage(t, tid, 0)
	again := f.cachedPage(t, tid, 0)
	assert.Same(t, first, again)

	stats := f.pool.Stats()
	assert.EqualValues(t, 1, stats.Hits)
	assert.EqualValues(t, 1, stats.Misses)
	assert.Equal(t, 1, stats.Cached)
	assert.True(t, f.pool.HoldsLock(tid, pid(0)))

	_, err := f.pool.GetPage(tid, pid(5), transaction.ReadOnly)
	assert.ErrorIs(t, err, dberror.ErrStorageInvalid)

	_, err = f.pool.GetPage(tid, primitives.NewPageID(99, 0), transaction.ReadOnly)
	assert.ErrorIs(t, err, dberror.ErrTableNotFound)
	assert.Equal(t, 1, f.pool.Size())
}

// With two pages cached, fetching a third evicts the first one cached,
// even though it was read again since.
func TestFIFOEvictsOldestPage(t *testing.T) {
	f := newFixture(t, 2, NewFIFOPolicy())
	f.writePages(t, 1, 1, 1)
	tid := transaction.NewTransactionID()

	f.cachedPage(t, tid, 0)
	f.cachedPage(t, tid, 1)
	f.cachedPage(t, tid, 0)
	f.cachedPage(t, tid, 2)

	assert.Equal(t, []primitives.PageID{pid(1), pid(2)}, f.pool.CachedPageIDs())
	assert.EqualValues(t, 1, f.pool.Stats().Evictions)
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	f := newFixture(t, 2, NewLRUPolicy())
	f.writePages(t, 1, 1, 1)
	tid := transaction.NewTransactionID()

	f.cachedPage(t, tid, 0)
	f.cachedPage(t, tid, 1)
	f.cachedPage(t, tid, 0)
	f.cachedPage(t, tid, 2)

	assert.Equal(t, []primitives.PageID{pid(0), pid(2)}, f.pool.CachedPageIDs())
}

// A shared holder blocks an exclusive request until it times out.
func TestExclusiveTimesOutBehindShared(t *testing.T) {
	f := newFixture(t, 4, nil)
	f.writePages(t, 1)
	t1, t2 := transaction.NewTransactionID(), transaction.NewTransactionID()

	_, err := f.pool.GetPage(t1, pid(0), transaction.ReadOnly)
	require.NoError(t, err)

	_, err = f.pool.GetPage(t2, pid(0), transaction.ReadWrite)
	require.Error(t, err)
	assert.ErrorIs(t, err, dberror.ErrTransactionAborted)
	assert.False(t, f.pool.HoldsLock(t2, pid(0)))

	require.NoError(t, f.pool.AbortTransaction(t2))
	require.NoError(t, f.pool.CommitTransaction(t1))

	_, err = f.pool.GetPage(t2, pid(0), transaction.ReadWrite)
	require.NoError(t, err)
	lockType, held := f.locks.HoldsType(t2, pid(0))
	assert.True(t, held)
	assert.Equal(t, lock.ExclusiveLock, lockType)
}

// Inserting into a file whose pages are all full appends a page and uses slot 0.
func TestInsertIntoFullFileAppendsPage(t *testing.T) {
	f := newFixture(t, 4, nil)
	f.writePages(t, tuplesPerPage)
	tid := transaction.NewTransactionID()

	row := f.row(100, 1)
	require.NoError(t, f.pool.InsertTuple(tid, testTableID, row))
	assert.Equal(t, tuple.NewRecordID(pid(1), 0), row.RecordID)

	n, err := f.file.NumPages()
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	assert.False(t, f.pool.HoldsLock(tid, pid(0)), "full page locked only for the scan is released")
	require.NoError(t, f.pool.CommitTransaction(tid))

	info, err := os.Stat(f.file.FilePath().String())
	require.NoError(t, err)
	assert.EqualValues(t, 2*testPageSize, info.Size())
	assert.Len(t, f.diskPage(t, 1).GetTuples(), 1)
}

// Deleting the only tuple and flushing leaves a clean page that can be
// evicted; the empty bitmap is on disk.
func TestFlushedEmptyPageIsEvictable(t *testing.T) {
	f := newFixture(t, 1, nil)
	f.writePages(t, 1, 0)
	tid := transaction.NewTransactionID()

	p, err := f.pool.GetPage(tid, pid(0), transaction.ReadWrite)
	require.NoError(t, err)
	only := p.(*heap.HeapPage).GetTuples()[0]
	require.NoError(t, f.pool.DeleteTuple(tid, only))

	_, err = f.pool.GetPage(tid, pid(1), transaction.ReadOnly)
	assert.ErrorIs(t, err, dberror.ErrCapacityExhausted, "dirty page must not be evicted")
	assert.Equal(t, 1, f.pool.Size())

	require.NoError(t, f.pool.FlushPage(pid(0)))
	_, dirty := p.IsDirty()
	assert.False(t, dirty)

	_, err = f.pool.GetPage(tid, pid(1), transaction.ReadOnly)
	require.NoError(t, err)
	assert.Equal(t, []primitives.PageID{pid(1)}, f.pool.CachedPageIDs())

	onDisk := f.diskPage(t, 0)
	assert.Empty(t, onDisk.GetTuples())
	assert.Equal(t, byte(0), onDisk.GetPageData()[0])
	assert.Equal(t, []string{"write", "force"}, f.log.kinds())
}

func TestFlushPageRefreshesBeforeImage(t *testing.T) {
	f := newFixture(t, 4, nil)
	f.writePages(t, 2)
	tid := transaction.NewTransactionID()

	p, err := f.pool.GetPage(tid, pid(0), transaction.ReadWrite)
	require.NoError(t, err)
	hp := p.(*heap.HeapPage)
	require.NoError(t, f.pool.DeleteTuple(tid, hp.GetTuples()[0]))
	assert.Len(t, hp.GetBeforeImage().(*heap.HeapPage).GetTuples(), 2)

	require.NoError(t, f.pool.FlushPage(pid(0)))

	before := hp.GetBeforeImage().(*heap.HeapPage)
	assert.Len(t, before.GetTuples(), 1)
	assert.Equal(t, f.diskPage(t, 0).GetPageData(), before.GetPageData())
	require.NoError(t, f.pool.CommitTransaction(tid))
}

func TestCapacityExhaustedWhenAllDirty(t *testing.T) {
	f := newFixture(t, 2, nil)
	f.writePages(t, 1, 1, 1)
	t1, t2 := transaction.NewTransactionID(), transaction.NewTransactionID()

	for i, tid := range []transaction.TransactionID{t1, t2} {
		p, err := f.pool.GetPage(tid, pid(primitives.PageNumber(i)), transaction.ReadWrite)
		require.NoError(t, err)
		require.NoError(t, f.pool.DeleteTuple(tid, p.(*heap.HeapPage).GetTuples()[0]))
	}

	_, err := f.pool.GetPage(t1, pid(2), transaction.ReadOnly)
	assert.ErrorIs(t, err, dberror.ErrCapacityExhausted)
	assert.Equal(t, 2, f.pool.Size())
	assert.Equal(t, 2, f.pool.Stats().Dirty)

	require.NoError(t, f.pool.CommitTransaction(t2))
	_, err = f.pool.GetPage(t1, pid(2), transaction.ReadOnly)
	require.NoError(t, err)
	assert.Equal(t, 2, f.pool.Size())
}

func TestCommit_ChangesVisibleOnDisk(t *testing.T) {
	f := newFixture(t, 4, nil)
	f.writePages(t, 2)
	tid := transaction.NewTransactionID()

	require.NoError(t, f.pool.InsertTuple(tid, testTableID, f.row(42, 420)))
	assert.Len(t, f.diskPage(t, 0).GetTuples(), 2, "nothing written before commit")

	require.NoError(t, f.pool.TransactionComplete(tid, true))

	tuples := f.diskPage(t, 0).GetTuples()
	require.Len(t, tuples, 3)
	assert.Equal(t, "42\t420", tuples[2].String())

	assert.Empty(t, f.locks.LockedPages(tid))
	assert.Zero(t, f.pool.Stats().Dirty)
	assert.Equal(t, []string{"write", "force", "commit"}, f.log.kinds())
	assert.Equal(t, pid(0), f.log.events[0].pid)

	// committed state is the new before-image
	before := f.cachedPage(t, transaction.NewTransactionID(), 0).GetBeforeImage().(*heap.HeapPage)
	assert.Len(t, before.GetTuples(), 3)
}

func TestAbort_RestoresDiskImage(t *testing.T) {
	f := newFixture(t, 4, nil)
	f.writePages(t, 3)
	original := f.diskPage(t, 0).GetPageData()
	tid := transaction.NewTransactionID()

	p, err := f.pool.GetPage(tid, pid(0), transaction.ReadWrite)
	require.NoError(t, err)
	require.NoError(t, f.pool.DeleteTuple(tid, p.(*heap.HeapPage).GetTuples()[1]))
	require.NoError(t, f.pool.InsertTuple(tid, testTableID, f.row(7, 7)))
	require.NoError(t, f.pool.InsertTuple(tid, testTableID, f.row(8, 8)))

	require.NoError(t, f.pool.TransactionComplete(tid, false))

	reader := transaction.NewTransactionID()
	assert.Equal(t, original, f.cachedPage(t, reader, 0).GetPageData())
	assert.Equal(t, original, f.diskPage(t, 0).GetPageData())
	assert.Empty(t, f.locks.LockedPages(tid))
	assert.Equal(t, []string{"abort"}, f.log.kinds())
}

func TestAbort_KeepsEvictionOrder(t *testing.T) {
	f := newFixture(t, 2, NewFIFOPolicy())
	f.writePages(t, 1, 1, 1)
	tid := transaction.NewTransactionID()

	p, err := f.pool.GetPage(tid, pid(0), transaction.ReadWrite)
	require.NoError(t, err)
	f.cachedPage(t, tid, 1)
	require.NoError(t, f.pool.DeleteTuple(tid, p.(*heap.HeapPage).GetTuples()[0]))
	require.NoError(t, f.pool.AbortTransaction(tid))

	f.cachedPage(t, transaction.NewTransactionID(), 2)
	assert.Equal(t, []primitives.PageID{pid(1), pid(2)}, f.pool.CachedPageIDs())
}

func TestAbort_DeleteRetryWithSameTuple(t *testing.T) {
	f := newFixture(t, 4, nil)
	f.writePages(t, 2)

	first := transaction.NewTransactionID()
	victim := f.cachedPage(t, first, 0).GetTuples()[0]
	rid := *victim.RecordID
	require.NoError(t, f.pool.DeleteTuple(first, victim))
	require.NoError(t, f.pool.AbortTransaction(first))

	require.NotNil(t, victim.RecordID)
	assert.Equal(t, rid, *victim.RecordID)
	reader := transaction.NewTransactionID()
	assert.Len(t, f.cachedPage(t, reader, 0).GetTuples(), 2)
	require.NoError(t, f.pool.TransactionComplete(reader, true))

	retry := transaction.NewTransactionID()
	require.NoError(t, f.pool.DeleteTuple(retry, victim))
	require.NoError(t, f.pool.CommitTransaction(retry))
	assert.Len(t, f.diskPage(t, 0).GetTuples(), 1)
}

func TestAbort_UpdateRetryWithSameTuple(t *testing.T) {
	f := newFixture(t, 4, nil)
	f.writePages(t, 2)

	first := transaction.NewTransactionID()
	old := f.cachedPage(t, first, 0).GetTuples()[1]
	require.NoError(t, f.pool.UpdateTuple(first, old, f.row(1, 111)))
	require.NoError(t, f.pool.AbortTransaction(first))

	retry := transaction.NewTransactionID()
	require.NoError(t, f.pool.UpdateTuple(retry, old, f.row(1, 222)))
	require.NoError(t, f.pool.CommitTransaction(retry))

	var values []string
	for _, tup := range f.diskPage(t, 0).GetTuples() {
		values = append(values, tup.String())
	}
	assert.ElementsMatch(t, []string{"0\t0", "1\t222"}, values)
}

func TestUpdateTuple(t *testing.T) {
	f := newFixture(t, 4, nil)
	f.writePages(t, 2)
	tid := transaction.NewTransactionID()

	old := f.cachedPage(t, tid, 0).GetTuples()[0]
	require.NoError(t, f.pool.UpdateTuple(tid, old, f.row(0, 999)))
	require.NoError(t, f.pool.CommitTransaction(tid))

	var values []string
	for _, tup := range f.diskPage(t, 0).GetTuples() {
		values = append(values, tup.String())
	}
	assert.ElementsMatch(t, []string{"1\t10", "0\t999"}, values)

	assert.ErrorIs(t, f.pool.UpdateTuple(tid, f.row(1, 1), f.row(2, 2)), dberror.ErrTupleNotFound)
}

func TestDeleteTuple_Errors(t *testing.T) {
	f := newFixture(t, 4, nil)
	tid := transaction.NewTransactionID()

	assert.Error(t, f.pool.DeleteTuple(tid, nil))
	assert.ErrorIs(t, f.pool.DeleteTuple(tid, f.row(1, 1)), dberror.ErrTupleNotFound)

	orphan := f.row(1, 1)
	orphan.RecordID = tuple.NewRecordID(primitives.NewPageID(77, 0), 0)
	assert.ErrorIs(t, f.pool.DeleteTuple(tid, orphan), dberror.ErrTableNotFound)

	assert.ErrorIs(t, f.pool.InsertTuple(tid, 77, f.row(1, 1)), dberror.ErrTableNotFound)
	assert.Error(t, f.pool.InsertTuple(tid, testTableID, nil))
}

func TestDiscardPage(t *testing.T) {
	f := newFixture(t, 4, nil)
	f.writePages(t, 1)
	tid := transaction.NewTransactionID()

	first := f.cachedPage(t, tid, 0)
	f.pool.DiscardPage(pid(0))
	assert.Empty(t, f.pool.CachedPageIDs())
	assert.Zero(t, f.pool.Stats().PolicySize)

	second := f.cachedPage(t, tid, 0)
	assert.NotSame(t, first, second)
	assert.EqualValues(t, 2, f.pool.Stats().Misses)
}

func TestFlushPagesResetsBeforeImage(t *testing.T) {
	f := newFixture(t, 4, nil)
	f.writePages(t, 1)
	tid := transaction.NewTransactionID()

	require.NoError(t, f.pool.InsertTuple(tid, testTableID, f.row(5, 5)))
	require.NoError(t, f.pool.FlushPages(tid))

	p := f.cachedPage(t, tid, 0)
	_, dirty := p.IsDirty()
	assert.False(t, dirty)
	assert.Len(t, p.GetBeforeImage().(*heap.HeapPage).GetTuples(), 2)
	assert.Len(t, f.diskPage(t, 0).GetTuples(), 2)

	require.NoError(t, f.pool.FlushAllPages())
	assert.EqualValues(t, 1, f.pool.Stats().Flushes)
}

func TestClose_EmptiesCache(t *testing.T) {
	f := newFixture(t, 4, nil)
	f.writePages(t, 1, 1)
	tid := transaction.NewTransactionID()
	f.cachedPage(t, tid, 0)
	f.cachedPage(t, tid, 1)

	require.NoError(t, f.pool.Close())
	assert.Zero(t, f.pool.Size())
	assert.Zero(t, f.pool.Stats().PolicySize)
}

func TestStats_String(t *testing.T) {
	s := Stats{Capacity: 50, Cached: 2, PageSize: 4096, Hits: 1500, Misses: 500}
	assert.InDelta(t, 0.75, s.HitRatio(), 1e-9)
	assert.Contains(t, s.String(), "pages 2/50 (8.2 kB of 205 kB)")
	assert.Contains(t, s.String(), "hits 1,500")
	assert.Zero(t, Stats{}.HitRatio())
}

// Concurrent writers on separate tables: the cache never grows past its
// capacity and every committed row is on disk.
func TestConcurrentInsertsRespectCapacity(t *testing.T) {
	const (
		workers  = 4
		batches  = 6
		perBatch = 5
		capacity = 10
	)
	f := newFixture(t, capacity, nil)

	files := make([]*heap.HeapFile, workers)
	for w := range files {
		hf, err := heap.NewHeapFile(
			primitives.Filepath(filepath.Join(f.dir, fmt.Sprintf("w%d.dat", w))),
			primitives.TableID(100+w), f.td)
		require.NoError(t, err)
		require.NoError(t, f.tables.AddTable(fmt.Sprintf("w%d", w), hf))
		files[w] = hf
	}

	var overflow atomic.Bool
	check := func() {
		if f.pool.Size() > f.pool.Capacity() {
			overflow.Store(true)
		}
	}

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		tableID := primitives.TableID(100 + w)
		g.Go(func() error {
			faker := gofakeit.New(uint64(w + 1))
			for b := 0; b < batches; b++ {
				for attempt := 0; ; attempt++ {
					tid := transaction.NewTransactionID()
					err := func() error {
						for i := 0; i < perBatch; i++ {
							row := tuple.NewBuilder(f.td).
								AddInt(faker.Int32()).
								AddInt(int32(faker.IntRange(0, 1000))).
								MustBuild()
							if err := f.pool.InsertTuple(tid, tableID, row); err != nil {
								return err
							}
							check()
						}
						return nil
					}()
					if err == nil {
						if err := f.pool.CommitTransaction(tid); err != nil {
							return err
						}
						break
					}
					_ = f.pool.AbortTransaction(tid)
					if attempt > 20 {
						return err
					}
				}
				check()
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.False(t, overflow.Load())

	for w, hf := range files {
		reader := transaction.NewTransactionID()
		rows, err := heap.ReadAll(hf, f.pool, reader)
		require.NoError(t, err)
		assert.Len(t, rows, batches*perBatch, "worker %d", w)
		require.NoError(t, f.pool.CommitTransaction(reader))
		for _, row := range rows {
			assert.Equal(t, types.IntType, row.TupleDesc.Types[0])
		}
	}
}
