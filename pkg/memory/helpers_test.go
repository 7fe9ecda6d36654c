package memory

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"heapstore/pkg/concurrency/lock"
	"heapstore/pkg/concurrency/transaction"
	"heapstore/pkg/primitives"
	"heapstore/pkg/storage/heap"
	"heapstore/pkg/storage/page"
	"heapstore/pkg/tuple"
	"heapstore/pkg/types"

	"github.com/stretchr/testify/require"
)

// With 64 byte pages a two-int tuple table holds 7 tuples per page.
const (
	testPageSize   = 64
	tuplesPerPage  = 7
	testTableID    = primitives.TableID(1)
	testLockWindow = 100 * time.Millisecond
)

type logEvent struct {
	kind string
	tid  transaction.TransactionID
	pid  primitives.PageID
}

// recordingLog is a LogFile that remembers what it was asked to do.
type recordingLog struct {
	mutex  sync.Mutex
	events []logEvent
}

func (l *recordingLog) add(e logEvent) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.events = append(l.events, e)
}

func (l *recordingLog) LogWrite(tid transaction.TransactionID, _, after page.Page) error {
	l.add(logEvent{kind: "write", tid: tid, pid: after.GetID()})
	return nil
}

func (l *recordingLog) Force() error {
	l.add(logEvent{kind: "force"})
	return nil
}

func (l *recordingLog) LogCommit(tid transaction.TransactionID) error {
	l.add(logEvent{kind: "commit", tid: tid})
	return nil
}

func (l *recordingLog) LogAbort(tid transaction.TransactionID) error {
	l.add(logEvent{kind: "abort", tid: tid})
	return nil
}

func (l *recordingLog) Close() error { return nil }

func (l *recordingLog) kinds() []string {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	kinds := make([]string, len(l.events))
	for i, e := range l.events {
		kinds[i] = e.kind
	}
	return kinds
}

type fixture struct {
	pool   *BufferPool
	tables *TableManager
	file   *heap.HeapFile
	locks  *lock.LockManager
	log    *recordingLog
	td     *tuple.TupleDescription
	dir    string
}

func newFixture(t *testing.T, capacity int, policy EvictionPolicy) *fixture {
	t.Helper()
	page.SetPageSize(testPageSize)
	t.Cleanup(page.ResetPageSize)

	td, err := tuple.NewTupleDesc([]types.Type{types.IntType, types.IntType}, []string{"id", "value"})
	require.NoError(t, err)

	dir := t.TempDir()
	hf, err := heap.NewHeapFile(primitives.Filepath(filepath.Join(dir, "t.dat")), testTableID, td)
	require.NoError(t, err)

	tables := NewTableManager()
	require.NoError(t, tables.AddTable("t", hf))
	t.Cleanup(func() { _ = tables.Clear() })

	locks := lock.NewLockManager(lock.WithTimeout(testLockWindow))
	rec := &recordingLog{}
	pool, err := NewBufferPool(capacity, tables, locks, rec, policy)
	require.NoError(t, err)

	return &fixture{pool: pool, tables: tables, file: hf, locks: locks, log: rec, td: td, dir: dir}
}

func (f *fixture) row(id, value int32) *tuple.Tuple {
	return tuple.NewBuilder(f.td).AddInt(id).AddInt(value).MustBuild()
}

// writePages appends pages to the heap file directly, each holding the given
// number of tuples. Tuple ids continue across pages starting at 0.
func (f *fixture) writePages(t *testing.T, counts ...int) {
	t.Helper()
	id := int32(0)
	for _, n := range counts {
		pageNo, err := f.file.AllocateNewPage()
		require.NoError(t, err)

		hp, err := heap.NewEmptyHeapPage(primitives.NewPageID(testTableID, pageNo), f.td)
		require.NoError(t, err)
		for i := 0; i < n; i++ {
			require.NoError(t, hp.InsertTuple(f.row(id, id*10)))
			id++
		}
		require.NoError(t, f.file.WritePage(hp))
	}
}

func pid(pageNo primitives.PageNumber) primitives.PageID {
	return primitives.NewPageID(testTableID, pageNo)
}

func (f *fixture) diskPage(t *testing.T, pageNo primitives.PageNumber) *heap.HeapPage {
	t.Helper()
	p, err := f.file.ReadPage(pid(pageNo))
	require.NoError(t, err)
	return p.(*heap.HeapPage)
}

func (f *fixture) cachedPage(t *testing.T, tid transaction.TransactionID, pageNo primitives.PageNumber) *heap.HeapPage {
	t.Helper()
	p, err := f.pool.GetPage(tid, pid(pageNo), transaction.ReadOnly)
	require.NoError(t, err)
	return p.(*heap.HeapPage)
}
