package heap

import (
	"path/filepath"
	"testing"

	"heapstore/pkg/concurrency/transaction"
	"heapstore/pkg/primitives"
	"heapstore/pkg/storage/page"
	"heapstore/pkg/tuple"
	"heapstore/pkg/types"

	"github.com/stretchr/testify/require"
)

// directFetcher caches pages in a map and records lock requests without
// enforcing them, standing in for the buffer pool.
type directFetcher struct {
	file     *HeapFile
	pages    map[primitives.PageID]page.Page
	locks    map[primitives.PageID]transaction.Permissions
	released []primitives.PageID
}

func newDirectFetcher(file *HeapFile) *directFetcher {
	return &directFetcher{
		file:  file,
		pages: make(map[primitives.PageID]page.Page),
		locks: make(map[primitives.PageID]transaction.Permissions),
	}
}

func (f *directFetcher) GetPage(_ transaction.TransactionID, pid primitives.PageID, perm transaction.Permissions) (page.Page, error) {
	if cur, ok := f.locks[pid]; !ok || perm > cur {
		f.locks[pid] = perm
	}
	if p, ok := f.pages[pid]; ok {
		return p, nil
	}
	p, err := f.file.ReadPage(pid)
	if err != nil {
		return nil, err
	}
	f.pages[pid] = p
	return p, nil
}

func (f *directFetcher) HoldsLock(_ transaction.TransactionID, pid primitives.PageID) bool {
	_, ok := f.locks[pid]
	return ok
}

func (f *directFetcher) UnsafeReleasePage(_ transaction.TransactionID, pid primitives.PageID) {
	delete(f.locks, pid)
	f.released = append(f.released, pid)
}

func (f *directFetcher) flush(t *testing.T) {
	t.Helper()
	for _, p := range f.pages {
		require.NoError(t, f.file.WritePage(p))
	}
}

func twoIntDesc(t *testing.T) *tuple.TupleDescription {
	t.Helper()
	td, err := tuple.NewTupleDesc([]types.Type{types.IntType, types.IntType}, []string{"a", "b"})
	require.NoError(t, err)
	return td
}

func intTuple(td *tuple.TupleDescription, a, b int32) *tuple.Tuple {
	return tuple.NewBuilder(td).AddInt(a).AddInt(b).MustBuild()
}

// smallPages switches to 64-byte pages: 7 two-int tuples per page.
func smallPages(t *testing.T) {
	t.Helper()
	page.SetPageSize(64)
	t.Cleanup(page.ResetPageSize)
}

func newHeapFile(t *testing.T, td *tuple.TupleDescription) *HeapFile {
	t.Helper()
	hf, err := NewHeapFile(primitives.Filepath(filepath.Join(t.TempDir(), "t.dat")), 1, td)
	require.NoError(t, err)
	t.Cleanup(func() { _ = hf.Close() })
	return hf
}
