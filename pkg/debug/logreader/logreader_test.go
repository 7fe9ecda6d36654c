package logreader

import (
	"os"
	"path/filepath"
	"testing"

	"heapstore/pkg/concurrency/transaction"
	"heapstore/pkg/dberror"
	"heapstore/pkg/log"
	"heapstore/pkg/primitives"
	"heapstore/pkg/storage/heap"
	"heapstore/pkg/tuple"
	"heapstore/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeLog writes an update and a commit for TID-1 and an abort for TID-2.
func writeLog(t *testing.T) primitives.Filepath {
	t.Helper()
	td, err := tuple.NewTupleDesc([]types.Type{types.IntType}, nil)
	require.NoError(t, err)
	pid := primitives.NewPageID(2, 0)

	before, err := heap.NewEmptyHeapPage(pid, td)
	require.NoError(t, err)
	after, err := heap.NewEmptyHeapPage(pid, td)
	require.NoError(t, err)
	require.NoError(t, after.InsertTuple(tuple.NewBuilder(td).AddInt(42).MustBuild()))

	path := primitives.Filepath(filepath.Join(t.TempDir(), "wal.log"))
	fl, err := log.NewFileLog(path, log.DefaultBufferSize)
	require.NoError(t, err)

	tid1 := transaction.NewTransactionIDFromValue(1)
	tid2 := transaction.NewTransactionIDFromValue(2)
	require.NoError(t, fl.LogWrite(tid1, before, after))
	require.NoError(t, fl.LogCommit(tid1))
	require.NoError(t, fl.LogAbort(tid2))
	require.NoError(t, fl.Close())
	return path
}

func TestSummarize(t *testing.T) {
	records := []*log.LogRecord{
		{Type: log.UpdateRecord, TID: transaction.NewTransactionIDFromValue(1), BeforeImage: make([]byte, 10), AfterImage: make([]byte, 20)},
		{Type: log.UpdateRecord, TID: transaction.NewTransactionIDFromValue(1), AfterImage: make([]byte, 5)},
		{Type: log.CommitRecord, TID: transaction.NewTransactionIDFromValue(1)},
		{Type: log.AbortRecord, TID: transaction.NewTransactionIDFromValue(3)},
	}

	s := Summarize(records)
	assert.Equal(t, Summary{
		Records:      4,
		Updates:      2,
		Commits:      1,
		Aborts:       1,
		Transactions: 2,
		ImageBytes:   35,
	}, s)
}

func TestRender(t *testing.T) {
	path := writeLog(t)

	out, err := Render(path)
	require.NoError(t, err)

	assert.Contains(t, out, "wal.log")
	assert.Contains(t, out, "Records (3)")
	assert.Contains(t, out, "UPDATE")
	assert.Contains(t, out, "COMMIT")
	assert.Contains(t, out, "ABORT")
	assert.Contains(t, out, "TID-1")
	assert.Contains(t, out, "TID-2")
	assert.Contains(t, out, primitives.NewPageID(2, 0).String())
	assert.NotContains(t, out, "stopped")
}

func TestRenderTruncatedTail(t *testing.T) {
	path := writeLog(t)

	f, err := os.OpenFile(path.String(), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte{0, 0})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	out, err := Render(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, dberror.ErrStorageInvalid)
	assert.Contains(t, out, "Records (3)")
	assert.Contains(t, out, "stopped")
}

func TestRenderEmptyLog(t *testing.T) {
	path := primitives.Filepath(filepath.Join(t.TempDir(), "wal.log"))
	require.NoError(t, os.WriteFile(path.String(), nil, 0o644))

	out, err := Render(path)
	require.NoError(t, err)
	assert.Contains(t, out, "(empty log)")
}

func TestRenderMissingFile(t *testing.T) {
	_, err := Render(primitives.Filepath(filepath.Join(t.TempDir(), "nope.log")))
	assert.Error(t, err)
}
