package database

import (
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"heapstore/pkg/config"
	"heapstore/pkg/dberror"
	"heapstore/pkg/log"
	"heapstore/pkg/primitives"
	"heapstore/pkg/storage/page"
	"heapstore/pkg/tuple"
	"heapstore/pkg/types"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = filepath.Join(t.TempDir(), "data")
	cfg.LockTimeout = config.Duration(200 * time.Millisecond)
	cfg.BufferPoolPages = 8
	t.Cleanup(page.ResetPageSize)
	return cfg
}

func openDB(t *testing.T, cfg config.Config) *Database {
	t.Helper()
	db, err := Open(cfg)
	require.NoError(t, err)
	return db
}

func peopleSchema(t *testing.T) *tuple.TupleDescription {
	t.Helper()
	td, err := tuple.NewTupleDesc([]types.Type{types.IntType, types.StringType}, []string{"id", "name"})
	require.NoError(t, err)
	return td
}

func TestOpen_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.BufferPoolPages = 0
	_, err := Open(cfg)
	assert.Error(t, err)
}

func TestCreateTableAndReopen(t *testing.T) {
	cfg := testConfig(t)
	db := openDB(t, cfg)
	td := peopleSchema(t)

	id, err := db.CreateTable("people", td)
	require.NoError(t, err)
	assert.True(t, id.IsValid())

	_, err = db.CreateTable("people", td)
	assert.ErrorIs(t, err, dberror.ErrDuplicateTable)

	second, err := db.CreateTable("pets", td)
	require.NoError(t, err)
	assert.NotEqual(t, id, second)

	tx := db.Begin()
	require.NoError(t, db.Insert(tx, "people", tuple.NewBuilder(td).AddInt(1).AddString("ada").MustBuild()))
	require.NoError(t, db.Commit(tx))
	require.NoError(t, db.Close())

	db = openDB(t, cfg)
	defer db.Close()

	assert.Equal(t, []string{"people", "pets"}, db.Tables())
	got, err := db.TableID("people")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	reopened, err := db.TupleDesc("people")
	require.NoError(t, err)
	assert.True(t, td.Equals(reopened))
	assert.Equal(t, []string{"id", "name"}, reopened.FieldNames)

	tx = db.Begin()
	result, err := db.Query(tx, "people")
	require.NoError(t, err)
	require.NoError(t, db.Commit(tx))
	assert.Equal(t, []string{"id", "name"}, result.Columns)
	assert.Equal(t, [][]string{{"1", "ada"}}, result.Rows)
}

func TestCommitAndAbort(t *testing.T) {
	db := openDB(t, testConfig(t))
	defer db.Close()
	td := peopleSchema(t)
	_, err := db.CreateTable("people", td)
	require.NoError(t, err)

	kept := db.Begin()
	require.NoError(t, db.Insert(kept, "people", tuple.NewBuilder(td).AddInt(1).AddString("kept").MustBuild()))
	require.NoError(t, db.Commit(kept))

	dropped := db.Begin()
	require.NoError(t, db.Insert(dropped, "people", tuple.NewBuilder(td).AddInt(2).AddString("dropped").MustBuild()))
	rows, err := db.Scan(dropped, "people")
	require.NoError(t, err)
	assert.Len(t, rows, 2, "a transaction sees its own writes")
	require.NoError(t, db.Abort(dropped))

	reader := db.Begin()
	rows, err = db.Scan(reader, "people")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "1\tkept", rows[0].String())

	require.NoError(t, db.Delete(reader, rows[0]))
	require.NoError(t, db.Commit(reader))

	info := db.Info()
	assert.EqualValues(t, 2, info.Committed)
	assert.EqualValues(t, 1, info.Aborted)
	assert.Zero(t, info.ActiveTx)
	assert.Equal(t, 1, info.TableCount)
}

func TestUpdate(t *testing.T) {
	db := openDB(t, testConfig(t))
	defer db.Close()
	td := peopleSchema(t)
	_, err := db.CreateTable("people", td)
	require.NoError(t, err)

	tx := db.Begin()
	require.NoError(t, db.Insert(tx, "people", tuple.NewBuilder(td).AddInt(1).AddString("old").MustBuild()))
	rows, err := db.Scan(tx, "people")
	require.NoError(t, err)
	require.NoError(t, db.Update(tx, rows[0], tuple.NewBuilder(td).AddInt(1).AddString("new").MustBuild()))
	require.NoError(t, db.Commit(tx))

	tx = db.Begin()
	rows, err = db.Scan(tx, "people")
	require.NoError(t, err)
	require.NoError(t, db.Commit(tx))
	require.Len(t, rows, 1)
	assert.Equal(t, "1\tnew", rows[0].String())
}

func TestErrors(t *testing.T) {
	db := openDB(t, testConfig(t))
	defer db.Close()
	td := peopleSchema(t)
	_, err := db.CreateTable("people", td)
	require.NoError(t, err)

	tx := db.Begin()
	defer db.Abort(tx)

	assert.ErrorIs(t, db.Insert(tx, "missing", tuple.NewBuilder(td).AddInt(1).AddString("x").MustBuild()),
		dberror.ErrTableNotFound)

	wrong, err := tuple.NewTupleDesc([]types.Type{types.IntType}, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, db.Insert(tx, "people", tuple.NewBuilder(wrong).AddInt(1).MustBuild()),
		dberror.ErrSchemaMismatch)

	_, err = db.Scan(tx, "missing")
	assert.ErrorIs(t, err, dberror.ErrTableNotFound)
	_, err = db.CreateTable("", td)
	assert.Error(t, err)
	assert.Positive(t, db.Info().ErrorCount)
}

func TestLockConflictAbortsSecondWriter(t *testing.T) {
	db := openDB(t, testConfig(t))
	defer db.Close()
	td := peopleSchema(t)
	_, err := db.CreateTable("people", td)
	require.NoError(t, err)

	t1 := db.Begin()
	require.NoError(t, db.Insert(t1, "people", tuple.NewBuilder(td).AddInt(1).AddString("a").MustBuild()))

	t2 := db.Begin()
	_, err = db.Scan(t2, "people")
	assert.True(t, dberror.IsTransactionAborted(err))
	require.NoError(t, db.Abort(t2))
	require.NoError(t, db.Commit(t1))
}

func TestCommitWritesLog(t *testing.T) {
	cfg := testConfig(t)
	db := openDB(t, cfg)
	td := peopleSchema(t)
	_, err := db.CreateTable("people", td)
	require.NoError(t, err)

	tx := db.Begin()
	require.NoError(t, db.Insert(tx, "people", tuple.NewBuilder(td).AddInt(1).AddString("a").MustBuild()))
	require.NoError(t, db.Commit(tx))
	aborted := db.Begin()
	require.NoError(t, db.Abort(aborted))
	require.NoError(t, db.Close())

	r, err := log.NewReader(primitives.Filepath(cfg.ResolvedLogPath()))
	require.NoError(t, err)
	defer r.Close()
	records, err := r.ReadAll()
	require.NoError(t, err)

	require.Len(t, records, 3)
	assert.Equal(t, log.UpdateRecord, records[0].Type)
	assert.Equal(t, tx.ID, records[0].TID)
	assert.Len(t, records[0].AfterImage, cfg.PageSize)
	assert.Equal(t, log.CommitRecord, records[1].Type)
	assert.Equal(t, log.AbortRecord, records[2].Type)
}

func TestCloseAbortsActiveTransactions(t *testing.T) {
	cfg := testConfig(t)
	db := openDB(t, cfg)
	td := peopleSchema(t)
	_, err := db.CreateTable("people", td)
	require.NoError(t, err)

	tx := db.Begin()
	require.NoError(t, db.Insert(tx, "people", tuple.NewBuilder(td).AddInt(1).AddString("lost").MustBuild()))
	require.NoError(t, db.Close())

	db = openDB(t, cfg)
	defer db.Close()
	reader := db.Begin()
	rows, err := db.Scan(reader, "people")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestConcurrentWritersWithRetry(t *testing.T) {
	cfg := testConfig(t)
	cfg.BufferPoolPages = 16
	db := openDB(t, cfg)
	defer db.Close()
	td := peopleSchema(t)
	_, err := db.CreateTable("people", td)
	require.NoError(t, err)

	const workers, rowsPerWorker = 4, 10
	var retries atomic.Int64

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			faker := gofakeit.New(uint64(w + 1))
			for i := 0; i < rowsPerWorker; i++ {
				row := tuple.NewBuilder(td).AddInt(int32(w*1000 + i)).AddString(faker.Name()).MustBuild()
				for {
					tx := db.Begin()
					err := db.Insert(tx, "people", row)
					if err == nil {
						err = db.Commit(tx)
						if err == nil {
							break
						}
					} else {
						_ = db.Abort(tx)
					}
					if !dberror.IsTransactionAborted(err) {
						return err
					}
					retries.Add(1)
					time.Sleep(time.Duration(faker.IntRange(1, 20)) * time.Millisecond)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	tx := db.Begin()
	rows, err := db.Scan(tx, "people")
	require.NoError(t, err)
	require.NoError(t, db.Commit(tx))
	assert.Len(t, rows, workers*rowsPerWorker)
	assert.LessOrEqual(t, db.Pool().Size(), cfg.BufferPoolPages)
	t.Logf("retries: %d", retries.Load())
}
