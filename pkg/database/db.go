// Package database wires the storage engine together: configuration, the
// write-ahead log, the lock manager, the buffer pool and the table catalog.
package database

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"heapstore/pkg/concurrency/lock"
	"heapstore/pkg/concurrency/transaction"
	"heapstore/pkg/config"
	"heapstore/pkg/dberror"
	"heapstore/pkg/log"
	"heapstore/pkg/logging"
	"heapstore/pkg/memory"
	"heapstore/pkg/primitives"
	"heapstore/pkg/storage/heap"
	"heapstore/pkg/storage/page"
	"heapstore/pkg/tuple"
	"heapstore/pkg/types"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Database is an open data directory.
type Database struct {
	config     config.Config
	tables     *memory.TableManager
	pool       *memory.BufferPool
	locks      *lock.LockManager
	logFile    *log.FileLog
	txRegistry *transaction.TransactionRegistry

	catalog catalogFile
	mutex   sync.RWMutex
	stats   *DatabaseStats
	log     *logrus.Entry
}

// DatabaseStats counts finished transactions.
type DatabaseStats struct {
	TransactionsCount int64
	Committed         int64
	Aborted           int64
	ErrorCount        int64
	mutex             sync.RWMutex
}

// DatabaseInfo is a snapshot of database metadata.
type DatabaseInfo struct {
	DataDir           string
	Tables            []string
	TableCount        int
	ActiveTx          int
	TransactionsCount int64
	Committed         int64
	Aborted           int64
	ErrorCount        int64
	Pool              memory.Stats
}

// Open opens the data directory described by cfg, creating it if needed, and
// reopens every table recorded in its catalog. The configured page size
// becomes the process-wide page size.
func Open(cfg config.Config) (*Database, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return nil, errors.Wrapf(err, "create data directory %s", cfg.DataDir)
	}
	page.SetPageSize(cfg.PageSize)

	logFile, err := log.NewFileLog(primitives.Filepath(cfg.ResolvedLogPath()), cfg.LogBufferSize)
	if err != nil {
		return nil, err
	}

	policy, err := memory.NewEvictionPolicy(cfg.EvictionPolicy)
	if err != nil {
		_ = logFile.Close()
		return nil, err
	}

	locks := lock.NewLockManager(
		lock.WithTimeout(cfg.LockTimeout.Std()),
		lock.WithDeadlockDetection(cfg.DeadlockDetection),
	)
	tables := memory.NewTableManager()

	pool, err := memory.NewBufferPool(cfg.BufferPoolPages, tables, locks, logFile, policy)
	if err != nil {
		_ = logFile.Close()
		return nil, err
	}

	db := &Database{
		config:     cfg,
		tables:     tables,
		pool:       pool,
		locks:      locks,
		logFile:    logFile,
		txRegistry: transaction.NewTransactionRegistry(),
		stats:      &DatabaseStats{},
		log:        logging.WithComponent("Database").WithField("data_dir", cfg.DataDir),
	}

	if err := db.loadExistingTables(); err != nil {
		_ = db.tables.Clear()
		_ = logFile.Close()
		return nil, fmt.Errorf("failed to load existing tables: %w", err)
	}

	db.log.WithFields(logrus.Fields{
		"tables":    len(db.catalog.Tables),
		"pool":      cfg.BufferPoolPages,
		"page_size": cfg.PageSize,
		"policy":    cfg.EvictionPolicy,
	}).Info("database opened")
	return db, nil
}

func (db *Database) loadExistingTables() error {
	cat, err := loadCatalog(db.config.DataDir)
	if err != nil {
		return err
	}

	for _, entry := range cat.Tables {
		td, err := entry.tupleDesc()
		if err != nil {
			return fmt.Errorf("table %s: %w", entry.Name, err)
		}
		hf, err := heap.NewHeapFile(db.tablePath(entry.File), entry.ID, td)
		if err != nil {
			return fmt.Errorf("table %s: %w", entry.Name, err)
		}
		if err := db.tables.AddTable(entry.Name, hf); err != nil {
			_ = hf.Close()
			return err
		}
	}
	db.catalog = cat
	return nil
}

func (db *Database) tablePath(file string) primitives.Filepath {
	return primitives.Filepath(db.config.DataDir).Join(file)
}

func (e tableEntry) tupleDesc() (*tuple.TupleDescription, error) {
	td, err := tuple.ParseSchema(e.Schema)
	if err != nil {
		return nil, err
	}
	if len(e.Columns) == 0 {
		return td, nil
	}
	return tuple.NewTupleDesc(td.Types, e.Columns)
}

func schemaSpec(td *tuple.TupleDescription) string {
	names := make([]string, len(td.Types))
	for i, t := range td.Types {
		switch t {
		case types.IntType:
			names[i] = "int"
		case types.StringType:
			names[i] = "string"
		default:
			names[i] = t.String()
		}
	}
	return strings.Join(names, ",")
}

// CreateTable creates an empty heap file for name and records it in the catalog.
func (db *Database) CreateTable(name string, td *tuple.TupleDescription) (primitives.TableID, error) {
	if name == "" || td == nil {
		return primitives.InvalidTableID, fmt.Errorf("table needs a name and a schema")
	}

	db.mutex.Lock()
	defer db.mutex.Unlock()

	if db.tables.TableExists(name) {
		return primitives.InvalidTableID, dberror.NewDuplicateTable(fmt.Sprintf("table %q already exists", name))
	}

	entry := tableEntry{
		Name:    name,
		ID:      db.catalog.nextID(),
		Schema:  schemaSpec(td),
		Columns: td.FieldNames,
		File:    name + ".dat",
	}
	path := db.tablePath(entry.File)
	if path.Exists() {
		return primitives.InvalidTableID, dberror.NewDuplicateTable(fmt.Sprintf("file %s already exists", path))
	}

	hf, err := heap.NewHeapFile(path, entry.ID, td)
	if err != nil {
		return primitives.InvalidTableID, err
	}
	if err := db.tables.AddTable(name, hf); err != nil {
		_ = hf.Close()
		return primitives.InvalidTableID, err
	}

	updated := db.catalog
	updated.Tables = append(append([]tableEntry(nil), db.catalog.Tables...), entry)
	if err := updated.save(db.config.DataDir); err != nil {
		_ = db.tables.RemoveTable(name)
		return primitives.InvalidTableID, err
	}
	db.catalog = updated

	logging.WithTable(name, entry.ID).WithField("schema", entry.Schema).Info("table created")
	return entry.ID, nil
}

func (db *Database) TableID(name string) (primitives.TableID, error) {
	return db.tables.GetTableID(name)
}

func (db *Database) TupleDesc(name string) (*tuple.TupleDescription, error) {
	id, err := db.tables.GetTableID(name)
	if err != nil {
		return nil, err
	}
	return db.tables.GetTupleDesc(id)
}

func (db *Database) Tables() []string {
	return db.tables.GetAllTableNames()
}

func (db *Database) heapFile(name string) (*heap.HeapFile, error) {
	id, err := db.tables.GetTableID(name)
	if err != nil {
		return nil, err
	}
	file, err := db.tables.GetDbFile(id)
	if err != nil {
		return nil, err
	}
	hf, ok := file.(*heap.HeapFile)
	if !ok {
		return nil, fmt.Errorf("table %s is not stored in a heap file", name)
	}
	return hf, nil
}

// Begin starts a new transaction.
func (db *Database) Begin() *transaction.TransactionContext {
	tx := db.txRegistry.Begin()
	logging.WithTx(tx.ID.ID()).Debug("transaction started")
	return tx
}

// Commit makes tx's changes durable and releases its locks. When the commit
// cannot complete the transaction is aborted and the commit error returned.
func (db *Database) Commit(tx *transaction.TransactionContext) error {
	if err := db.pool.CommitTransaction(tx.ID); err != nil {
		db.recordError()
		logging.WithTx(tx.ID.ID()).WithError(err).Error("commit failed, aborting")
		if abortErr := db.Abort(tx); abortErr != nil {
			logging.WithTx(tx.ID.ID()).WithError(abortErr).Error("abort after failed commit failed")
		}
		return err
	}
	db.finish(tx, transaction.TxCommitted)
	return nil
}

// Abort discards tx's changes and releases its locks.
func (db *Database) Abort(tx *transaction.TransactionContext) error {
	err := db.pool.AbortTransaction(tx.ID)
	db.finish(tx, transaction.TxAborted)
	return err
}

func (db *Database) finish(tx *transaction.TransactionContext, status transaction.TransactionStatus) {
	if _, err := db.txRegistry.Finish(tx.ID, status); err != nil {
		return
	}

	db.stats.mutex.Lock()
	db.stats.TransactionsCount++
	if status == transaction.TxCommitted {
		db.stats.Committed++
	} else {
		db.stats.Aborted++
	}
	db.stats.mutex.Unlock()

	stats := tx.GetStatistics()
	logging.WithTx(tx.ID.ID()).WithFields(logrus.Fields{
		"status":   status.String(),
		"writes":   stats.TuplesInserted,
		"deletes":  stats.TuplesDeleted,
		"duration": tx.Duration().String(),
	}).Debug("transaction finished")
}

// Insert adds t to table within tx.
func (db *Database) Insert(tx *transaction.TransactionContext, table string, t *tuple.Tuple) error {
	id, err := db.tables.GetTableID(table)
	if err != nil {
		return err
	}
	if err := db.pool.InsertTuple(tx.ID, id, t); err != nil {
		db.recordError()
		return err
	}
	tx.RecordTupleWrite()
	return nil
}

// Delete removes t, located by its record ID, within tx.
func (db *Database) Delete(tx *transaction.TransactionContext, t *tuple.Tuple) error {
	if err := db.pool.DeleteTuple(tx.ID, t); err != nil {
		db.recordError()
		return err
	}
	tx.RecordTupleDelete()
	return nil
}

// Update replaces oldTuple with newTuple within tx.
func (db *Database) Update(tx *transaction.TransactionContext, oldTuple, newTuple *tuple.Tuple) error {
	if err := db.pool.UpdateTuple(tx.ID, oldTuple, newTuple); err != nil {
		db.recordError()
		return err
	}
	tx.RecordTupleDelete()
	tx.RecordTupleWrite()
	return nil
}

// Scan reads every tuple of table under shared locks held by tx.
func (db *Database) Scan(tx *transaction.TransactionContext, table string) ([]*tuple.Tuple, error) {
	hf, err := db.heapFile(table)
	if err != nil {
		return nil, err
	}

	numPages, err := hf.NumPages()
	if err != nil {
		return nil, err
	}
	tuples, err := heap.ReadAll(hf, db.pool, tx.ID)
	if err != nil {
		db.recordError()
		return nil, err
	}
	for range numPages {
		tx.RecordPageRead()
	}
	return tuples, nil
}

// Query scans table and formats the rows for display.
func (db *Database) Query(tx *transaction.TransactionContext, table string) (QueryResult, error) {
	tuples, err := db.Scan(tx, table)
	if err != nil {
		return QueryResult{}, err
	}
	td, err := db.TupleDesc(table)
	if err != nil {
		return QueryResult{}, err
	}
	return FormatTuples(td, tuples), nil
}

// Pool exposes the buffer pool for callers that work on pages directly.
func (db *Database) Pool() *memory.BufferPool {
	return db.pool
}

func (db *Database) Config() config.Config {
	return db.config
}

func (db *Database) recordError() {
	db.stats.mutex.Lock()
	db.stats.ErrorCount++
	db.stats.mutex.Unlock()
}

// Info returns current database statistics.
func (db *Database) Info() DatabaseInfo {
	db.stats.mutex.RLock()
	defer db.stats.mutex.RUnlock()

	tables := db.Tables()
	return DatabaseInfo{
		DataDir:           db.config.DataDir,
		Tables:            tables,
		TableCount:        len(tables),
		ActiveTx:          db.txRegistry.Count(),
		TransactionsCount: db.stats.TransactionsCount,
		Committed:         db.stats.Committed,
		Aborted:           db.stats.Aborted,
		ErrorCount:        db.stats.ErrorCount,
		Pool:              db.pool.Stats(),
	}
}

// Close aborts transactions still running, then closes the buffer pool,
// every table file and the log.
func (db *Database) Close() error {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	for _, tx := range db.txRegistry.GetActive() {
		db.log.WithField("tx_id", tx.ID.ID()).Warn("aborting transaction still active at close")
		if err := db.Abort(tx); err != nil {
			db.log.WithError(err).Error("abort at close failed")
		}
	}

	if err := db.pool.FlushAllPages(); err != nil {
		return fmt.Errorf("failed to flush pages: %w", err)
	}
	if err := db.pool.Close(); err != nil {
		return err
	}
	if err := db.tables.Clear(); err != nil {
		return err
	}
	if err := db.logFile.Close(); err != nil {
		return fmt.Errorf("failed to close log: %w", err)
	}

	db.log.Info("database closed")
	return nil
}
