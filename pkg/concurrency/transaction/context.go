package transaction

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// TransactionStatus is the lifecycle state of a transaction.
type TransactionStatus int

const (
	TxActive TransactionStatus = iota
	TxCommitted
	TxAborted
)

func (ts TransactionStatus) String() string {
	switch ts {
	case TxActive:
		return "ACTIVE"
	case TxCommitted:
		return "COMMITTED"
	case TxAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// TransactionStats counts the work a transaction did.
type TransactionStats struct {
	TuplesInserted int64
	TuplesDeleted  int64
	PagesRead      int64
	Duration       time.Duration
}

// TransactionContext carries the bookkeeping of one running transaction.
// Locks and dirty pages are tracked by the lock manager and buffer pool; the
// context only records status and counters.
type TransactionContext struct {
	ID        TransactionID
	StartTime time.Time

	mutex   sync.RWMutex
	status  TransactionStatus
	endTime time.Time

	tuplesInserted atomic.Int64
	tuplesDeleted  atomic.Int64
	pagesRead      atomic.Int64
}

func NewTransactionContext(tid TransactionID) *TransactionContext {
	return &TransactionContext{
		ID:        tid,
		StartTime: time.Now(),
		status:    TxActive,
	}
}

func (tc *TransactionContext) IsActive() bool {
	return tc.GetStatus() == TxActive
}

func (tc *TransactionContext) GetStatus() TransactionStatus {
	tc.mutex.RLock()
	defer tc.mutex.RUnlock()
	return tc.status
}

// SetStatus moves the transaction to status; a finished transaction records
// its end time.
func (tc *TransactionContext) SetStatus(status TransactionStatus) {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()
	tc.status = status
	if status != TxActive {
		tc.endTime = time.Now()
	}
}

func (tc *TransactionContext) RecordTupleWrite() {
	tc.tuplesInserted.Add(1)
}

func (tc *TransactionContext) RecordTupleDelete() {
	tc.tuplesDeleted.Add(1)
}

func (tc *TransactionContext) RecordPageRead() {
	tc.pagesRead.Add(1)
}

func (tc *TransactionContext) GetStatistics() TransactionStats {
	return TransactionStats{
		TuplesInserted: tc.tuplesInserted.Load(),
		TuplesDeleted:  tc.tuplesDeleted.Load(),
		PagesRead:      tc.pagesRead.Load(),
		Duration:       tc.Duration(),
	}
}

// Duration is the time since the start, or the total run time once finished.
func (tc *TransactionContext) Duration() time.Duration {
	tc.mutex.RLock()
	defer tc.mutex.RUnlock()
	if tc.endTime.IsZero() {
		return time.Since(tc.StartTime)
	}
	return tc.endTime.Sub(tc.StartTime)
}

func (tc *TransactionContext) String() string {
	return fmt.Sprintf("Transaction{%s, status=%s, inserted=%d, deleted=%d}",
		tc.ID, tc.GetStatus(), tc.tuplesInserted.Load(), tc.tuplesDeleted.Load())
}
