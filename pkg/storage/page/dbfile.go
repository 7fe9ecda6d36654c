package page

import (
	"heapstore/pkg/concurrency/transaction"
	"heapstore/pkg/primitives"
	"heapstore/pkg/tuple"
)

// DbFile is the on-disk representation of one table.
type DbFile interface {
	GetID() primitives.TableID

	GetTupleDesc() *tuple.TupleDescription

	// ReadPage reads a page straight from disk, bypassing any cache.
	ReadPage(pid primitives.PageID) (Page, error)

	// WritePage writes a page straight to disk.
	WritePage(p Page) error

	// NumPages is the number of pages currently on disk.
	NumPages() (primitives.PageNumber, error)

	// InsertTuple stores t, fetching pages through fetcher, and returns the
	// pages it modified.
	InsertTuple(fetcher PageFetcher, tid transaction.TransactionID, t *tuple.Tuple) ([]Page, error)

	// DeleteTuple clears the slot named by t.RecordID and returns the page it modified.
	DeleteTuple(fetcher PageFetcher, tid transaction.TransactionID, t *tuple.Tuple) ([]Page, error)

	Close() error
}

// PageFetcher is the part of the buffer pool a DbFile calls back into, so
// that every page access goes through locking and the cache.
type PageFetcher interface {
	GetPage(tid transaction.TransactionID, pid primitives.PageID, perm transaction.Permissions) (Page, error)

	HoldsLock(tid transaction.TransactionID, pid primitives.PageID) bool

	// UnsafeReleasePage drops tid's lock on pid before the transaction ends.
	UnsafeReleasePage(tid transaction.TransactionID, pid primitives.PageID)
}
