package page

import (
	"sync/atomic"

	"heapstore/pkg/concurrency/transaction"
	"heapstore/pkg/primitives"
)

// DefaultPageSize is the size of every page on disk and in memory.
const DefaultPageSize = 4096

var pageSize atomic.Int64

func init() {
	pageSize.Store(DefaultPageSize)
}

// PageSize returns the current page size in bytes.
func PageSize() int {
	return int(pageSize.Load())
}

// SetPageSize changes the page size for files and pages created afterwards.
// Tests use it to get small pages; it must not change while files are open.
func SetPageSize(n int) {
	pageSize.Store(int64(n))
}

// ResetPageSize restores DefaultPageSize.
func ResetPageSize() {
	pageSize.Store(DefaultPageSize)
}

// Page is a fixed-size block of a table held in the buffer pool.
type Page interface {
	GetID() primitives.PageID

	// IsDirty returns the transaction that last modified the page and true,
	// or false when the page matches its on-disk image.
	IsDirty() (transaction.TransactionID, bool)

	// MarkDirty sets or clears the dirty tag; tid is ignored when clearing.
	MarkDirty(dirty bool, tid transaction.TransactionID)

	// GetPageData serializes the page to exactly PageSize() bytes.
	GetPageData() []byte

	// GetBeforeImage returns the page as it was at the last SetBeforeImage.
	GetBeforeImage() Page

	// SetBeforeImage snapshots the current contents as the new before-image.
	SetBeforeImage()
}
