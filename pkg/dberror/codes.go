package dberror

import "errors"

const (
	CodeTransactionAborted = "TXN_ABORTED"
	CodeDeadlock           = "DEADLOCK"
	CodeStorageInvalid     = "STORAGE_INVALID"
	CodeCapacityExhausted  = "CAPACITY_EXHAUSTED"
	CodeSchemaMismatch     = "SCHEMA_MISMATCH"
	CodeTableNotFound      = "TABLE_NOT_FOUND"
	CodeDuplicateTable     = "DUPLICATE_TABLE"
	CodeTupleNotFound      = "TUPLE_NOT_FOUND"
	CodePageFull           = "PAGE_FULL"
	CodeIO                 = "IO_ERROR"
)

// Sentinels for errors.Is. Never return these directly; use the constructors
// below so each error gets its own stack and detail.
var (
	ErrTransactionAborted = &DBError{Code: CodeTransactionAborted, Category: ErrCategoryConcurrency}
	ErrDeadlock           = &DBError{Code: CodeDeadlock, Category: ErrCategoryConcurrency}
	ErrStorageInvalid     = &DBError{Code: CodeStorageInvalid, Category: ErrCategoryData}
	ErrCapacityExhausted  = &DBError{Code: CodeCapacityExhausted, Category: ErrCategoryTransient}
	ErrSchemaMismatch     = &DBError{Code: CodeSchemaMismatch, Category: ErrCategoryUser}
	ErrTableNotFound      = &DBError{Code: CodeTableNotFound, Category: ErrCategoryUser}
	ErrDuplicateTable     = &DBError{Code: CodeDuplicateTable, Category: ErrCategoryUser}
	ErrTupleNotFound      = &DBError{Code: CodeTupleNotFound, Category: ErrCategoryUser}
	ErrPageFull           = &DBError{Code: CodePageFull, Category: ErrCategoryData}
	ErrIO                 = &DBError{Code: CodeIO, Category: ErrCategorySystem}
)

// NewTransactionAborted reports a lock request that could not be granted in time.
func NewTransactionAborted(detail string) *DBError {
	err := New(ErrCategoryConcurrency, CodeTransactionAborted, "transaction aborted")
	err.Detail = detail
	err.Hint = "abort the transaction and retry it"
	return err
}

// NewDeadlock reports a wait-for cycle. It also matches ErrTransactionAborted.
func NewDeadlock(detail string) *DBError {
	err := New(ErrCategoryConcurrency, CodeDeadlock, "deadlock detected")
	err.Detail = detail
	err.Hint = "abort the transaction and retry it"
	err.parent = ErrTransactionAborted
	return err
}

// NewStorageInvalid reports a missing page, a short read or a corrupt record.
func NewStorageInvalid(detail string) *DBError {
	err := New(ErrCategoryData, CodeStorageInvalid, "invalid storage access")
	err.Detail = detail
	return err
}

// NewCapacityExhausted reports a buffer pool whose cached pages are all dirty.
func NewCapacityExhausted(detail string) *DBError {
	err := New(ErrCategoryTransient, CodeCapacityExhausted, "buffer pool capacity exhausted")
	err.Detail = detail
	err.Hint = "commit or abort transactions holding dirty pages, or raise the buffer pool size"
	return err
}

// NewSchemaMismatch reports a tuple whose layout does not match its table.
func NewSchemaMismatch(detail string) *DBError {
	err := New(ErrCategoryUser, CodeSchemaMismatch, "tuple does not match schema")
	err.Detail = detail
	return err
}

func NewTableNotFound(detail string) *DBError {
	err := New(ErrCategoryUser, CodeTableNotFound, "table not found")
	err.Detail = detail
	return err
}

func NewDuplicateTable(detail string) *DBError {
	err := New(ErrCategoryUser, CodeDuplicateTable, "table already exists")
	err.Detail = detail
	return err
}

func NewTupleNotFound(detail string) *DBError {
	err := New(ErrCategoryUser, CodeTupleNotFound, "tuple not found")
	err.Detail = detail
	return err
}

func NewPageFull(detail string) *DBError {
	err := New(ErrCategoryData, CodePageFull, "page is full")
	err.Detail = detail
	return err
}

// NewIO wraps a failed disk operation.
func NewIO(cause error, detail string) *DBError {
	err := New(ErrCategorySystem, CodeIO, "i/o failure")
	err.Detail = detail
	err.Cause = cause
	return err
}

// IsTransactionAborted reports whether err means the transaction must abort.
func IsTransactionAborted(err error) bool {
	return errors.Is(err, ErrTransactionAborted)
}
