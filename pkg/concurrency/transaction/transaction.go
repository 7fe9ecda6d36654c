package transaction

import (
	"fmt"
	"sync/atomic"
)

var transactionCounter atomic.Int64

// TransactionID identifies one transaction. It is a comparable value; the
// zero value means "no transaction" and is never handed out by
// NewTransactionID.
type TransactionID struct {
	id int64
}

// NewTransactionID returns a process-unique, increasing transaction ID.
func NewTransactionID() TransactionID {
	return TransactionID{id: transactionCounter.Add(1)}
}

// NewTransactionIDFromValue rebuilds an ID read back from the log.
func NewTransactionIDFromValue(id int64) TransactionID {
	return TransactionID{id: id}
}

func (tid TransactionID) ID() int64 {
	return tid.id
}

func (tid TransactionID) IsValid() bool {
	return tid.id != 0
}

func (tid TransactionID) String() string {
	return fmt.Sprintf("TID-%d", tid.id)
}

// Permissions is the access mode a transaction requests on a page.
type Permissions int

const (
	ReadOnly Permissions = iota
	ReadWrite
)

func (p Permissions) String() string {
	switch p {
	case ReadOnly:
		return "READ_ONLY"
	case ReadWrite:
		return "READ_WRITE"
	default:
		return "UNKNOWN"
	}
}
