package primitives

import "fmt"

// LSN (Log Sequence Number) uniquely identifies each log record.
// It increases monotonically and equals the byte offset of the record in the log file.
type LSN uint64

// TableID identifies a table. It is assigned explicitly by the catalog and
// stored alongside the heap file, never derived from where the file lives.
type TableID uint64

// PageNumber is the zero-based position of a page within its table's file.
type PageNumber uint64

// SlotID represents a slot number within a page (for tuple storage)
type SlotID uint16

// InvalidTableID represents an unset table identifier.
const InvalidTableID TableID = 0

func (t TableID) IsValid() bool {
	return t != InvalidTableID
}

func (t TableID) String() string {
	return fmt.Sprintf("TableID(%d)", uint64(t))
}
