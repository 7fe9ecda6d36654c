package primitives

import (
	"cmp"
	"encoding/binary"
	"fmt"
)

// PageIDSize is the encoded size of a PageID in bytes.
const PageIDSize = 16

// PageID addresses one page of one table.
//
// It is a plain value: two PageIDs are equal exactly when both coordinates are
// equal, so it is used directly as the key of the page cache and the lock table.
type PageID struct {
	TableID TableID
	PageNo  PageNumber
}

// NewPageID creates the identifier of page pageNo in table tableID.
func NewPageID(tableID TableID, pageNo PageNumber) PageID {
	return PageID{TableID: tableID, PageNo: pageNo}
}

// Serialize encodes the page ID as two big-endian uint64 values.
func (p PageID) Serialize() []byte {
	buf := make([]byte, PageIDSize)
	binary.BigEndian.PutUint64(buf[0:8], uint64(p.TableID))
	binary.BigEndian.PutUint64(buf[8:16], uint64(p.PageNo))
	return buf
}

// DeserializePageID decodes a page ID written by Serialize.
func DeserializePageID(data []byte) (PageID, error) {
	if len(data) < PageIDSize {
		return PageID{}, fmt.Errorf("page id needs %d bytes, got %d", PageIDSize, len(data))
	}
	return PageID{
		TableID: TableID(binary.BigEndian.Uint64(data[0:8])),
		PageNo:  PageNumber(binary.BigEndian.Uint64(data[8:16])),
	}, nil
}

func (p PageID) String() string {
	return fmt.Sprintf("PageID(table=%d, page=%d)", uint64(p.TableID), uint64(p.PageNo))
}

// ComparePageIDs orders page IDs by table, then by page number.
func ComparePageIDs(a, b PageID) int {
	if c := cmp.Compare(a.TableID, b.TableID); c != 0 {
		return c
	}
	return cmp.Compare(a.PageNo, b.PageNo)
}
