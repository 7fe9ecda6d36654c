package tuple

import (
	"fmt"

	"heapstore/pkg/primitives"
)

// RecordID locates a stored tuple: the page it lives on and its slot there.
// It is set by HeapPage.InsertTuple and cleared again by DeleteTuple.
type RecordID struct {
	PageID primitives.PageID
	Slot   primitives.SlotID
}

func NewRecordID(pageID primitives.PageID, slot primitives.SlotID) *RecordID {
	return &RecordID{PageID: pageID, Slot: slot}
}

func (rid *RecordID) Equals(other *RecordID) bool {
	if rid == nil || other == nil {
		return rid == other
	}
	return *rid == *other
}

// String renders the location as table:page/slot.
func (rid *RecordID) String() string {
	return fmt.Sprintf("%d:%d/%d", rid.PageID.TableID, rid.PageID.PageNo, rid.Slot)
}
