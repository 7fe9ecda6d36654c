package heap

import (
	"bytes"
	"fmt"
	"sync"

	"heapstore/pkg/concurrency/transaction"
	"heapstore/pkg/dberror"
	"heapstore/pkg/logging"
	"heapstore/pkg/primitives"
	"heapstore/pkg/storage/page"
	"heapstore/pkg/tuple"
)

// NumSlots returns how many tuples of tupleSize bytes fit on a page of
// pageSize bytes when every tuple also costs one header bit.
func NumSlots(pageSize, tupleSize int) int {
	if tupleSize <= 0 {
		return 0
	}
	return (pageSize * 8) / (tupleSize*8 + 1)
}

// HeaderSize returns the number of bitmap bytes needed for numSlots slots.
func HeaderSize(numSlots int) int {
	return (numSlots + 7) / 8
}

// HeapPage is one page of a heap file.
//
// Layout: a bitmap header of HeaderSize(n) bytes in which bit i%8 of byte i/8
// is set when slot i holds a tuple, followed by n fixed-width slots, followed
// by zero padding up to the page size.
type HeapPage struct {
	pageID    primitives.PageID
	tupleDesc *tuple.TupleDescription
	pageSize  int
	numSlots  int
	header    []byte
	tuples    []*tuple.Tuple
	dirty     bool
	dirtier   transaction.TransactionID
	oldData   []byte
	mutex     sync.RWMutex
}

// NewHeapPage parses a page from its serialized form. len(data) is the page size.
func NewHeapPage(pid primitives.PageID, data []byte, td *tuple.TupleDescription) (*HeapPage, error) {
	numSlots := NumSlots(len(data), td.GetSize())
	if numSlots == 0 {
		return nil, fmt.Errorf("tuple of %d bytes does not fit a %d byte page", td.GetSize(), len(data))
	}

	hp := &HeapPage{
		pageID:    pid,
		tupleDesc: td,
		pageSize:  len(data),
		numSlots:  numSlots,
		header:    make([]byte, HeaderSize(numSlots)),
		tuples:    make([]*tuple.Tuple, numSlots),
		oldData:   bytes.Clone(data),
	}

	if err := hp.parsePageData(data); err != nil {
		return nil, err
	}
	return hp, nil
}

// NewEmptyHeapPage creates a page with no tuples at the current page size.
func NewEmptyHeapPage(pid primitives.PageID, td *tuple.TupleDescription) (*HeapPage, error) {
	return NewHeapPage(pid, CreateEmptyPageData(), td)
}

// CreateEmptyPageData returns the serialized form of an empty page.
func CreateEmptyPageData() []byte {
	return make([]byte, page.PageSize())
}

func (hp *HeapPage) parsePageData(data []byte) error {
	headerSize := len(hp.header)
	copy(hp.header, data[:headerSize])

	tupleSize := hp.tupleDesc.GetSize()
	for i := 0; i < hp.numSlots; i++ {
		if !hp.isSlotUsed(i) {
			continue
		}

		offset := headerSize + i*tupleSize
		t, err := tuple.Parse(bytes.NewReader(data[offset:offset+tupleSize]), hp.tupleDesc)
		if err != nil {
			return dberror.NewStorageInvalid(fmt.Sprintf("slot %d of %s: %v", i, hp.pageID, err))
		}
		t.RecordID = tuple.NewRecordID(hp.pageID, primitives.SlotID(i))
		hp.tuples[i] = t
	}
	return nil
}

func (hp *HeapPage) GetID() primitives.PageID {
	return hp.pageID
}

func (hp *HeapPage) GetTupleDesc() *tuple.TupleDescription {
	return hp.tupleDesc
}

func (hp *HeapPage) IsDirty() (transaction.TransactionID, bool) {
	hp.mutex.RLock()
	defer hp.mutex.RUnlock()
	return hp.dirtier, hp.dirty
}

func (hp *HeapPage) MarkDirty(dirty bool, tid transaction.TransactionID) {
	hp.mutex.Lock()
	defer hp.mutex.Unlock()

	hp.dirty = dirty
	if dirty {
		hp.dirtier = tid
	} else {
		hp.dirtier = transaction.TransactionID{}
	}
}

// GetPageData serializes the page.
func (hp *HeapPage) GetPageData() []byte {
	hp.mutex.RLock()
	defer hp.mutex.RUnlock()
	return hp.serialize()
}

func (hp *HeapPage) serialize() []byte {
	data := make([]byte, hp.pageSize)
	headerSize := copy(data, hp.header)

	tupleSize := hp.tupleDesc.GetSize()
	for i, t := range hp.tuples {
		if t == nil {
			continue
		}
		offset := headerSize + i*tupleSize
		buf := bytes.NewBuffer(data[offset:offset])
		if err := t.Serialize(buf); err != nil {
			logging.WithPage(hp.pageID).WithError(err).Errorf("failed to serialize slot %d", i)
		}
	}
	return data
}

// GetBeforeImage returns the page as of the last SetBeforeImage, or as read
// from disk if SetBeforeImage was never called.
func (hp *HeapPage) GetBeforeImage() page.Page {
	hp.mutex.RLock()
	defer hp.mutex.RUnlock()

	before, err := NewHeapPage(hp.pageID, hp.oldData, hp.tupleDesc)
	if err != nil {
		logging.WithPage(hp.pageID).WithError(err).Error("corrupt before-image")
		return nil
	}
	return before
}

func (hp *HeapPage) SetBeforeImage() {
	hp.mutex.Lock()
	defer hp.mutex.Unlock()
	hp.oldData = hp.serialize()
}

// InsertTuple stores t in the first free slot and sets t.RecordID.
func (hp *HeapPage) InsertTuple(t *tuple.Tuple) error {
	if err := t.Conforms(hp.tupleDesc); err != nil {
		return err
	}

	hp.mutex.Lock()
	defer hp.mutex.Unlock()

	for i := 0; i < hp.numSlots; i++ {
		if hp.isSlotUsed(i) {
			continue
		}
		hp.setSlot(i, true)
		hp.tuples[i] = t
		t.RecordID = tuple.NewRecordID(hp.pageID, primitives.SlotID(i))
		return nil
	}
	return dberror.NewPageFull(hp.pageID.String())
}

// DeleteTuple clears the slot named by t.RecordID. The slot must be on this
// page and occupied. t keeps its RecordID; the bitmap alone marks the slot
// free, so the same handle still names the row once an abort restores it.
func (hp *HeapPage) DeleteTuple(t *tuple.Tuple) error {
	hp.mutex.Lock()
	defer hp.mutex.Unlock()

	rid := t.RecordID
	if rid == nil {
		return dberror.NewTupleNotFound("tuple has no record ID")
	}
	if rid.PageID != hp.pageID {
		return dberror.NewTupleNotFound(fmt.Sprintf("%s is not on %s", rid, hp.pageID))
	}

	slot := int(rid.Slot)
	if slot >= hp.numSlots || !hp.isSlotUsed(slot) {
		return dberror.NewTupleNotFound(fmt.Sprintf("slot %d of %s is empty", slot, hp.pageID))
	}

	hp.setSlot(slot, false)
	hp.tuples[slot] = nil
	return nil
}

// GetTuples returns the stored tuples in slot order.
func (hp *HeapPage) GetTuples() []*tuple.Tuple {
	hp.mutex.RLock()
	defer hp.mutex.RUnlock()

	tuples := make([]*tuple.Tuple, 0, hp.numSlots)
	for _, t := range hp.tuples {
		if t != nil {
			tuples = append(tuples, t)
		}
	}
	return tuples
}

// GetTupleAt returns the tuple in slot idx, or nil if the slot is empty.
func (hp *HeapPage) GetTupleAt(idx primitives.SlotID) (*tuple.Tuple, error) {
	hp.mutex.RLock()
	defer hp.mutex.RUnlock()

	if int(idx) >= hp.numSlots {
		return nil, fmt.Errorf("slot index %d out of bounds", idx)
	}
	return hp.tuples[idx], nil
}

func (hp *HeapPage) IsSlotUsed(idx primitives.SlotID) bool {
	hp.mutex.RLock()
	defer hp.mutex.RUnlock()
	return int(idx) < hp.numSlots && hp.isSlotUsed(int(idx))
}

func (hp *HeapPage) GetNumSlots() int {
	return hp.numSlots
}

func (hp *HeapPage) GetNumEmptySlots() int {
	hp.mutex.RLock()
	defer hp.mutex.RUnlock()

	empty := 0
	for i := 0; i < hp.numSlots; i++ {
		if !hp.isSlotUsed(i) {
			empty++
		}
	}
	return empty
}

func (hp *HeapPage) isSlotUsed(i int) bool {
	return hp.header[i/8]&(1<<(i%8)) != 0
}

func (hp *HeapPage) setSlot(i int, used bool) {
	if used {
		hp.header[i/8] |= 1 << (i % 8)
	} else {
		hp.header[i/8] &^= 1 << (i % 8)
	}
}
